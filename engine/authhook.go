package engine

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthHook is the spec's "authenticate" hook (§4.10, §7): returning false or
// an error fails the request/handshake with 401/500 respectively. It is
// consulted by both the REST dispatcher (as an ordinary middleware wrapping
// it, see WithAuth) and the WS handshake (ws.Handler.Authenticate).
type AuthHook func(req *Request) (bool, error)

// JWTAuthHook builds an AuthHook that expects "Authorization: Bearer <jwt>",
// verifies it with the supplied HMAC secret, and — on success — stashes the
// parsed claims under the "claims" request local, generalizing the
// teacher's console-session bearer check to an arbitrary handler.
func JWTAuthHook(secret []byte) AuthHook {
	return func(req *Request) (bool, error) {
		header := req.Headers.Get("Authorization")
		if header == "" {
			return false, nil
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return false, nil
		}
		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			return false, err
		}
		req.SetLocal("claims", token.Claims)
		return true, nil
	}
}

// WithAuth adapts an AuthHook into a normal-track middleware that rejects
// unauthenticated requests with 401 before the handler chain continues.
func WithAuth(hook AuthHook) MiddlewareFunc {
	return func(req *Request, res ResponseWriter, next NextFunc) {
		ok, err := hook(req)
		if err != nil {
			next(Internal("authentication hook failed", err))
			return
		}
		if !ok {
			next(NewError(KindClientError, 401, "Unauthorized"))
			return
		}
		next(nil)
	}
}
