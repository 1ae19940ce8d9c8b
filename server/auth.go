package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	msconfig "devgateway/config"
)

const (
	MaskedValue    = "********"
	JWTCookieName  = "dg_console_jwt"
	ContextUserKey = "user_claims" // Key used to store user claims in Fiber context
)

var jwtSecret []byte

// initJWTSecret initializes the JWT signing key for the console. It
// prioritizes the environment variable; otherwise it derives a deterministic
// key from the admin password so sessions are invalidated when the password
// changes.
func initJWTSecret(cfg *msconfig.GatewayConfig) {
	if secret := os.Getenv("DG_JWT_SECRET"); secret != "" {
		jwtSecret = []byte(secret)
		return
	}
	password := ""
	if cfg.Console != nil && cfg.Console.Auth != nil {
		password = cfg.Console.Auth.Password
	}
	jwtSecret = []byte(password + "_dg_console_salt_v1")
}

type ConsoleClaims struct {
	Username string `json:"u"`
	jwt.RegisteredClaims
}

// generateToken creates a signed JWT for the authenticated console user,
// valid for 72 hours.
func generateToken(username string) (string, error) {
	claims := ConsoleClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(72 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "devgateway-console",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func validateToken(tokenString string) (*ConsoleClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ConsoleClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*ConsoleClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// ConsoleAuthMiddleware enforces stateless JWT authentication for the admin
// console, differentiating API (JSON 401) from browser (redirect) clients.
func ConsoleAuthMiddleware(cfg *msconfig.GatewayConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		consolePath := cfg.Console.Path

		if !cfg.Console.Auth.Enabled ||
			strings.HasPrefix(path, consolePath+"/login") ||
			strings.HasPrefix(path, "/public") {
			return c.Next()
		}

		tokenString := c.Cookies(JWTCookieName)
		claims, err := validateToken(tokenString)

		handleAuthError := func() error {
			c.ClearCookie(JWTCookieName)
			isAPI := strings.Contains(c.Get("Accept"), "application/json") ||
				c.XHR() ||
				strings.HasSuffix(path, ".json") ||
				strings.Contains(path, "/me")

			if isAPI {
				return c.Status(401).JSON(fiber.Map{
					"error": "Unauthorized Access",
					"code":  "AUTH_REQUIRED",
				})
			}
			return c.Redirect(consolePath + "/login")
		}

		if err != nil {
			return handleAuthError()
		}

		validUser := os.Getenv("DG_CONSOLE_USER")
		if validUser == "" {
			validUser = cfg.Console.Auth.Username
		}
		if claims.Username != validUser {
			return handleAuthError()
		}

		c.Locals(ContextUserKey, claims)
		return c.Next()
	}
}

// ConsoleLoginHandler processes console login credentials with a
// timing-attack-safe comparison and sets an HTTP-only session cookie.
func ConsoleLoginHandler(cfg *msconfig.GatewayConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var creds struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&creds); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Malformed request"})
		}

		validUser := os.Getenv("DG_CONSOLE_USER")
		if validUser == "" {
			validUser = cfg.Console.Auth.Username
		}
		validPass := os.Getenv("DG_CONSOLE_PASS")
		if validPass == "" {
			validPass = cfg.Console.Auth.Password
		}

		userMatch := subtle.ConstantTimeCompare([]byte(creds.Username), []byte(validUser)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(creds.Password), []byte(validPass)) == 1

		if userMatch && passMatch {
			signedToken, err := generateToken(creds.Username)
			if err != nil {
				return c.Status(500).SendString("Token error")
			}
			c.Cookie(&fiber.Cookie{
				Name:     JWTCookieName,
				Value:    signedToken,
				Expires:  time.Now().Add(72 * time.Hour),
				HTTPOnly: true,
				Secure:   false,
				SameSite: "Lax",
			})
			return c.JSON(fiber.Map{"success": true, "redirect": cfg.Console.Path})
		}

		time.Sleep(300 * time.Millisecond)
		return c.Status(401).JSON(fiber.Map{"success": false, "error": "Invalid credentials"})
	}
}

// ConsoleMeHandler returns the authenticated console user's profile.
func ConsoleMeHandler(c *fiber.Ctx) error {
	claims, ok := c.Locals(ContextUserKey).(*ConsoleClaims)
	if !ok || claims == nil {
		return c.Status(401).JSON(fiber.Map{"error": "Session expired"})
	}
	return c.JSON(fiber.Map{
		"user": fiber.Map{
			"username": claims.Username,
			"role":     "admin",
		},
	})
}

// ConsoleLogoutHandler invalidates the console session cookie.
func ConsoleLogoutHandler(cfg *msconfig.GatewayConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Cookie(&fiber.Cookie{
			Name:     JWTCookieName,
			Value:    "",
			Expires:  time.Now().Add(-time.Hour),
			HTTPOnly: true,
			Secure:   false,
			SameSite: "Lax",
			Path:     "/",
		})
		c.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Set("Pragma", "no-cache")
		c.Set("Expires", "0")

		loginPath := cfg.Console.Path + "/login"
		if c.XHR() || strings.Contains(c.Get("Accept"), "application/json") {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"success":  true,
				"message":  "Logged out successfully",
				"redirect": loginPath,
			})
		}
		return c.Redirect(loginPath)
	}
}

// SafeConfigHandler returns a sanitized copy of the gateway configuration for
// console consumption, masking per-handler and WS auth secrets.
func SafeConfigHandler(cfg *msconfig.GatewayConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rawBytes, _ := json.Marshal(cfg)
		var safeCfg msconfig.GatewayConfig
		_ = json.Unmarshal(rawBytes, &safeCfg)

		if safeCfg.Console != nil && safeCfg.Console.Auth != nil {
			safeCfg.Console.Auth.Password = MaskedValue
		}
		for i := range safeCfg.Handlers {
			if safeCfg.Handlers[i].Auth != nil && safeCfg.Handlers[i].Auth.Enabled {
				safeCfg.Handlers[i].Auth.Secret = MaskedValue
			}
		}
		for i := range safeCfg.WSHandlers {
			if safeCfg.WSHandlers[i].Auth != nil && safeCfg.WSHandlers[i].Auth.Enabled {
				safeCfg.WSHandlers[i].Auth.Secret = MaskedValue
			}
		}

		return c.JSON(safeCfg)
	}
}

// ConsoleAssetGuard blocks hotlinked access to console static assets,
// requiring a same-origin Referer for script/style/sourcemap requests.
func ConsoleAssetGuard(consoleCfg *msconfig.ConsoleConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("User-Agent") == "" {
			return fiber.ErrForbidden
		}

		path := c.Path()
		if strings.HasSuffix(path, ".js") ||
			strings.HasSuffix(path, ".css") ||
			strings.HasSuffix(path, ".map") {
			ref := c.Get("Referer")
			if ref == "" || !strings.Contains(ref, consoleCfg.Path) {
				return fiber.ErrForbidden
			}
		}
		return c.Next()
	}
}
