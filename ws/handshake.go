package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// magicGUID is RFC 6455 §1.3's fixed accept-key suffix.
const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ComputeAcceptKey implements §4.10: base64(SHA-1(clientKey ++ magicGUID)).
func ComputeAcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(magicGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// HandshakeRequest is the subset of the incoming upgrade request the
// handshake needs; host adapters build it from the real HTTP headers.
type HandshakeRequest struct {
	Key        string
	Protocols  []string // parsed from Sec-WebSocket-Protocol, client order preserved
	Extensions string   // raw Sec-WebSocket-Extensions header value
}

// HandshakeResponse is what the engine hands back to the host to write as
// the 101 response.
type HandshakeResponse struct {
	Accept     string
	Protocol   string // "" means none negotiated
	Extensions string // echoed Sec-WebSocket-Extensions, "" means none
}

// HandshakeError fails the handshake with Status; Negotiate returns one with
// 400 when Sec-WebSocket-Key is absent (§4.10).
type HandshakeError struct {
	Status  int
	Message string
}

func (e *HandshakeError) Error() string { return e.Message }

// Negotiate runs the full handshake computation (§4.10): accept key,
// subprotocol intersection, and permessage-deflate parameter reconciliation.
func Negotiate(req HandshakeRequest, h *Handler) (*HandshakeResponse, error) {
	if req.Key == "" {
		return nil, &HandshakeError{Status: 400, Message: "missing Sec-WebSocket-Key"}
	}

	resp := &HandshakeResponse{Accept: ComputeAcceptKey(req.Key)}
	resp.Protocol = negotiateSubprotocol(req.Protocols, h.Subprotocols)

	if h.Deflate != nil && h.Deflate.Enabled {
		ext, err := negotiateDeflate(req.Extensions, h.Deflate)
		if err != nil {
			return nil, err
		}
		resp.Extensions = ext
	}

	return resp, nil
}

// negotiateSubprotocol intersects the client's comma-separated list (in
// client order) with the handler's declared list; first match wins.
func negotiateSubprotocol(clientProtocols, serverList []string) string {
	if len(serverList) == 0 {
		return ""
	}
	allowed := make(map[string]bool, len(serverList))
	for _, p := range serverList {
		allowed[strings.TrimSpace(p)] = true
	}
	for _, p := range clientProtocols {
		p = strings.TrimSpace(p)
		if allowed[p] {
			return p
		}
	}
	return ""
}

// negotiatedDeflateParams is the resolved parameter set echoed in
// Sec-WebSocket-Extensions.
type negotiatedDeflateParams struct {
	serverNoContextTakeover bool
	clientNoContextTakeover bool
	serverMaxWindowBits     int
	clientMaxWindowBits     int
}

func negotiateDeflate(extHeader string, cfg *DeflateConfig) (string, error) {
	offer, ok := parsePermessageDeflateOffer(extHeader)
	if !ok {
		return "", nil
	}

	params := negotiatedDeflateParams{
		serverNoContextTakeover: cfg.ServerNoContextTakeover,
		clientNoContextTakeover: cfg.ClientNoContextTakeover,
		serverMaxWindowBits:     cfg.ServerMaxWindowBits,
		clientMaxWindowBits:     cfg.ClientMaxWindowBits,
	}

	if offer.serverNoContextTakeoverSet {
		if cfg.Strict && offer.serverNoContextTakeover != cfg.ServerNoContextTakeover {
			return "", &HandshakeError{Status: 400, Message: "permessage-deflate server_no_context_takeover mismatch"}
		}
		params.serverNoContextTakeover = params.serverNoContextTakeover || offer.serverNoContextTakeover
	}
	if offer.clientNoContextTakeoverSet {
		if cfg.Strict && offer.clientNoContextTakeover != cfg.ClientNoContextTakeover {
			return "", &HandshakeError{Status: 400, Message: "permessage-deflate client_no_context_takeover mismatch"}
		}
		params.clientNoContextTakeover = params.clientNoContextTakeover || offer.clientNoContextTakeover
	}
	if offer.serverMaxWindowBitsSet {
		if offer.serverMaxWindowBits < 8 || offer.serverMaxWindowBits > 15 {
			if cfg.Strict {
				return "", &HandshakeError{Status: 400, Message: "server_max_window_bits out of range"}
			}
		} else {
			params.serverMaxWindowBits = offer.serverMaxWindowBits
		}
	}
	if offer.clientMaxWindowBitsSet {
		if offer.clientMaxWindowBits < 8 || offer.clientMaxWindowBits > 15 {
			if cfg.Strict {
				return "", &HandshakeError{Status: 400, Message: "client_max_window_bits out of range"}
			}
		} else {
			params.clientMaxWindowBits = offer.clientMaxWindowBits
		}
	}

	return buildExtensionHeader(params), nil
}

type deflateOffer struct {
	serverNoContextTakeover    bool
	serverNoContextTakeoverSet bool
	clientNoContextTakeover    bool
	clientNoContextTakeoverSet bool
	serverMaxWindowBits        int
	serverMaxWindowBitsSet     bool
	clientMaxWindowBits        int
	clientMaxWindowBitsSet     bool
}

// parsePermessageDeflateOffer scans Sec-WebSocket-Extensions for a
// permessage-deflate offer among possibly several comma-separated
// extensions, each with semicolon-separated parameters.
func parsePermessageDeflateOffer(header string) (deflateOffer, bool) {
	var offer deflateOffer
	if header == "" {
		return offer, false
	}
	found := false
	for _, extension := range strings.Split(header, ",") {
		parts := strings.Split(extension, ";")
		name := strings.TrimSpace(parts[0])
		if name != "permessage-deflate" {
			continue
		}
		found = true
		for _, raw := range parts[1:] {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			kv := strings.SplitN(raw, "=", 2)
			key := strings.TrimSpace(kv[0])
			value := ""
			if len(kv) == 2 {
				value = strings.Trim(strings.TrimSpace(kv[1]), `"`)
			}
			switch key {
			case "server_no_context_takeover":
				offer.serverNoContextTakeover = true
				offer.serverNoContextTakeoverSet = true
			case "client_no_context_takeover":
				offer.clientNoContextTakeover = true
				offer.clientNoContextTakeoverSet = true
			case "server_max_window_bits":
				if n, err := strconv.Atoi(value); err == nil {
					offer.serverMaxWindowBits = n
					offer.serverMaxWindowBitsSet = true
				}
			case "client_max_window_bits":
				n := 15
				if value != "" {
					if parsed, err := strconv.Atoi(value); err == nil {
						n = parsed
					}
				}
				offer.clientMaxWindowBits = n
				offer.clientMaxWindowBitsSet = true
			}
		}
		break
	}
	return offer, found
}

func buildExtensionHeader(p negotiatedDeflateParams) string {
	var b strings.Builder
	b.WriteString("permessage-deflate")
	if p.serverNoContextTakeover {
		b.WriteString("; server_no_context_takeover")
	}
	if p.clientNoContextTakeover {
		b.WriteString("; client_no_context_takeover")
	}
	if p.serverMaxWindowBits != 0 {
		fmt.Fprintf(&b, "; server_max_window_bits=%d", p.serverMaxWindowBits)
	}
	if p.clientMaxWindowBits != 0 {
		fmt.Fprintf(&b, "; client_max_window_bits=%d", p.clientMaxWindowBits)
	}
	return b.String()
}
