package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComputeAcceptKey_RFC6455Example uses the worked example from RFC 6455
// §1.3: client key "dGhlIHNhbXBsZSBub25jZQ==" must accept-key to
// "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=".
func TestComputeAcceptKey_RFC6455Example(t *testing.T) {
	got := ComputeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}

func TestNegotiate_MissingKeyRejected(t *testing.T) {
	h := NewHandler("/chat")
	_, err := Negotiate(HandshakeRequest{}, h)
	require.Error(t, err)
	he, ok := err.(*HandshakeError)
	require.True(t, ok)
	assert.Equal(t, 400, he.Status)
}

func TestNegotiate_SubprotocolFirstMatchWins(t *testing.T) {
	h := NewHandler("/chat")
	h.Subprotocols = []string{"json", "binary"}

	resp, err := Negotiate(HandshakeRequest{
		Key:       "dGhlIHNhbXBsZSBub25jZQ==",
		Protocols: []string{"binary", "json"},
	}, h)
	require.NoError(t, err)
	assert.Equal(t, "binary", resp.Protocol)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Accept)
}

func TestNegotiate_DeflateEchoed(t *testing.T) {
	h := NewHandler("/chat")
	h.Deflate = &DeflateConfig{Enabled: true, ServerNoContextTakeover: true}

	resp, err := Negotiate(HandshakeRequest{
		Key:        "dGhlIHNhbXBsZSBub25jZQ==",
		Extensions: "permessage-deflate; client_max_window_bits",
	}, h)
	require.NoError(t, err)
	assert.Contains(t, resp.Extensions, "permessage-deflate")
	assert.Contains(t, resp.Extensions, "server_no_context_takeover")
}
