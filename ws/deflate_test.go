package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeflateCodec_RoundTrip_ContextTakeover(t *testing.T) {
	server := NewDeflateCodec(false, false)
	client := NewDeflateCodec(false, false)

	messages := []string{
		`{"type":"greeting","text":"hello"}`,
		`{"type":"greeting","text":"hello again, same shape as before"}`,
		`{"type":"bye"}`,
	}

	for _, msg := range messages {
		compressed, err := server.Compress([]byte(msg))
		require.NoError(t, err)
		plain, err := client.Decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, msg, string(plain))
	}

	// with context takeover, both sides' dictionaries should have grown.
	assert.NotEmpty(t, server.outHistory)
	assert.NotEmpty(t, client.inHistory)
}

func TestDeflateCodec_RoundTrip_NoContextTakeover(t *testing.T) {
	server := NewDeflateCodec(true, true)
	client := NewDeflateCodec(true, true)

	for i := 0; i < 3; i++ {
		msg := []byte("independent message, no shared dictionary expected")
		compressed, err := server.Compress(msg)
		require.NoError(t, err)
		plain, err := client.Decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, msg, plain)

		assert.Empty(t, server.outHistory, "server_no_context_takeover must not retain a dictionary")
		assert.Empty(t, client.inHistory, "client_no_context_takeover must not retain a dictionary")
	}
}

func TestDeflateCodec_Destroy(t *testing.T) {
	c := NewDeflateCodec(false, false)
	_, err := c.Compress([]byte("seed the dictionary"))
	require.NoError(t, err)
	require.NotEmpty(t, c.outHistory)

	c.Destroy()
	assert.Empty(t, c.outHistory)
	assert.Empty(t, c.inHistory)
}
