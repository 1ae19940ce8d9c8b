package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame_RoundTrip(t *testing.T) {
	payload := []byte("hello websocket")
	wire := EncodeFrame(0x1, true, false, payload)

	parser := &FrameParser{}
	frames, err := parser.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	f := frames[0]
	assert.True(t, f.Fin)
	assert.False(t, f.Rsv1)
	assert.Equal(t, byte(0x1), f.Opcode)
	assert.False(t, f.Masked)
	assert.Equal(t, payload, f.Payload)
}

func TestEncodeDecodeFrame_LargePayload(t *testing.T) {
	payload := make([]byte, 70000)
	for i := range payload {
		payload[i] = byte(i)
	}
	wire := EncodeFrame(0x2, true, false, payload)

	parser := &FrameParser{}
	frames, err := parser.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0].Payload)
}

func TestFrameParser_FeedByteAtATime(t *testing.T) {
	payload := []byte("split across many small reads")
	wire := EncodeFrame(0x1, true, false, payload)

	parser := &FrameParser{}
	var got []Frame
	for _, b := range wire {
		frames, err := parser.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, frames...)
	}

	require.Len(t, got, 1)
	assert.Equal(t, payload, got[0].Payload)
}

func TestFrameParser_MaskedPayloadUnmasked(t *testing.T) {
	maskKey := [4]byte{0x12, 0x34, 0x56, 0x78}
	payload := []byte("client frame")
	masked := make([]byte, len(payload))
	for i := range payload {
		masked[i] = payload[i] ^ maskKey[i%4]
	}

	header := []byte{0x81, 0x80 | byte(len(payload))}
	header = append(header, maskKey[:]...)
	wire := append(header, masked...)

	parser := &FrameParser{}
	frames, err := parser.Feed(wire)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].Masked)
	assert.Equal(t, payload, frames[0].Payload)
}

func TestFrameParser_IncompleteFrameYieldsNoFrames(t *testing.T) {
	payload := []byte("incomplete")
	wire := EncodeFrame(0x1, true, false, payload)

	parser := &FrameParser{}
	frames, err := parser.Feed(wire[:len(wire)-2])
	require.NoError(t, err)
	assert.Empty(t, frames)
}
