package ws

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// maxWindow bounds the sliding-window dictionary carried across messages
// under context takeover, matching deflate's 32KB history limit.
const maxWindow = 32768

// trailer is the four-byte sync-flush marker permessage-deflate strips from
// compressor output and requires re-appended before inflating (RFC 7692 §7.2.1).
var trailer = []byte{0x00, 0x00, 0xff, 0xff}

// DeflateCodec implements the permessage-deflate codec (C12). Compress and
// Decompress operate on one message at a time and must be called from a
// single goroutine per connection — the codec is not reentrant.
//
// Context takeover is modeled by tracking the plaintext sliding-window
// history on each side and re-priming a fresh flate.Writer/Reader with it
// per message (flate.NewWriterDict / flate.NewReaderDict), rather than
// keeping one long-lived stream open — this avoids the ambiguity of
// detecting a sync-flush boundary from a half-read decompressor and matches
// what the two context-takeover flags actually need to preserve: the
// dictionary, not an open stream.
type DeflateCodec struct {
	serverNoContextTakeover bool
	clientNoContextTakeover bool

	outHistory []byte // compress()'s plaintext dictionary (outgoing messages)
	inHistory  []byte // decompress()'s plaintext dictionary (incoming messages)
}

// NewDeflateCodec builds a codec honoring the negotiated context-takeover
// flags.
func NewDeflateCodec(serverNoContextTakeover, clientNoContextTakeover bool) *DeflateCodec {
	return &DeflateCodec{
		serverNoContextTakeover: serverNoContextTakeover,
		clientNoContextTakeover: clientNoContextTakeover,
	}
}

// Compress deflates payload, strips the trailing sync-flush marker, and
// (unless server_no_context_takeover) extends the outgoing dictionary.
func (c *DeflateCodec) Compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w *flate.Writer
	var err error
	if len(c.outHistory) > 0 {
		w, err = flate.NewWriterDict(&buf, flate.DefaultCompression, c.outHistory)
	} else {
		w, err = flate.NewWriter(&buf, flate.DefaultCompression)
	}
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	out := stripTrailer(buf.Bytes())
	if c.serverNoContextTakeover {
		c.outHistory = nil
	} else {
		c.outHistory = slideWindow(c.outHistory, payload)
	}
	return out, nil
}

// Decompress re-appends the sync-flush trailer and inflates, extending the
// incoming dictionary unless client_no_context_takeover was negotiated.
func (c *DeflateCodec) Decompress(payload []byte) ([]byte, error) {
	data := make([]byte, 0, len(payload)+len(trailer))
	data = append(data, payload...)
	data = append(data, trailer...)

	var r io.ReadCloser
	if len(c.inHistory) > 0 {
		r = flate.NewReaderDict(bytes.NewReader(data), c.inHistory)
	} else {
		r = flate.NewReader(bytes.NewReader(data))
	}
	out, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, err
	}

	if c.clientNoContextTakeover {
		c.inHistory = nil
	} else {
		c.inHistory = slideWindow(c.inHistory, out)
	}
	return out, nil
}

// Destroy releases the codec's retained dictionaries.
func (c *DeflateCodec) Destroy() {
	c.outHistory = nil
	c.inHistory = nil
}

func stripTrailer(b []byte) []byte {
	if len(b) >= 4 && bytes.HasSuffix(b, trailer) {
		return b[:len(b)-4]
	}
	return b
}

func slideWindow(history, data []byte) []byte {
	combined := make([]byte, 0, len(history)+len(data))
	combined = append(combined, history...)
	combined = append(combined, data...)
	if len(combined) > maxWindow {
		combined = combined[len(combined)-maxWindow:]
	}
	return combined
}
