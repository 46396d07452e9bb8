package lsp

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

const (
	headerToken     = "Content-Length:"
	headerSeparator = "\r\n"
	headerEnd       = "\r\n\r\n"

	// maxFrameSize bounds a declared payload length.
	maxFrameSize = 256 << 20
)

// Encode frames m as a Content-Length header, a blank line, and exactly
// that many bytes of JSON.
func Encode(m *Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "marshal message")
	}
	out := make([]byte, 0, len(body)+32)
	out = append(out, "Content-Length: "...)
	out = strconv.AppendInt(out, int64(len(body)), 10)
	out = append(out, headerEnd...)
	out = append(out, body...)
	return out, nil
}

// DecodeFrame decodes the first frame in buf. It returns the message and
// the number of bytes consumed, including any junk before the header.
//
// ErrIncomplete (wrapped in a *FramingError) means buf does not yet hold a
// whole frame; n then reports how many leading bytes can be discarded
// because no header can start inside them. ErrMalformed is fatal.
func DecodeFrame(buf []byte) (m *Message, n int, err error) {
	start := bytes.Index(buf, []byte(headerToken))
	if start < 0 {
		// Keep a tail that may be the beginning of a split header token.
		keep := len(headerToken) - 1
		if keep > len(buf) {
			keep = len(buf)
		}
		return nil, len(buf) - keep, &FramingError{Kind: Incomplete, Reason: "no header"}
	}

	term := bytes.Index(buf[start:], []byte(headerEnd))
	if term < 0 {
		return nil, start, &FramingError{Kind: Incomplete, Reason: "header not terminated"}
	}
	bodyStart := start + term + len(headerEnd)

	length, err := declaredLength(buf[start+len(headerToken) : start+term])
	if err != nil {
		return nil, 0, err
	}
	if len(buf)-bodyStart < length {
		return nil, start, &FramingError{
			Kind:   Incomplete,
			Reason: "payload needs " + strconv.Itoa(length) + " bytes",
		}
	}

	body := buf[bodyStart : bodyStart+length]
	m, err = parseBody(body)
	if err != nil {
		return nil, 0, err
	}
	return m, bodyStart + length, nil
}

// declaredLength reads the decimal value after the header token. Further
// header lines, such as Content-Type, are ignored.
func declaredLength(header []byte) (int, error) {
	if i := bytes.Index(header, []byte(headerSeparator)); i >= 0 {
		header = header[:i]
	}
	digits := bytes.TrimSpace(header)
	n, err := strconv.Atoi(string(digits))
	if err != nil || n < 0 {
		return 0, malformed("bad Content-Length %q", digits)
	}
	if n > maxFrameSize {
		return 0, malformed("Content-Length %d exceeds limit", n)
	}
	return n, nil
}

func parseBody(body []byte) (*Message, error) {
	if !gjson.ValidBytes(body) {
		return nil, malformed("payload is not valid JSON")
	}
	if !gjson.ParseBytes(body).IsObject() {
		return nil, malformed("payload is not an object")
	}
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, malformed("decode envelope: %v", err)
	}
	return &m, nil
}

// Decoder turns a stream of arbitrarily split chunks into messages. It owns
// the residue: bytes read but not yet forming a complete frame.
type Decoder struct {
	residue []byte
	// declared is the payload length announced by the header at the front
	// of residue, or -1 when no header has been parsed yet.
	declared int
	// need is the residue length at which that frame becomes complete.
	need int
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{declared: -1}
}

// Feed appends chunk to the residue and returns every complete message, in
// order. On ErrMalformed the messages decoded before the bad frame are
// still returned and the residue is discarded.
func (d *Decoder) Feed(chunk []byte) ([]*Message, error) {
	d.residue = append(d.residue, chunk...)

	var out []*Message
	for len(d.residue) > 0 {
		// A previously announced payload that is still short: wait without
		// rescanning the header.
		if d.declared >= 0 && len(d.residue) < d.need {
			break
		}

		m, n, err := DecodeFrame(d.residue)
		if err != nil {
			if errors.Is(err, ErrMalformed) {
				d.Reset()
				return out, err
			}
			d.consume(n)
			d.remember()
			break
		}
		d.consume(n)
		d.declared = -1
		out = append(out, m)
	}
	return out, nil
}

func (d *Decoder) consume(n int) {
	if n <= 0 {
		return
	}
	rest := len(d.residue) - n
	copy(d.residue, d.residue[n:])
	d.residue = d.residue[:rest]
}

// remember records the declared length of a frame whose header is complete
// but whose payload is not.
func (d *Decoder) remember() {
	d.declared = -1
	if !bytes.HasPrefix(d.residue, []byte(headerToken)) {
		return
	}
	term := bytes.Index(d.residue, []byte(headerEnd))
	if term < 0 {
		return
	}
	length, err := declaredLength(d.residue[len(headerToken):term])
	if err != nil {
		return
	}
	d.declared = length
	d.need = term + len(headerEnd) + length
}

// Residue returns the bytes held for the next Feed.
func (d *Decoder) Residue() []byte { return d.residue }

// Declared returns the payload length of the partially received frame, or
// -1 when none has been announced.
func (d *Decoder) Declared() int { return d.declared }

// Reset drops all buffered state.
func (d *Decoder) Reset() {
	d.residue = nil
	d.declared = -1
	d.need = 0
}
