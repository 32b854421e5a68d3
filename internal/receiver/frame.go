package receiver

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// HeaderSize is the length of the prefix stripped from every frame.
const HeaderSize = 2

// ErrFrameTooLarge is returned by EncodeFrame when the body does not fit the header.
var ErrFrameTooLarge = errors.New("frame body exceeds 65535 bytes")

// FrameInfo describes one decoded read.
type FrameInfo struct {
	Text     string // Payload decoded as UTF-8 (invalid sequences become U+FFFD)
	Declared int    // Body length announced by the header
	Payload  int    // Body bytes actually received
}

// Truncated reports whether the sender announced more bytes than this read
// delivered. Frames are never reassembled, so the tail of such a message is lost.
func (f FrameInfo) Truncated() bool {
	return f.Declared > f.Payload
}

// DecodeFrame strips the header from a single read and decodes the rest.
// Reads shorter than the header yield a zero FrameInfo.
func DecodeFrame(b []byte) FrameInfo {
	if len(b) < HeaderSize {
		return FrameInfo{}
	}

	body := b[HeaderSize:]
	info := FrameInfo{
		Declared: int(binary.BigEndian.Uint16(b[:HeaderSize])),
		Payload:  len(body),
	}
	if len(body) == 0 {
		return info
	}

	text, err := unicode.UTF8.NewDecoder().Bytes(body)
	if err != nil {
		// The decoder replaces bad input instead of failing; keep the raw bytes otherwise.
		info.Text = string(body)
		return info
	}
	info.Text = string(text)
	return info
}

// EncodeFrame builds a frame the way the scanner app writes it: a big-endian
// body length followed by the UTF-8 body.
func EncodeFrame(text string) ([]byte, error) {
	if len(text) > math.MaxUint16 {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, HeaderSize+len(text))
	binary.BigEndian.PutUint16(frame, uint16(len(text)))
	copy(frame[HeaderSize:], text)
	return frame, nil
}
