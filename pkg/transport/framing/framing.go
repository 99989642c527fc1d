// Package framing implements the length-prefixed frame format shared by the
// tcp, tls, and unix transport backings: a 4-byte big-endian length header
// followed by exactly that many bytes of JSON. Stream-oriented sockets have
// no message boundary of their own, unlike stdio's newline convention or
// WebSocket's built-in message framing, so these three backings need an
// explicit length prefix instead.
package framing

import (
	"encoding/binary"
	"fmt"
	"io"
)

const headerSize = 4

// ErrFrameTooLarge is returned by Read when a frame's declared length
// exceeds the configured limit.
type ErrFrameTooLarge struct {
	Declared int
	Limit    int
}

func (e *ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("framing: frame size %d exceeds limit %d", e.Declared, e.Limit)
}

// Read blocks until it has read one complete length-prefixed frame from r,
// rejecting any frame whose declared length exceeds limit.
func Read(r io.Reader, limit int) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := int(binary.BigEndian.Uint32(header[:]))
	if limit > 0 && length > limit {
		return nil, &ErrFrameTooLarge{Declared: length, Limit: limit}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("framing: read payload: %w", err)
	}
	return payload, nil
}

// Write sends payload to w as one length-prefixed frame.
func Write(w io.Writer, payload []byte) error {
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("framing: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("framing: write payload: %w", err)
	}
	return nil
}
