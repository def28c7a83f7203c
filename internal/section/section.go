// Package section implements the 5-byte big-endian length-prefixed
// framing used on disk for every encrypted chunk: a backup file is a
// flat sequence of Len(5 bytes) || Payload sections, with no outer
// header or trailer.
package section

import (
	"fmt"
	"io"

	"github.com/WKHAllen/encrypted-backup/internal/apperrors"
)

// LenSize is the width in bytes of a section's length prefix. Five bytes
// admit lengths up to 2^40-1 (~1 TiB), more than sufficient for any
// supported chunk size.
const LenSize = 5

// EncodeLen encodes n as 5 big-endian bytes, most significant first.
func EncodeLen(n uint64) [LenSize]byte {
	var out [LenSize]byte
	for i := 0; i < LenSize; i++ {
		shift := uint(LenSize-1-i) * 8
		out[i] = byte(n >> shift)
	}
	return out
}

// DecodeLen decodes a 5-byte big-endian length prefix.
func DecodeLen(b [LenSize]byte) uint64 {
	var n uint64
	for i := 0; i < LenSize; i++ {
		n <<= 8
		n |= uint64(b[i])
	}
	return n
}

// ReadSection reads one length-prefixed section from r. It returns
// (nil, nil) on a clean EOF (zero bytes available for the length
// prefix). A partial length prefix (1..5 bytes available) or a payload
// shorter than its declared length is an IOError wrapping
// io.ErrUnexpectedEOF.
func ReadSection(r io.Reader) ([]byte, error) {
	var lenBuf [LenSize]byte

	n, err := io.ReadFull(r, lenBuf[:])
	if n == 0 && err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewIOError(fmt.Errorf("reading section length prefix: %w", io.ErrUnexpectedEOF))
	}

	length := DecodeLen(lenBuf)

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, apperrors.NewIOError(fmt.Errorf("reading section payload of declared length %d: %w", length, io.ErrUnexpectedEOF))
	}

	return payload, nil
}

// WriteSection writes the length prefix for len(payload) followed by
// payload itself, each as a write-all style write.
func WriteSection(w io.Writer, payload []byte) error {
	lenBuf := EncodeLen(uint64(len(payload)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return apperrors.NewIOError(fmt.Errorf("writing section length prefix: %w", err))
	}

	if _, err := w.Write(payload); err != nil {
		return apperrors.NewIOError(fmt.Errorf("writing section payload: %w", err))
	}

	return nil
}
