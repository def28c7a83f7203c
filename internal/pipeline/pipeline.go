// Package pipeline implements a three-stage streaming encrypt/decrypt
// pipeline: a reader stage, the ordered worker pool from internal/pool,
// and a writer stage, wired together as a scoped concurrent region where
// the first error aborts the others.
//
// The shutdown policy is a join barrier plus an error cell set once:
// both auxiliary goroutines report into a shared scope, whichever
// errors first wins, and the other stops as soon as it next checks.
package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/WKHAllen/encrypted-backup/internal/apperrors"
	"github.com/WKHAllen/encrypted-backup/internal/cryptoutil"
	"github.com/WKHAllen/encrypted-backup/internal/pool"
	"github.com/WKHAllen/encrypted-backup/internal/section"
)

// scope is the join barrier: two auxiliary goroutines report into it,
// and whichever errors first wins. Closing done signals the other
// goroutine to stop as soon as it next checks.
type scope struct {
	done     chan struct{}
	cancelOn sync.Once
}

func newScope() *scope {
	return &scope{done: make(chan struct{})}
}

func (s *scope) cancel() {
	s.cancelOn.Do(func() { close(s.done) })
}

func (s *scope) cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// readChunk reads up to chunkSize bytes from r into a freshly allocated
// buffer. It returns (nil, io.EOF) once zero bytes remain, and a
// shorter-than-chunkSize slice for a final partial chunk, never
// surfacing io.ErrUnexpectedEOF to the caller — a short final read is
// expected, not an error, at this layer.
func readChunk(r io.Reader, chunkSize int) ([]byte, error) {
	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(r, buf)

	switch {
	case err == nil:
		return buf, nil
	case err == io.EOF:
		return nil, io.EOF
	case err == io.ErrUnexpectedEOF:
		return buf[:n], nil
	default:
		return nil, err
	}
}

// Encrypt streams src through chunked AES-256-GCM encryption into dst.
// It reads chunkSize bytes at a time, encrypts each chunk on one of
// numWorkers pool workers, and writes each result as a length-prefixed
// section, preserving source byte order on disk. A zero-byte src
// produces a zero-byte dst.
func Encrypt(src io.Reader, dst io.Writer, key [cryptoutil.KeySize]byte, chunkSize, numWorkers int) error {
	p := pool.New[[]byte](numWorkers)
	sc := newScope()

	var readErr, writeErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer p.Close()

		for {
			if sc.cancelled() {
				return
			}

			buf, err := readChunk(src, chunkSize)
			if err == io.EOF {
				return
			}
			if err != nil {
				readErr = apperrors.NewIOError(fmt.Errorf("reading source chunk: %w", err))
				sc.cancel()
				return
			}

			task := func() ([]byte, error) {
				return cryptoutil.Encrypt(key, buf)
			}

			if !p.Submit(task) {
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer sc.cancel()

		for res := range p.Results() {
			if writeErr != nil || sc.cancelled() {
				continue // drain and discard once an error is latched, from either side
			}
			if res.Err != nil {
				writeErr = res.Err
				sc.cancel()
				continue
			}
			if err := section.WriteSection(dst, res.Value); err != nil {
				writeErr = err
				sc.cancel()
			}
		}
	}()

	wg.Wait()

	if readErr != nil {
		return readErr
	}
	return writeErr
}

// Decrypt streams src, a sequence of length-prefixed encrypted sections,
// through chunked AES-256-GCM decryption into dst. The first section
// whose tag fails to verify aborts the pipeline with a CryptoError,
// which the caller should treat as a likely wrong password.
func Decrypt(src io.Reader, dst io.Writer, key [cryptoutil.KeySize]byte, numWorkers int) error {
	p := pool.New[[]byte](numWorkers)
	sc := newScope()

	var readErr, writeErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer p.Close()

		for {
			if sc.cancelled() {
				return
			}

			blob, err := section.ReadSection(src)
			if err != nil {
				readErr = err
				sc.cancel()
				return
			}
			if blob == nil {
				return // clean EOF
			}

			task := func() ([]byte, error) {
				return cryptoutil.Decrypt(key, blob)
			}

			if !p.Submit(task) {
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		defer sc.cancel()

		for res := range p.Results() {
			if writeErr != nil || sc.cancelled() {
				continue // drain and discard once an error is latched, from either side
			}
			if res.Err != nil {
				writeErr = res.Err
				sc.cancel()
				continue
			}
			if _, err := dst.Write(res.Value); err != nil {
				writeErr = apperrors.NewIOError(fmt.Errorf("writing decrypted chunk: %w", err))
				sc.cancel()
			}
		}
	}()

	wg.Wait()

	if readErr != nil {
		return readErr
	}
	return writeErr
}
