package core

// streaming.go wraps row sources so the CSV reader sees clean UTF-8 without
// loading the whole file: Windows exports often carry a UTF-8 BOM, and the
// report writer occasionally emits bytes that are not valid UTF-8 at all.

import (
	"io"
	"unicode/utf8"
)

// bomSkipReader removes a leading UTF-8 BOM (0xEF 0xBB 0xBF) if present.
type bomSkipReader struct {
	r       io.Reader
	checked bool
	held    []byte // bytes read during BOM detection that were not a BOM
}

func newBOMSkipReader(r io.Reader) *bomSkipReader {
	return &bomSkipReader{r: r}
}

func (b *bomSkipReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true

		var buf [3]byte
		n, err := io.ReadFull(b.r, buf[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n > 0 {
			if !(n == 3 && buf[0] == 0xEF && buf[1] == 0xBB && buf[2] == 0xBF) {
				b.held = append(b.held, buf[:n]...)
			}
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(b.held) > 0 {
		n := copy(p, b.held)
		b.held = b.held[n:]
		return n, nil
	}

	return b.r.Read(p)
}

// utf8CleanReader replaces invalid UTF-8 bytes with '?' as data streams
// through. The replacement is a single byte so cleaning never grows the
// buffer; incomplete multi-byte sequences at a chunk boundary are held back
// for the next read.
type utf8CleanReader struct {
	r       io.Reader
	pending []byte
}

func newUTF8CleanReader(r io.Reader) *utf8CleanReader {
	return &utf8CleanReader{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (u *utf8CleanReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := copy(p, u.pending)
	if n < len(u.pending) {
		// Destination too small for the held-back bytes; hand over what
		// fits and keep the rest pending.
		u.pending = append(u.pending[:0], u.pending[n:]...)
		return n, nil
	}
	u.pending = u.pending[:0]

	m, err := u.r.Read(p[n:])
	n += m
	if n == 0 {
		return 0, err
	}

	atEOF := err == io.EOF
	write := 0
	for read := 0; read < n; {
		r, size := utf8.DecodeRune(p[read:n])

		if r == utf8.RuneError && size <= 1 {
			// Distinguish a truly invalid byte from a sequence cut off at
			// the end of this chunk.
			if !atEOF && seqLen(p[read]) > n-read {
				u.pending = append(u.pending, p[read:n]...)
				return write, err
			}
			p[write] = '?'
			write++
			read++
			continue
		}

		copy(p[write:], p[read:read+size])
		write += size
		read += size
	}

	return write, err
}

// seqLen returns the declared length of a UTF-8 sequence starting with b,
// or 1 for bytes that cannot start a sequence.
func seqLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 1 // stray continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// countingReader tracks bytes consumed, for progress reporting when the
// caller knows the source size.
type countingReader struct {
	r         io.Reader
	bytesRead int64
}

func newCountingReader(r io.Reader) *countingReader {
	return &countingReader{r: r}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.bytesRead += int64(n)
	return n, err
}

// wrapRowSource applies BOM skipping and UTF-8 cleaning in the required
// order and returns a counting reader over the result.
func wrapRowSource(r io.Reader) *countingReader {
	return newCountingReader(newUTF8CleanReader(newBOMSkipReader(r)))
}
