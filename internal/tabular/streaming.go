package tabular

// streaming.go provides the readers every decoder input passes through:
//
//   - BOM skipping: drops the UTF-8 BOM (0xEF 0xBB 0xBF) written by Windows tools
//   - UTF-8 sanitizing: replaces invalid bytes with '?' without buffering the file
//   - counting: tracks bytes consumed for logging and size checks
//
// Use wrapInput to apply all three in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NewBOMSkippingReader returns a reader that drops a leading UTF-8 BOM.
func NewBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// UTF8Sanitizer replaces each byte that does not start a valid UTF-8
// sequence with '?'. Valid multi-byte runes are never split across reads.
type UTF8Sanitizer struct {
	br      *bufio.Reader
	pending []byte // tail of a rune that did not fit the previous p
}

// NewUTF8Sanitizer wraps r.
func NewUTF8Sanitizer(r io.Reader) *UTF8Sanitizer {
	if br, ok := r.(*bufio.Reader); ok {
		return &UTF8Sanitizer{br: br}
	}
	return &UTF8Sanitizer{br: bufio.NewReader(r)}
}

// Read implements io.Reader.
func (s *UTF8Sanitizer) Read(p []byte) (int, error) {
	n := 0
	if len(s.pending) > 0 {
		n = copy(p, s.pending)
		s.pending = s.pending[n:]
		if len(s.pending) > 0 || n == len(p) {
			return n, nil
		}
	}
	for n < len(p) {
		r, size, err := s.br.ReadRune()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}

		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}

		if n+size > len(p) {
			if n > 0 {
				_ = s.br.UnreadRune()
				break
			}
			var buf [utf8.UTFMax]byte
			w := utf8.EncodeRune(buf[:], r)
			n = copy(p, buf[:w])
			s.pending = append(s.pending[:0], buf[n:w]...)
			return n, nil
		}
		n += utf8.EncodeRune(p[n:], r)

		// Drain what is already buffered without blocking on the source.
		if s.br.Buffered() == 0 {
			break
		}
	}
	return n, nil
}

// CountingReader tracks bytes read through it.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}

// wrapInput applies the input readers in order. The BOM is stripped before
// sanitizing so it is never mistaken for content, and counting sees the raw
// bytes of the source.
func wrapInput(r io.Reader) (io.Reader, *CountingReader) {
	counter := NewCountingReader(r)
	return NewUTF8Sanitizer(NewBOMSkippingReader(counter)), counter
}
