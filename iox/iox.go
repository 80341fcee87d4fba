// Package iox provides I/O and filesystem helpers shared by the artifact
// parser, the state script runner and the CLI.
package iox

import "io"

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// Drain reads r to EOF and returns the number of bytes consumed.
// Used to skip the unread remainder of a record on a single-pass stream.
func Drain(r io.Reader) (int64, error) {
	return io.Copy(io.Discard, r)
}

// CountingReader counts the bytes read through it. The artifact inspector
// wraps the input stream with it to report how much of the file was consumed.
type CountingReader struct {
	R io.Reader
	N int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}
