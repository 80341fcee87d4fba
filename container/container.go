// Package container sequences the named records of an artifact tar stream.
//
// A Reader yields one Record at a time. Each Record's body is bounded to
// exactly its declared size; whatever the caller leaves unread is skipped
// when the next record is requested. The reader never seeks, so it works on
// pipes and network bodies as well as files.
package container

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
)

// Record is one named entry of a tar stream.
type Record struct {
	Name string
	Size int64
	Mode int64
	io.Reader
}

// Path returns the cleaned slash-separated record name with any leading
// "./" or "/" removed.
func (r *Record) Path() string {
	return CleanName(r.Name)
}

// FormatError reports a stream that is not a well-formed tar archive.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("container: %s: %v", e.Msg, e.Err)
	}
	return "container: " + e.Msg
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Reader demultiplexes a tar stream into records.
type Reader struct {
	tr   *tar.Reader
	done bool
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{tr: tar.NewReader(r)}
}

// Next advances to the next regular-file record.
// Directories and other non-file entries are skipped. It returns io.EOF once
// the archive is exhausted, and keeps returning io.EOF afterwards.
func (r *Reader) Next() (*Record, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		hdr, err := r.tr.Next()
		if err == io.EOF {
			r.done = true
			return nil, io.EOF
		}
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) {
				return nil, err
			}
			return nil, &FormatError{Msg: "reading tar header", Err: err}
		}

		// archive/tar reports legacy TypeRegA entries as TypeReg.
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		return &Record{
			Name:   hdr.Name,
			Size:   hdr.Size,
			Mode:   hdr.Mode,
			Reader: &recordReader{tr: r.tr},
		}, nil
	}
}

// recordReader wraps truncated-body errors from archive/tar so callers see
// a FormatError instead of a bare io.ErrUnexpectedEOF.
type recordReader struct {
	tr *tar.Reader
}

func (rr *recordReader) Read(p []byte) (int, error) {
	n, err := rr.tr.Read(p)
	if err != nil && err != io.EOF {
		var fe *FormatError
		if !errors.As(err, &fe) {
			err = &FormatError{Msg: "reading record body", Err: err}
		}
	}
	return n, err
}

// CleanName normalizes a record name for matching.
func CleanName(name string) string {
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

// IsHeaderRecord reports whether name is the artifact header record and
// returns its compression suffix ("" for a plain .tar).
func IsHeaderRecord(name string) (ext string, ok bool) {
	return splitTarName(CleanName(name), "header")
}

// IsHeaderAugmentRecord reports whether name is the augmented header record.
func IsHeaderAugmentRecord(name string) (ext string, ok bool) {
	return splitTarName(CleanName(name), "header-augment")
}

// IsPayloadRecord reports whether name is a payload record of the form
// data/NNNN.tar<ext> and returns its index and compression suffix.
func IsPayloadRecord(name string) (index int, ext string, ok bool) {
	name = CleanName(name)
	dir, base := path.Split(name)
	if dir != "data/" {
		return 0, "", false
	}
	dot := strings.IndexByte(base, '.')
	if dot < 0 {
		return 0, "", false
	}
	stem := base[:dot]
	if len(stem) != 4 {
		return 0, "", false
	}
	index, err := strconv.Atoi(stem)
	if err != nil || index < 0 {
		return 0, "", false
	}
	ext, ok = splitTarName(base, stem)
	if !ok {
		return 0, "", false
	}
	return index, ext, true
}

// splitTarName matches "<stem>.tar" optionally followed by one compression
// suffix such as ".gz".
func splitTarName(name, stem string) (string, bool) {
	rest, found := strings.CutPrefix(name, stem+".tar")
	if !found {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	if strings.Count(rest, ".") != 1 || !strings.HasPrefix(rest, ".") || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
