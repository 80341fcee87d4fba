// Package compression wraps raw artifact streams with the decompression
// filter selected by a codec tag.
//
// All decoders are streaming: bytes are pulled from the underlying reader
// as the consumer reads, and no decoder needs the whole compressed payload
// in memory.
package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec identifies the compression applied to an artifact record.
// The artifact encodes it as the file name extension of the record.
type Codec int

const (
	// None passes bytes through unchanged.
	None Codec = iota
	// Gzip is RFC 1952 gzip.
	Gzip
	// LZMA is the xz container format, which artifact writers label "lzma".
	LZMA
	// Zstd covers every zstd level the artifact writer offers
	// (zstd_fast, zstd_better, zstd_best); the frame format is the same.
	Zstd
)

// zstdMagic is the little-endian zstd frame magic number.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// String returns the human-readable codec name.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case LZMA:
		return "lzma"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Extension returns the record name suffix used for the codec.
func (c Codec) Extension() string {
	switch c {
	case Gzip:
		return ".gz"
	case LZMA:
		return ".xz"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// CodecFromExtension maps a record name suffix to its codec.
// The empty suffix means the record is stored uncompressed.
func CodecFromExtension(ext string) (Codec, error) {
	switch ext {
	case "", ".tar":
		return None, nil
	case ".gz":
		return Gzip, nil
	case ".xz":
		return LZMA, nil
	case ".zst":
		return Zstd, nil
	default:
		return 0, &DecompressionError{Codec: ext, Msg: "unsupported compression suffix"}
	}
}

// DecompressionError reports an unknown codec or a stream that does not
// conform to the codec's framing.
type DecompressionError struct {
	Codec string
	Msg   string
	Err   error
}

func (e *DecompressionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Msg, e.Codec, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Msg, e.Codec)
}

func (e *DecompressionError) Unwrap() error {
	return e.Err
}

// IsDecompressionError reports whether err carries a DecompressionError.
func IsDecompressionError(err error) bool {
	var de *DecompressionError
	return errors.As(err, &de)
}

// NewReader returns a reader producing the decoded bytes of r.
// The stream header is validated before NewReader returns, so a magic
// mismatch surfaces here rather than on the first Read.
// Closing the returned reader releases decoder state; it does not close r.
func NewReader(codec Codec, r io.Reader) (io.ReadCloser, error) {
	switch codec {
	case None:
		return io.NopCloser(r), nil

	case Gzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, &DecompressionError{Codec: codec.String(), Msg: "invalid gzip header", Err: err}
		}
		// Artifacts hold exactly one gzip member per record.
		gz.Multistream(false)
		return &decodingReader{codec: codec, r: gz, close: gz.Close}, nil

	case LZMA:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, &DecompressionError{Codec: codec.String(), Msg: "invalid xz header", Err: err}
		}
		return &decodingReader{codec: codec, r: xzr}, nil

	case Zstd:
		br := bufio.NewReader(r)
		magic, err := br.Peek(len(zstdMagic))
		if err != nil {
			return nil, &DecompressionError{Codec: codec.String(), Msg: "truncated zstd header", Err: err}
		}
		if !bytes.Equal(magic, zstdMagic) {
			return nil, &DecompressionError{Codec: codec.String(), Msg: "invalid zstd magic"}
		}
		dec, err := zstd.NewReader(br,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderLowmem(true),
		)
		if err != nil {
			return nil, &DecompressionError{Codec: codec.String(), Msg: "zstd decoder init failed", Err: err}
		}
		return &decodingReader{codec: codec, r: dec, close: func() error {
			dec.Close()
			return nil
		}}, nil

	default:
		return nil, &DecompressionError{Codec: codec.String(), Msg: "unsupported compression"}
	}
}

// decodingReader classifies mid-stream decode failures as
// DecompressionError while passing io.EOF through untouched.
type decodingReader struct {
	codec Codec
	r     io.Reader
	close func() error
}

func (d *decodingReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if err != nil && err != io.EOF {
		var de *DecompressionError
		if !errors.As(err, &de) {
			err = &DecompressionError{Codec: d.codec.String(), Msg: "corrupt compressed stream", Err: err}
		}
	}
	return n, err
}

func (d *decodingReader) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}
