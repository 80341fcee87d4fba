// Package artifacttest builds artifact byte streams for tests.
//
// The builder writes the same record layout the artifact parser consumes:
// version, manifest, optional manifest.sig, header.tar<ext>, optional
// header-augment.tar<ext> and one data/NNNN.tar<ext> per payload.
package artifacttest

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/justapithecus/otacore/compression"
)

// File is a named blob inside a tar.
type File struct {
	Name    string
	Content []byte
	Mode    int64
}

// Payload describes one data/NNNN.tar record.
type Payload struct {
	Type     string
	Files    []File
	MetaData map[string]any
}

// Options describes the artifact to build.
type Options struct {
	Name        string
	DeviceTypes []string
	Compression compression.Codec
	Payloads    []Payload
	Scripts     []File

	// VersionJSON replaces the version record body when non-empty.
	VersionJSON string
	// OmitVersion drops the version record entirely.
	OmitVersion bool
	// Signed adds an (unchecked) manifest.sig record.
	Signed bool
	// HeaderAugment adds an empty header-augment record.
	HeaderAugment bool
	// PayloadExt replaces the compression suffix of every data record.
	PayloadExt *string
	// CorruptPayload replaces each payload body with garbage after the
	// first few bytes so decoding fails mid-stream.
	CorruptPayload bool
}

// Build returns the encoded artifact.
func Build(t testing.TB, opts Options) []byte {
	t.Helper()

	if opts.Name == "" {
		opts.Name = "test-artifact"
	}
	if len(opts.DeviceTypes) == 0 {
		opts.DeviceTypes = []string{"test-device"}
	}

	type record struct {
		name string
		body []byte
	}
	var records []record

	if !opts.OmitVersion {
		version := opts.VersionJSON
		if version == "" {
			version = `{"format":"mender","version":3}`
		}
		records = append(records, record{"version", []byte(version)})
	}

	ext := opts.Compression.Extension()
	header := Compress(t, opts.Compression, buildHeader(t, opts))
	headerName := "header.tar" + ext

	var data []record
	for i, p := range opts.Payloads {
		files := make([]File, len(p.Files))
		copy(files, p.Files)
		body := Compress(t, opts.Compression, Tar(t, files...))
		if opts.CorruptPayload && len(body) > 16 {
			body = append(body[:8:8], bytes.Repeat([]byte{0xff}, len(body)-8)...)
		}
		pext := ext
		if opts.PayloadExt != nil {
			pext = *opts.PayloadExt
		}
		data = append(data, record{fmt.Sprintf("data/%04d.tar%s", i, pext), body})
	}

	var manifest bytes.Buffer
	for _, r := range append([]record{{headerName, header}}, data...) {
		sum := sha256.Sum256(r.body)
		fmt.Fprintf(&manifest, "%s  %s\n", hex.EncodeToString(sum[:]), r.name)
	}
	for _, r := range records {
		sum := sha256.Sum256(r.body)
		fmt.Fprintf(&manifest, "%s  %s\n", hex.EncodeToString(sum[:]), r.name)
	}
	records = append(records, record{"manifest", manifest.Bytes()})
	if opts.Signed {
		records = append(records, record{"manifest.sig", []byte("c2lnbmF0dXJl")})
	}
	records = append(records, record{headerName, header})
	if opts.HeaderAugment {
		records = append(records, record{"header-augment.tar" + ext, Compress(t, opts.Compression, Tar(t))})
	}
	records = append(records, data...)

	files := make([]File, 0, len(records))
	for _, r := range records {
		files = append(files, File{Name: r.name, Content: r.body})
	}
	return Tar(t, files...)
}

func buildHeader(t testing.TB, opts Options) []byte {
	t.Helper()

	payloadTypes := make([]map[string]string, 0, len(opts.Payloads))
	for _, p := range opts.Payloads {
		payloadTypes = append(payloadTypes, map[string]string{"type": p.Type})
	}
	info := map[string]any{
		"payloads": payloadTypes,
		"artifact_provides": map[string]string{
			"artifact_name": opts.Name,
		},
		"artifact_depends": map[string]any{
			"device_type": opts.DeviceTypes,
		},
	}

	files := []File{{Name: "header-info", Content: mustJSON(t, info)}}
	for _, s := range opts.Scripts {
		s.Name = "scripts/" + s.Name
		if s.Mode == 0 {
			s.Mode = 0o755
		}
		files = append(files, s)
	}
	for i, p := range opts.Payloads {
		typeInfo := map[string]any{
			"type": p.Type,
			"artifact_provides": map[string]string{
				p.Type + ".version": "1",
			},
		}
		files = append(files, File{Name: fmt.Sprintf("headers/%04d/type-info", i), Content: mustJSON(t, typeInfo)})
		if p.MetaData != nil {
			files = append(files, File{Name: fmt.Sprintf("headers/%04d/meta-data", i), Content: mustJSON(t, p.MetaData)})
		}
	}
	return Tar(t, files...)
}

// Tar writes files as a tar stream.
func Tar(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:     f.Name,
			Mode:     mode,
			Size:     int64(len(f.Content)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", f.Name, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			t.Fatalf("tar body %s: %v", f.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return buf.Bytes()
}

// Compress encodes data with codec.
func Compress(t testing.TB, codec compression.Codec, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch codec {
	case compression.None:
		return data
	case compression.Gzip:
		w = gzip.NewWriter(&buf)
	case compression.LZMA:
		w, err = xz.NewWriter(&buf)
	case compression.Zstd:
		w, err = zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	default:
		t.Fatalf("no encoder for %s", codec)
	}
	if err != nil {
		t.Fatalf("creating %s encoder: %v", codec, err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("%s encode: %v", codec, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("%s close: %v", codec, err)
	}
	return buf.Bytes()
}

func mustJSON(t testing.TB, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}
