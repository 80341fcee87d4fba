package artifact

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/justapithecus/otacore/artifact/artifacttest"
	"github.com/justapithecus/otacore/compression"
	"github.com/justapithecus/otacore/metrics"
)

func twoFilePayload() artifacttest.Payload {
	return artifacttest.Payload{
		Type: "test-um",
		Files: []artifacttest.File{
			{Name: "testdata", Content: []byte("foobar\n")},
			{Name: "testdata2", Content: []byte("barbaz\n")},
		},
	}
}

func TestParse_AllCodecs(t *testing.T) {
	for _, codec := range []compression.Codec{compression.None, compression.Gzip, compression.LZMA, compression.Zstd} {
		t.Run(codec.String(), func(t *testing.T) {
			data := artifacttest.Build(t, artifacttest.Options{
				Compression: codec,
				Payloads: []artifacttest.Payload{{
					Type:  "rootfs-image",
					Files: []artifacttest.File{{Name: "testdata", Content: []byte("foobar\n")}},
				}},
			})

			a, err := Parse(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if a.Version.Version != 3 || a.Version.Format != "mender" {
				t.Errorf("Version = %+v", a.Version)
			}
			if a.Name() != "test-artifact" {
				t.Errorf("Name = %q, want test-artifact", a.Name())
			}

			p, err := a.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if p.Codec != codec {
				t.Errorf("Codec = %s, want %s", p.Codec, codec)
			}
			if p.Type != "rootfs-image" {
				t.Errorf("Type = %q, want rootfs-image", p.Type)
			}

			f, err := p.Next()
			if err != nil {
				t.Fatalf("payload Next: %v", err)
			}
			body, err := io.ReadAll(f)
			if err != nil {
				t.Fatalf("ReadAll: %v", err)
			}
			if string(body) != "foobar\n" {
				t.Errorf("body = %q", body)
			}
		})
	}
}

func TestPayload_MultipleFiles(t *testing.T) {
	data := artifacttest.Build(t, artifacttest.Options{
		Payloads: []artifacttest.Payload{twoFilePayload()},
	})

	a, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := a.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	want := []struct {
		name string
		size int64
		body string
	}{
		{"testdata", 7, "foobar\n"},
		{"testdata2", 7, "barbaz\n"},
	}
	for _, w := range want {
		f, err := p.Next()
		if err != nil {
			t.Fatalf("Next(%s): %v", w.name, err)
		}
		if f.Name() != w.name || f.Size() != w.size {
			t.Errorf("got (%q, %d), want (%q, %d)", f.Name(), f.Size(), w.name, w.size)
		}
		body, err := io.ReadAll(f)
		if err != nil {
			t.Fatalf("ReadAll(%s): %v", w.name, err)
		}
		if string(body) != w.body {
			t.Errorf("%s body = %q, want %q", w.name, body, w.body)
		}
	}

	for i := range 3 {
		_, err := p.Next()
		if !errors.Is(err, ErrNoMorePayloadFiles) {
			t.Fatalf("call %d after exhaustion: %v, want ErrNoMorePayloadFiles", i, err)
		}
		if CodeOf(err) != NoMorePayloadFilesErrorCode {
			t.Errorf("CodeOf = %s, want NoMorePayloadFilesError", CodeOf(err))
		}
	}
}

func TestPayload_NFilesInOrder(t *testing.T) {
	var files []artifacttest.File
	for _, name := range []string{"zeta", "alpha", "mid", "b", "a"} {
		files = append(files, artifacttest.File{Name: name, Content: []byte(name)})
	}
	data := artifacttest.Build(t, artifacttest.Options{
		Compression: compression.Gzip,
		Payloads:    []artifacttest.Payload{{Type: "test", Files: files}},
	})

	a, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := a.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	var got []string
	for {
		f, err := p.Next()
		if errors.Is(err, ErrNoMorePayloadFiles) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		// Leave bodies unread; Next must skip them.
		got = append(got, f.Name())
	}
	if len(got) != len(files) {
		t.Fatalf("got %d files, want %d", len(got), len(files))
	}
	for i, f := range files {
		if got[i] != f.Name {
			t.Errorf("file %d = %q, want %q", i, got[i], f.Name)
		}
	}
}

func TestArtifact_MultiplePayloads(t *testing.T) {
	data := artifacttest.Build(t, artifacttest.Options{
		Compression: compression.Zstd,
		Payloads: []artifacttest.Payload{
			{Type: "first", Files: []artifacttest.File{{Name: "one", Content: bytes.Repeat([]byte("1"), 10000)}}},
			{Type: "second", Files: []artifacttest.File{{Name: "two", Content: []byte("2")}}},
		},
	})

	collector := metrics.NewCollector("", "", "", "inv-test")
	a, err := Parse(bytes.NewReader(data), WithMetrics(collector))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	first, err := a.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	f, err := first.Next()
	if err != nil {
		t.Fatalf("first.Next: %v", err)
	}
	// Read only part of the first payload, then move on.
	if _, err := io.ReadFull(f, make([]byte, 10)); err != nil {
		t.Fatalf("partial read: %v", err)
	}

	second, err := a.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if second.Index != 1 || second.Type != "second" {
		t.Errorf("second payload = %d/%q", second.Index, second.Type)
	}
	if _, err := f.Read(make([]byte, 1)); !errors.Is(err, ErrParse) {
		t.Errorf("read from superseded file = %v, want ErrParse", err)
	}
	if _, err := first.Next(); !errors.Is(err, ErrNoMorePayloadFiles) {
		t.Errorf("first.Next after advancing = %v, want ErrNoMorePayloadFiles", err)
	}

	g, err := second.Next()
	if err != nil {
		t.Fatalf("second.Next: %v", err)
	}
	body, _ := io.ReadAll(g)
	if string(body) != "2" {
		t.Errorf("body = %q", body)
	}

	for range 2 {
		if _, err := a.Next(); !errors.Is(err, ErrNoMorePayloads) {
			t.Fatalf("Next after last payload = %v, want ErrNoMorePayloads", err)
		}
	}

	s := collector.Snapshot()
	if s.ArtifactsParsed != 1 || s.PayloadsOpened != 2 || s.PayloadFiles != 2 {
		t.Errorf("snapshot = %+v", s)
	}
	if s.PayloadBytesRead != 11 {
		t.Errorf("PayloadBytesRead = %d, want 11", s.PayloadBytesRead)
	}
}

func TestArtifact_NoPayloads(t *testing.T) {
	data := artifacttest.Build(t, artifacttest.Options{})

	a, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := a.Next(); !errors.Is(err, ErrNoMorePayloads) {
		t.Errorf("Next = %v, want ErrNoMorePayloads", err)
	}
}

func TestParse_VersionErrors(t *testing.T) {
	tests := []struct {
		name string
		opts artifacttest.Options
	}{
		{"missing", artifacttest.Options{OmitVersion: true}},
		{"wrong version", artifacttest.Options{VersionJSON: `{"format":"mender","version":2}`}},
		{"wrong format", artifacttest.Options{VersionJSON: `{"format":"other","version":3}`}},
		{"not json", artifacttest.Options{VersionJSON: `3`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := metrics.NewCollector("", "", "", "inv-test")
			_, err := Parse(bytes.NewReader(artifacttest.Build(t, tt.opts)), WithMetrics(collector))
			if !errors.Is(err, ErrVersion) {
				t.Fatalf("Parse error = %v, want ErrVersion", err)
			}
			if !errors.Is(err, ErrParse) {
				t.Error("version errors should also match ErrParse")
			}
			if collector.Snapshot().ArtifactsFailed != 1 {
				t.Error("ArtifactsFailed not recorded")
			}
		})
	}
}

func TestParse_EmptyStream(t *testing.T) {
	_, err := Parse(bytes.NewReader(nil))
	if !errors.Is(err, ErrVersion) {
		t.Errorf("Parse(empty) = %v, want ErrVersion", err)
	}
}

func TestArtifact_UnknownPayloadCompression(t *testing.T) {
	ext := ".bz2"
	data := artifacttest.Build(t, artifacttest.Options{
		Payloads:   []artifacttest.Payload{twoFilePayload()},
		PayloadExt: &ext,
	})

	// Resolution happens lazily, so Parse itself succeeds.
	a, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = a.Next()
	if !errors.Is(err, ErrDecompression) {
		t.Fatalf("Next = %v, want ErrDecompression", err)
	}
	if !errors.Is(err, ErrParse) {
		t.Error("decompression errors should also match ErrParse")
	}
	if _, again := a.Next(); again != err {
		t.Errorf("error is not sticky: %v", again)
	}
}

func TestArtifact_CorruptPayload(t *testing.T) {
	data := artifacttest.Build(t, artifacttest.Options{
		Compression:    compression.Gzip,
		Payloads:       []artifacttest.Payload{twoFilePayload()},
		CorruptPayload: true,
	})

	a, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, err := a.Next()
	if err == nil {
		_, err = p.Next()
	}
	if !errors.Is(err, ErrDecompression) {
		t.Errorf("error = %v, want ErrDecompression", err)
	}
}

func TestParse_HeaderMetadata(t *testing.T) {
	data := artifacttest.Build(t, artifacttest.Options{
		Name:          "release-7",
		DeviceTypes:   []string{"beaglebone", "rpi4"},
		Compression:   compression.LZMA,
		Signed:        true,
		HeaderAugment: true,
		Scripts: []artifacttest.File{
			{Name: "ArtifactInstall_Enter_01", Content: []byte("#!/bin/sh\nexit 0\n")},
		},
		Payloads: []artifacttest.Payload{{
			Type:     "rootfs-image",
			Files:    []artifacttest.File{{Name: "rootfs.ext4", Content: []byte("fs")}},
			MetaData: map[string]any{"checksum_algorithm": "sha256"},
		}},
	})

	a, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !a.Signed || !a.Augmented {
		t.Errorf("Signed = %v, Augmented = %v", a.Signed, a.Augmented)
	}
	if a.Name() != "release-7" {
		t.Errorf("Name = %q", a.Name())
	}
	deps := a.Header.Info.ArtifactDepends.DeviceType
	if len(deps) != 2 || deps[1] != "rpi4" {
		t.Errorf("DeviceType = %v", deps)
	}
	if len(a.Header.Scripts) != 1 || a.Header.Scripts[0].Name != "ArtifactInstall_Enter_01" {
		t.Fatalf("Scripts = %+v", a.Header.Scripts)
	}
	if a.Header.Scripts[0].Mode&0o111 == 0 {
		t.Errorf("script mode %o is not executable", a.Header.Scripts[0].Mode)
	}
	ph := a.Header.Payloads[0]
	if ph.TypeInfo.Type != "rootfs-image" || ph.MetaData["checksum_algorithm"] != "sha256" {
		t.Errorf("payload header = %+v", ph)
	}
	if _, ok := a.Manifest.Checksum("data/0000.tar.xz"); !ok {
		t.Error("manifest lacks data/0000.tar.xz")
	}

	p, err := a.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	f, err := p.Next()
	if err != nil || f.Name() != "rootfs.ext4" {
		t.Fatalf("file = %v, %v", f, err)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	for _, in := range []string{
		"nothex  data/0000.tar\n",
		"abcd\n",
		"0000000000000000000000000000000000000000000000000000000000000000 a b\n",
	} {
		if _, err := parseManifest([]byte(in)); !errors.Is(err, ErrParse) {
			t.Errorf("parseManifest(%q) = %v, want ErrParse", in, err)
		}
	}
}

func TestError_Format(t *testing.T) {
	err := newError(DecompressionErrorCode, "opening data/0000.tar.gz", errors.New("bad magic"))
	want := "DecompressionError: opening data/0000.tar.gz: bad magic"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if errors.Is(err, ErrNoMorePayloadFiles) {
		t.Error("decompression error must not match ErrNoMorePayloadFiles")
	}
}
