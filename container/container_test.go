package container

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"testing"
)

type entry struct {
	name string
	body string
	dir  bool
}

func buildTar(t *testing.T, entries ...entry) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", e.name, err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("Write(%s): %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar: %v", err)
	}
	return buf.Bytes()
}

func TestReader_Sequence(t *testing.T) {
	data := buildTar(t,
		entry{name: "version", body: `{"format":"mender","version":3}`},
		entry{name: "data/", dir: true},
		entry{name: "data/0000.tar", body: "inner"},
	)

	r := NewReader(bytes.NewReader(data))

	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Name != "version" {
		t.Errorf("Name = %q, want version", rec.Name)
	}
	body, err := io.ReadAll(rec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if int64(len(body)) != rec.Size {
		t.Errorf("read %d bytes, Size = %d", len(body), rec.Size)
	}

	rec, err = r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec.Path() != "data/0000.tar" {
		t.Errorf("Path = %q, want data/0000.tar (directory entry should be skipped)", rec.Path())
	}

	for range 2 {
		if _, err := r.Next(); err != io.EOF {
			t.Fatalf("Next at end = %v, want io.EOF", err)
		}
	}
}

func TestReader_SkipsUnreadBody(t *testing.T) {
	data := buildTar(t,
		entry{name: "a", body: "0123456789"},
		entry{name: "b", body: "second"},
	)

	r := NewReader(bytes.NewReader(data))
	first, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	buf := make([]byte, 3)
	if _, err := io.ReadFull(first, buf); err != nil {
		t.Fatalf("partial read: %v", err)
	}

	second, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	body, _ := io.ReadAll(second)
	if string(body) != "second" {
		t.Errorf("second body = %q, want %q", body, "second")
	}
}

func TestReader_Malformed(t *testing.T) {
	data := buildTar(t, entry{name: "a", body: "0123456789"})

	// Cut into the body so the record header is valid but the body is short.
	r := NewReader(bytes.NewReader(data[:512+4]))
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	_, err = io.ReadAll(rec)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("ReadAll error = %v, want *FormatError", err)
	}

	r = NewReader(bytes.NewReader(bytes.Repeat([]byte{'x'}, 700)))
	if _, err := r.Next(); !errors.As(err, &fe) {
		t.Errorf("Next on garbage = %v, want *FormatError", err)
	}
}

func TestIsPayloadRecord(t *testing.T) {
	tests := []struct {
		name      string
		wantIndex int
		wantExt   string
		wantOK    bool
	}{
		{"data/0000.tar", 0, "", true},
		{"data/0001.tar.gz", 1, ".gz", true},
		{"./data/0002.tar.xz", 2, ".xz", true},
		{"data/0010.tar.zst", 10, ".zst", true},
		{"data/000.tar", 0, "", false},
		{"data/0000.tgz", 0, "", false},
		{"data/0000.tar.gz.bak", 0, "", false},
		{"header.tar.gz", 0, "", false},
		{"data/abcd.tar", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, ext, ok := IsPayloadRecord(tt.name)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if index != tt.wantIndex || ext != tt.wantExt {
				t.Errorf("got (%d, %q), want (%d, %q)", index, ext, tt.wantIndex, tt.wantExt)
			}
		})
	}
}

func TestIsHeaderRecord(t *testing.T) {
	for name, want := range map[string]string{
		"header.tar":     "",
		"header.tar.gz":  ".gz",
		"header.tar.xz":  ".xz",
		"header.tar.zst": ".zst",
	} {
		ext, ok := IsHeaderRecord(name)
		if !ok || ext != want {
			t.Errorf("IsHeaderRecord(%q) = %q, %v; want %q, true", name, ext, ok, want)
		}
	}
	for _, name := range []string{"header-augment.tar.gz", "headers.tar", "manifest"} {
		if _, ok := IsHeaderRecord(name); ok {
			t.Errorf("IsHeaderRecord(%q) = true, want false", name)
		}
	}
	if ext, ok := IsHeaderAugmentRecord("header-augment.tar.gz"); !ok || ext != ".gz" {
		t.Errorf("IsHeaderAugmentRecord = %q, %v", ext, ok)
	}
}
