package artifact

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/justapithecus/otacore/compression"
	"github.com/justapithecus/otacore/container"
	"github.com/justapithecus/otacore/types"
)

// MaxMetadataSize bounds every metadata record (version, manifest, header
// entries, embedded scripts). Payload data is never bounded.
const MaxMetadataSize = 1 << 20

// Version is the content of the leading version record.
type Version struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
}

// ManifestEntry is one "<sha256>  <name>" line of the manifest.
type ManifestEntry struct {
	Checksum string
	Name     string
}

// Manifest lists the checksum of every artifact record. Checksums are
// carried for inspection only; they are not verified.
type Manifest struct {
	Entries []ManifestEntry
}

// Checksum returns the recorded checksum for name.
func (m *Manifest) Checksum(name string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.Entries {
		if e.Name == name {
			return e.Checksum, true
		}
	}
	return "", false
}

// ArtifactProvides is the provides section of header-info.
type ArtifactProvides struct {
	ArtifactName  string `json:"artifact_name"`
	ArtifactGroup string `json:"artifact_group,omitempty"`
}

// ArtifactDepends is the depends section of header-info.
type ArtifactDepends struct {
	ArtifactName  []string `json:"artifact_name,omitempty"`
	DeviceType    []string `json:"device_type"`
	ArtifactGroup []string `json:"artifact_group,omitempty"`
}

// PayloadInfo names a payload's type in header-info.
type PayloadInfo struct {
	Type string `json:"type"`
}

// HeaderInfo is the header-info record.
type HeaderInfo struct {
	Payloads         []PayloadInfo    `json:"payloads"`
	ArtifactProvides ArtifactProvides `json:"artifact_provides"`
	ArtifactDepends  ArtifactDepends  `json:"artifact_depends"`
}

// TypeInfo is a headers/NNNN/type-info record.
type TypeInfo struct {
	Type                   string            `json:"type"`
	ArtifactProvides       map[string]string `json:"artifact_provides,omitempty"`
	ArtifactDepends        map[string]any    `json:"artifact_depends,omitempty"`
	ClearsArtifactProvides []string          `json:"clears_artifact_provides,omitempty"`
}

// PayloadHeader holds the per-payload header records.
type PayloadHeader struct {
	TypeInfo TypeInfo
	MetaData map[string]any
}

// Script is a state script embedded in the artifact header.
type Script struct {
	Name    string
	Mode    int64
	Content []byte
}

// Header is the decoded header.tar record.
type Header struct {
	Info     HeaderInfo
	Payloads []PayloadHeader
	Scripts  []Script
}

func readMetadata(r io.Reader, what string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxMetadataSize+1))
	if err != nil {
		return nil, classify("reading "+what, err)
	}
	if len(data) > MaxMetadataSize {
		return nil, parseError("%s exceeds %d bytes", what, MaxMetadataSize)
	}
	return data, nil
}

func parseVersion(data []byte) (Version, error) {
	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		return v, newError(VersionErrorCode, "invalid version record", err)
	}
	if v.Format != types.ArtifactFormatName {
		return v, newError(VersionErrorCode, fmt.Sprintf("unsupported artifact format %q", v.Format), nil)
	}
	if v.Version != types.ArtifactFormatVersion {
		return v, newError(VersionErrorCode, fmt.Sprintf("unsupported artifact version %d", v.Version), nil)
	}
	return v, nil
}

func parseManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	for i, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, parseError("manifest line %d: want \"<checksum> <name>\", got %q", i+1, line)
		}
		sum, err := hex.DecodeString(fields[0])
		if err != nil || len(sum) != 32 {
			return nil, parseError("manifest line %d: invalid sha256 %q", i+1, fields[0])
		}
		m.Entries = append(m.Entries, ManifestEntry{Checksum: fields[0], Name: fields[1]})
	}
	return m, nil
}

// parseHeader decodes a header.tar<ext> record body.
func parseHeader(r io.Reader, ext string) (*Header, error) {
	codec, err := compression.CodecFromExtension(ext)
	if err != nil {
		return nil, newError(DecompressionErrorCode, "resolving header compression", err)
	}
	dec, err := compression.NewReader(codec, r)
	if err != nil {
		return nil, newError(DecompressionErrorCode, "opening header", err)
	}
	defer func() { _ = dec.Close() }()

	h := &Header{}
	seenInfo := false
	cr := container.NewReader(dec)
	for {
		rec, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, classify("reading header", err)
		}

		name := rec.Path()
		switch {
		case name == "header-info":
			if seenInfo {
				return nil, parseError("duplicate header-info")
			}
			seenInfo = true
			data, err := readMetadata(rec, name)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(data, &h.Info); err != nil {
				return nil, newError(ParseErrorCode, "invalid header-info", err)
			}
			h.Payloads = make([]PayloadHeader, len(h.Info.Payloads))

		case strings.HasPrefix(name, "scripts/"):
			data, err := readMetadata(rec, name)
			if err != nil {
				return nil, err
			}
			h.Scripts = append(h.Scripts, Script{Name: path.Base(name), Mode: rec.Mode, Content: data})

		case strings.HasPrefix(name, "headers/"):
			if !seenInfo {
				return nil, parseError("%s precedes header-info", name)
			}
			if err := h.parsePayloadHeader(name, rec); err != nil {
				return nil, err
			}

		default:
			return nil, parseError("unexpected header record %q", name)
		}
	}

	if !seenInfo {
		return nil, parseError("header has no header-info")
	}
	for i, p := range h.Payloads {
		if p.TypeInfo.Type == "" {
			return nil, parseError("payload %04d has no type-info", i)
		}
	}
	return h, nil
}

func (h *Header) parsePayloadHeader(name string, r io.Reader) error {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || len(parts[1]) != 4 {
		return parseError("malformed payload header name %q", name)
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 || index >= len(h.Payloads) {
		return parseError("payload header %q does not match a declared payload", name)
	}

	data, err := readMetadata(r, name)
	if err != nil {
		return err
	}
	ph := &h.Payloads[index]
	switch parts[2] {
	case "type-info":
		if err := json.Unmarshal(data, &ph.TypeInfo); err != nil {
			return newError(ParseErrorCode, "invalid "+name, err)
		}
		if ph.TypeInfo.Type != h.Info.Payloads[index].Type {
			return parseError("%s type %q disagrees with header-info type %q",
				name, ph.TypeInfo.Type, h.Info.Payloads[index].Type)
		}
	case "meta-data":
		if len(strings.TrimSpace(string(data))) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, &ph.MetaData); err != nil {
			return newError(ParseErrorCode, "invalid "+name, err)
		}
	default:
		return parseError("unexpected payload header record %q", name)
	}
	return nil
}
