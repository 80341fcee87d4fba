package reader

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/justapithecus/otacore/artifact"
	"github.com/justapithecus/otacore/iox"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/metrics"
)

// InspectOptions controls artifact inspection.
type InspectOptions struct {
	// ReadPayloads reads every payload file to its end, verifying that the
	// stream decompresses and that each file holds its declared size.
	ReadPayloads bool
	Logger       *log.Logger
	Metrics      *metrics.Collector
}

// InspectArtifactFile opens path and inspects it.
func InspectArtifactFile(path string, opts InspectOptions) (*ArtifactInspectResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer iox.DiscardClose(f)

	resp, err := InspectArtifact(f, opts)
	if resp != nil {
		resp.Path = path
	}
	return resp, err
}

// InspectArtifact walks an artifact stream once, summarizing its metadata
// and payloads. Payload contents are skipped unless opts.ReadPayloads is set.
func InspectArtifact(r io.Reader, opts InspectOptions) (*ArtifactInspectResponse, error) {
	cr := &iox.CountingReader{R: r}
	a, err := artifact.Parse(cr, artifact.WithLogger(opts.Logger), artifact.WithMetrics(opts.Metrics))
	if err != nil {
		return nil, err
	}

	resp := &ArtifactInspectResponse{
		Name:          a.Name(),
		Format:        a.Version.Format,
		Version:       a.Version.Version,
		Signed:        a.Signed,
		Augmented:     a.Augmented,
		DeviceTypes:   []string{},
		Scripts:       []string{},
		Payloads:      []PayloadSummary{},
		BytesVerified: opts.ReadPayloads,
	}
	if a.Header != nil {
		resp.Group = a.Header.Info.ArtifactProvides.ArtifactGroup
		resp.DeviceTypes = append(resp.DeviceTypes, a.Header.Info.ArtifactDepends.DeviceType...)
		for _, s := range a.Header.Scripts {
			resp.Scripts = append(resp.Scripts, s.Name)
		}
	}

	for {
		p, err := a.Next()
		resp.BytesRead = cr.N
		if errors.Is(err, artifact.ErrNoMorePayloads) {
			return resp, nil
		}
		if err != nil {
			return resp, err
		}
		summary, err := summarizePayload(p, opts.ReadPayloads)
		resp.Payloads = append(resp.Payloads, summary)
		resp.BytesRead = cr.N
		if err != nil {
			return resp, err
		}
	}
}

func summarizePayload(p *artifact.Payload, readFiles bool) (PayloadSummary, error) {
	s := PayloadSummary{
		Index:       p.Index,
		Name:        p.Name,
		Type:        p.Type,
		Compression: p.Codec.String(),
		Files:       []FileSummary{},
	}
	for {
		f, err := p.Next()
		if errors.Is(err, artifact.ErrNoMorePayloadFiles) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		s.Files = append(s.Files, FileSummary{Name: f.Name(), Size: f.Size()})
		s.Bytes += f.Size()
		if !readFiles {
			continue
		}
		n, err := iox.Drain(f)
		if err != nil {
			return s, err
		}
		if n != f.Size() {
			return s, fmt.Errorf("payload file %s: read %d bytes, header declares %d", f.Name(), n, f.Size())
		}
	}
}
