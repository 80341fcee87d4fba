// Package artifact parses update artifacts as a forward-only stream.
//
// Parse consumes the version record, the manifest and the header, then
// returns an Artifact positioned before the first payload. Payloads and the
// files inside them are realized lazily through Next calls; no payload byte
// is decompressed until the caller reads it.
//
//	a, err := artifact.Parse(r)
//	for {
//		p, err := a.Next()
//		if errors.Is(err, artifact.ErrNoMorePayloads) {
//			break
//		}
//		for {
//			f, err := p.Next()
//			if errors.Is(err, artifact.ErrNoMorePayloadFiles) {
//				break
//			}
//			io.Copy(dst, f)
//		}
//	}
package artifact

import (
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/otacore/container"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/metrics"
)

// Option configures Parse.
type Option func(*options)

type options struct {
	logger  *log.Logger
	metrics *metrics.Collector
}

// WithLogger sets the logger used for record tracing.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the collector that receives parse counters.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// Artifact is the root handle over a parsed artifact stream.
// It is not safe for concurrent use.
type Artifact struct {
	Version         Version
	Manifest        *Manifest
	ManifestAugment *Manifest
	// Signed reports whether a manifest.sig record was present.
	// The signature itself is not checked.
	Signed bool
	Header *Header
	// Augmented reports whether a header-augment record was present.
	Augmented bool

	cr      *container.Reader
	pending *container.Record
	current *Payload
	index   int
	done    bool
	err     error

	logger  *log.Logger
	metrics *metrics.Collector
}

// Parse reads the leading metadata records of an artifact from r.
// The returned Artifact keeps reading from r as payloads are requested,
// so r must stay open for as long as the Artifact is used.
func Parse(r io.Reader, opts ...Option) (*Artifact, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Nop()
	}

	a := &Artifact{
		cr:      container.NewReader(r),
		logger:  o.logger,
		metrics: o.metrics,
	}
	if err := a.parseVersion(); err != nil {
		a.metrics.IncArtifactFailed()
		return nil, err
	}
	if err := a.parseMetadata(); err != nil {
		a.metrics.IncArtifactFailed()
		return nil, err
	}
	a.metrics.IncArtifactParsed()
	return a, nil
}

// Name returns the artifact name from header-info.
func (a *Artifact) Name() string {
	if a.Header == nil {
		return ""
	}
	return a.Header.Info.ArtifactProvides.ArtifactName
}

func (a *Artifact) parseVersion() error {
	rec, err := a.cr.Next()
	if errors.Is(err, io.EOF) {
		return newError(VersionErrorCode, "artifact has no version record", nil)
	}
	if err != nil {
		return newError(VersionErrorCode, "reading version record", err)
	}
	if rec.Path() != "version" {
		return newError(VersionErrorCode, fmt.Sprintf("first record is %q, want version", rec.Path()), nil)
	}
	data, err := readMetadata(rec, "version")
	if err != nil {
		return newError(VersionErrorCode, "reading version record", err)
	}
	v, err := parseVersion(data)
	if err != nil {
		return err
	}
	a.Version = v
	a.logger.Debug("artifact version", map[string]any{"format": v.Format, "version": v.Version})
	return nil
}

// parseMetadata consumes manifest records and the header, then peeks the
// record after the header so the first Next call can start from it.
func (a *Artifact) parseMetadata() error {
	for a.Header == nil {
		rec, err := a.cr.Next()
		if errors.Is(err, io.EOF) {
			return parseError("artifact has no header")
		}
		if err != nil {
			return classify("reading artifact", err)
		}

		name := rec.Path()
		a.logger.Debug("artifact record", map[string]any{"name": name, "size": rec.Size})

		if ext, ok := container.IsHeaderRecord(name); ok {
			h, err := parseHeader(rec, ext)
			if err != nil {
				return err
			}
			a.Header = h
			continue
		}

		switch name {
		case "manifest":
			if a.Manifest != nil {
				return parseError("duplicate manifest")
			}
			data, err := readMetadata(rec, name)
			if err != nil {
				return err
			}
			if a.Manifest, err = parseManifest(data); err != nil {
				return err
			}
		case "manifest.sig":
			if a.Manifest == nil {
				return parseError("manifest.sig precedes manifest")
			}
			a.Signed = true
		case "manifest-augment":
			data, err := readMetadata(rec, name)
			if err != nil {
				return err
			}
			if a.ManifestAugment, err = parseManifest(data); err != nil {
				return err
			}
		default:
			return parseError("unexpected record %q before header", name)
		}
	}

	for {
		rec, err := a.cr.Next()
		if errors.Is(err, io.EOF) {
			a.done = true
			return nil
		}
		if err != nil {
			return classify("reading artifact", err)
		}
		if _, ok := container.IsHeaderAugmentRecord(rec.Path()); ok && !a.Augmented {
			a.Augmented = true
			continue
		}
		a.pending = rec
		return nil
	}
}

// Next returns the next payload. Any unread remainder of the previous
// payload is skipped and its files become unreadable. After the last
// payload Next returns ErrNoMorePayloads on every call.
func (a *Artifact) Next() (*Payload, error) {
	if a.err != nil {
		return nil, a.err
	}
	if a.current != nil {
		a.current.release()
		a.current = nil
	}
	if a.done {
		return nil, newError(NoMorePayloadsErrorCode, "artifact has no more payloads", nil)
	}

	rec := a.pending
	a.pending = nil
	if rec == nil {
		var err error
		rec, err = a.cr.Next()
		if errors.Is(err, io.EOF) {
			a.done = true
			return nil, newError(NoMorePayloadsErrorCode, "artifact has no more payloads", nil)
		}
		if err != nil {
			return nil, a.fail(classify("reading artifact", err))
		}
	}

	p, err := a.openPayload(rec)
	if err != nil {
		return nil, a.fail(err)
	}
	a.current = p
	a.index++
	a.metrics.IncPayloadOpened()
	return p, nil
}

func (a *Artifact) openPayload(rec *container.Record) (*Payload, error) {
	name := rec.Path()
	index, ext, ok := container.IsPayloadRecord(name)
	if !ok {
		return nil, parseError("unexpected record %q, want data/%04d.tar", name, a.index)
	}
	if index != a.index {
		return nil, parseError("payload %q out of order, want index %04d", name, a.index)
	}
	if a.Header != nil && index >= len(a.Header.Payloads) {
		return nil, parseError("payload %q not declared in header-info", name)
	}

	p, err := newPayload(index, name, ext, rec, a.logger, a.metrics)
	if err != nil {
		return nil, err
	}
	if a.Header != nil {
		p.Type = a.Header.Info.Payloads[index].Type
	}
	a.logger.Debug("payload opened", map[string]any{"name": name, "index": index, "codec": p.Codec.String()})
	return p, nil
}

func (a *Artifact) fail(err error) error {
	a.err = err
	return err
}
