package artifact

import (
	"errors"
	"io"

	"github.com/justapithecus/otacore/compression"
	"github.com/justapithecus/otacore/container"
	"github.com/justapithecus/otacore/log"
	"github.com/justapithecus/otacore/metrics"
)

// Payload is one data/NNNN.tar record. Its files are handed out once, in
// archive order.
type Payload struct {
	Index int
	Name  string
	Codec compression.Codec
	// Type is the payload type declared in header-info, if any.
	Type string

	dec     io.ReadCloser
	tr      *container.Reader
	current *PayloadFile
	done    bool
	err     error

	logger  *log.Logger
	metrics *metrics.Collector
}

func newPayload(index int, name, ext string, r io.Reader, logger *log.Logger, m *metrics.Collector) (*Payload, error) {
	codec, err := compression.CodecFromExtension(ext)
	if err != nil {
		return nil, newError(DecompressionErrorCode, "resolving compression of "+name, err)
	}
	dec, err := compression.NewReader(codec, r)
	if err != nil {
		return nil, newError(DecompressionErrorCode, "opening "+name, err)
	}
	return &Payload{
		Index:   index,
		Name:    name,
		Codec:   codec,
		dec:     dec,
		tr:      container.NewReader(dec),
		logger:  logger,
		metrics: m,
	}, nil
}

// Next returns the next file of the payload. The unread remainder of the
// previous file is skipped. After the last file Next returns
// ErrNoMorePayloadFiles on every call.
func (p *Payload) Next() (*PayloadFile, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.current != nil {
		p.current.stale = true
		p.current = nil
	}
	if p.done {
		return nil, newError(NoMorePayloadFilesErrorCode, "payload has no more files", nil)
	}

	rec, err := p.tr.Next()
	if errors.Is(err, io.EOF) {
		p.finish()
		return nil, newError(NoMorePayloadFilesErrorCode, "payload has no more files", nil)
	}
	if err != nil {
		p.err = classify("reading "+p.Name, err)
		p.finish()
		return nil, p.err
	}

	f := &PayloadFile{name: rec.Path(), size: rec.Size, r: rec, payload: p}
	p.current = f
	p.metrics.IncPayloadFile()
	p.logger.Debug("payload file", map[string]any{"payload": p.Name, "name": f.name, "size": f.size})
	return f, nil
}

// release invalidates the payload when the artifact moves past it.
func (p *Payload) release() {
	if p.current != nil {
		p.current.stale = true
		p.current = nil
	}
	if !p.done {
		p.finish()
	}
}

func (p *Payload) finish() {
	p.done = true
	if p.dec != nil {
		_ = p.dec.Close()
		p.dec = nil
	}
}

// PayloadFile is one file inside a payload. Read yields exactly Size bytes
// followed by io.EOF.
type PayloadFile struct {
	name    string
	size    int64
	r       io.Reader
	payload *Payload
	stale   bool
}

// Name returns the file name as stored in the payload.
func (f *PayloadFile) Name() string { return f.name }

// Size returns the declared file size in bytes.
func (f *PayloadFile) Size() int64 { return f.size }

// Read implements io.Reader.
func (f *PayloadFile) Read(b []byte) (int, error) {
	if f.stale {
		return 0, parseError("payload file %q read after advancing past it", f.name)
	}
	n, err := f.r.Read(b)
	f.payload.metrics.AddPayloadBytes(n)
	if err != nil && err != io.EOF {
		err = classify("reading "+f.name, err)
	}
	return n, err
}
