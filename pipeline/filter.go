package pipeline

import (
	"bufio"
	"io"

	"github.com/pkg/errors"
)

// Filter transforms the byte stream it reads from a source Stream.
// Filters are stacked in a Pipeline; each one consumes the output of
// the one below it.
type Filter interface {
	// Init binds the filter to its source and inspects the head of
	// the input where the filter needs to.
	Init(src *Stream) error
	// Pull fills p with transformed bytes. It reports io.EOF when the
	// transformed stream ends.
	Pull(p []byte) (int, error)
	// Flush completes pending output. Read side filters treat it as a
	// no-op.
	Flush() error
	// Close releases resources and reports errors that are only
	// detectable at the end of the stream.
	Close() error
}

// filterReader adapts a Filter to io.Reader.
type filterReader struct {
	f Filter
}

func (fr filterReader) Read(p []byte) (int, error) {
	return fr.f.Pull(p)
}

// Pipeline is a stack of filters over one input stream. The zero
// value is not usable, call New.
type Pipeline struct {
	filters []Filter
	out     *Stream
}

// New starts a pipeline that serves the source unfiltered.
func New(src *Stream) *Pipeline {
	return &Pipeline{out: src}
}

// Push stacks a filter on top of the pipeline. The filter reads what
// the pipeline currently serves; the pipeline then serves the filter's
// output.
func (p *Pipeline) Push(f Filter) error {
	if err := f.Init(p.out); err != nil {
		return errors.Wrap(err, "initializing filter")
	}
	p.filters = append(p.filters, f)
	p.out = &Stream{r: bufio.NewReader(filterReader{f}), name: p.out.name}
	return nil
}

// Stream returns the read end of the pipeline.
func (p *Pipeline) Stream() *Stream {
	return p.out
}

// Close closes the stacked filters from the top down. All filters are
// closed even when one fails; the first error wins.
func (p *Pipeline) Close() error {
	var firstErr error
	for i := len(p.filters) - 1; i >= 0; i-- {
		if err := p.filters[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drain consumes the pipeline output until EOF, discarding the data.
func (p *Pipeline) Drain() error {
	_, err := io.Copy(io.Discard, p.out)
	return err
}
