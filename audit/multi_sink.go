package audit

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

// ErrNotReadable is returned when no sink can serve reads.
var ErrNotReadable = errors.New("audit sink is not readable")

// MultiSink records each fact in every sink, in order.
// The first sink that implements Reader serves reads.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, fact Fact) error {
	var errs error
	for _, s := range m {
		errs = multierr.Append(errs, s.Record(ctx, fact))
	}
	return errs
}

func (m MultiSink) Facts(ctx context.Context) ([]Fact, error) {
	for _, s := range m {
		if r, ok := s.(Reader); ok {
			return r.Facts(ctx)
		}
	}
	return nil, ErrNotReadable
}
