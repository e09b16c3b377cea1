package probe

import (
	"context"

	"codeberg.org/mutker/qualityctl/internal/errors"
)

type staticProber struct {
	s Suggestion
}

// NewStatic returns a Prober that always suggests s.
func NewStatic(s Suggestion) Prober {
	if s.Reason == "" {
		s.Reason = "configured"
	}
	return &staticProber{s: s}
}

func (p *staticProber) Probe(ctx context.Context) (Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return Suggestion{}, errors.New().Wrap(errors.ErrTimeout, err)
	}
	return p.s, nil
}

type noopProber struct{}

func (noopProber) Probe(context.Context) (Suggestion, error) {
	return Suggestion{Reason: "probing disabled"}, nil
}

// New returns the prober for kind. Static suggestions come from fallback.
func New(kind Kind, fallback Suggestion) (Prober, error) {
	switch kind {
	case KindNone, "":
		return noopProber{}, nil
	case KindStatic:
		return NewStatic(fallback), nil
	case KindNVML:
		return NewNVML(), nil
	default:
		return nil, errors.New().WithData(ErrUnknownKind, string(kind))
	}
}
