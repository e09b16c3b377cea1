package probe

import "context"

// Prober suggests tier settings for the current device before the governor
// starts sampling.
type Prober interface {
	Probe(ctx context.Context) (Suggestion, error)
}

// Suggestion names tiers on the ladder. Empty fields leave the governor's
// own setting alone.
type Suggestion struct {
	InitialTier string
	MinTier     string
	MaxTier     string
	Reason      string
}

// Kind selects a prober implementation.
type Kind string

const (
	KindNone   Kind = "none"
	KindStatic Kind = "static"
	KindNVML   Kind = "nvml"
)

// IsValid returns whether the kind is known
func (k Kind) IsValid() bool {
	switch k {
	case KindNone, KindStatic, KindNVML:
		return true
	default:
		return false
	}
}
