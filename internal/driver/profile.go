package driver

import (
	"io"
	"math/rand"
	"time"

	"codeberg.org/mutker/qualityctl/internal/errors"
)

// Profile names a synthetic workload.
type Profile string

const (
	// ProfileSteady holds around 60 fps.
	ProfileSteady Profile = "steady"
	// ProfileHeavy holds around 40 fps, below the default downgrade threshold.
	ProfileHeavy Profile = "heavy"
	// ProfileSpiky runs at 60 fps with a 15 fps hitch every 50th frame.
	ProfileSpiky Profile = "spiky"
	// ProfileThermal runs at 100 fps for the first half and 80 fps after.
	ProfileThermal Profile = "thermal"
)

const (
	spikeEvery = 50
	spikeFPS   = 15
)

// Profiles lists the known profiles.
func Profiles() []Profile {
	return []Profile{ProfileSteady, ProfileHeavy, ProfileSpiky, ProfileThermal}
}

// IsValid returns whether the profile is known
func (p Profile) IsValid() bool {
	switch p {
	case ProfileSteady, ProfileHeavy, ProfileSpiky, ProfileThermal:
		return true
	default:
		return false
	}
}

// ProfileSource generates a fixed number of frames. The same seed always
// yields the same frames.
type ProfileSource struct {
	profile  Profile
	rng      *rand.Rand
	frames   int
	interval time.Duration
	i        int
}

func NewProfileSource(p Profile, seed int64, frames int, interval time.Duration) (*ProfileSource, error) {
	if !p.IsValid() {
		return nil, errors.New().WithData(ErrUnknownProfile, string(p))
	}
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	return &ProfileSource{
		profile:  p,
		rng:      rand.New(rand.NewSource(seed)),
		frames:   frames,
		interval: interval,
	}, nil
}

func (s *ProfileSource) Next() (Frame, error) {
	if s.i >= s.frames {
		return Frame{}, io.EOF
	}
	i := s.i
	s.i++

	// Uniform jitter in [-1, 1).
	jitter := s.rng.Float64()*2 - 1

	var fps float64
	switch s.profile {
	case ProfileSteady:
		fps = 60 + 2*jitter
	case ProfileHeavy:
		fps = 40 + 2*jitter
	case ProfileSpiky:
		fps = 60 + jitter
		if i > 0 && i%spikeEvery == 0 {
			fps = spikeFPS
		}
	case ProfileThermal:
		fps = 100 + jitter
		if i >= s.frames/2 {
			fps = 80 + jitter
		}
	}

	return Frame{FPS: fps, Duration: s.interval}, nil
}
