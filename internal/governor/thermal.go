package governor

import "time"

type historySample struct {
	fps float64
	at  time.Time
}

// history is the rolling window of smoothed fps samples the thermal check
// compares against itself. Live samples are samples[head:].
type history struct {
	samples []historySample
	head    int
}

func (h *history) add(fps float64, at time.Time) {
	h.samples = append(h.samples, historySample{fps: fps, at: at})
}

// prune drops samples older than cutoff. Samples arrive in time order, so
// the oldest are always at the front. Dropped samples are only compacted
// away once they make up half the backing slice.
func (h *history) prune(cutoff time.Time) {
	for h.head < len(h.samples) && h.samples[h.head].at.Before(cutoff) {
		h.head++
	}

	if h.head > 0 && h.head >= len(h.samples)/2 {
		n := copy(h.samples, h.samples[h.head:])
		h.samples = h.samples[:n]
		h.head = 0
	}
}

func (h *history) live() []historySample {
	return h.samples[h.head:]
}

func (h *history) reset() {
	h.samples = nil
	h.head = 0
}

func (h *history) len() int {
	return len(h.samples) - h.head
}

// halves splits the window at its temporal midpoint and returns the mean of
// each side. ok is false when there are too few samples or one side is empty.
func (h *history) halves() (first, second float64, ok bool) {
	samples := h.live()
	if len(samples) < thermalMinSamples {
		return 0, 0, false
	}

	oldest := samples[0].at
	newest := samples[len(samples)-1].at
	mid := oldest.Add(newest.Sub(oldest) / 2)

	var (
		firstSum, secondSum float64
		firstN, secondN     int
	)
	for _, s := range samples {
		if s.at.Before(mid) {
			firstSum += s.fps
			firstN++
		} else {
			secondSum += s.fps
			secondN++
		}
	}

	if firstN == 0 || secondN == 0 {
		return 0, 0, false
	}

	return firstSum / float64(firstN), secondSum / float64(secondN), true
}

type thermalVerdict int

const (
	thermalSteady thermalVerdict = iota
	thermalTrip
	thermalRecover
)

// judge compares the two half means. Values between the trip and recover
// ratios leave the throttled flag as it is.
func judge(first, second float64) thermalVerdict {
	switch {
	case second < first*thermalTripRatio:
		return thermalTrip
	case second > first*thermalRecoverRatio:
		return thermalRecover
	default:
		return thermalSteady
	}
}
