package driver

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"codeberg.org/mutker/qualityctl/internal/governor"
	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/quality"
)

// ChangeMessage is the JSON line written for each tier change.
type ChangeMessage struct {
	Event       string        `json:"event"`
	Tier        *quality.Tier `json:"tier,omitempty"`
	Previous    string        `json:"previous,omitempty"`
	Direction   string        `json:"direction,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	SmoothedFPS float64       `json:"smoothed_fps,omitempty"`
	At          time.Time     `json:"at"`
}

// JSONObserver writes governor notifications to w, one JSON object per line.
// Event is one of "tier_changed", "thermal_throttled", "enabled", "disabled".
func JSONObserver(w io.Writer, clock governor.Clock, log logger.Logger) governor.Observer {
	var mu sync.Mutex
	enc := json.NewEncoder(w)

	write := func(m ChangeMessage) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(m); err != nil {
			log.Warn().Err(err).Str("event", m.Event).Msg("Failed to write notification")
		}
	}

	return governor.ObserverFuncs{
		OnTierChanged: func(c governor.TierChange) {
			tier := c.Tier
			write(ChangeMessage{
				Event:       "tier_changed",
				Tier:        &tier,
				Previous:    c.Previous,
				Direction:   string(c.Direction),
				Reason:      string(c.Reason),
				SmoothedFPS: c.SmoothedFPS,
				At:          c.At,
			})
		},
		OnThermalThrottled: func(e governor.ThermalEvent) {
			write(ChangeMessage{Event: "thermal_throttled", SmoothedFPS: e.SecondHalfMean, At: e.At})
		},
		OnEnabled: func(governor.Config) {
			write(ChangeMessage{Event: "enabled", At: clock.Now()})
		},
		OnDisabled: func() {
			write(ChangeMessage{Event: "disabled", At: clock.Now()})
		},
	}
}
