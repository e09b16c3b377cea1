package governor

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"codeberg.org/mutker/qualityctl/internal/logger"
	"codeberg.org/mutker/qualityctl/internal/quality"
)

// Direction of a tier move, or of the current stable run.
type Direction string

const (
	DirectionNone Direction = "none"
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Reason records which path moved the ladder.
type Reason string

const (
	ReasonAuto    Reason = "auto"
	ReasonRegress Reason = "regress"
	ReasonThermal Reason = "thermal"
	ReasonManual  Reason = "manual"
	ReasonClamp   Reason = "clamp"
)

// TierChange is announced every time the ladder pointer actually moves.
type TierChange struct {
	Tier        quality.Tier
	Previous    string
	Direction   Direction
	Reason      Reason
	SmoothedFPS float64
	At          time.Time
}

// ThermalEvent is announced on the rising edge of the throttled flag.
type ThermalEvent struct {
	FirstHalfMean  float64
	SecondHalfMean float64
	Ratio          float64
	At             time.Time
}

// Observer receives governor notifications. Calls happen synchronously on the
// goroutine that drove the governor, after its state has been updated.
type Observer interface {
	TierChanged(TierChange)
	Enabled(Config)
	Disabled()
	ThermalThrottled(ThermalEvent)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	OnTierChanged      func(TierChange)
	OnEnabled          func(Config)
	OnDisabled         func()
	OnThermalThrottled func(ThermalEvent)
}

func (f ObserverFuncs) TierChanged(c TierChange) {
	if f.OnTierChanged != nil {
		f.OnTierChanged(c)
	}
}

func (f ObserverFuncs) Enabled(c Config) {
	if f.OnEnabled != nil {
		f.OnEnabled(c)
	}
}

func (f ObserverFuncs) Disabled() {
	if f.OnDisabled != nil {
		f.OnDisabled()
	}
}

func (f ObserverFuncs) ThermalThrottled(e ThermalEvent) {
	if f.OnThermalThrottled != nil {
		f.OnThermalThrottled(e)
	}
}

// SubscriptionID identifies a registered observer.
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	observer Observer
}

// registry keeps observers in registration order.
type registry struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID SubscriptionID
	log    logger.Logger
}

func (r *registry) add(o Observer) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	r.subs = append(r.subs, subscription{id: r.nextID, observer: o})

	return r.nextID
}

func (r *registry) remove(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subs {
		if sub.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return true
		}
	}

	return false
}

func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = nil
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// notification is queued while the governor lock is held and delivered
// once it is released.
type notification func(Observer)

func (r *registry) deliver(pending []notification) {
	if len(pending) == 0 {
		return
	}

	r.mu.RLock()
	subs := make([]subscription, len(r.subs))
	copy(subs, r.subs)
	r.mu.RUnlock()

	for _, n := range pending {
		for _, sub := range subs {
			r.safeCall(sub, n)
		}
	}
}

func (r *registry) safeCall(sub subscription, n notification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Uint64("subscription", uint64(sub.id)).
				Str("panic", fmt.Sprint(rec)).
				Bytes("stack", debug.Stack()).
				Msg("Observer panicked")
		}
	}()
	n(sub.observer)
}
