package quality

import (
	"sort"
	"sync"
)

// Ladder is an ordered list of tiers, lowest quality first, with a current
// pointer and a [min, max] clamp band.
//
// Invariant: 0 <= min <= current <= max <= len-1, except that SetMinTier and
// SetMaxTier move the band without moving the pointer. Callers that change
// the band are expected to call Clamp afterwards.
type Ladder struct {
	mu      sync.RWMutex
	tiers   []Tier
	current int
	minIdx  int
	maxIdx  int
}

// NewLadder returns the default five-tier ladder pointing at "medium".
func NewLadder() *Ladder {
	l := &Ladder{tiers: DefaultTiers()}
	l.sortLocked()
	l.maxIdx = len(l.tiers) - 1
	l.current = l.indexLocked(TierMedium)

	return l
}

// RegisterTier adds a tier and re-sorts the ladder by quality proxy. The
// pointer keeps addressing the tier it addressed before, by name, and the
// upper bound moves to the new top. Registering a name that already exists
// replaces that tier's knobs. Tiers whose proxy is NaN are dropped and false
// is returned.
func (l *Ladder) RegisterTier(t Tier) bool {
	if t.Name == "" || !t.comparable() {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	currentName := l.tiers[l.current].Name
	minName := l.tiers[l.minIdx].Name

	if i := l.indexLocked(t.Name); i >= 0 {
		l.tiers[i] = t
	} else {
		l.tiers = append(l.tiers, t)
	}

	l.sortLocked()
	l.current = l.indexLocked(currentName)
	l.minIdx = min(l.indexLocked(minName), l.current)
	l.maxIdx = len(l.tiers) - 1

	return true
}

// Downgrade moves one tier down. It returns false when already at the floor.
func (l *Ladder) Downgrade() (Tier, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current <= l.minIdx {
		return Tier{}, false
	}
	l.current--

	return l.tiers[l.current], true
}

// Upgrade moves one tier up. It returns false when already at the ceiling.
func (l *Ladder) Upgrade() (Tier, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current >= l.maxIdx {
		return Tier{}, false
	}
	l.current++

	return l.tiers[l.current], true
}

// SetTierByName jumps to the named tier. Tiers outside the clamp band and
// unknown names are rejected.
func (l *Ladder) SetTierByName(name string) (Tier, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(name)
	if i < 0 || i < l.minIdx || i > l.maxIdx {
		return Tier{}, false
	}
	l.current = i

	return l.tiers[i], true
}

// SetMinTier moves the lower bound. Unknown names and names above the upper
// bound are ignored. The pointer is not moved.
func (l *Ladder) SetMinTier(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(name)
	if i < 0 || i > l.maxIdx {
		return false
	}
	l.minIdx = i

	return true
}

// SetMaxTier moves the upper bound. Unknown names and names below the lower
// bound are ignored. The pointer is not moved.
func (l *Ladder) SetMaxTier(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexLocked(name)
	if i < 0 || i < l.minIdx {
		return false
	}
	l.maxIdx = i

	return true
}

// ResetBounds widens the band to the whole ladder.
func (l *Ladder) ResetBounds() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.minIdx = 0
	l.maxIdx = len(l.tiers) - 1
}

// Clamp pulls the pointer back inside the band. It returns the new tier and
// true only if the pointer moved.
func (l *Ladder) Clamp() (Tier, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.current < l.minIdx:
		l.current = l.minIdx
	case l.current > l.maxIdx:
		l.current = l.maxIdx
	default:
		return Tier{}, false
	}

	return l.tiers[l.current], true
}

func (l *Ladder) CanUpgrade() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current < l.maxIdx
}

func (l *Ladder) CanDowngrade() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current > l.minIdx
}

func (l *Ladder) CurrentTier() Tier {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tiers[l.current]
}

// CurrentIndex returns the pointer position, 0 being the lowest tier.
func (l *Ladder) CurrentIndex() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Bounds returns the clamp band as indices.
func (l *Ladder) Bounds() (minIdx, maxIdx int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.minIdx, l.maxIdx
}

func (l *Ladder) TierNames() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, len(l.tiers))
	for i, t := range l.tiers {
		names[i] = t.Name
	}

	return names
}

// Tiers returns a copy of the ladder, lowest first.
func (l *Ladder) Tiers() []Tier {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tiers := make([]Tier, len(l.tiers))
	copy(tiers, l.tiers)

	return tiers
}

// Index returns the position of the named tier, or -1.
func (l *Ladder) Index(name string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.indexLocked(name)
}

func (l *Ladder) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tiers)
}

func (l *Ladder) indexLocked(name string) int {
	for i, t := range l.tiers {
		if t.Name == name {
			return i
		}
	}

	return -1
}

func (l *Ladder) sortLocked() {
	sort.SliceStable(l.tiers, func(i, j int) bool {
		return l.tiers[i].Proxy() < l.tiers[j].Proxy()
	})
}
