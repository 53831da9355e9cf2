// Package selector provides pluggable radio-selection policies: given
// the set of currently enabled radios, choose the one a new session
// should be bound to. Generalized from a routing-strategy pattern, the
// same way an FQDN-to-backend resolver generalizes to an
// endpoint-to-physical-radio resolver.
package selector

import (
	"context"
	"errors"
	"sync"

	"github.com/ewancrowle/hpsdr-gateway/internal/radio"
)

// Name identifies a registered selector.
type Name string

const (
	FirstAvailableName Name = "first_available"
	RoundRobinName     Name = "round_robin"
	LeastLoadedName    Name = "least_loaded"
)

var ErrNoRadioAvailable = errors.New("no enabled radio available")

// RadioSelector chooses one radio out of the enabled set.
type RadioSelector interface {
	Select(ctx context.Context, enabled []*radio.Descriptor) (*radio.Descriptor, error)
}

// Manager holds the registered selectors by name, the same way the
// teacher's StrategyManager holds routing strategies by type.
type Manager struct {
	mu        sync.RWMutex
	selectors map[Name]RadioSelector
}

func NewManager() *Manager {
	return &Manager{selectors: make(map[Name]RadioSelector)}
}

func (m *Manager) Register(n Name, s RadioSelector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selectors[n] = s
}

func (m *Manager) Get(n Name) (RadioSelector, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.selectors[n]
	return s, ok
}

// FirstAvailable always picks the first enabled radio, in configuration
// order. This is the default, for parity with the placeholder behavior
// spec.md §9 describes as almost certainly unintentional but required
// for reference compatibility.
type FirstAvailable struct{}

func (FirstAvailable) Select(_ context.Context, enabled []*radio.Descriptor) (*radio.Descriptor, error) {
	if len(enabled) == 0 {
		return nil, ErrNoRadioAvailable
	}
	return enabled[0], nil
}

// RoundRobin cycles through the enabled radios in configuration order
// across successive calls.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (r *RoundRobin) Select(_ context.Context, enabled []*radio.Descriptor) (*radio.Descriptor, error) {
	if len(enabled) == 0 {
		return nil, ErrNoRadioAvailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d := enabled[r.next%len(enabled)]
	r.next++
	return d, nil
}

// LoadCounter reports the number of live sessions currently bound to a
// radio endpoint, so LeastLoaded can compare candidates. Implemented by
// the session table.
type LoadCounter interface {
	SessionsForRadio(radioEndpoint string) int
}

// LeastLoaded picks the enabled radio with the fewest live sessions
// bound to its control endpoint, breaking ties by configuration order.
type LeastLoaded struct {
	Load LoadCounter
}

func NewLeastLoaded(load LoadCounter) *LeastLoaded {
	return &LeastLoaded{Load: load}
}

func (l *LeastLoaded) Select(_ context.Context, enabled []*radio.Descriptor) (*radio.Descriptor, error) {
	if len(enabled) == 0 {
		return nil, ErrNoRadioAvailable
	}
	best := enabled[0]
	bestLoad := l.Load.SessionsForRadio(best.ControlEndpoint())
	for _, d := range enabled[1:] {
		load := l.Load.SessionsForRadio(d.ControlEndpoint())
		if load < bestLoad {
			best, bestLoad = d, load
		}
	}
	return best, nil
}
