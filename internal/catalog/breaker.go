package catalog

import (
	"log"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type BreakerConfig struct {
	// Window is the number of most recent calls considered while closed.
	Window int
	// MinCalls must be recorded before the failure rate is evaluated.
	MinCalls int
	// FailureRate in percent at or above which the breaker opens.
	FailureRate float64
	OpenWait    time.Duration
	// HalfOpenCalls trial calls are let through after OpenWait.
	HalfOpenCalls int
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Window:        10,
		MinCalls:      5,
		FailureRate:   50,
		OpenWait:      10 * time.Second,
		HalfOpenCalls: 5,
	}
}

// Breaker is a count-based sliding window circuit breaker.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	window   []bool // true = failure
	pos      int
	filled   int
	openedAt time.Time
	issued   int
	trials   []bool
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Window <= 0 {
		cfg.Window = 10
	}
	if cfg.MinCalls <= 0 || cfg.MinCalls > cfg.Window {
		cfg.MinCalls = cfg.Window
	}
	if cfg.HalfOpenCalls <= 0 {
		cfg.HalfOpenCalls = 1
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		window: make([]bool, cfg.Window),
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a call may proceed. In half-open state it hands out at
// most HalfOpenCalls permits until their results are recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()
	switch b.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.issued < b.cfg.HalfOpenCalls {
			b.issued++
			return true
		}
	}
	return false
}

func (b *Breaker) Record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.window[b.pos] = !ok
		b.pos = (b.pos + 1) % len(b.window)
		if b.filled < len(b.window) {
			b.filled++
		}
		if b.filled >= b.cfg.MinCalls && rate(b.window[:b.filled]) >= b.cfg.FailureRate {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.trials = append(b.trials, !ok)
		if len(b.trials) < b.cfg.HalfOpenCalls {
			return
		}
		if rate(b.trials) >= b.cfg.FailureRate {
			b.transition(StateOpen)
		} else {
			b.transition(StateClosed)
		}
	}
	// results arriving while open belong to calls admitted earlier; drop them
}

// Release hands back a permit whose call produced no verdict, such as one the
// caller abandoned.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.issued > len(b.trials) {
		b.issued--
	}
}

// must hold mu
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.cfg.OpenWait)) {
		b.transition(StateHalfOpen)
	}
}

// must hold mu
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateHalfOpen:
		b.issued = 0
		b.trials = b.trials[:0]
	case StateClosed:
		for i := range b.window {
			b.window[i] = false
		}
		b.pos, b.filled = 0, 0
	}
	log.Printf("catalog: breaker %s %s -> %s", b.name, from, to)
}

func rate(failures []bool) float64 {
	if len(failures) == 0 {
		return 0
	}
	n := 0
	for _, f := range failures {
		if f {
			n++
		}
	}
	return float64(n) * 100 / float64(len(failures))
}
