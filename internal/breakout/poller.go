package breakout

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is the in-frame fallback poll cadence
const DefaultPollInterval = 500 * time.Millisecond

// URLSource exposes the frame's current location to pull-based detection
type URLSource interface {
	CurrentURL() string
}

// IndicatorSource reports whether the known success indicator element is
// present in the frame's document
type IndicatorSource interface {
	IndicatorPresent() bool
}

// Poller is the pull-driven fallback detector for environments where the
// message channel or the mutation observer is blocked. It re-checks the URL
// and indicator state on a fixed interval until stopped or until the
// detector reaches a terminal phase.
type Poller struct {
	detector  *Detector
	urls      URLSource
	indicator IndicatorSource
	interval  time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(detector *Detector, urls URLSource, indicator IndicatorSource, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		detector:  detector,
		urls:      urls,
		indicator: indicator,
		interval:  interval,
	}
}

// Start begins polling. Calling Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
}

// Stop cancels the poll loop and waits for it to exit
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.check()
			if p.detector.Phase() != PhaseWatching {
				return
			}
		}
	}
}

func (p *Poller) check() {
	if p.urls != nil {
		p.detector.ObserveURL(p.urls.CurrentURL())
	}
	if p.indicator != nil && p.indicator.IndicatorPresent() {
		p.detector.ObserveIndicator()
	}
}
