package breakout

import (
	"sync"

	"go.uber.org/zap"
)

// Phase is the detector's state. Dispatched and ErrorDispatched are terminal.
type Phase int

const (
	PhaseWatching Phase = iota
	PhaseSuccessDetected
	PhaseDispatched
	PhaseErrorDetected
	PhaseErrorDispatched
)

func (p Phase) String() string {
	switch p {
	case PhaseWatching:
		return "watching"
	case PhaseSuccessDetected:
		return "success_detected"
	case PhaseDispatched:
		return "dispatched"
	case PhaseErrorDetected:
		return "error_detected"
	case PhaseErrorDispatched:
		return "error_dispatched"
	default:
		return "unknown"
	}
}

// Strategy is one independent way of navigating the top-level window to the
// completion URL. Strategies are non-exclusive: frame and browser policy can
// silently block any of them, so the dispatcher fires every one and waits
// for none.
type Strategy interface {
	Name() string
	Execute(targetURL string) error
}

// Detector is the one-shot completion state machine running alongside the
// hosted form. Any number of detection channels may signal it; the first
// wins and the rest become no-ops.
type Detector struct {
	mu         sync.Mutex
	phase      Phase
	source     string
	baseURL    string
	params     CompletionParams
	strategies []Strategy
	logger     *zap.Logger
}

func NewDetector(baseURL string, params CompletionParams, strategies []Strategy, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		phase:      PhaseWatching,
		baseURL:    baseURL,
		params:     params,
		strategies: strategies,
		logger:     logger,
	}
}

// Phase returns the current state
func (d *Detector) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Source returns which detection channel fired first
func (d *Detector) Source() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.source
}

// ObserveURL checks the frame's current URL against the marker allow-lists
func (d *Detector) ObserveURL(rawURL string) {
	if MatchesSuccessMarker(rawURL) {
		d.SignalSuccess("url")
		return
	}
	if MatchesErrorMarker(rawURL) {
		d.SignalError("url")
	}
}

// ObserveMessage feeds a raw cross-frame message into the detector.
// Malformed or foreign messages are ignored.
func (d *Detector) ObserveMessage(raw []byte) {
	msg, err := ParseFrameMessage(raw)
	if err != nil {
		d.logger.Debug("ignoring frame message", zap.Error(err))
		return
	}
	if msg.CorrelationID != "" {
		d.mu.Lock()
		if d.params.CorrelationID == "" {
			d.params.CorrelationID = msg.CorrelationID
		}
		d.mu.Unlock()
	}
	if msg.IndicatesSuccess() {
		d.SignalSuccess("message")
	} else if msg.IndicatesFailure() {
		d.SignalError("message")
	}
}

// ObserveIndicator reports that the success indicator element appeared
func (d *Detector) ObserveIndicator() {
	d.SignalSuccess("indicator")
}

// SignalSuccess moves the machine to SuccessDetected and dispatches the
// breakout. Returns false when a terminal phase was already reached.
func (d *Detector) SignalSuccess(source string) bool {
	d.mu.Lock()
	if d.phase != PhaseWatching {
		d.mu.Unlock()
		return false
	}
	d.phase = PhaseSuccessDetected
	d.source = source
	params := d.params
	d.mu.Unlock()

	d.logger.Info("completion detected",
		zap.String("source", source),
		zap.String("correlation_id", params.CorrelationID),
	)

	d.dispatch(BuildCompletionURL(d.baseURL, true, params))

	d.mu.Lock()
	d.phase = PhaseDispatched
	d.mu.Unlock()
	return true
}

// SignalError moves the machine to the error-terminal path
func (d *Detector) SignalError(source string) bool {
	d.mu.Lock()
	if d.phase != PhaseWatching {
		d.mu.Unlock()
		return false
	}
	d.phase = PhaseErrorDetected
	d.source = source
	params := d.params
	d.mu.Unlock()

	d.logger.Info("failure detected", zap.String("source", source))

	d.dispatch(BuildCompletionURL(d.baseURL, false, params))

	d.mu.Lock()
	d.phase = PhaseErrorDispatched
	d.mu.Unlock()
	return true
}

// dispatch fires every strategy in order. No early return: each strategy may
// be silently blocked, and only one of them has to work.
func (d *Detector) dispatch(targetURL string) {
	for _, strategy := range d.strategies {
		if err := strategy.Execute(targetURL); err != nil {
			d.logger.Debug("breakout strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.Error(err),
			)
		}
	}
}
