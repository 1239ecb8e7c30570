package breakout

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHostPollInterval is the hosting page's URL poll cadence, the safety
// net for navigations the in-app router never observes.
const DefaultHostPollInterval = time.Second

// Reconciler is the durable side the host watcher hands a confirmed
// completion to.
type Reconciler interface {
	RecoverByCorrelationID(ctx context.Context, correlationID string) error
}

// HostWatcher is the hosting page's counterpart to the in-frame detector: a
// message listener plus a fixed-interval URL poll. On confirming success
// parameters it invokes the reconciler and only then finalizes the session
// UI. Confirmation is one-shot.
type HostWatcher struct {
	reconciler Reconciler
	urls       URLSource
	finalize   func(correlationID string)
	interval   time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	confirmed bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewHostWatcher(reconciler Reconciler, urls URLSource, finalize func(correlationID string), interval time.Duration, logger *zap.Logger) *HostWatcher {
	if interval <= 0 {
		interval = DefaultHostPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostWatcher{
		reconciler: reconciler,
		urls:       urls,
		finalize:   finalize,
		interval:   interval,
		logger:     logger,
	}
}

// Start begins the URL poll. The message listener is fed via OnMessage.
func (w *HostWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(ctx, w.done)
}

// Stop tears the poll down. An in-flight reconciliation call is not
// canceled; it completes on its own.
func (w *HostWatcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// OnMessage feeds a raw cross-frame message to the watcher
func (w *HostWatcher) OnMessage(raw []byte) {
	msg, err := ParseFrameMessage(raw)
	if err != nil {
		w.logger.Debug("ignoring frame message", zap.Error(err))
		return
	}
	if !msg.IndicatesSuccess() {
		return
	}

	correlationID := msg.CorrelationID
	if correlationID == "" && msg.URL != "" {
		correlationID = correlationIDFromURL(msg.URL)
	}
	w.confirm(correlationID)
}

// Confirmed reports whether success was observed
func (w *HostWatcher) Confirmed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.confirmed
}

func (w *HostWatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.checkURL() {
				return
			}
		}
	}
}

func (w *HostWatcher) checkURL() bool {
	if w.urls == nil {
		return false
	}
	current := w.urls.CurrentURL()
	if !MatchesSuccessMarker(current) {
		return false
	}

	parsed, err := url.Parse(current)
	if err != nil || !ConfirmCompletionQuery(parsed.Query()) {
		return false
	}

	return w.confirm(parsed.Query().Get(ParamCorrelationID))
}

// confirm runs once: reconcile first, finalize the UI only after. A success
// signal without a correlation id cannot be reconciled, so it is ignored
// until a channel that carries the id fires.
func (w *HostWatcher) confirm(correlationID string) bool {
	if correlationID == "" {
		w.logger.Debug("completion observed without a correlation id, waiting")
		return false
	}

	w.mu.Lock()
	if w.confirmed {
		w.mu.Unlock()
		return true
	}
	w.confirmed = true
	w.mu.Unlock()

	w.logger.Info("hosting page confirmed completion",
		zap.String("correlation_id", correlationID))

	if w.reconciler != nil {
		// no cancellation tie to Stop: the durable apply must finish
		if err := w.reconciler.RecoverByCorrelationID(context.Background(), correlationID); err != nil {
			w.logger.Error("reconciliation from hosting page failed",
				zap.String("correlation_id", correlationID),
				zap.Error(err),
			)
		}
	}

	if w.finalize != nil {
		w.finalize(correlationID)
	}
	return true
}

func correlationIDFromURL(rawURL string) string {
	idx := strings.Index(rawURL, "?")
	if idx < 0 {
		return ""
	}
	values, err := url.ParseQuery(rawURL[idx+1:])
	if err != nil {
		return ""
	}
	return values.Get(ParamCorrelationID)
}
