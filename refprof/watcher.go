package refprof

import (
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// watcher periodically scans for in-flight calls that have been running
// longer than the slow-call threshold and logs the owning scope's live call
// stack. Output is rate-limited so a stuck call does not flood the log.
type watcher struct {
	rec      *Recorder
	interval time.Duration
	lim      *rate.Limiter
	log      *slog.Logger

	stopCh chan struct{}
}

const (
	watchRatePerSec = 1.0
	watchBurst      = 2
)

func startWatcher(rec *Recorder, interval time.Duration, logger *slog.Logger) *watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	w := &watcher{
		rec:      rec,
		interval: interval,
		lim:      rate.NewLimiter(rate.Limit(watchRatePerSec), watchBurst),
		log:      logger,
		stopCh:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *watcher) stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

func (w *watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-t.C:
			w.scan()
		}
	}
}

func (w *watcher) scan() {
	scope, elapsed, ok := w.rec.longestActive()
	if !ok || elapsed < w.rec.cfg.SlowCallThreshold {
		return
	}
	// never block: if we can't log now, skip
	if !w.lim.Allow() {
		return
	}

	stack := w.rec.ActiveStack(scope)
	if len(stack) == 0 {
		return
	}
	innermost := stack[len(stack)-1]
	w.log.Warn("slow in-flight remote call",
		"elapsed", elapsed,
		"depth", len(stack),
		"method", innermost.Method,
		"kind", string(innermost.Kind),
		"stack", FormatActiveStack(w.rec, scope))
}
