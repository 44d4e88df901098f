package playkit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnState is the state of the billing service connection.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnBackoffWait
	ConnConnecting
	ConnConnected
)

func (s ConnState) String() string {
	switch s {
	case ConnBackoffWait:
		return "backoff_wait"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type connEvent int

const (
	evStart connEvent = iota
	evConnected
	evSetupFailed
	evDisconnected
)

// reconnector drives the connection state machine from a single goroutine:
//
//	disconnected -> connecting -> connected
//	connecting/connected -(failure)-> backoff_wait -(timer)-> connecting
//
// Successful setup resets the retry attempt counter.
type reconnector struct {
	cfg     BackoffConfig
	connect func()
	onState func(ConnState)
	logger  zerolog.Logger
	afterFn func(time.Duration) <-chan time.Time

	events chan connEvent

	mu      sync.RWMutex
	state   ConnState
	attempt int
}

func newReconnector(cfg BackoffConfig, connect func(), onState func(ConnState), logger zerolog.Logger) *reconnector {
	return &reconnector{
		cfg:     cfg,
		connect: connect,
		onState: onState,
		logger:  logger,
		afterFn: time.After,
		events:  make(chan connEvent, 16),
	}
}

// notify queues an event for the loop. It never blocks past ctx cancellation.
func (r *reconnector) notify(ctx context.Context, ev connEvent) {
	select {
	case r.events <- ev:
	case <-ctx.Done():
	}
}

func (r *reconnector) State() ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *reconnector) setState(s ConnState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if r.onState != nil {
		r.onState(s)
	}
}

// nextDelay returns the wait for the upcoming retry and advances the attempt counter.
func (r *reconnector) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.cfg.Delay(r.attempt)
	if d < r.cfg.Max {
		r.attempt++
	}
	return d
}

func (r *reconnector) reset() {
	r.mu.Lock()
	r.attempt = 0
	r.mu.Unlock()
}

func (r *reconnector) run(ctx context.Context) {
	var timer <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			r.setState(ConnDisconnected)
			return

		case ev := <-r.events:
			switch ev {
			case evStart:
				if s := r.State(); s == ConnConnecting || s == ConnConnected {
					continue
				}
				timer = nil
				r.setState(ConnConnecting)
				go r.connect()

			case evConnected:
				timer = nil
				r.reset()
				r.setState(ConnConnected)

			case evSetupFailed, evDisconnected:
				if r.State() == ConnBackoffWait {
					continue
				}
				delay := r.nextDelay()
				r.logger.Debug().
					Dur("retry_in", delay).
					Str("reason", eventReason(ev)).
					Msg("Billing service unavailable, reconnecting with backoff")
				r.setState(ConnBackoffWait)
				timer = r.afterFn(delay)
			}

		case <-timer:
			timer = nil
			r.setState(ConnConnecting)
			go r.connect()
		}
	}
}

func eventReason(ev connEvent) string {
	if ev == evDisconnected {
		return "disconnected"
	}
	return "setup_failed"
}
