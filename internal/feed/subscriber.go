package feed

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/i474232898/weather-live-sync/internal/weather"
)

var (
	errAlreadyStarted = errors.New("feed: subscriber already started")
	errClosed         = errors.New("feed: subscriber closed")
)

// Handler receives transport events. Calls may come from any goroutine.
type Handler interface {
	OnOpen()
	OnMessage(data []byte)
	OnError(err error)
}

// Transport is a one-way streaming connection with its own reconnection
// behaviour. Run blocks until ctx is done or the transport gives up.
type Transport interface {
	Run(ctx context.Context, h Handler) error
}

// Sink receives the subscriber's writes. A false return means the receiving
// view is gone.
type Sink interface {
	SetSnapshot(weather.FeedSnapshot) bool
	SetStatus(weather.ConnectionStatus) bool
}

type eventKind int

const (
	evOpen eventKind = iota
	evMessage
	evError
)

type event struct {
	kind eventKind
	data []byte
	err  error
}

// Subscriber keeps the latest snapshot and the connection status of one
// streaming connection and forwards both to a Sink.
type Subscriber struct {
	transport Transport
	sink      Sink
	detailKey string
	logger    *slog.Logger

	mu      sync.Mutex
	status  weather.ConnectionStatus
	latest  weather.FeedSnapshot
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Subscriber)

// WithDetailKey accepts single-object messages as the reading of city.
func WithDetailKey(city string) Option {
	return func(s *Subscriber) { s.detailKey = city }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Subscriber) { s.logger = l }
}

func NewSubscriber(t Transport, sink Sink, opts ...Option) *Subscriber {
	s := &Subscriber{
		transport: t,
		sink:      sink,
		status:    weather.StatusConnecting,
		logger:    slog.Default(),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start opens the one streaming connection of this activation. A subscriber
// cannot be restarted; a new activation needs a new Subscriber.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	if s.started {
		return errAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.status = weather.StatusConnecting
	if s.sink != nil {
		s.sink.SetStatus(weather.StatusConnecting)
	}

	// transports may call back from several goroutines; apply in arrival order on one
	events := make(chan event, 64)
	h := handlerFunc(func(ev event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})

	transportDone := make(chan struct{})
	go func() {
		defer close(transportDone)
		if err := s.transport.Run(ctx, h); err != nil && ctx.Err() == nil {
			s.logger.Warn("feed transport gave up", "error", err)
			h.send(event{kind: evError, err: err})
		}
	}()

	go func() {
		defer close(s.done)
		for {
			select {
			case ev := <-events:
				s.apply(ev)
			case <-ctx.Done():
				<-transportDone
				return
			}
		}
	}()

	return nil
}

// Close stops the connection. No message is applied after Close returns.
func (s *Subscriber) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	started := s.started
	cancel := s.cancel
	s.mu.Unlock()

	if !started {
		return
	}
	cancel()
	<-s.done
}

// Status returns the connection status as last reported by the transport.
func (s *Subscriber) Status() weather.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Latest returns the last successfully decoded snapshot, or nil.
func (s *Subscriber) Latest() weather.FeedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.latest
}

func (s *Subscriber) apply(ev event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	switch ev.kind {
	case evOpen:
		s.setStatus(weather.StatusLive)
	case evError:
		s.logger.Warn("feed transport error", "error", ev.err)
		s.setStatus(weather.StatusOffline)
	case evMessage:
		snap, err := Decode(ev.data, s.detailKey)
		if err != nil {
			s.logger.Warn("dropping feed message", "error", err)
			return
		}
		s.latest = snap
		if s.sink != nil {
			s.sink.SetSnapshot(snap)
		}
	}
}

func (s *Subscriber) setStatus(st weather.ConnectionStatus) {
	s.status = st
	if s.sink != nil {
		s.sink.SetStatus(st)
	}
}

type handlerFunc func(event)

func (f handlerFunc) send(ev event) { f(ev) }
func (f handlerFunc) OnOpen() { f(event{kind: evOpen}) }
func (f handlerFunc) OnMessage(data []byte) { f(event{kind: evMessage, data: data}) }
func (f handlerFunc) OnError(err error) { f(event{kind: evError, err: err}) }
