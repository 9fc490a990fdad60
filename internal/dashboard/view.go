package dashboard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-live-sync/internal/common"
	"github.com/i474232898/weather-live-sync/internal/feed"
	"github.com/i474232898/weather-live-sync/internal/reconcile"
	"github.com/i474232898/weather-live-sync/internal/state"
)

// Deps are the collaborators shared by every view.
type Deps struct {
	Backend reconcile.Backend
	// NewTransport returns a fresh streaming connection for each activation.
	NewTransport func() feed.Transport
	Logger       *slog.Logger
	// Location formats "last updated" times; nil means local time.
	Location *time.Location
}

// View is one mounted screen: its own state bundle, one feed subscriber and
// a reconciler bound to the view's lifetime.
type View struct {
	id     string
	city   string // set for detail views
	ctx    context.Context
	cancel context.CancelFunc

	state *state.Store
	sub   *feed.Subscriber
	rec   *reconcile.Reconciler
	loc   *time.Location
	log   *slog.Logger

	wg   sync.WaitGroup
	once sync.Once
}

// MountDashboard activates the multi-city view and loads the registry and
// favorites once.
func MountDashboard(ctx context.Context, d Deps) (*View, error) {
	v, err := mount(ctx, d, "")
	if err != nil {
		return nil, err
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		_ = v.rec.Refresh(v.ctx)
	}()
	return v, nil
}

// MountDetail activates the single-city view of city. It only needs the feed.
func MountDetail(ctx context.Context, d Deps, city string) (*View, error) {
	city = common.CityName(city)
	if city == "" {
		return nil, errors.New("dashboard: detail view needs a city")
	}
	return mount(ctx, d, city)
}

func mount(ctx context.Context, d Deps, city string) (*View, error) {
	if d.Backend == nil || d.NewTransport == nil {
		return nil, errors.New("dashboard: backend and transport are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	logger = logger.With("view", id)
	if city != "" {
		logger = logger.With("city", city)
	}

	st := state.New()
	opts := []feed.Option{feed.WithLogger(logger)}
	if city != "" {
		opts = append(opts, feed.WithDetailKey(city))
	}

	v := &View{
		id:    id,
		city:  city,
		state: st,
		sub:   feed.NewSubscriber(d.NewTransport(), st, opts...),
		rec:   reconcile.New(d.Backend, st, logger),
		loc:   d.Location,
		log:   logger,
	}
	v.ctx, v.cancel = context.WithCancel(ctx)

	if err := v.sub.Start(v.ctx); err != nil {
		v.cancel()
		st.Deactivate()
		return nil, err
	}
	logger.Debug("view mounted")
	return v, nil
}

// Unmount cancels in-flight requests, closes the feed and makes every later
// state write a no-op. It is idempotent.
func (v *View) Unmount() {
	v.once.Do(func() {
		v.state.Deactivate()
		v.cancel()
		v.sub.Close()
		v.wg.Wait()
		v.log.Debug("view unmounted")
	})
}

// Changes is signalled whenever the rendered state changed. It is closed on Unmount.
func (v *View) Changes() <-chan struct{} {
	return v.state.Changes()
}

// State returns the current rendered state.
func (v *View) State() state.View {
	return v.state.Read()
}

// City is the detail key, empty for the dashboard.
func (v *View) City() string {
	return v.city
}

func (v *View) Add(name string) reconcile.Outcome {
	return v.rec.AddCity(v.ctx, name)
}

func (v *View) Remove(name string) reconcile.Outcome {
	return v.rec.RemoveCity(v.ctx, name)
}

func (v *View) ToggleFavorite(name string) reconcile.Outcome {
	return v.rec.ToggleFavorite(v.ctx, name)
}

// Refresh reloads the registry and the favorites.
func (v *View) Refresh() error {
	return v.rec.Refresh(v.ctx)
}

// Render writes the view's current state.
func (v *View) Render(w io.Writer) error {
	s := v.state.Read()
	if v.city != "" {
		return RenderDetail(w, DetailOf(v.city, s, v.loc))
	}
	return RenderDashboard(w, s)
}
