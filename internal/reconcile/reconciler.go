package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-live-sync/internal/common"
	"github.com/i474232898/weather-live-sync/internal/state"
)

// State is the part of the view state the reconciler writes.
type State interface {
	Read() state.View
	Active() bool
	SetCities(cities []string) bool
	SetFavorites(favorites []string) bool
	MarkPending(city string, op state.Op) bool
	ClearPending(city string) bool
}

// Reconciler performs user mutations against the backend and reloads the
// cached registry and favorites after each one that took effect. Local state
// is never updated ahead of the backend.
type Reconciler struct {
	backend Backend
	state   State
	logger  *slog.Logger
}

func New(backend Backend, st State, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{backend: backend, state: st, logger: logger}
}

// AddCity registers name with the backend.
func (r *Reconciler) AddCity(ctx context.Context, name string) Outcome {
	city := common.CityName(name)
	out := Outcome{Op: OpAdd, City: city}
	if city == "" {
		out.Kind = Invalid
		return out
	}

	if r.stale(ctx) {
		return out.with(Stale, nil)
	}
	r.state.MarkPending(city, state.OpAdd)
	defer r.state.ClearPending(city)

	err := r.backend.AddCity(ctx, city)
	if r.stale(ctx) {
		return out.with(Stale, err)
	}

	switch {
	case err == nil:
		r.readBack(ctx)
		return out.with(OK, nil)
	case errors.Is(err, ErrAlreadyTracked):
		r.logger.Info("add city: already tracked", "city", city)
		r.readBack(ctx)
		return out.with(Duplicate, err)
	case errors.Is(err, ErrCityNotFound):
		r.logger.Info("add city: not found", "city", city)
		return out.with(NotFound, err)
	default:
		r.logger.Warn("add city failed", "city", city, "error", err)
		return out.with(Failed, err)
	}
}

// RemoveCity deregisters name. A city missing from the cached registry is
// not sent to the backend; the cache is reloaded instead.
func (r *Reconciler) RemoveCity(ctx context.Context, name string) Outcome {
	city := common.CityName(name)
	out := Outcome{Op: OpRemove, City: city}
	if city == "" {
		out.Kind = Invalid
		return out
	}

	if r.stale(ctx) {
		return out.with(Stale, nil)
	}
	if !r.state.Read().IsTracked(city) {
		r.readBack(ctx)
		if r.stale(ctx) {
			return out.with(Stale, nil)
		}
		return out.with(NoOp, nil)
	}

	r.state.MarkPending(city, state.OpRemove)
	defer r.state.ClearPending(city)

	err := r.backend.RemoveCity(ctx, city)
	if r.stale(ctx) {
		return out.with(Stale, err)
	}

	switch {
	case err == nil:
		r.readBack(ctx)
		return out.with(OK, nil)
	case errors.Is(err, ErrNotTracked):
		r.readBack(ctx)
		return out.with(NoOp, err)
	default:
		r.logger.Warn("remove city failed", "city", city, "error", err)
		return out.with(Failed, err)
	}
}

// ToggleFavorite flips the favorite mark of name. The direction is taken
// from the cached favorite set.
func (r *Reconciler) ToggleFavorite(ctx context.Context, name string) Outcome {
	city := common.CityName(name)
	if city == "" {
		return Outcome{Op: OpFavorite, City: city, Kind: Invalid}
	}

	if r.stale(ctx) {
		return Outcome{Op: OpFavorite, City: city, Kind: Stale}
	}
	if r.state.Read().IsFavorite(city) {
		return r.unfavorite(ctx, city)
	}
	return r.favorite(ctx, city)
}

func (r *Reconciler) favorite(ctx context.Context, city string) Outcome {
	out := Outcome{Op: OpFavorite, City: city}

	r.state.MarkPending(city, state.OpFavorite)
	defer r.state.ClearPending(city)

	err := r.backend.AddFavorite(ctx, city)
	if r.stale(ctx) {
		return out.with(Stale, err)
	}

	switch {
	case err == nil:
		r.readBack(ctx)
		return out.with(OK, nil)
	case errors.Is(err, ErrAlreadyTracked):
		r.readBack(ctx)
		return out.with(Duplicate, err)
	case errors.Is(err, ErrNotTracked):
		return out.with(NotFound, err)
	default:
		r.logger.Warn("favorite failed", "city", city, "error", err)
		return out.with(Failed, err)
	}
}

func (r *Reconciler) unfavorite(ctx context.Context, city string) Outcome {
	out := Outcome{Op: OpUnfavorite, City: city}

	r.state.MarkPending(city, state.OpFavorite)
	defer r.state.ClearPending(city)

	err := r.backend.RemoveFavorite(ctx, city)
	if r.stale(ctx) {
		return out.with(Stale, err)
	}

	switch {
	case err == nil:
		r.readBack(ctx)
		return out.with(OK, nil)
	case errors.Is(err, ErrNotTracked):
		r.readBack(ctx)
		return out.with(NoOp, err)
	default:
		r.logger.Warn("unfavorite failed", "city", city, "error", err)
		return out.with(Failed, err)
	}
}

// RefreshCities replaces the cached registry. On failure the cache is kept.
func (r *Reconciler) RefreshCities(ctx context.Context) error {
	cities, err := r.backend.ListCities(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("refresh cities failed", "error", err)
		}
		return err
	}
	r.state.SetCities(cities)
	return nil
}

// RefreshFavorites replaces the cached favorite set. On failure the cache is kept.
func (r *Reconciler) RefreshFavorites(ctx context.Context) error {
	favs, err := r.backend.ListFavorites(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("refresh favorites failed", "error", err)
		}
		return err
	}
	r.state.SetFavorites(favs)
	return nil
}

// Refresh runs both read-backs concurrently and waits for both. One failing
// does not cancel the other.
func (r *Reconciler) Refresh(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return r.RefreshCities(ctx) })
	g.Go(func() error { return r.RefreshFavorites(ctx) })
	return g.Wait()
}

func (r *Reconciler) readBack(ctx context.Context) {
	// failures are logged by the refreshes; the mutation itself succeeded
	_ = r.Refresh(ctx)
}

func (r *Reconciler) stale(ctx context.Context) bool {
	return ctx.Err() != nil || !r.state.Active()
}
