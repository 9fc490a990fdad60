package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/i474232898/weather-live-sync/internal/state"
)

// fakeBackend mimics the reference backend: a known set of resolvable cities,
// an ordered registry and a favorite subset.
type fakeBackend struct {
	mu        sync.Mutex
	known     map[string]bool
	cities    []string
	favorites []string

	failMutations error
	failLists     error
	gate          chan struct{} // when set, mutations wait for it

	mutations atomic.Int32
	lists     atomic.Int32
}

func newFakeBackend(known ...string) *fakeBackend {
	b := &fakeBackend{known: map[string]bool{}}
	for _, k := range known {
		b.known[k] = true
	}
	return b
}

func (b *fakeBackend) enter(ctx context.Context) error {
	b.mutations.Add(1)
	if b.gate != nil {
		select {
		case <-b.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.failMutations
}

func (b *fakeBackend) ListCities(context.Context) ([]string, error) {
	b.lists.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLists != nil {
		return nil, b.failLists
	}
	return append([]string{}, b.cities...), nil
}

func (b *fakeBackend) ListFavorites(context.Context) ([]string, error) {
	b.lists.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLists != nil {
		return nil, b.failLists
	}
	return append([]string{}, b.favorites...), nil
}

func (b *fakeBackend) AddCity(ctx context.Context, city string) error {
	if err := b.enter(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.known[city] {
		return ErrCityNotFound
	}
	if slices.Contains(b.cities, city) {
		return ErrAlreadyTracked
	}
	b.cities = append(b.cities, city)
	return nil
}

func (b *fakeBackend) RemoveCity(ctx context.Context, city string) error {
	if err := b.enter(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.Index(b.cities, city)
	if i < 0 {
		return ErrNotTracked
	}
	b.cities = slices.Delete(b.cities, i, i+1)
	if j := slices.Index(b.favorites, city); j >= 0 {
		b.favorites = slices.Delete(b.favorites, j, j+1)
	}
	return nil
}

func (b *fakeBackend) AddFavorite(ctx context.Context, city string) error {
	if err := b.enter(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Contains(b.cities, city) {
		return ErrNotTracked
	}
	if slices.Contains(b.favorites, city) {
		return ErrAlreadyTracked
	}
	b.favorites = append(b.favorites, city)
	return nil
}

func (b *fakeBackend) RemoveFavorite(ctx context.Context, city string) error {
	if err := b.enter(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	j := slices.Index(b.favorites, city)
	if j < 0 {
		return ErrNotTracked
	}
	b.favorites = slices.Delete(b.favorites, j, j+1)
	return nil
}

func setup(known ...string) (*fakeBackend, *state.Store, *Reconciler) {
	b := newFakeBackend(known...)
	st := state.New()
	return b, st, New(b, st, nil)
}

func TestAddCityTriggersBothReadBacks(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()

	out := r.AddCity(ctx, "  Paris ")

	assert.Equal(t, out.Kind, OK)
	assert.Equal(t, out.City, "Paris")
	assert.Equal(t, out.ClearInput(), true)
	assert.Equal(t, b.lists.Load(), int32(2))

	v := st.Read()
	assert.Equal(t, v.Cities, []string{"Paris"})
	assert.Equal(t, v.Favorites, []string{})
	assert.Equal(t, len(v.Pending), 0)
}

func TestAddCityNotFound(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")
	before := b.lists.Load()

	out := r.AddCity(ctx, "Nowhere123")

	assert.Equal(t, out.Kind, NotFound)
	assert.Equal(t, out.IsError(), true)
	assert.Equal(t, out.ClearInput(), false)
	assert.Equal(t, out.Message(), `City "Nowhere123" not found.`)
	assert.Equal(t, b.lists.Load(), before)
	assert.Equal(t, st.Read().Cities, []string{"Paris"})
}

func TestAddCityInvalid(t *testing.T) {
	b, _, r := setup()

	out := r.AddCity(context.Background(), "   ")

	assert.Equal(t, out.Kind, Invalid)
	assert.Equal(t, b.mutations.Load(), int32(0))
}

func TestAddCityGenericFailureKeepsState(t *testing.T) {
	b, st, r := setup("Paris", "Oslo")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")

	b.failMutations = errors.New("connection refused")
	out := r.AddCity(ctx, "Oslo")

	assert.Equal(t, out.Kind, Failed)
	assert.Equal(t, out.Message(), "Could not add Oslo. Please try again.")
	assert.Equal(t, st.Read().Cities, []string{"Paris"})
	assert.Equal(t, b.mutations.Load(), int32(2))
}

func TestConcurrentDoubleAdd(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	for i := range outcomes {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i] = r.AddCity(ctx, "Paris")
		}()
	}
	wg.Wait()

	kinds := []Kind{outcomes[0].Kind, outcomes[1].Kind}
	slices.Sort(kinds)
	assert.Equal(t, kinds, []Kind{OK, Duplicate})
	assert.Equal(t, b.mutations.Load(), int32(2))
	assert.Equal(t, st.Read().Cities, []string{"Paris"})
	assert.Equal(t, len(st.Read().Pending), 0)
}

func TestRemoveCityNotInCacheIsNoOp(t *testing.T) {
	b, st, r := setup("Paris")

	out := r.RemoveCity(context.Background(), "Paris")

	assert.Equal(t, out.Kind, NoOp)
	assert.Equal(t, out.IsError(), false)
	assert.Equal(t, b.mutations.Load(), int32(0))
	assert.Equal(t, st.Read().Cities, []string{})
}

func TestRemoveCity(t *testing.T) {
	_, st, r := setup("Paris", "Oslo")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")
	r.AddCity(ctx, "Oslo")
	r.ToggleFavorite(ctx, "Paris")

	out := r.RemoveCity(ctx, "Paris")

	assert.Equal(t, out.Kind, OK)
	v := st.Read()
	assert.Equal(t, v.Cities, []string{"Oslo"})
	assert.Equal(t, v.Favorites, []string{})
}

func TestRemoveCityRacedByAnotherClient(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")

	// someone else removed it; our cache still has it
	b.mu.Lock()
	b.cities = nil
	b.mu.Unlock()

	out := r.RemoveCity(ctx, "Paris")

	assert.Equal(t, out.Kind, NoOp)
	assert.Equal(t, st.Read().Cities, []string{})
}

func TestRemoveCityFailureKeepsRegistry(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")

	b.failMutations = errors.New("503")
	out := r.RemoveCity(ctx, "Paris")

	assert.Equal(t, out.Kind, Failed)
	assert.Equal(t, b.mutations.Load(), int32(2))
	assert.Equal(t, st.Read().Cities, []string{"Paris"})
}

func TestToggleFavoriteTwiceRestoresMembership(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")

	first := r.ToggleFavorite(ctx, "Paris")
	assert.Equal(t, first.Op, OpFavorite)
	assert.Equal(t, first.Kind, OK)
	assert.Equal(t, st.Read().IsFavorite("Paris"), true)

	second := r.ToggleFavorite(ctx, "Paris")
	assert.Equal(t, second.Op, OpUnfavorite)
	assert.Equal(t, second.Kind, OK)
	assert.Equal(t, st.Read().IsFavorite("Paris"), false)

	// add, two read-backs, favorite, two, unfavorite, two
	assert.Equal(t, b.lists.Load(), int32(6))
}

func TestToggleFavoriteUntracked(t *testing.T) {
	_, st, r := setup("Paris")

	out := r.ToggleFavorite(context.Background(), "Paris")

	assert.Equal(t, out.Kind, NotFound)
	assert.Equal(t, out.Message(), "Paris is not tracked.")
	assert.Equal(t, st.Read().Favorites == nil, true)
}

func TestToggleFavoriteFailureKeepsFavorites(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")

	b.failMutations = errors.New("boom")
	out := r.ToggleFavorite(ctx, "Paris")

	assert.Equal(t, out.Kind, Failed)
	assert.Equal(t, st.Read().Favorites, []string{})
}

func TestUnmountWhileToggleInFlight(t *testing.T) {
	b, st, r := setup("Paris")
	ctx, cancel := context.WithCancel(context.Background())
	r.AddCity(ctx, "Paris")
	listsBefore := b.lists.Load()

	b.gate = make(chan struct{})
	done := make(chan Outcome, 1)
	go func() { done <- r.ToggleFavorite(ctx, "Paris") }()

	// wait until the request reached the backend, then unmount
	for b.mutations.Load() < 2 {
		runtimeYield()
	}
	st.Deactivate()
	cancel()
	close(b.gate)

	out := <-done
	assert.Equal(t, out.Kind, Stale)
	assert.Equal(t, out.Message(), "")
	assert.Equal(t, out.IsError(), false)
	assert.Equal(t, b.lists.Load(), listsBefore)
	assert.Equal(t, st.Read().Favorites, []string{})
}

func TestLateSuccessAfterDeactivateIsSuppressed(t *testing.T) {
	b, st, r := setup("Paris")
	b.gate = make(chan struct{})

	done := make(chan Outcome, 1)
	go func() { done <- r.AddCity(context.Background(), "Paris") }()

	for b.mutations.Load() < 1 {
		runtimeYield()
	}
	st.Deactivate()
	close(b.gate)

	out := <-done
	assert.Equal(t, out.Kind, Stale)
	assert.Equal(t, b.lists.Load(), int32(0))
	assert.Equal(t, st.Read().Cities == nil, true)
}

func TestRefreshFailureKeepsCache(t *testing.T) {
	b, st, r := setup("Paris")
	ctx := context.Background()
	r.AddCity(ctx, "Paris")

	b.failLists = fmt.Errorf("backend down")
	err := r.Refresh(ctx)

	assert.Equal(t, err != nil, true)
	assert.Equal(t, st.Read().Cities, []string{"Paris"})
	assert.Equal(t, st.Read().Favorites, []string{})
}

func TestReadBackFailureDoesNotFailMutation(t *testing.T) {
	b, _, r := setup("Paris")
	b.failLists = errors.New("backend down")

	out := r.AddCity(context.Background(), "Paris")

	assert.Equal(t, out.Kind, OK)
}
