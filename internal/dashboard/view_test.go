package dashboard

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/i474232898/weather-live-sync/internal/feed"
	"github.com/i474232898/weather-live-sync/internal/reconcile"
	"github.com/i474232898/weather-live-sync/internal/weather"
)

type memBackend struct {
	mu        sync.Mutex
	cities    []string
	favorites []string
}

func (b *memBackend) ListCities(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.cities...), nil
}

func (b *memBackend) ListFavorites(context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.favorites...), nil
}

func (b *memBackend) AddCity(_ context.Context, city string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if city == "Nowhere123" {
		return reconcile.ErrCityNotFound
	}
	if slices.Contains(b.cities, city) {
		return reconcile.ErrAlreadyTracked
	}
	b.cities = append(b.cities, city)
	return nil
}

func (b *memBackend) RemoveCity(_ context.Context, city string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.Index(b.cities, city)
	if i < 0 {
		return reconcile.ErrNotTracked
	}
	b.cities = slices.Delete(b.cities, i, i+1)
	return nil
}

func (b *memBackend) AddFavorite(_ context.Context, city string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.favorites = append(b.favorites, city)
	return nil
}

func (b *memBackend) RemoveFavorite(_ context.Context, city string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.Index(b.favorites, city)
	if i < 0 {
		return reconcile.ErrNotTracked
	}
	b.favorites = slices.Delete(b.favorites, i, i+1)
	return nil
}

// pushTransport exposes the handler of each activation to the test.
type pushTransport struct {
	handlers chan feed.Handler
}

func (p *pushTransport) Run(ctx context.Context, h feed.Handler) error {
	p.handlers <- h
	<-ctx.Done()
	return nil
}

func newDeps(b *memBackend) (Deps, *pushTransport) {
	tr := &pushTransport{handlers: make(chan feed.Handler, 4)}
	return Deps{
		Backend:      b,
		NewTransport: func() feed.Transport { return tr },
		Location:     time.UTC,
	}, tr
}

func waitUntil(t *testing.T, v *View, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-v.Changes():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not met in time")
		}
	}
}

func TestMountDashboardLoadsRegistry(t *testing.T) {
	b := &memBackend{cities: []string{"Paris", "Oslo"}, favorites: []string{"Oslo"}}
	deps, tr := newDeps(b)

	v, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	defer v.Unmount()

	assert.Equal(t, v.State().Status, weather.StatusConnecting)
	waitUntil(t, v, func() bool { return v.State().Loaded })

	h := <-tr.handlers
	h.OnOpen()
	h.OnMessage([]byte(`{"cities":{"Paris":{"temperature":"18","humidity":"60"},"Rome":{"temperature":"25","humidity":"40"}}}`))
	waitUntil(t, v, func() bool { return v.State().Received && v.State().Status == weather.StatusLive })

	var buf bytes.Buffer
	assert.Equal(t, v.Render(&buf), nil)
	out := buf.String()
	assert.Equal(t, strings.Contains(out, "18°C"), true)
	assert.Equal(t, strings.Contains(out, "Rome"), false)
}

func TestViewMutations(t *testing.T) {
	b := &memBackend{}
	deps, _ := newDeps(b)

	v, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	defer v.Unmount()
	waitUntil(t, v, func() bool { return v.State().Loaded })

	assert.Equal(t, v.Add("Paris").Kind, reconcile.OK)
	assert.Equal(t, v.Add("Nowhere123").Kind, reconcile.NotFound)
	assert.Equal(t, v.ToggleFavorite("Paris").Kind, reconcile.OK)
	assert.Equal(t, v.State().Favorites, []string{"Paris"})
	assert.Equal(t, v.Remove("Paris").Kind, reconcile.OK)
	assert.Equal(t, v.State().Cities, []string{})
}

func TestUnmountStopsEverything(t *testing.T) {
	b := &memBackend{cities: []string{"Paris"}}
	deps, tr := newDeps(b)

	v, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	h := <-tr.handlers
	waitUntil(t, v, func() bool { return v.State().Loaded })

	v.Unmount()
	v.Unmount()

	h.OnMessage([]byte(`{"cities":{"Paris":{"temperature":"18","humidity":"60"}}}`))
	assert.Equal(t, v.State().Received, false)
	assert.Equal(t, v.Add("Oslo").Kind, reconcile.Stale)

	_, open := <-v.Changes()
	assert.Equal(t, open, false)
}

func TestRemountOpensFreshConnection(t *testing.T) {
	b := &memBackend{}
	deps, tr := newDeps(b)

	first, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	<-tr.handlers
	first.Unmount()

	second, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	defer second.Unmount()

	select {
	case <-tr.handlers:
	case <-time.After(2 * time.Second):
		t.Fatal("remount did not open a new connection")
	}
	assert.Equal(t, second.State().Status, weather.StatusConnecting)
}

func TestMountDetail(t *testing.T) {
	deps, tr := newDeps(&memBackend{})

	_, err := MountDetail(context.Background(), deps, "  ")
	assert.Equal(t, err != nil, true)

	v, err := MountDetail(context.Background(), deps, "Paris")
	assert.Equal(t, err, nil)
	defer v.Unmount()
	assert.Equal(t, v.City(), "Paris")

	h := <-tr.handlers
	h.OnMessage([]byte(`{"cities":{"Oslo":{"temperature":"2","humidity":"80"}}}`))
	waitUntil(t, v, func() bool { return v.State().Received })

	var buf bytes.Buffer
	_ = v.Render(&buf)
	assert.Equal(t, strings.Contains(buf.String(), "Loading weather data..."), true)

	h.OnMessage([]byte(`{"cities":{"Paris":{"temperature":"18","humidity":"60"}}}`))
	waitUntil(t, v, func() bool {
		_, ok := v.State().Snapshot.Lookup("Paris")
		return ok
	})

	buf.Reset()
	_ = v.Render(&buf)
	assert.Equal(t, strings.Contains(buf.String(), "18°C"), true)
	assert.Equal(t, strings.Contains(buf.String(), "N/A"), true)
}
