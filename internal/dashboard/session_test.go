package dashboard

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/i474232898/weather-live-sync/internal/reconcile"
	"github.com/i474232898/weather-live-sync/internal/state"
)

// gatedBackend holds every AddCity until the test releases it.
type gatedBackend struct {
	*memBackend
	gate chan struct{}
}

func (b *gatedBackend) AddCity(ctx context.Context, city string) error {
	select {
	case <-b.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.memBackend.AddCity(ctx, city)
}

func renderSession(t *testing.T, s *Session) string {
	t.Helper()
	var buf bytes.Buffer
	assert.Equal(t, s.Render(&buf), nil)
	return buf.String()
}

func nextResult(t *testing.T, s *Session) reconcile.Outcome {
	t.Helper()
	select {
	case out := <-s.Results():
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no mutation result")
		return reconcile.Outcome{}
	}
}

func TestSessionRendersWhileMutationInFlight(t *testing.T) {
	b := &gatedBackend{memBackend: &memBackend{}, gate: make(chan struct{})}
	deps, tr := newDeps(b.memBackend)
	deps.Backend = b

	v, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	defer v.Unmount()
	h := <-tr.handlers
	waitUntil(t, v, func() bool { return v.State().Loaded })

	s := NewSession(v)
	assert.Equal(t, s.Exec("add Paris"), false)

	waitUntil(t, v, func() bool { return v.State().Pending["Paris"] == state.OpAdd })
	assert.Equal(t, strings.Contains(renderSession(t, s), "Adding Paris..."), true)

	// the stream keeps flowing while the add is blocked
	h.OnMessage([]byte(`{"cities":{"Paris":{"temperature":"18","humidity":"60"}}}`))
	waitUntil(t, v, func() bool { return v.State().Received })

	close(b.gate)
	out := nextResult(t, s)
	s.Apply(out)

	assert.Equal(t, out.Kind, reconcile.OK)
	assert.Equal(t, s.Notice(), "Added Paris.")
	assert.Equal(t, v.State().Cities, []string{"Paris"})
	assert.Equal(t, strings.Contains(renderSession(t, s), "18°C"), true)
}

func TestSessionKeepsRejectedAdd(t *testing.T) {
	deps, _ := newDeps(&memBackend{})

	v, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	defer v.Unmount()
	waitUntil(t, v, func() bool { return v.State().Loaded })

	s := NewSession(v)
	s.Exec("add Nowhere123")
	s.Apply(nextResult(t, s))

	assert.Equal(t, s.Draft(), "Nowhere123")
	assert.Equal(t, s.Notice(), `City "Nowhere123" not found.`)
	assert.Equal(t, strings.Contains(renderSession(t, s), "[enter: add Nowhere123]"), true)

	// an empty line retries the kept name
	s.Exec("")
	out := nextResult(t, s)
	assert.Equal(t, out.City, "Nowhere123")
	s.Apply(out)
	assert.Equal(t, s.Draft(), "Nowhere123")

	s.Exec("add Oslo")
	s.Apply(nextResult(t, s))
	assert.Equal(t, s.Draft(), "")
	assert.Equal(t, s.Notice(), "Added Oslo.")
}

func TestSessionCommands(t *testing.T) {
	deps, _ := newDeps(&memBackend{cities: []string{"Paris"}})

	v, err := MountDashboard(context.Background(), deps)
	assert.Equal(t, err, nil)
	defer v.Unmount()
	waitUntil(t, v, func() bool { return v.State().Loaded })

	s := NewSession(v)
	assert.Equal(t, s.Exec("dance"), false)
	assert.Equal(t, strings.HasPrefix(s.Notice(), "Unknown command"), true)

	s.Exec("")
	assert.Equal(t, s.Notice(), "")

	s.Exec("fav Paris")
	s.Apply(nextResult(t, s))
	assert.Equal(t, v.State().Favorites, []string{"Paris"})

	s.Exec("rm Paris")
	s.Apply(nextResult(t, s))
	assert.Equal(t, v.State().Cities, []string{})

	assert.Equal(t, s.Exec("quit"), true)
	assert.Equal(t, s.Exec("  Q "), true)
}
