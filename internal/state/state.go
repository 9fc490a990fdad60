// Package state holds the rendered state of one mounted view.
//
// The feed subscriber owns the snapshot and the connection status; the
// mutation reconciler owns the city registry, the favorites and the pending
// markers. Every write is applied under one lock so a reader never observes a
// half-written field, and every write after Deactivate is silently dropped.
package state

import (
	"slices"
	"sync"

	"github.com/i474232898/weather-live-sync/internal/weather"
)

// Op names the mutation a pending city is waiting on.
type Op string

const (
	OpAdd      Op = "adding"
	OpRemove   Op = "removing"
	OpFavorite Op = "favoriting"
)

type pendingEntry struct {
	op Op
	n  int
}

// Store is the state bundle of one active view.
type Store struct {
	mu sync.RWMutex

	active bool

	snapshot weather.FeedSnapshot
	seen     bool
	status   weather.ConnectionStatus

	cities    []string
	favorites []string
	loaded    bool

	pending map[string]pendingEntry

	changes chan struct{}
}

// New returns an active, empty store whose status is connecting.
func New() *Store {
	return &Store{
		active:   true,
		snapshot: weather.FeedSnapshot{},
		status:   weather.StatusConnecting,
		pending:  make(map[string]pendingEntry),
		changes:  make(chan struct{}, 1),
	}
}

// View is a consistent copy of the store taken under the lock. Its slices and
// map are never written to again and may be shared.
type View struct {
	Snapshot  weather.FeedSnapshot
	Received  bool // at least one snapshot has been applied
	Status    weather.ConnectionStatus
	Cities    []string
	Favorites []string
	Loaded    bool // the registry has been read back at least once
	Pending   map[string]Op
}

// IsFavorite reports whether city is in the cached favorite set.
func (v View) IsFavorite(city string) bool {
	return slices.Contains(v.Favorites, city)
}

// IsTracked reports whether city is in the cached registry.
func (v View) IsTracked(city string) bool {
	return slices.Contains(v.Cities, city)
}

// Read returns the current state.
func (s *Store) Read() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make(map[string]Op, len(s.pending))
	for city, e := range s.pending {
		pending[city] = e.op
	}
	return View{
		Snapshot:  s.snapshot,
		Received:  s.seen,
		Status:    s.status,
		Cities:    s.cities,
		Favorites: s.favorites,
		Loaded:    s.loaded,
		Pending:   pending,
	}
}

// SetSnapshot replaces the snapshot wholesale. It reports whether the write
// was applied.
func (s *Store) SetSnapshot(snap weather.FeedSnapshot) bool {
	if snap == nil {
		snap = weather.FeedSnapshot{}
	}
	return s.write(func() {
		s.snapshot = snap
		s.seen = true
	})
}

func (s *Store) SetStatus(status weather.ConnectionStatus) bool {
	return s.write(func() { s.status = status })
}

// SetCities replaces the cached registry.
func (s *Store) SetCities(cities []string) bool {
	cities = slices.Clone(cities)
	return s.write(func() {
		s.cities = cities
		s.loaded = true
	})
}

// SetFavorites replaces the cached favorite set.
func (s *Store) SetFavorites(favorites []string) bool {
	favorites = slices.Clone(favorites)
	return s.write(func() { s.favorites = favorites })
}

// MarkPending records an in-flight mutation for city. Marks nest: a city
// stays pending until every mark is cleared.
func (s *Store) MarkPending(city string, op Op) bool {
	return s.write(func() {
		e := s.pending[city]
		s.pending[city] = pendingEntry{op: op, n: e.n + 1}
	})
}

// ClearPending drops one pending mark for city.
func (s *Store) ClearPending(city string) bool {
	return s.write(func() {
		e, ok := s.pending[city]
		if !ok {
			return
		}
		if e.n <= 1 {
			delete(s.pending, city)
			return
		}
		e.n--
		s.pending[city] = e
	})
}

// Deactivate turns every later write into a no-op. It is idempotent.
func (s *Store) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}
	s.active = false
	// a pending signal would be read as a change after deactivation
	select {
	case <-s.changes:
	default:
	}
	close(s.changes)
}

func (s *Store) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.active
}

// Changes is signalled after applied writes. Bursts coalesce into a single
// signal; the channel is closed by Deactivate.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) write(apply func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return false
	}
	apply()

	select {
	case s.changes <- struct{}{}:
	default:
	}
	return true
}
