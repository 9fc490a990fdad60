package store

import (
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-live-sync/internal/weather"
)

var (
	// ErrNotFound is returned when no reading is available for a city.
	ErrNotFound = errors.New("no weather data for city")
)

type entry struct {
	reading weather.CityReading
	savedAt time.Time
}

// MemoryStore is a concurrency-safe in-memory store of the latest reading per city.
type MemoryStore struct {
	mu sync.RWMutex

	// key: exact city name
	data map[string]entry

	// readings older than maxAge are reported as missing (0 = unlimited)
	maxAge time.Duration
	now    func() time.Time
}

// NewMemoryStore creates a new MemoryStore. If maxAge is <= 0 readings never expire.
func NewMemoryStore(maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]entry),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Save replaces the reading for a city.
func (s *MemoryStore) Save(city string, reading weather.CityReading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[city] = entry{reading: reading, savedAt: s.now()}
}

// Latest returns the most recent reading for a city.
func (s *MemoryStore) Latest(city string) (weather.CityReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[city]
	if !ok {
		return weather.CityReading{}, ErrNotFound
	}
	if s.maxAge > 0 && s.now().Sub(e.savedAt) > s.maxAge {
		return weather.CityReading{}, ErrNotFound
	}
	return e.reading, nil
}

// Delete drops a city's reading; deleting an unknown city is a no-op.
func (s *MemoryStore) Delete(city string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, city)
}

// Len returns the number of cities with a stored reading.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}
