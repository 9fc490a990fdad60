package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Service orchestrates fetching from providers and keeping the latest reading
// per tracked city.
type Service struct {
	store     Store
	providers []Provider
	logger    *slog.Logger
}

// NewService creates a new Service. Providers are tried in order.
func NewService(store Store, providers []Provider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		providers: providers,
		logger:    logger,
	}
}

// Resolve asks the providers for a first reading of city. It returns
// ErrUnknownCity only when no provider succeeded and at least one of them
// positively rejected the name; any other failure is returned as is.
func (s *Service) Resolve(ctx context.Context, city string) (CityReading, error) {
	if len(s.providers) == 0 {
		return CityReading{}, fmt.Errorf("no weather providers configured")
	}

	var errs []error
	for _, p := range s.providers {
		r, err := p.Fetch(ctx, city)
		if err == nil {
			return r, nil
		}
		s.logger.Debug("provider resolve failed", "provider", p.Name(), "city", city, "error", err)
		errs = append(errs, err)
	}

	for _, err := range errs {
		if errors.Is(err, ErrUnknownCity) {
			return CityReading{}, fmt.Errorf("%w: %q", ErrUnknownCity, city)
		}
	}
	return CityReading{}, errors.Join(errs...)
}

// FetchAndStore fetches city from the first provider that answers. When every
// provider fails the city is stored with an empty reading so that clients
// render placeholders instead of stale values.
func (s *Service) FetchAndStore(ctx context.Context, city string) error {
	r, err := s.Resolve(ctx, city)
	if err != nil {
		s.logger.Warn("fetch failed; clearing reading", "city", city, "error", err)
		s.store.Save(city, CityReading{})
		return err
	}
	s.store.Save(city, r)
	return nil
}

// FetchAll refreshes every city concurrently. Partial failure is expected and
// only logged.
func (s *Service) FetchAll(ctx context.Context, cities []string) {
	var wg sync.WaitGroup
	for _, city := range cities {
		city := city
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.FetchAndStore(ctx, city)
		}()
	}
	wg.Wait()
}

// Save records a reading obtained outside the fetch loop (e.g. on registration).
func (s *Service) Save(city string, r CityReading) {
	s.store.Save(city, r)
}

// Forget drops the reading of a deregistered city.
func (s *Service) Forget(city string) {
	s.store.Delete(city)
}

// Snapshot builds the feed snapshot for the given cities. Cities that have no
// reading yet are present with all fields unknown.
func (s *Service) Snapshot(cities []string) FeedSnapshot {
	snap := make(FeedSnapshot, len(cities))
	for _, city := range cities {
		r, err := s.store.Latest(city)
		if err != nil {
			r = CityReading{}
		}
		snap[city] = r
	}
	return snap
}
