package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// CityLister returns the cities currently tracked.
type CityLister interface {
	Cities(ctx context.Context) ([]string, error)
}

// Fetcher refreshes the readings of the given cities.
type Fetcher interface {
	FetchAll(ctx context.Context, cities []string)
}

// Scheduler periodically fetches weather data for every tracked city.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cities    CityLister
	fetcher   Fetcher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(cities CityLister, fetcher Fetcher, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		cities:    cities,
		fetcher:   fetcher,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// A run still in progress when the next one is due makes that one skip.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	_, err := s.scheduler.Every(interval).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cities, err := s.cities.Cities(ctx)
	if err != nil {
		s.logger.Error("scheduler: list cities failed", "error", err)
		return
	}
	if len(cities) == 0 {
		return
	}

	start := time.Now()
	s.fetcher.FetchAll(ctx, cities)
	s.logger.Debug("scheduler: fetch job done", "cities", len(cities), "took", time.Since(start))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
