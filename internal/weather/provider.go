package weather

import (
	"context"
	"errors"
)

// ErrUnknownCity is returned by a provider when the weather source cannot
// resolve the city name.
var ErrUnknownCity = errors.New("unknown city")

// Provider abstracts a weather data source (e.g. wttr.in, OpenWeatherMap).
type Provider interface {
	Name() string
	Fetch(ctx context.Context, city string) (CityReading, error)
}

// Store is the contract the in-memory latest-reading store satisfies.
type Store interface {
	Save(city string, reading CityReading)
	Latest(city string) (CityReading, error)
	Delete(city string)
}
