package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-live-sync/internal/weather"
)

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, apiKey string) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/weather",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, city string) (weather.CityReading, error) {
	if p.apiKey == "" {
		return weather.CityReading{}, fmt.Errorf("openweather api key is not configured")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("q", city)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.CityReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      *float64 `json:"temp"`
			FeelsLike *float64 `json:"feels_like"`
			Humidity  *float64 `json:"humidity"`
			Pressure  *float64 `json:"pressure"`
		} `json:"main"`
		Visibility *float64 `json:"visibility"`
		Wind       struct {
			Speed *float64 `json:"speed"`
		} `json:"wind"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.CityReading{}, err
	}

	ts := payload.Dt
	if ts == 0 {
		ts = time.Now().Unix()
	}

	r := weather.CityReading{
		Temperature: number(payload.Main.Temp, 0, ""),
		Humidity:    number(payload.Main.Humidity, 0, ""),
		FeelsLike:   number(payload.Main.FeelsLike, 0, ""),
		Pressure:    number(payload.Main.Pressure, 0, "hPa"),
		WindSpeed:   number(payload.Wind.Speed, 1, "m/s"),
		LastUpdated: weather.Some(strconv.FormatInt(ts, 10)),
	}
	if payload.Visibility != nil {
		km := *payload.Visibility / 1000
		r.Visibility = number(&km, 0, "km")
	}
	if len(payload.Weather) > 0 {
		r.Description = optional(payload.Weather[0].Description)
	}
	return r, nil
}

// number formats a reported value; a value the provider left out stays unknown.
func number(v *float64, prec int, unit string) weather.Optional {
	if v == nil {
		return weather.Optional{}
	}
	s := strconv.FormatFloat(*v, 'f', prec, 64)
	if unit != "" {
		s += " " + unit
	}
	return weather.Some(s)
}
