package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-live-sync/internal/common"
	"github.com/i474232898/weather-live-sync/internal/weather"
)

// WttrProvider implements the weather.Provider interface for wttr.in.
type WttrProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewWttrProvider(client *http.Client) *WttrProvider {
	return &WttrProvider{
		name:    "wttr",
		baseURL: "https://wttr.in",
		httpCfg: defaultHTTPConfig(client),
		circuit: newBreaker("wttr"),
		now:     time.Now,
	}
}

func (p *WttrProvider) Name() string {
	return p.name
}

func (p *WttrProvider) Fetch(ctx context.Context, city string) (weather.CityReading, error) {
	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/%s?format=j1", p.baseURL, url.PathEscape(city))
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.CityReading{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return weather.CityReading{}, err
	}

	var payload struct {
		CurrentCondition []struct {
			TempC         string `json:"temp_C"`
			FeelsLikeC    string `json:"FeelsLikeC"`
			Humidity      string `json:"humidity"`
			Pressure      string `json:"pressure"`
			Visibility    string `json:"visibility"`
			WindspeedKmph string `json:"windspeedKmph"`
			WeatherDesc   []struct {
				Value string `json:"value"`
			} `json:"weatherDesc"`
		} `json:"current_condition"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		// wttr.in answers some unresolvable names with a plain-text page.
		if common.ContainsAnyFold(string(body), "unknown location") {
			return weather.CityReading{}, weather.ErrUnknownCity
		}
		return weather.CityReading{}, err
	}
	if len(payload.CurrentCondition) == 0 {
		return weather.CityReading{}, fmt.Errorf("wttr: no current condition for %q", city)
	}

	cur := payload.CurrentCondition[0]
	r := weather.CityReading{
		Temperature: optional(cur.TempC),
		Humidity:    optional(cur.Humidity),
		FeelsLike:   optional(cur.FeelsLikeC),
		Pressure:    withUnit(cur.Pressure, "hPa"),
		Visibility:  withUnit(cur.Visibility, "km"),
		WindSpeed:   withUnit(cur.WindspeedKmph, "km/h"),
		LastUpdated: weather.Some(strconv.FormatInt(p.now().Unix(), 10)),
	}
	if len(cur.WeatherDesc) > 0 {
		r.Description = optional(cur.WeatherDesc[0].Value)
	}
	return r, nil
}

// optional maps an empty provider string to an unknown field.
func optional(v string) weather.Optional {
	if v == "" {
		return weather.Optional{}
	}
	return weather.Some(v)
}

func withUnit(v, unit string) weather.Optional {
	if v == "" {
		return weather.Optional{}
	}
	return weather.Some(v + " " + unit)
}
