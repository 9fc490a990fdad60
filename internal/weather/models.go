package weather

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ConnectionStatus is the condition of the live feed transport as last reported
// by the transport itself.
type ConnectionStatus string

const (
	StatusConnecting ConnectionStatus = "connecting"
	StatusLive       ConnectionStatus = "live"
	StatusOffline    ConnectionStatus = "offline"
)

// Optional is a reading field that may be missing. The zero value is missing,
// which is not the same thing as a present "0".
type Optional struct {
	value string
	valid bool
}

// Some returns a present field.
func Some(v string) Optional {
	return Optional{value: v, valid: true}
}

// Get returns the raw value and whether the field was present on the wire.
func (o Optional) Get() (string, bool) {
	return o.value, o.valid
}

// Present reports whether the field carries a non-empty value.
func (o Optional) Present() bool {
	return o.valid && o.value != ""
}

func (o Optional) IsZero() bool {
	return !o.valid
}

func (o Optional) String() string {
	if !o.valid {
		return "<none>"
	}
	return o.value
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON accepts a JSON string, a bare JSON number, or null.
func (o *Optional) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*o = Optional{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = Some(s)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	n, ok := v.(json.Number)
	if !ok {
		return fmt.Errorf("reading field: unsupported JSON value %s", b)
	}
	*o = Some(n.String())
	return nil
}

// CityReading is the latest known weather for one city. Temperature and
// humidity are always part of the wire shape (null when unknown); the rest are
// only filled by providers that report them.
type CityReading struct {
	Temperature Optional `json:"temperature"`
	Humidity    Optional `json:"humidity"`
	FeelsLike   Optional `json:"feelsLike,omitzero"`
	Description Optional `json:"description,omitzero"`
	WindSpeed   Optional `json:"windSpeed,omitzero"`
	Pressure    Optional `json:"pressure,omitzero"`
	Visibility  Optional `json:"visibility,omitzero"`
	LastUpdated Optional `json:"lastUpdated,omitzero"`
}

// UpdatedAt parses LastUpdated as unix seconds.
func (r CityReading) UpdatedAt() (time.Time, bool) {
	if !r.LastUpdated.Present() {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(r.LastUpdated.value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// FeedSnapshot maps an exact, case-sensitive city name to its reading. A
// snapshot is always replaced as a whole, never merged.
type FeedSnapshot map[string]CityReading

// Lookup returns the reading for city. A missing city means no data yet.
func (s FeedSnapshot) Lookup(city string) (CityReading, bool) {
	r, ok := s[city]
	return r, ok
}

// SnapshotMessage is the wire envelope pushed on the stream.
type SnapshotMessage struct {
	Cities FeedSnapshot `json:"cities"`
}

// CityList is the registry read-back body.
type CityList struct {
	Cities []string `json:"cities"`
}

// FavoriteList is the favorites read-back body.
type FavoriteList struct {
	Favorites []string `json:"favorites"`
}

// CityRequest is the body of POST /cities and POST /favorites.
type CityRequest struct {
	City string `json:"city" validate:"required"`
}
