package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/i474232898/weather-live-sync/internal/weather"
)

// ErrDecode marks a message that is not a snapshot. Such messages are dropped.
var ErrDecode = errors.New("feed: malformed snapshot")

// Decode parses one stream message. The multi-city shape is
// {"cities": {name: reading}}; with a detail key, a bare reading object is
// also accepted as the reading of that city.
func Decode(data []byte, detailKey string) (weather.FeedSnapshot, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: null message", ErrDecode)
	}

	if raw, ok := fields["cities"]; ok {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, fmt.Errorf("%w: cities is null", ErrDecode)
		}
		var snap weather.FeedSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return snap, nil
	}

	if detailKey == "" {
		return nil, fmt.Errorf("%w: missing cities", ErrDecode)
	}
	_, hasTemp := fields["temperature"]
	_, hasHum := fields["humidity"]
	if !hasTemp && !hasHum {
		return nil, fmt.Errorf("%w: neither a snapshot nor a reading", ErrDecode)
	}

	var r weather.CityReading
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return weather.FeedSnapshot{detailKey: r}, nil
}
