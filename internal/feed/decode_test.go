package feed

import (
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name      string
		data      string
		detailKey string
		wantErr   bool
		wantKeys  int
	}{
		{name: "multi city", data: `{"cities":{"Paris":{"temperature":"18","humidity":"60"},"Oslo":{"temperature":null,"humidity":null}}}`, wantKeys: 2},
		{name: "empty snapshot", data: `{"cities":{}}`, wantKeys: 0},
		{name: "numbers", data: `{"cities":{"Paris":{"temperature":18.5,"humidity":60}}}`, wantKeys: 1},
		{name: "detail object", data: `{"temperature":"18","humidity":"60"}`, detailKey: "Paris", wantKeys: 1},
		{name: "detail object without key", data: `{"temperature":"18","humidity":"60"}`, wantErr: true},
		{name: "not json", data: `data`, wantErr: true},
		{name: "null", data: `null`, wantErr: true},
		{name: "array", data: `[1,2]`, wantErr: true},
		{name: "null cities", data: `{"cities":null}`, wantErr: true},
		{name: "cities not an object", data: `{"cities":["Paris"]}`, wantErr: true},
		{name: "unrelated object", data: `{"client_id":"x"}`, detailKey: "Paris", wantErr: true},
		{name: "bad field type", data: `{"cities":{"Paris":{"temperature":true}}}`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap, err := Decode([]byte(tc.data), tc.detailKey)
			if tc.wantErr {
				assert.Equal(t, errors.Is(err, ErrDecode), true)
				return
			}
			assert.Equal(t, err, nil)
			assert.Equal(t, len(snap), tc.wantKeys)
		})
	}
}

func TestDecodeKeepsNullDistinctFromZero(t *testing.T) {
	snap, err := Decode([]byte(`{"cities":{"Paris":{"temperature":"0","humidity":null}}}`), "")
	assert.Equal(t, err, nil)

	paris, _ := snap.Lookup("Paris")
	temp, ok := paris.Temperature.Get()
	assert.Equal(t, ok, true)
	assert.Equal(t, temp, "0")
	assert.Equal(t, paris.Humidity.Present(), false)
}
