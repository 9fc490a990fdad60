package weather

import (
	"encoding/json"
	"testing"
)

func TestOptionalUnmarshal(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		present bool
	}{
		{"string", `"18"`, "18", true},
		{"zero string", `"0"`, "0", true},
		{"number", `18.5`, "18.5", true},
		{"null", `null`, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var o Optional
			if err := json.Unmarshal([]byte(tc.in), &o); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, ok := o.Get()
			if ok != tc.present || got != tc.want {
				t.Fatalf("got (%q, %v), want (%q, %v)", got, ok, tc.want, tc.present)
			}
		})
	}
}

func TestOptionalRejectsObjects(t *testing.T) {
	var o Optional
	if err := json.Unmarshal([]byte(`{"v":1}`), &o); err == nil {
		t.Fatal("expected error for object value")
	}
}

func TestCityReadingAbsentVersusNull(t *testing.T) {
	var r CityReading
	if err := json.Unmarshal([]byte(`{"temperature":null,"humidity":"55"}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Temperature.Present() {
		t.Fatalf("temperature should be unknown, got %v", r.Temperature)
	}
	if v, _ := r.Humidity.Get(); v != "55" {
		t.Fatalf("humidity = %q, want 55", v)
	}
	if r.FeelsLike.Present() {
		t.Fatal("feelsLike was absent and must stay unknown")
	}
}

func TestCityReadingMarshalKeepsNulls(t *testing.T) {
	b, err := json.Marshal(CityReading{Humidity: Some("60")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(b) != `{"temperature":null,"humidity":"60"}` {
		t.Fatalf("unexpected wire shape: %s", b)
	}
}

func TestUpdatedAt(t *testing.T) {
	r := CityReading{LastUpdated: Some("1700000000")}
	ts, ok := r.UpdatedAt()
	if !ok || ts.Unix() != 1700000000 {
		t.Fatalf("UpdatedAt = (%v, %v)", ts, ok)
	}

	r.LastUpdated = Some("yesterday")
	if _, ok := r.UpdatedAt(); ok {
		t.Fatal("non-numeric lastUpdated must not parse")
	}
}
