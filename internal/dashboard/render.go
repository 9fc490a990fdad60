package dashboard

import (
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/i474232898/weather-live-sync/internal/state"
	"github.com/i474232898/weather-live-sync/internal/weather"
)

const (
	placeholderValue       = "--"
	placeholderDescription = "Unknown"
	placeholderDetail      = "N/A"

	loadingText = "Loading weather data..."
)

// FormatOr renders a present field with its unit, or the placeholder.
// An empty value counts as missing; "0" does not.
func FormatOr(o weather.Optional, unit, placeholder string) string {
	if !o.Present() {
		return placeholder
	}
	v, _ := o.Get()
	return v + unit
}

func FormatTemperature(o weather.Optional) string {
	return FormatOr(o, "°C", placeholderValue)
}

func FormatHumidity(o weather.Optional) string {
	return FormatOr(o, "%", placeholderValue)
}

// StatusLabel is the connection indicator text.
func StatusLabel(s weather.ConnectionStatus) string {
	switch s {
	case weather.StatusLive:
		return "Live"
	case weather.StatusOffline:
		return "Offline"
	default:
		return "Connecting"
	}
}

// Row is one dashboard line.
type Row struct {
	City        string
	Favorite    bool
	Temperature string
	Humidity    string
	Pending     state.Op
}

// Rows lists the registry in registry order. Snapshot entries for cities not
// in the registry are ignored, as are favorites not in the registry.
func Rows(v state.View) []Row {
	rows := make([]Row, 0, len(v.Cities))
	for _, city := range v.Cities {
		r, _ := v.Snapshot.Lookup(city)
		rows = append(rows, Row{
			City:        city,
			Favorite:    v.IsFavorite(city),
			Temperature: FormatTemperature(r.Temperature),
			Humidity:    FormatHumidity(r.Humidity),
			Pending:     v.Pending[city],
		})
	}
	return rows
}

// RenderDashboard writes the multi-city view.
func RenderDashboard(w io.Writer, v state.View) error {
	fmt.Fprintf(w, "Weather Dashboard [%s]\n\n", StatusLabel(v.Status))

	if !v.Loaded {
		fmt.Fprintln(w, "Loading cities...")
		return nil
	}

	rows := Rows(v)
	if len(rows) == 0 {
		fmt.Fprintln(w, "No cities tracked yet. Add one with: add <city>")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, " \tCITY\tTEMP\tHUMIDITY\t")
		for _, r := range rows {
			fav := " "
			if r.Favorite {
				fav = "*"
			}
			pending := ""
			if r.Pending != "" {
				pending = string(r.Pending) + "..."
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", fav, r.City, r.Temperature, r.Humidity, pending)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	// adds in flight are not in the registry yet
	var adding []string
	for city, op := range v.Pending {
		if op == state.OpAdd && !v.IsTracked(city) {
			adding = append(adding, city)
		}
	}
	slices.Sort(adding)
	for _, city := range adding {
		fmt.Fprintf(w, "Adding %s...\n", city)
	}
	return nil
}

// Detail is the single-city view model.
type Detail struct {
	City        string
	Status      string
	Loading     bool
	Temperature string
	FeelsLike   string // empty when not reported
	Humidity    string
	Description string
	WindSpeed   string
	Pressure    string
	Visibility  string
	LastUpdated string // empty when not reported
}

// DetailOf builds the detail view of city. A city missing from the snapshot
// is still loading, not an error.
func DetailOf(city string, v state.View, loc *time.Location) Detail {
	d := Detail{City: city, Status: StatusLabel(v.Status)}

	r, ok := v.Snapshot.Lookup(city)
	if !ok {
		d.Loading = true
		return d
	}

	d.Temperature = FormatTemperature(r.Temperature)
	d.Humidity = FormatHumidity(r.Humidity)
	if r.FeelsLike.Present() {
		d.FeelsLike = FormatTemperature(r.FeelsLike)
	}
	d.Description = FormatOr(r.Description, "", placeholderDescription)
	d.WindSpeed = FormatOr(r.WindSpeed, "", placeholderDetail)
	d.Pressure = FormatOr(r.Pressure, "", placeholderDetail)
	d.Visibility = FormatOr(r.Visibility, "", placeholderDetail)
	if ts, ok := r.UpdatedAt(); ok {
		if loc == nil {
			loc = time.Local
		}
		d.LastUpdated = ts.In(loc).Format("2006-01-02 15:04:05")
	}
	return d
}

// RenderDetail writes the single-city view.
func RenderDetail(w io.Writer, d Detail) error {
	fmt.Fprintf(w, "%s [%s]\n\n", d.City, d.Status)

	if d.Loading {
		_, err := fmt.Fprintln(w, loadingText)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Temperature\t%s\n", d.Temperature)
	if d.FeelsLike != "" {
		fmt.Fprintf(tw, "\tFeels like %s\n", d.FeelsLike)
	}
	fmt.Fprintf(tw, "Humidity\t%s\n", d.Humidity)
	fmt.Fprintf(tw, "Conditions\t%s\n", d.Description)
	fmt.Fprintf(tw, "Wind\t%s\n", d.WindSpeed)
	fmt.Fprintf(tw, "Pressure\t%s\n", d.Pressure)
	fmt.Fprintf(tw, "Visibility\t%s\n", d.Visibility)
	if d.LastUpdated != "" {
		fmt.Fprintf(tw, "Last updated\t%s\n", d.LastUpdated)
	}
	return tw.Flush()
}
