package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/i474232898/weather-live-sync/internal/config"
	"github.com/i474232898/weather-live-sync/internal/dashboard"
	"github.com/i474232898/weather-live-sync/internal/feed"
	"github.com/i474232898/weather-live-sync/internal/logging"
	"github.com/i474232898/weather-live-sync/internal/reconcile"
)

var version = "dev"

const usage = `Weather dashboard.

Live per-city weather from the weather backend. The backend address and the
feed transport are read from the environment (BACKEND_URL, FEED_TRANSPORT).

Usage:
    weather-dashboard watch
    weather-dashboard detail <city>...
    weather-dashboard cities
    weather-dashboard add <city>...
    weather-dashboard remove <city>...
    weather-dashboard favorite <city>...
    weather-dashboard -h | --help
    weather-dashboard --version

Options:
    -h --help    Show this screen.
    --version    Show version.

While watching, type one command per line:
    add <city>, remove <city>, fav <city>, quit`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		log.Fatalf("parse args: %v", err)
	}

	cfg, err := config.LoadDashboard()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logg := logging.New(cfg.Common, version, "weather-dashboard")
	slog.SetDefault(logg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := dashboard.Deps{
		Backend:      reconcile.NewClient(cfg.BackendURL, &http.Client{Timeout: cfg.HTTPTimeout}, logg),
		NewTransport: transportFactory(cfg, logg),
		Logger:       logg,
	}

	city := strings.Join(stringsOpt(opts, "<city>"), " ")

	var code int
	switch {
	case boolOpt(opts, "watch"):
		code = watch(ctx, deps, "")
	case boolOpt(opts, "detail"):
		code = watch(ctx, deps, city)
	case boolOpt(opts, "cities"):
		code = listCities(ctx, deps, os.Stdout)
	case boolOpt(opts, "add"):
		code = mutate(ctx, deps, os.Stdout, func(v *dashboard.View) reconcile.Outcome { return v.Add(city) })
	case boolOpt(opts, "remove"):
		code = mutate(ctx, deps, os.Stdout, func(v *dashboard.View) reconcile.Outcome { return v.Remove(city) })
	case boolOpt(opts, "favorite"):
		code = mutate(ctx, deps, os.Stdout, func(v *dashboard.View) reconcile.Outcome { return v.ToggleFavorite(city) })
	}
	os.Exit(code)
}

func transportFactory(cfg *config.DashboardConfig, logg *slog.Logger) func() feed.Transport {
	if cfg.FeedTransport == "mqtt" {
		return func() feed.Transport { return feed.NewMQTTTransport(cfg.MQTT, logg) }
	}
	url := cfg.BackendURL + cfg.FeedPath
	return func() feed.Transport {
		// the stream must not share the request timeout
		return feed.NewSSETransport(&http.Client{}, url, logg)
	}
}

// watch re-renders the view on every change and applies stdin commands
// until quit, EOF on stdin, or a signal.
func watch(ctx context.Context, deps dashboard.Deps, city string) int {
	var (
		v   *dashboard.View
		err error
	)
	if city == "" {
		v, err = dashboard.MountDashboard(ctx, deps)
	} else {
		v, err = dashboard.MountDetail(ctx, deps, city)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer v.Unmount()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	session := dashboard.NewSession(v)
	tty := term.IsTerminal(int(os.Stdout.Fd()))
	for {
		render(os.Stdout, session, tty)

		select {
		case <-ctx.Done():
			return 0
		case _, ok := <-v.Changes():
			if !ok {
				return 0
			}
		case out := <-session.Results():
			session.Apply(out)
		case line, ok := <-lines:
			if !ok || session.Exec(line) {
				return 0
			}
		}
	}
}

func render(w io.Writer, s *dashboard.Session, tty bool) {
	if tty {
		fmt.Fprint(w, "\033[H\033[2J")
	} else {
		fmt.Fprintln(w)
	}
	if err := s.Render(w); err != nil {
		slog.Warn("render failed", "error", err)
	}
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}

func listCities(ctx context.Context, deps dashboard.Deps, w io.Writer) int {
	v, err := dashboard.MountDashboard(ctx, deps)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer v.Unmount()

	if err := v.Refresh(); err != nil {
		fmt.Fprintf(os.Stderr, "Could not load cities: %v\n", err)
		return 1
	}
	s := v.State()
	for _, c := range s.Cities {
		mark := " "
		if s.IsFavorite(c) {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s\n", mark, c)
	}
	return 0
}

// mutate runs one mutation against a freshly loaded cache and prints its outcome.
func mutate(ctx context.Context, deps dashboard.Deps, w io.Writer, op func(*dashboard.View) reconcile.Outcome) int {
	v, err := dashboard.MountDashboard(ctx, deps)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer v.Unmount()

	if err := v.Refresh(); err != nil {
		fmt.Fprintf(os.Stderr, "Could not reach the backend: %v\n", err)
		return 1
	}

	out := op(v)
	if msg := out.Message(); msg != "" {
		fmt.Fprintln(w, msg)
	}
	if out.IsError() {
		return 1
	}
	return 0
}

func boolOpt(opts docopt.Opts, key string) bool {
	b, _ := opts.Bool(key)
	return b
}

func stringsOpt(opts docopt.Opts, key string) []string {
	v, ok := opts[key].([]string)
	if !ok {
		return nil
	}
	return v
}
