package feed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetry is the reconnection delay used until the server sends a retry field.
const DefaultRetry = 3 * time.Second

var (
	errStreamEnded = errors.New("feed: event stream ended")
	errBadResponse = errors.New("feed: not an event stream")
)

// SSETransport reads a text/event-stream endpoint and reconnects the way a
// browser EventSource does: a fixed delay, adjustable by the server, and the
// last event id sent back on reconnect. A response that is not a 200 event
// stream fails the transport for good.
type SSETransport struct {
	client *http.Client
	url    string
	logger *slog.Logger

	retry       time.Duration
	lastEventID string
}

// NewSSETransport creates a transport for url. client must not have a
// Timeout, which would cut the stream; nil uses a fresh client.
func NewSSETransport(client *http.Client, url string, logger *slog.Logger) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SSETransport{
		client: client,
		url:    url,
		logger: logger,
		retry:  DefaultRetry,
	}
}

func (t *SSETransport) Run(ctx context.Context, h Handler) error {
	for {
		err := t.connect(ctx, h)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errBadResponse) {
			return err
		}
		if err == nil {
			err = errStreamEnded
		}
		h.OnError(err)

		t.logger.Debug("event stream reconnecting", "in", t.retry, "error", err)
		timer := time.NewTimer(t.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (t *SSETransport) connect(ctx context.Context, h Handler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadResponse, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if t.lastEventID != "" {
		req.Header.Set("Last-Event-ID", t.lastEventID)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", errBadResponse, resp.StatusCode)
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != "text/event-stream" {
		return fmt.Errorf("%w: content type %q", errBadResponse, resp.Header.Get("Content-Type"))
	}

	h.OnOpen()
	return t.read(resp.Body, h)
}

// read parses the event stream until EOF or a read error. An event cut off by
// the end of the stream is discarded.
func (t *SSETransport) read(r io.Reader, h Handler) error {
	br := bufio.NewReader(r)

	var (
		data      strings.Builder
		eventType string
		hasData   bool
	)

	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		if line == "" {
			if hasData && (eventType == "" || eventType == "message") {
				h.OnMessage([]byte(strings.TrimSuffix(data.String(), "\n")))
			}
			data.Reset()
			eventType = ""
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventType = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				t.lastEventID = value
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				t.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}
