package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/i474232898/weather-live-sync/internal/reconcile"
)

// Session turns typed command lines into mutations on a mounted view.
// Mutations run in their own goroutines and report on Results, so the caller
// keeps rendering stream updates and pending markers while a request is in
// flight. Exec, Apply and Render must be called from one goroutine.
type Session struct {
	v       *View
	results chan reconcile.Outcome

	notice string
	// draft is the last add that was rejected; an empty line retries it
	draft string
}

func NewSession(v *View) *Session {
	return &Session{v: v, results: make(chan reconcile.Outcome)}
}

// Results delivers the outcome of every mutation started by Exec.
func (s *Session) Results() <-chan reconcile.Outcome {
	return s.results
}

// Exec handles one command line and reports whether the user asked to quit.
func (s *Session) Exec(line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "quit", "exit", "q":
		return true
	case "":
		if s.draft == "" {
			s.notice = ""
			return false
		}
		arg = s.draft
		s.start(func() reconcile.Outcome { return s.v.Add(arg) })
	case "add":
		s.start(func() reconcile.Outcome { return s.v.Add(arg) })
	case "remove", "rm":
		s.start(func() reconcile.Outcome { return s.v.Remove(arg) })
	case "fav", "favorite":
		s.start(func() reconcile.Outcome { return s.v.ToggleFavorite(arg) })
	default:
		s.notice = fmt.Sprintf("Unknown command %q. Use add, remove, fav or quit.", cmd)
	}
	return false
}

func (s *Session) start(op func() reconcile.Outcome) {
	s.notice = ""
	go func() {
		out := op()
		select {
		case s.results <- out:
		case <-s.v.ctx.Done():
		}
	}()
}

// Apply records a finished mutation for the next render.
func (s *Session) Apply(out reconcile.Outcome) {
	if out.Kind == reconcile.Stale {
		return
	}
	s.notice = out.Message()

	if out.Op != reconcile.OpAdd {
		return
	}
	if out.ClearInput() {
		s.draft = ""
	} else {
		s.draft = out.City
	}
}

// Notice is the message of the last finished mutation.
func (s *Session) Notice() string {
	return s.notice
}

// Draft is the rejected city name kept for a retry, if any.
func (s *Session) Draft() string {
	return s.draft
}

// Render writes the view followed by the last notice and the prompt.
func (s *Session) Render(w io.Writer) error {
	if err := s.v.Render(w); err != nil {
		return err
	}
	if s.notice != "" {
		fmt.Fprintf(w, "\n%s\n", s.notice)
	}
	if s.draft != "" {
		fmt.Fprintf(w, "\n[enter: add %s] > ", s.draft)
		return nil
	}
	_, err := fmt.Fprint(w, "\n> ")
	return err
}
