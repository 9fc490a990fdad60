package reconcile

import "fmt"

// Kind classifies the result of a mutation as shown to the user.
type Kind int

const (
	// OK means the backend applied the mutation and both caches were reloaded.
	OK Kind = iota
	// Invalid means the input was rejected before any request.
	Invalid
	// NotFound means the backend does not know the city.
	NotFound
	// Failed is a generic rejection; local state is unchanged and the user may retry.
	Failed
	// Duplicate means the backend already had it. Not an error.
	Duplicate
	// NoOp means there was nothing to do.
	NoOp
	// Stale means the view went away while the request was in flight.
	Stale
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case Invalid:
		return "invalid"
	case NotFound:
		return "not-found"
	case Failed:
		return "failed"
	case Duplicate:
		return "duplicate"
	case NoOp:
		return "no-op"
	case Stale:
		return "stale"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Op is the mutation an Outcome belongs to.
type Op string

const (
	OpAdd        Op = "add"
	OpRemove     Op = "remove"
	OpFavorite   Op = "favorite"
	OpUnfavorite Op = "unfavorite"
)

// Outcome is the user-facing result of a mutation.
type Outcome struct {
	Kind Kind
	Op   Op
	City string
	Err  error
}

func (o Outcome) with(k Kind, err error) Outcome {
	o.Kind = k
	o.Err = err
	return o
}

// IsError reports whether the outcome should be shown as an error.
func (o Outcome) IsError() bool {
	return o.Kind == Invalid || o.Kind == NotFound || o.Kind == Failed
}

// ClearInput reports whether an add form should be cleared. A rejected name
// is kept so the user can correct it.
func (o Outcome) ClearInput() bool {
	return o.Op == OpAdd && (o.Kind == OK || o.Kind == Duplicate)
}

// Message is the text shown to the user; empty for stale outcomes.
func (o Outcome) Message() string {
	switch o.Kind {
	case OK:
		switch o.Op {
		case OpAdd:
			return fmt.Sprintf("Added %s.", o.City)
		case OpRemove:
			return fmt.Sprintf("Removed %s.", o.City)
		case OpFavorite:
			return fmt.Sprintf("Added %s to favorites.", o.City)
		case OpUnfavorite:
			return fmt.Sprintf("Removed %s from favorites.", o.City)
		}
	case Invalid:
		return "Please enter a city name."
	case NotFound:
		if o.Op == OpAdd {
			return fmt.Sprintf("City %q not found.", o.City)
		}
		return fmt.Sprintf("%s is not tracked.", o.City)
	case Failed:
		return fmt.Sprintf("Could not %s %s. Please try again.", o.Op, o.City)
	case Duplicate:
		if o.Op == OpAdd {
			return fmt.Sprintf("%s is already tracked.", o.City)
		}
		return fmt.Sprintf("%s is already a favorite.", o.City)
	case NoOp:
		if o.Op == OpUnfavorite {
			return fmt.Sprintf("%s is not a favorite.", o.City)
		}
		return fmt.Sprintf("%s is not tracked.", o.City)
	}
	return ""
}
