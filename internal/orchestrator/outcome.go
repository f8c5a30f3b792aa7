package orchestrator

import (
	"errors"
	"slices"
	"sort"

	"github.com/brensch/zipfetch/internal/archive"
	"github.com/brensch/zipfetch/internal/fetch"
)

var (
	// ErrInvalidSource is returned for source identifiers that are not
	// absolute URIs with a scheme, a host and a file name.
	ErrInvalidSource = errors.New("invalid source")

	// ErrFilesystem wraps local I/O failures inside a task.
	ErrFilesystem = errors.New("filesystem error")

	// ErrTaskPanic wraps a panic recovered from a task.
	ErrTaskPanic = errors.New("task panicked")

	// ErrInvalidOptions is returned by Run when it cannot start at all.
	ErrInvalidOptions = errors.New("invalid options")
)

// Kind classifies why a task failed.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindTransport
	KindArchiveFormat
	KindFilesystem
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindArchiveFormat:
		return "archive_format"
	case KindFilesystem:
		return "filesystem"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A nil error is KindNone; errors that match none of
// the task sentinels are treated as filesystem failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTaskPanic):
		return KindInternal
	case errors.Is(err, ErrInvalidSource):
		return KindValidation
	case errors.Is(err, fetch.ErrTransport):
		return KindTransport
	case errors.Is(err, archive.ErrFormat):
		return KindArchiveFormat
	default:
		return KindFilesystem
	}
}

// Outcome is the terminal result of one source. Exactly one of Members
// (success, possibly empty) or Err (failure) is meaningful; a failed
// Outcome never carries members.
type Outcome struct {
	Source  string
	Members []string
	Err     error

	seq int // input position, breaks ties between duplicate sources
}

func succeeded(source string, members []string) Outcome {
	if members == nil {
		members = []string{}
	}
	return Outcome{Source: source, Members: members}
}

func failed(source string, err error) Outcome {
	return Outcome{Source: source, Err: err}
}

// OK reports whether the task succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Kind classifies the failure, KindNone on success.
func (o Outcome) Kind() Kind { return KindOf(o.Err) }

// Equal compares source, members regardless of order and error text.
func (o Outcome) Equal(other Outcome) bool {
	if o.Source != other.Source || o.OK() != other.OK() {
		return false
	}
	if !o.OK() {
		return o.Err.Error() == other.Err.Error()
	}
	a := slices.Clone(o.Members)
	b := slices.Clone(other.Members)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Results holds one Outcome per submitted source, in completion order
// until Sort is called.
type Results []Outcome

// Sort orders results by source, then by input position.
func (r Results) Sort() {
	sort.SliceStable(r, func(i, j int) bool {
		if r[i].Source != r[j].Source {
			return r[i].Source < r[j].Source
		}
		return r[i].seq < r[j].seq
	})
}

// Members flattens the member names of every successful outcome.
func (r Results) Members() []string {
	var out []string
	for _, o := range r {
		if o.OK() {
			out = append(out, o.Members...)
		}
	}
	return out
}

// Failures returns the failed outcomes.
func (r Results) Failures() Results {
	var out Results
	for _, o := range r {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Get returns the first outcome for source.
func (r Results) Get(source string) (Outcome, bool) {
	for _, o := range r {
		if o.Source == source {
			return o, true
		}
	}
	return Outcome{}, false
}
