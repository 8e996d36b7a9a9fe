// Package lifecycle owns every state transition of a world object: sending
// letters, creating, dropping and picking items, collecting and annotating
// letters. Precondition failures are reported as Outcomes; errors are kept
// for invalid input, missing objects and infrastructure failures.
package lifecycle

import (
	"errors"

	"github.com/ryanbastic/go-geodrop/internal/object"
)

var (
	// ErrValidation marks caller input that was rejected before any mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for unknown objects and objects the actor may
	// not see.
	ErrNotFound = errors.New("object not found")

	// ErrUnavailable wraps store failures. A failed read is never reported
	// as an empty result.
	ErrUnavailable = errors.New("store unavailable")

	// ErrConflict is returned when a transition lost a race that has no
	// dedicated outcome.
	ErrConflict = errors.New("object changed concurrently")

	// ErrCorrupt aliases object.ErrCorrupt so callers need one import.
	ErrCorrupt = object.ErrCorrupt
)

// Outcome is the result of a transition whose preconditions may not hold.
type Outcome string

const (
	OutcomeOK               Outcome = "OK"
	OutcomeAlreadyCollected Outcome = "ALREADY_COLLECTED"
	OutcomeAtCapacity       Outcome = "AT_CAPACITY"
	OutcomeOutOfRange       Outcome = "OUT_OF_RANGE"
	OutcomeNotFinder        Outcome = "NOT_FINDER"
	OutcomeAlreadyAnnotated Outcome = "ALREADY_ANNOTATED"
	OutcomeNotAvailable     Outcome = "NOT_AVAILABLE"
)

const (
	DefaultCapacity = 15

	maxMessageLen = 2000
	maxNoteLen    = 280
	maxNameLen    = 64
)

// LetterDraft is the authored content of a letter.
type LetterDraft struct {
	Message     string            `json:"message"`
	Visibility  object.Visibility `json:"visibility,omitempty"`
	RecipientID string            `json:"recipient_id,omitempty"`
}

// ItemDraft describes a new item.
type ItemDraft struct {
	Name        string `json:"name"`
	Emoji       string `json:"emoji"`
	Description string `json:"description,omitempty"`
}

// CollectResult carries the outcome of a collect attempt and the freshest
// known snapshot of the letter.
type CollectResult struct {
	Outcome   Outcome             `json:"outcome"`
	Object    *object.WorldObject `json:"object,omitempty"`
	DistanceM float64             `json:"distance_m"`
}

// PickResult is returned by PickItem and CreateItem.
type PickResult struct {
	Outcome Outcome             `json:"outcome"`
	Object  *object.WorldObject `json:"object,omitempty"`
	Held    int                 `json:"held"`
}

type AnnotateResult struct {
	Outcome Outcome             `json:"outcome"`
	Object  *object.WorldObject `json:"object,omitempty"`
}

// Recorder receives engine events for metrics.
type Recorder interface {
	CollectAttempt(outcome string)
	PickAttempt(outcome string)
	Drop(kind string, redirected bool)
	NamingFallback()
}

type nopRecorder struct{}

func (nopRecorder) CollectAttempt(string) {}
func (nopRecorder) PickAttempt(string)    {}
func (nopRecorder) Drop(string, bool)     {}
func (nopRecorder) NamingFallback()       {}
