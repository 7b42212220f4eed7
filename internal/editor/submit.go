package editor

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
)

var ErrSubmitInFlight = errors.New(config.ErrSubmitInFlight)

// Submitter admits one submission at a time. Manual saves and autosave
// share it, so they can never write the same post concurrently.
type Submitter struct {
	busy atomic.Bool
}

// TryRun runs fn unless another submission is running, in which case it
// returns false without calling fn.
func (s *Submitter) TryRun(fn func() error) (bool, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return false, nil
	}
	defer s.busy.Store(false)
	return true, fn()
}

func (s *Submitter) InFlight() bool {
	return s.busy.Load()
}

// ValidationError lists the problems that keep a post from being submitted.
type ValidationError struct {
	Missing  []string
	TooMany  bool
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Validate checks what the editor can check before the backend sees the post.
func Validate(m Meta, content string) error {
	var ve ValidationError
	if strings.TrimSpace(m.Title) == "" {
		ve.Missing = append(ve.Missing, "title")
	}
	if strings.TrimSpace(m.Slug) == "" {
		ve.Missing = append(ve.Missing, "slug")
	}
	if strings.TrimSpace(content) == "" {
		ve.Missing = append(ve.Missing, "content")
	}
	if len(ve.Missing) > 0 {
		ve.Messages = append(ve.Messages, config.ErrRequiredFields)
	}
	if len(m.TagIDs) > model.MaxTags {
		ve.TooMany = true
		ve.Messages = append(ve.Messages, config.ErrTooManyTags)
	}
	if len(ve.Messages) == 0 {
		return nil
	}
	return &ve
}
