package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-brackets/models"
)

var (
	ErrNotFound = errors.New("not found")

	ErrTournamentNotFound = fmt.Errorf("tournament %w", ErrNotFound)
	ErrMatchNotFound      = fmt.Errorf("match %w", ErrNotFound)
	ErrBracketNotFound    = fmt.Errorf("bracket %w", ErrNotFound)
	ErrNoResult           = fmt.Errorf("match result %w", ErrNotFound)

	// Validation and business rules
	ErrValidationFailed        = errors.New("validation failed")
	ErrInvalidScore            = fmt.Errorf("%w: scores must be non-negative", ErrValidationFailed)
	ErrInvalidFormat           = fmt.Errorf("%w: unknown tournament format", ErrValidationFailed)
	ErrInvalidStatusTransition = errors.New("invalid match status transition")
	ErrDrawNotAllowed          = errors.New("draws are not allowed in elimination formats")
	ErrMatchAlreadyCompleted   = errors.New("match is already completed")
	ErrMatchCancelled          = errors.New("match is cancelled")
	ErrMatchNotReady           = errors.New("match does not have both teams yet")
	ErrNotAByeMatch            = errors.New("match does not have exactly one team")
	ErrTournamentClosed        = errors.New("tournament is completed or cancelled")
	ErrNotSwiss                = errors.New("tournament is not played in the swiss format")
	ErrSwissRoundIncomplete    = errors.New("current swiss round has unfinished matches")
	ErrSwissComplete           = errors.New("all swiss rounds have been paired")
	ErrByeFeederPending        = errors.New("an unfinished match can still fill the empty slot")

	// Conflicts
	ErrStructuralConflict = errors.New("bracket slot conflict")

	// Authorization
	ErrForbiddenOperation = errors.New("operation not allowed for the current user")
)

// StructuralConflictError reports a slot write that contradicts the bracket:
// the slot holds another team, the team already sits in the other slot, or the
// target match is already COMPLETED or CANCELLED.
type StructuralConflictError struct {
	MatchID  int
	Slot     models.Slot
	TeamID   int
	Existing *int
	Closed   models.MatchStatus
}

func (e *StructuralConflictError) Error() string {
	if e.Closed != "" {
		return fmt.Sprintf("match %d is %s, cannot place team %d in %s", e.MatchID, e.Closed, e.TeamID, e.Slot)
	}
	if e.Existing != nil {
		return fmt.Sprintf("match %d %s already holds team %d, cannot place team %d", e.MatchID, e.Slot, *e.Existing, e.TeamID)
	}
	return fmt.Sprintf("team %d already occupies match %d %s", e.TeamID, e.MatchID, e.Slot.Other())
}

func (e *StructuralConflictError) Is(target error) bool {
	return target == ErrStructuralConflict
}

// AdvancementError is returned when a result was stored and the match completed,
// but moving a team on to its next match failed. The match stays COMPLETED.
type AdvancementError struct {
	Match  *models.Match
	Result *models.MatchResult
	Err    error
}

func (e *AdvancementError) Error() string {
	return fmt.Sprintf("result recorded for match %d but advancement failed: %v", e.Match.ID, e.Err)
}

func (e *AdvancementError) Unwrap() error {
	return e.Err
}
