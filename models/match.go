package models

import (
	"fmt"
	"time"
)

type MatchStatus string

const (
	MatchStatusScheduled  MatchStatus = "SCHEDULED"
	MatchStatusInProgress MatchStatus = "IN_PROGRESS"
	MatchStatusCompleted  MatchStatus = "COMPLETED"
	MatchStatusCancelled  MatchStatus = "CANCELLED"
)

func ParseMatchStatus(s string) (MatchStatus, error) {
	switch status := MatchStatus(s); status {
	case MatchStatusScheduled, MatchStatusInProgress, MatchStatusCompleted, MatchStatusCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown match status %q", s)
	}
}

// IsTerminal reports whether no further status change is possible.
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusCompleted, MatchStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo follows SCHEDULED -> IN_PROGRESS -> COMPLETED, with CANCELLED
// reachable from any non-terminal state. Staying in the same status is allowed.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	if s == next {
		return !s.IsTerminal()
	}
	switch s {
	case MatchStatusScheduled:
		return next == MatchStatusInProgress || next == MatchStatusCompleted || next == MatchStatusCancelled
	case MatchStatusInProgress:
		return next == MatchStatusCompleted || next == MatchStatusCancelled
	default:
		return false
	}
}

// Slot is one of the two team references of a match.
type Slot int

const (
	SlotTeam1 Slot = 1
	SlotTeam2 Slot = 2
)

func (s Slot) String() string {
	switch s {
	case SlotTeam1:
		return "team1"
	case SlotTeam2:
		return "team2"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Other returns the opposite slot.
func (s Slot) Other() Slot {
	if s == SlotTeam1 {
		return SlotTeam2
	}
	return SlotTeam1
}

type Match struct {
	ID           int         `json:"id" db:"id"`
	TournamentID int         `json:"tournament_id" db:"tournament_id"`
	BracketID    int         `json:"bracket_id" db:"bracket_id"`
	Round        int         `json:"round" db:"round"`
	Position     int         `json:"position" db:"position"`
	Team1ID      *int        `json:"team1_id" db:"team1_id"`
	Team2ID      *int        `json:"team2_id" db:"team2_id"`
	Status       MatchStatus `json:"status" db:"status"`
	IsBye        bool        `json:"is_bye" db:"is_bye"`
	StartedAt    *time.Time  `json:"started_at,omitempty" db:"started_at"`
	EndedAt      *time.Time  `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`

	Team1        *Team        `json:"team1,omitempty" db:"-"`
	Team2        *Team        `json:"team2,omitempty" db:"-"`
	LatestResult *MatchResult `json:"latest_result,omitempty" db:"-"`
}

// TeamIn returns the team reference held by the given slot.
func (m *Match) TeamIn(slot Slot) *int {
	if slot == SlotTeam1 {
		return m.Team1ID
	}
	return m.Team2ID
}

func (m *Match) SetTeam(slot Slot, teamID *int) {
	if slot == SlotTeam1 {
		m.Team1ID = teamID
		return
	}
	m.Team2ID = teamID
}

// HasBothTeams reports whether the match is ready to be played.
func (m *Match) HasBothTeams() bool {
	return m.Team1ID != nil && m.Team2ID != nil
}

// SoleTeam returns the only team present when exactly one slot is filled.
func (m *Match) SoleTeam() (int, bool) {
	switch {
	case m.Team1ID != nil && m.Team2ID == nil:
		return *m.Team1ID, true
	case m.Team1ID == nil && m.Team2ID != nil:
		return *m.Team2ID, true
	default:
		return 0, false
	}
}

// MatchResult is an append-only score submission; the latest one is authoritative.
type MatchResult struct {
	ID          int       `json:"id" db:"id"`
	MatchID     int       `json:"match_id" db:"match_id"`
	Team1Score  int       `json:"team1_score" db:"team1_score"`
	Team2Score  int       `json:"team2_score" db:"team2_score"`
	SubmittedBy *int      `json:"submitted_by,omitempty" db:"submitted_by"`
	IsConfirmed bool      `json:"is_confirmed" db:"is_confirmed"`
	Details     *string   `json:"details,omitempty" db:"details"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func (r *MatchResult) IsDraw() bool {
	return r.Team1Score == r.Team2Score
}

// WinnerSlot returns the slot with the higher score; ok is false on a draw.
func (r *MatchResult) WinnerSlot() (slot Slot, ok bool) {
	switch {
	case r.Team1Score > r.Team2Score:
		return SlotTeam1, true
	case r.Team2Score > r.Team1Score:
		return SlotTeam2, true
	default:
		return 0, false
	}
}
