package models

import (
	"fmt"
	"time"
)

// TournamentStatus mirrors the status column of the tournaments table.
type TournamentStatus string

const (
	StatusDraft              TournamentStatus = "DRAFT"
	StatusRegistrationOpen   TournamentStatus = "REGISTRATION_OPEN"
	StatusRegistrationClosed TournamentStatus = "REGISTRATION_CLOSED"
	StatusInProgress         TournamentStatus = "IN_PROGRESS"
	StatusCompleted          TournamentStatus = "COMPLETED"
	StatusCancelled          TournamentStatus = "CANCELLED"
)

// AcceptsBracketGeneration reports whether a bracket may be (re)generated.
func (s TournamentStatus) AcceptsBracketGeneration() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return false
	default:
		return true
	}
}

// FormatKind selects the pairing strategy of a tournament.
type FormatKind string

const (
	FormatSingleElimination FormatKind = "SINGLE_ELIMINATION"
	FormatDoubleElimination FormatKind = "DOUBLE_ELIMINATION"
	FormatRoundRobin        FormatKind = "ROUND_ROBIN"
	FormatSwiss             FormatKind = "SWISS"
)

func (f FormatKind) Valid() bool {
	switch f {
	case FormatSingleElimination, FormatDoubleElimination, FormatRoundRobin, FormatSwiss:
		return true
	default:
		return false
	}
}

// IsElimination reports whether winners advance through the bracket.
func (f FormatKind) IsElimination() bool {
	return f == FormatSingleElimination || f == FormatDoubleElimination
}

// AllowsDraws reports whether a tied score is an acceptable result.
func (f FormatKind) AllowsDraws() bool {
	return f == FormatRoundRobin || f == FormatSwiss
}

// MinTeams is the smallest field the format can be generated for.
func (f FormatKind) MinTeams() int {
	if f == FormatSwiss {
		return 4
	}
	return 2
}

func (f FormatKind) String() string {
	return string(f)
}

type Tournament struct {
	ID           int              `json:"id" db:"id"`
	Name         string           `json:"name" db:"name"`
	Format       *FormatKind      `json:"format,omitempty" db:"format"`
	Status       TournamentStatus `json:"status" db:"status"`
	OrganizerID  *int             `json:"organizer_id,omitempty" db:"organizer_id"`
	WinnerTeamID *int             `json:"winner_team_id,omitempty" db:"winner_team_id"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
}

// Room is the notification room of the tournament.
func (t Tournament) Room() string {
	return TournamentRoom(t.ID)
}

func TournamentRoom(tournamentID int) string {
	return fmt.Sprintf("tournament_%d", tournamentID)
}
