package brackets

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/Dosada05/tournament-brackets/models"
)

const DefaultSwissRounds = 5

type GenerateBracketParams struct {
	TournamentID int
	Teams        []*models.Team

	// SwissRounds is the number of Swiss rounds to allocate; zero means DefaultSwissRounds.
	SwissRounds int
	// Rand drives the Swiss round-1 shuffle; nil uses the global source.
	Rand *rand.Rand
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Plan, error)

	GetName() string
}

// BracketPlan describes one bracket to be created. Key links match slots to it
// before the bracket has a database id.
type BracketPlan struct {
	Key    string
	Name   string
	Kind   models.BracketKind
	Rounds int
}

// MatchSlot is a match to be created at generation time.
type MatchSlot struct {
	BracketKey string
	Round      int
	Position   int
	Team1ID    *int
	Team2ID    *int
	IsBye      bool
}

type Plan struct {
	Format   models.FormatKind
	Brackets []BracketPlan
	Matches  []*MatchSlot
}

// MatchesIn returns the slots of one bracket, in emission order.
func (p *Plan) MatchesIn(bracketKey string) []*MatchSlot {
	out := make([]*MatchSlot, 0)
	for _, m := range p.Matches {
		if m.BracketKey == bracketKey {
			out = append(out, m)
		}
	}
	return out
}

// NewGenerator returns the strategy for a format.
func NewGenerator(format models.FormatKind) (BracketGenerator, error) {
	switch format {
	case models.FormatSingleElimination:
		return NewSingleEliminationGenerator(), nil
	case models.FormatDoubleElimination:
		return NewDoubleEliminationGenerator(), nil
	case models.FormatRoundRobin:
		return NewRoundRobinGenerator(), nil
	case models.FormatSwiss:
		return NewSwissGenerator(), nil
	default:
		return nil, &UnsupportedFormatError{Format: string(format)}
	}
}

// Build picks the strategy for a format and runs it.
func Build(ctx context.Context, format models.FormatKind, params GenerateBracketParams) (*Plan, error) {
	generator, err := NewGenerator(format)
	if err != nil {
		return nil, err
	}
	return generator.GenerateBracket(ctx, params)
}

func requireTeams(format models.FormatKind, teams []*models.Team) error {
	if len(teams) < format.MinTeams() {
		return &InsufficientTeamsError{Format: format, Required: format.MinTeams(), Got: len(teams)}
	}
	for i, t := range teams {
		if t == nil {
			return fmt.Errorf("team at index %d is nil", i)
		}
	}
	return nil
}

func teamIDPtr(t *models.Team) *int {
	if t == nil {
		return nil
	}
	id := t.ID
	return &id
}
