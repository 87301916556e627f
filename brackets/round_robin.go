package brackets

import (
	"context"

	"github.com/Dosada05/tournament-brackets/models"
)

const roundRobinBracketKey = "round_robin"

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() BracketGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateBracket creates one match for every unordered pair of teams, all in
// round 1, positioned in (i outer, j = i+1 inner) enumeration order.
func (g *RoundRobinGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Plan, error) {
	teams := params.Teams
	if err := requireTeams(models.FormatRoundRobin, teams); err != nil {
		return nil, err
	}

	n := len(teams)
	matches := make([]*MatchSlot, 0, n*(n-1)/2)
	position := 0

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			position++
			matches = append(matches, &MatchSlot{
				BracketKey: roundRobinBracketKey,
				Round:      1,
				Position:   position,
				Team1ID:    teamIDPtr(teams[i]),
				Team2ID:    teamIDPtr(teams[j]),
			})
		}
	}

	return &Plan{
		Format: models.FormatRoundRobin,
		Brackets: []BracketPlan{
			{Key: roundRobinBracketKey, Name: "Round robin", Kind: models.BracketRoundRobin, Rounds: 1},
		},
		Matches: matches,
	}, nil
}
