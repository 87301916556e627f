package brackets

import (
	"context"

	"github.com/Dosada05/tournament-brackets/models"
)

const (
	winnersBracketKey = "winners"
	losersBracketKey  = "losers"
)

// DoubleEliminationGenerator builds a winners bracket with a trailing grand final
// and a losers bracket whose slots are fed according to Topology.LoserDestination.
type DoubleEliminationGenerator struct{}

func NewDoubleEliminationGenerator() BracketGenerator {
	return &DoubleEliminationGenerator{}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "DoubleElimination"
}

func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Plan, error) {
	if err := requireTeams(models.FormatDoubleElimination, params.Teams); err != nil {
		return nil, err
	}

	winners, winnersRounds := eliminationSlots(winnersBracketKey, params.Teams)
	grandFinal := &MatchSlot{BracketKey: winnersBracketKey, Round: winnersRounds + 1, Position: 1}
	winners = append(winners, grandFinal)

	bracketSize := NextPowerOfTwo(len(params.Teams))
	losersRounds := LosersRounds(winnersRounds)
	losers := make([]*MatchSlot, 0, bracketSize)
	for k := 1; k <= losersRounds; k++ {
		for p := 1; p <= LosersMatchesInRound(bracketSize, k); p++ {
			losers = append(losers, &MatchSlot{BracketKey: losersBracketKey, Round: k, Position: p})
		}
	}

	return &Plan{
		Format: models.FormatDoubleElimination,
		Brackets: []BracketPlan{
			{Key: winnersBracketKey, Name: "Winners bracket", Kind: models.BracketWinners, Rounds: winnersRounds + 1},
			{Key: losersBracketKey, Name: "Losers bracket", Kind: models.BracketLosers, Rounds: losersRounds},
		},
		Matches: append(winners, losers...),
	}, nil
}

// LosersRounds is the number of losers bracket rounds for a winners bracket of
// winnersRounds rounds (grand final excluded).
func LosersRounds(winnersRounds int) int {
	if winnersRounds <= 1 {
		return 0
	}
	return (winnersRounds - 1) * 2
}

// LosersMatchesInRound halves every second round: bracketSize / 2^(ceil(k/2)+1).
// Odd rounds play losers bracket survivors against each other (round 1: winners
// round 1 losers), even rounds take the drop-ins from the winners bracket.
func LosersMatchesInRound(bracketSize, k int) int {
	n := bracketSize >> uint((k+1)/2+1)
	if n < 1 {
		return 1
	}
	return n
}
