package brackets

import (
	"context"
	"math/bits"

	"github.com/Dosada05/tournament-brackets/models"
)

const mainBracketKey = "main"

type SingleEliminationGenerator struct{}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Plan, error) {
	if err := requireTeams(models.FormatSingleElimination, params.Teams); err != nil {
		return nil, err
	}

	slots, rounds := eliminationSlots(mainBracketKey, params.Teams)
	return &Plan{
		Format: models.FormatSingleElimination,
		Brackets: []BracketPlan{
			{Key: mainBracketKey, Name: "Main bracket", Kind: models.BracketMain, Rounds: rounds},
		},
		Matches: slots,
	}, nil
}

// eliminationSlots seeds round 1 in input order (slot i gets teams 2i and 2i+1, a
// trailing odd team becomes a bye) and allocates every later round empty with
// ceil(previous/2) matches. It returns the slots and the number of rounds.
func eliminationSlots(bracketKey string, teams []*models.Team) ([]*MatchSlot, int) {
	n := len(teams)
	inRound := (n + 1) / 2
	slots := make([]*MatchSlot, 0, 2*inRound)

	for i := 0; i < inRound; i++ {
		slot := &MatchSlot{
			BracketKey: bracketKey,
			Round:      1,
			Position:   i + 1,
			Team1ID:    teamIDPtr(teams[2*i]),
		}
		if 2*i+1 < n {
			slot.Team2ID = teamIDPtr(teams[2*i+1])
		} else {
			slot.IsBye = true
		}
		slots = append(slots, slot)
	}

	round := 1
	for inRound > 1 {
		round++
		inRound = (inRound + 1) / 2
		for p := 1; p <= inRound; p++ {
			slots = append(slots, &MatchSlot{BracketKey: bracketKey, Round: round, Position: p})
		}
	}
	return slots, round
}

// NextPowerOfTwo returns the smallest power of two >= n (1 for n <= 1).
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// TotalRounds is log2(NextPowerOfTwo(n)).
func TotalRounds(n int) int {
	return bits.TrailingZeros(uint(NextPowerOfTwo(n)))
}
