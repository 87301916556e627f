package brackets

import (
	"context"
	"math/rand/v2"

	"github.com/Dosada05/tournament-brackets/models"
)

const (
	swissBracketKey = "swiss"

	// pairingSearchBudget caps the backtracking search for a rematch-free round.
	pairingSearchBudget = 20000
)

type SwissGenerator struct{}

func NewSwissGenerator() BracketGenerator {
	return &SwissGenerator{}
}

func (g *SwissGenerator) GetName() string {
	return "Swiss"
}

// GenerateBracket pairs round 1 from a uniform shuffle and allocates rounds
// 2..K as empty shells; PairSwissRound fills them once the previous round is done.
func (g *SwissGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*Plan, error) {
	if err := requireTeams(models.FormatSwiss, params.Teams); err != nil {
		return nil, err
	}
	rounds := params.SwissRounds
	if rounds <= 0 {
		rounds = DefaultSwissRounds
	}

	shuffled := make([]*models.Team, len(params.Teams))
	copy(shuffled, params.Teams)
	swap := func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] }
	if params.Rand != nil {
		params.Rand.Shuffle(len(shuffled), swap)
	} else {
		rand.Shuffle(len(shuffled), swap)
	}

	n := len(shuffled)
	perRound := (n + 1) / 2
	matches := make([]*MatchSlot, 0, perRound*rounds)
	for i := 0; i < perRound; i++ {
		slot := &MatchSlot{
			BracketKey: swissBracketKey,
			Round:      1,
			Position:   i + 1,
			Team1ID:    teamIDPtr(shuffled[2*i]),
		}
		if 2*i+1 < n {
			slot.Team2ID = teamIDPtr(shuffled[2*i+1])
		} else {
			slot.IsBye = true
		}
		matches = append(matches, slot)
	}
	for r := 2; r <= rounds; r++ {
		for p := 1; p <= perRound; p++ {
			matches = append(matches, &MatchSlot{BracketKey: swissBracketKey, Round: r, Position: p})
		}
	}

	return &Plan{
		Format: models.FormatSwiss,
		Brackets: []BracketPlan{
			{Key: swissBracketKey, Name: "Swiss", Kind: models.BracketSwiss, Rounds: rounds},
		},
		Matches: matches,
	}, nil
}

// SwissPairing is one match of a Swiss round; Team2ID is nil for the bye.
type SwissPairing struct {
	Team1ID int
	Team2ID *int
}

// PairKey identifies an unordered pair of teams.
func PairKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// PairSwissRound pairs teams ranked best-first. With an odd field the
// lowest-ranked team without a previous bye sits out. Every remaining team is
// paired top-down with the best-ranked opponent it has not met yet; if no
// rematch-free round exists the greedy order is used and rematches are allowed.
// The bye, if any, is the last pairing.
func PairSwissRound(ranked []*models.TournamentStanding, played map[[2]int]bool) []SwissPairing {
	pool := make([]int, 0, len(ranked))
	for _, s := range ranked {
		pool = append(pool, s.TeamID)
	}

	var byeTeam *int
	if len(pool)%2 == 1 {
		idx := len(ranked) - 1
		for i := len(ranked) - 1; i >= 0; i-- {
			if ranked[i].Byes == 0 {
				idx = i
				break
			}
		}
		id := pool[idx]
		byeTeam = &id
		pool = append(pool[:idx:idx], pool[idx+1:]...)
	}

	pairs, ok := pairWithoutRematch(pool, played)
	if !ok {
		pairs = pairGreedy(pool, played)
	}
	if byeTeam != nil {
		pairs = append(pairs, SwissPairing{Team1ID: *byeTeam})
	}
	return pairs
}

func pairWithoutRematch(pool []int, played map[[2]int]bool) ([]SwissPairing, bool) {
	budget := pairingSearchBudget
	used := make([]bool, len(pool))
	out := make([]SwissPairing, 0, len(pool)/2)

	var search func() bool
	search = func() bool {
		first := -1
		for i := range pool {
			if !used[i] {
				first = i
				break
			}
		}
		if first == -1 {
			return true
		}
		used[first] = true
		for j := first + 1; j < len(pool); j++ {
			if used[j] || played[PairKey(pool[first], pool[j])] {
				continue
			}
			budget--
			if budget < 0 {
				break
			}
			used[j] = true
			opponent := pool[j]
			out = append(out, SwissPairing{Team1ID: pool[first], Team2ID: &opponent})
			if search() {
				return true
			}
			out = out[:len(out)-1]
			used[j] = false
		}
		used[first] = false
		return false
	}

	if search() {
		return out, true
	}
	return nil, false
}

func pairGreedy(pool []int, played map[[2]int]bool) []SwissPairing {
	used := make([]bool, len(pool))
	out := make([]SwissPairing, 0, len(pool)/2)
	for i := range pool {
		if used[i] {
			continue
		}
		used[i] = true
		pick := -1
		for j := i + 1; j < len(pool); j++ {
			if used[j] {
				continue
			}
			if pick == -1 {
				pick = j
			}
			if !played[PairKey(pool[i], pool[j])] {
				pick = j
				break
			}
		}
		if pick == -1 {
			break
		}
		used[pick] = true
		opponent := pool[pick]
		out = append(out, SwissPairing{Team1ID: pool[i], Team2ID: &opponent})
	}
	return out
}
