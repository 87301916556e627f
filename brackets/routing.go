package brackets

import "github.com/Dosada05/tournament-brackets/models"

// Destination is the slot a team is written into once a match is decided.
type Destination struct {
	Kind     models.BracketKind
	Round    int
	Position int
	Slot     models.Slot
}

// NextSlot is the elimination feed: round+1, position ceil(p/2), odd positions
// fill team1 and even positions fill team2.
func NextSlot(round, position int) (nextRound, nextPosition int, slot models.Slot) {
	slot = models.SlotTeam1
	if position%2 == 0 {
		slot = models.SlotTeam2
	}
	return round + 1, (position + 1) / 2, slot
}

// Topology is the round layout of a tournament's elimination brackets.
// WinnersRounds excludes the grand final.
type Topology struct {
	MainRounds        int
	WinnersRounds     int
	LosersRounds      int
	DoubleElimination bool
}

func TopologyFor(brackets []*models.Bracket) Topology {
	var t Topology
	for _, b := range brackets {
		if b == nil {
			continue
		}
		switch b.Kind {
		case models.BracketMain:
			t.MainRounds = b.Rounds
		case models.BracketWinners:
			t.DoubleElimination = true
			t.WinnersRounds = b.Rounds - 1
		case models.BracketLosers:
			t.DoubleElimination = true
			t.LosersRounds = b.Rounds
		}
	}
	return t
}

// GrandFinalRound is the winners bracket round holding the grand final.
func (t Topology) GrandFinalRound() int {
	return t.WinnersRounds + 1
}

// IsTerminal reports whether the winner of the match decides the tournament.
func (t Topology) IsTerminal(kind models.BracketKind, round int) bool {
	switch kind {
	case models.BracketMain:
		return round == t.MainRounds
	case models.BracketWinners:
		return t.DoubleElimination && round == t.GrandFinalRound()
	default:
		return false
	}
}

// WinnerDestination returns where the winner of (kind, round, position) goes.
// ok is false for terminal matches and for brackets that do not advance.
func (t Topology) WinnerDestination(kind models.BracketKind, round, position int) (Destination, bool) {
	if !kind.Advances() || t.IsTerminal(kind, round) {
		return Destination{}, false
	}

	switch kind {
	case models.BracketMain:
		if round > t.MainRounds {
			return Destination{}, false
		}
	case models.BracketWinners:
		if round > t.WinnersRounds {
			return Destination{}, false
		}
	case models.BracketLosers:
		if round > t.LosersRounds {
			return Destination{}, false
		}
		if round == t.LosersRounds {
			return t.grandFinal(models.SlotTeam2), true
		}
		if round%2 == 1 {
			return Destination{Kind: models.BracketLosers, Round: round + 1, Position: position, Slot: models.SlotTeam1}, true
		}
	}

	nextRound, nextPosition, slot := NextSlot(round, position)
	return Destination{Kind: kind, Round: nextRound, Position: nextPosition, Slot: slot}, true
}

// LoserDestination returns where the loser of a winners bracket match drops to.
// Only double elimination routes losers.
func (t Topology) LoserDestination(kind models.BracketKind, round, position int) (Destination, bool) {
	if !t.DoubleElimination || kind != models.BracketWinners {
		return Destination{}, false
	}
	if round < 1 || round > t.WinnersRounds {
		return Destination{}, false
	}
	if t.LosersRounds == 0 {
		return t.grandFinal(models.SlotTeam2), true
	}
	if round == 1 {
		_, nextPosition, slot := NextSlot(round, position)
		return Destination{Kind: models.BracketLosers, Round: 1, Position: nextPosition, Slot: slot}, true
	}
	return Destination{Kind: models.BracketLosers, Round: 2 * (round - 1), Position: position, Slot: models.SlotTeam2}, true
}

func (t Topology) grandFinal(slot models.Slot) Destination {
	return Destination{Kind: models.BracketWinners, Round: t.GrandFinalRound(), Position: 1, Slot: slot}
}
