package brackets

import (
	"sort"

	"github.com/Dosada05/tournament-brackets/models"
)

const (
	pointsWin  = 3
	pointsDraw = 1
)

// ComputeStandings builds the table from completed matches and their latest
// results. Seed follows the order of teams. A bye counts as a win without a
// score. Rows are ranked by points, then score difference, then seed.
func ComputeStandings(teams []*models.Team, matches []*models.Match, results map[int]*models.MatchResult) []*models.TournamentStanding {
	rows := make(map[int]*models.TournamentStanding, len(teams))
	table := make([]*models.TournamentStanding, 0, len(teams))
	for i, t := range teams {
		row := &models.TournamentStanding{TeamID: t.ID, Seed: i + 1, Team: t}
		rows[t.ID] = row
		table = append(table, row)
	}

	for _, m := range matches {
		if m.Status == models.MatchStatusCancelled {
			continue
		}
		if m.IsBye {
			if teamID, ok := m.SoleTeam(); ok {
				if row := rows[teamID]; row != nil {
					row.Byes++
					row.Wins++
					row.Points += pointsWin
				}
			}
			continue
		}
		if m.Status != models.MatchStatusCompleted || !m.HasBothTeams() {
			continue
		}
		res := results[m.ID]
		if res == nil {
			continue
		}
		home, away := rows[*m.Team1ID], rows[*m.Team2ID]
		if home == nil || away == nil {
			continue
		}
		applyScore(home, res.Team1Score, res.Team2Score)
		applyScore(away, res.Team2Score, res.Team1Score)
	}

	sort.SliceStable(table, func(i, j int) bool {
		a, b := table[i], table[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.ScoreDifference != b.ScoreDifference {
			return a.ScoreDifference > b.ScoreDifference
		}
		return a.Seed < b.Seed
	})
	for i, row := range table {
		row.Rank = i + 1
	}
	return table
}

func applyScore(row *models.TournamentStanding, scored, conceded int) {
	row.GamesPlayed++
	row.ScoreFor += scored
	row.ScoreAgainst += conceded
	row.ScoreDifference = row.ScoreFor - row.ScoreAgainst
	switch {
	case scored > conceded:
		row.Wins++
		row.Points += pointsWin
	case scored < conceded:
		row.Losses++
	default:
		row.Draws++
		row.Points += pointsDraw
	}
}

// PlayedPairs returns every pair of teams that already met, byes excluded.
func PlayedPairs(matches []*models.Match) map[[2]int]bool {
	played := make(map[[2]int]bool)
	for _, m := range matches {
		if m.IsBye || !m.HasBothTeams() || m.Status == models.MatchStatusCancelled {
			continue
		}
		played[PairKey(*m.Team1ID, *m.Team2ID)] = true
	}
	return played
}
