package models

// TournamentStanding is a computed table row; it is not persisted.
type TournamentStanding struct {
	TeamID          int `json:"team_id"`
	Rank            int `json:"rank"`
	Points          int `json:"points"`
	GamesPlayed     int `json:"games_played"`
	Wins            int `json:"wins"`
	Draws           int `json:"draws"`
	Losses          int `json:"losses"`
	Byes            int `json:"byes"`
	ScoreFor        int `json:"score_for"`
	ScoreAgainst    int `json:"score_against"`
	ScoreDifference int `json:"score_difference"`
	Seed            int `json:"seed"`

	Team *Team `json:"team,omitempty"`
}

// MatchStats counts the matches of a tournament by status.
type MatchStats struct {
	Total      int `json:"total"`
	Scheduled  int `json:"scheduled"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
}

func (s *MatchStats) Add(status MatchStatus) {
	s.Total++
	switch status {
	case MatchStatusScheduled:
		s.Scheduled++
	case MatchStatusInProgress:
		s.InProgress++
	case MatchStatusCompleted:
		s.Completed++
	case MatchStatusCancelled:
		s.Cancelled++
	}
}
