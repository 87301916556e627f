package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-brackets/locks"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
	"github.com/Dosada05/tournament-brackets/storage"
)

// Repositories bundles the data access shared by the engine services.
type Repositories struct {
	Tx          repositories.Transactor
	Tournaments repositories.TournamentRepository
	Teams       repositories.TeamRepository
	Brackets    repositories.BracketRepository
	Matches     repositories.MatchRepository
	Results     repositories.MatchResultRepository
}

func populateTeamLogoURLFunc(team *models.Team, uploader storage.FileUploader) {
	if team != nil && team.LogoKey != nil && *team.LogoKey != "" && uploader != nil {
		url := uploader.GetPublicURL(*team.LogoKey)
		if url != "" {
			team.LogoURL = &url
		}
	}
}

func populateTeamListLogoURLsFunc(teams []*models.Team, uploader storage.FileUploader) {
	if uploader == nil {
		return
	}
	for _, t := range teams {
		populateTeamLogoURLFunc(t, uploader)
	}
}

func loadTournament(ctx context.Context, repo repositories.TournamentRepository, id int) (*models.Tournament, error) {
	tournament, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return tournament, nil
}

func loadMatch(ctx context.Context, repo repositories.MatchRepository, id int) (*models.Match, error) {
	match, err := repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	return match, nil
}

// lockTournament serializes writers of one tournament.
func lockTournament(ctx context.Context, locker locks.Locker, tournamentID int, logger *slog.Logger) (func(), error) {
	unlock, err := locker.Lock(ctx, locks.TournamentKey(tournamentID))
	if err != nil {
		logger.WarnContext(ctx, "failed to acquire tournament lock",
			slog.Int("tournament_id", tournamentID), slog.Any("error", err))
		return nil, fmt.Errorf("failed to lock tournament %d: %w", tournamentID, err)
	}
	return unlock, nil
}

func indexTeams(teams []*models.Team) map[int]*models.Team {
	byID := make(map[int]*models.Team, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
	}
	return byID
}

func attachTeams(m *models.Match, teams map[int]*models.Team) {
	if m.Team1ID != nil {
		m.Team1 = teams[*m.Team1ID]
	}
	if m.Team2ID != nil {
		m.Team2 = teams[*m.Team2ID]
	}
}
