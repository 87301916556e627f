package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Dosada05/tournament-brackets/brackets"
	"github.com/Dosada05/tournament-brackets/locks"
	"github.com/Dosada05/tournament-brackets/metrics"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
	"github.com/Dosada05/tournament-brackets/storage"
	"golang.org/x/sync/errgroup"
)

// BracketView is everything a client needs to draw the brackets of a tournament.
type BracketView struct {
	Tournament *models.Tournament `json:"tournament"`
	Brackets   []*models.Bracket  `json:"brackets"`
	Teams      []*models.Team     `json:"teams"`
	Stats      models.MatchStats  `json:"stats"`
}

type GenerateBracketInput struct {
	Format      models.FormatKind `json:"format"`
	SwissRounds int               `json:"swiss_rounds,omitempty"`
}

type BracketService interface {
	GenerateBracket(ctx context.Context, tournamentID int, input GenerateBracketInput) (*BracketView, error)
	GetBracket(ctx context.Context, tournamentID int) (*BracketView, error)
	PairNextSwissRound(ctx context.Context, tournamentID int) (*BracketView, error)
	Standings(ctx context.Context, tournamentID int) ([]*models.TournamentStanding, error)
}

type bracketService struct {
	repos       Repositories
	locker      locks.Locker
	uploader    storage.FileUploader
	notifier    Notifier
	logger      *slog.Logger
	swissRounds int

	// newRand returns the source of the Swiss first-round shuffle; nil output
	// means the global source.
	newRand func() *rand.Rand
	now     func() time.Time
}

func NewBracketService(
	repos Repositories,
	locker locks.Locker,
	uploader storage.FileUploader,
	notifier Notifier,
	logger *slog.Logger,
	swissRounds int,
) BracketService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if swissRounds <= 0 {
		swissRounds = brackets.DefaultSwissRounds
	}
	return &bracketService{
		repos:       repos,
		locker:      locker,
		uploader:    uploader,
		notifier:    notifier,
		logger:      logger,
		swissRounds: swissRounds,
		newRand:     func() *rand.Rand { return nil },
		now:         time.Now,
	}
}

func (s *bracketService) GenerateBracket(ctx context.Context, tournamentID int, input GenerateBracketInput) (*BracketView, error) {
	generator, err := brackets.NewGenerator(input.Format)
	if err != nil {
		return nil, err
	}
	if input.SwissRounds < 0 {
		return nil, fmt.Errorf("%w: swiss_rounds must be positive", ErrValidationFailed)
	}
	swissRounds := input.SwissRounds
	if swissRounds == 0 {
		swissRounds = s.swissRounds
	}

	logger := s.logger.With(
		slog.Int("tournament_id", tournamentID),
		slog.String("format", input.Format.String()),
	)

	unlock, err := lockTournament(ctx, s.locker, tournamentID, logger)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tournament, err := loadTournament(ctx, s.repos.Tournaments, tournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.Status.AcceptsBracketGeneration() {
		return nil, ErrTournamentClosed
	}

	teams, err := s.repos.Teams.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for tournament %d: %w", tournamentID, err)
	}

	started := s.now()
	plan, err := generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
		TournamentID: tournamentID,
		Teams:        teams,
		SwissRounds:  swissRounds,
		Rand:         s.newRand(),
	})
	if err != nil {
		logger.WarnContext(ctx, "bracket generation rejected", slog.Int("teams", len(teams)), slog.Any("error", err))
		return nil, err
	}

	err = s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		return s.persistPlan(ctx, exec, tournamentID, plan)
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to persist bracket", slog.Any("error", err))
		return nil, fmt.Errorf("failed to persist bracket for tournament %d: %w", tournamentID, err)
	}

	metrics.BracketsGenerated.WithLabelValues(input.Format.String()).Inc()
	metrics.GenerationDuration.WithLabelValues(input.Format.String()).Observe(s.now().Sub(started).Seconds())
	logger.InfoContext(ctx, "bracket generated",
		slog.Int("teams", len(teams)),
		slog.Int("brackets", len(plan.Brackets)),
		slog.Int("matches", len(plan.Matches)))

	view, err := s.GetBracket(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.archiveSnapshot(ctx, view)
	s.notifier.Publish(tournamentID, brackets.EventBracketUpdated, view)
	return view, nil
}

// persistPlan replaces whatever the tournament had with the new plan.
func (s *bracketService) persistPlan(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, plan *brackets.Plan) error {
	if err := s.repos.Matches.DeleteByTournament(ctx, exec, tournamentID); err != nil {
		return fmt.Errorf("delete matches: %w", err)
	}
	if err := s.repos.Brackets.DeleteByTournament(ctx, exec, tournamentID); err != nil {
		return fmt.Errorf("delete brackets: %w", err)
	}

	bracketIDs := make(map[string]int, len(plan.Brackets))
	for _, bp := range plan.Brackets {
		bracket := &models.Bracket{
			TournamentID: tournamentID,
			Name:         bp.Name,
			Kind:         bp.Kind,
			Rounds:       bp.Rounds,
		}
		if err := s.repos.Brackets.Create(ctx, exec, bracket); err != nil {
			return fmt.Errorf("create bracket %s: %w", bp.Key, err)
		}
		bracketIDs[bp.Key] = bracket.ID
	}

	for _, slot := range plan.Matches {
		bracketID, ok := bracketIDs[slot.BracketKey]
		if !ok {
			return fmt.Errorf("match r%d p%d references unknown bracket %q", slot.Round, slot.Position, slot.BracketKey)
		}
		match := &models.Match{
			TournamentID: tournamentID,
			BracketID:    bracketID,
			Round:        slot.Round,
			Position:     slot.Position,
			Team1ID:      slot.Team1ID,
			Team2ID:      slot.Team2ID,
			Status:       models.MatchStatusScheduled,
			IsBye:        slot.IsBye,
		}
		if err := s.repos.Matches.Create(ctx, exec, match); err != nil {
			return fmt.Errorf("create match r%d p%d: %w", slot.Round, slot.Position, err)
		}
	}

	if err := s.repos.Tournaments.UpdateFormat(ctx, exec, tournamentID, plan.Format); err != nil {
		return fmt.Errorf("update format: %w", err)
	}
	if err := s.repos.Tournaments.UpdateWinner(ctx, exec, tournamentID, nil); err != nil {
		return fmt.Errorf("reset winner: %w", err)
	}
	if err := s.repos.Tournaments.UpdateStatus(ctx, exec, tournamentID, models.StatusInProgress); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// archiveSnapshot stores the freshly generated view in object storage. Failures
// are logged only.
func (s *bracketService) archiveSnapshot(ctx context.Context, view *BracketView) {
	if s.uploader == nil {
		return
	}
	logger := s.logger.With(slog.Int("tournament_id", view.Tournament.ID))

	body, err := json.Marshal(view)
	if err != nil {
		logger.ErrorContext(ctx, "failed to encode bracket snapshot", slog.Any("error", err))
		return
	}
	key := storage.SnapshotKey(view.Tournament.ID, s.now())
	if _, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		logger.WarnContext(ctx, "failed to upload bracket snapshot", slog.String("key", key), slog.Any("error", err))
		return
	}
	logger.DebugContext(ctx, "bracket snapshot stored", slog.String("key", key))
}

func (s *bracketService) GetBracket(ctx context.Context, tournamentID int) (*BracketView, error) {
	var (
		tournament  *models.Tournament
		bracketList []*models.Bracket
		teams       []*models.Team
		matches     []*models.Match
		results     map[int]*models.MatchResult
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tournament, err = loadTournament(gCtx, s.repos.Tournaments, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		bracketList, err = s.repos.Brackets.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to list brackets for tournament %d: %w", tournamentID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		teams, err = s.repos.Teams.ListByTournament(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to list teams for tournament %d: %w", tournamentID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		matches, err = s.repos.Matches.ListByTournament(gCtx, tournamentID, repositories.MatchFilter{})
		if err != nil {
			return fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		results, err = s.repos.Results.LatestByTournament(gCtx, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to load results for tournament %d: %w", tournamentID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	populateTeamListLogoURLsFunc(teams, s.uploader)
	teamsByID := indexTeams(teams)

	view := &BracketView{
		Tournament: tournament,
		Brackets:   bracketList,
		Teams:      teams,
	}
	if view.Brackets == nil {
		view.Brackets = []*models.Bracket{}
	}
	if view.Teams == nil {
		view.Teams = []*models.Team{}
	}

	byBracket := make(map[int]*models.Bracket, len(bracketList))
	for _, b := range bracketList {
		b.Matches = []models.Match{}
		byBracket[b.ID] = b
	}
	for _, m := range matches {
		view.Stats.Add(m.Status)
		attachTeams(m, teamsByID)
		m.LatestResult = results[m.ID]
		if b, ok := byBracket[m.BracketID]; ok {
			b.Matches = append(b.Matches, *m)
		} else {
			s.logger.WarnContext(ctx, "match without bracket",
				slog.Int("tournament_id", tournamentID), slog.Int("match_id", m.ID))
		}
	}
	return view, nil
}

func (s *bracketService) PairNextSwissRound(ctx context.Context, tournamentID int) (*BracketView, error) {
	logger := s.logger.With(slog.Int("tournament_id", tournamentID))

	unlock, err := lockTournament(ctx, s.locker, tournamentID, logger)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tournament, err := loadTournament(ctx, s.repos.Tournaments, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Format == nil || *tournament.Format != models.FormatSwiss {
		return nil, ErrNotSwiss
	}
	if !tournament.Status.AcceptsBracketGeneration() {
		return nil, ErrTournamentClosed
	}

	bracketList, err := s.repos.Brackets.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brackets for tournament %d: %w", tournamentID, err)
	}
	swiss := newBracketLayout(bracketList).byKind[models.BracketSwiss]
	if swiss == nil {
		return nil, ErrBracketNotFound
	}

	matches, err := s.repos.Matches.ListByTournament(ctx, tournamentID, repositories.MatchFilter{BracketID: &swiss.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list swiss matches for tournament %d: %w", tournamentID, err)
	}

	current := currentSwissRound(matches)
	if current >= swiss.Rounds {
		return nil, ErrSwissComplete
	}
	next := make([]*models.Match, 0)
	for _, m := range matches {
		switch m.Round {
		case current:
			if m.IsBye || m.Status == models.MatchStatusCancelled {
				continue
			}
			if m.Status != models.MatchStatusCompleted {
				return nil, ErrSwissRoundIncomplete
			}
		case current + 1:
			next = append(next, m)
		}
	}

	teams, err := s.repos.Teams.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for tournament %d: %w", tournamentID, err)
	}
	results, err := s.repos.Results.LatestByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load results for tournament %d: %w", tournamentID, err)
	}

	standings := brackets.ComputeStandings(teams, matches, results)
	pairings := brackets.PairSwissRound(standings, brackets.PlayedPairs(matches))
	if len(pairings) > len(next) {
		return nil, fmt.Errorf("swiss round %d has %d slots for %d pairings", current+1, len(next), len(pairings))
	}

	err = s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		for i, p := range pairings {
			target := next[i]
			if err := s.fillSwissSlot(ctx, exec, target, models.SlotTeam1, p.Team1ID); err != nil {
				return err
			}
			if p.Team2ID == nil {
				if err := s.repos.Matches.MarkBye(ctx, exec, target.ID); err != nil {
					return fmt.Errorf("mark bye on match %d: %w", target.ID, err)
				}
				continue
			}
			if err := s.fillSwissSlot(ctx, exec, target, models.SlotTeam2, *p.Team2ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to pair swiss round", slog.Int("round", current+1), slog.Any("error", err))
		return nil, err
	}

	metrics.SwissRoundsPaired.Inc()
	logger.InfoContext(ctx, "swiss round paired", slog.Int("round", current+1), slog.Int("pairings", len(pairings)))

	view, err := s.GetBracket(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(tournamentID, brackets.EventBracketUpdated, view)
	return view, nil
}

func (s *bracketService) fillSwissSlot(ctx context.Context, exec repositories.SQLExecutor, m *models.Match, slot models.Slot, teamID int) error {
	changed, err := s.repos.Matches.SetSlotIfEmpty(ctx, exec, m.ID, slot, teamID)
	if err != nil {
		return fmt.Errorf("place team %d into match %d: %w", teamID, m.ID, err)
	}
	if !changed {
		return &StructuralConflictError{MatchID: m.ID, Slot: slot, TeamID: teamID, Existing: m.TeamIn(slot)}
	}
	return nil
}

// currentSwissRound is the highest round with at least one team assigned.
func currentSwissRound(matches []*models.Match) int {
	current := 0
	for _, m := range matches {
		if m.Round > current && (m.Team1ID != nil || m.Team2ID != nil) {
			current = m.Round
		}
	}
	return current
}

func (s *bracketService) Standings(ctx context.Context, tournamentID int) ([]*models.TournamentStanding, error) {
	if _, err := loadTournament(ctx, s.repos.Tournaments, tournamentID); err != nil {
		return nil, err
	}

	var (
		teams   []*models.Team
		matches []*models.Match
		results map[int]*models.MatchResult
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		teams, err = s.repos.Teams.ListByTournament(gCtx, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = s.repos.Matches.ListByTournament(gCtx, tournamentID, repositories.MatchFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		results, err = s.repos.Results.LatestByTournament(gCtx, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load standings data for tournament %d: %w", tournamentID, err)
	}

	populateTeamListLogoURLsFunc(teams, s.uploader)
	return brackets.ComputeStandings(teams, matches, results), nil
}
