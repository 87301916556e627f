package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-brackets/brackets"
	"github.com/Dosada05/tournament-brackets/locks"
	"github.com/Dosada05/tournament-brackets/metrics"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
)

type RecordResultInput struct {
	Team1Score int     `json:"team1_score"`
	Team2Score int     `json:"team2_score"`
	Details    *string `json:"details,omitempty"`
}

// RecordedResult is the outcome of a result submission: the completed match,
// the stored result and every downstream match that received a team.
type RecordedResult struct {
	Match    *models.Match       `json:"match"`
	Result   *models.MatchResult `json:"result,omitempty"`
	Advanced []*models.Match     `json:"advanced"`
}

type MatchService interface {
	ListByTournament(ctx context.Context, tournamentID int, filter repositories.MatchFilter) ([]*models.Match, error)
	GetMatch(ctx context.Context, matchID int) (*models.Match, error)
	RecordResult(ctx context.Context, matchID int, input RecordResultInput, actor models.Actor) (*RecordedResult, error)
	ConfirmResult(ctx context.Context, matchID int) (*models.MatchResult, error)
	UpdateStatus(ctx context.Context, matchID int, status models.MatchStatus) (*models.Match, error)
	AdvanceBye(ctx context.Context, matchID int) (*RecordedResult, error)
}

type matchService struct {
	repos    Repositories
	resolver *AdvancementResolver
	locker   locks.Locker
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewMatchService(
	repos Repositories,
	resolver *AdvancementResolver,
	locker locks.Locker,
	notifier Notifier,
	logger *slog.Logger,
) MatchService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &matchService{
		repos:    repos,
		resolver: resolver,
		locker:   locker,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *matchService) ListByTournament(ctx context.Context, tournamentID int, filter repositories.MatchFilter) ([]*models.Match, error) {
	if _, err := loadTournament(ctx, s.repos.Tournaments, tournamentID); err != nil {
		return nil, err
	}
	matches, err := s.repos.Matches.ListByTournament(ctx, tournamentID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches for tournament %d: %w", tournamentID, err)
	}
	if matches == nil {
		return []*models.Match{}, nil
	}
	return matches, nil
}

func (s *matchService) GetMatch(ctx context.Context, matchID int) (*models.Match, error) {
	match, err := loadMatch(ctx, s.repos.Matches, matchID)
	if err != nil {
		return nil, err
	}
	latest, err := s.repos.Results.LatestByMatch(ctx, matchID)
	switch {
	case err == nil:
		match.LatestResult = latest
	case !errors.Is(err, repositories.ErrMatchResultNotFound):
		return nil, fmt.Errorf("failed to load result of match %d: %w", matchID, err)
	}
	return match, nil
}

// lockedMatch takes the tournament lock of a match and reloads the match under it.
func (s *matchService) lockedMatch(ctx context.Context, matchID int) (*models.Match, func(), error) {
	match, err := loadMatch(ctx, s.repos.Matches, matchID)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := lockTournament(ctx, s.locker, match.TournamentID, s.logger)
	if err != nil {
		return nil, nil, err
	}
	match, err = loadMatch(ctx, s.repos.Matches, matchID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return match, unlock, nil
}

func (s *matchService) RecordResult(ctx context.Context, matchID int, input RecordResultInput, actor models.Actor) (*RecordedResult, error) {
	if input.Team1Score < 0 || input.Team2Score < 0 {
		return nil, ErrInvalidScore
	}

	match, unlock, err := s.lockedMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := s.logger.With(
		slog.Int("tournament_id", match.TournamentID),
		slog.Int("match_id", match.ID),
	)

	switch {
	case match.Status == models.MatchStatusCompleted:
		return nil, ErrMatchAlreadyCompleted
	case match.Status == models.MatchStatusCancelled:
		return nil, ErrMatchCancelled
	case !match.HasBothTeams():
		return nil, ErrMatchNotReady
	}

	tournament, err := loadTournament(ctx, s.repos.Tournaments, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.Status.AcceptsBracketGeneration() {
		return nil, ErrTournamentClosed
	}
	draw := input.Team1Score == input.Team2Score
	if draw && (tournament.Format == nil || !tournament.Format.AllowsDraws()) {
		return nil, ErrDrawNotAllowed
	}

	layout, err := s.loadLayout(ctx, match.TournamentID)
	if err != nil {
		return nil, err
	}
	bracket, ok := layout.byID[match.BracketID]
	if !ok {
		return nil, ErrBracketNotFound
	}

	result := &models.MatchResult{
		MatchID:     match.ID,
		Team1Score:  input.Team1Score,
		Team2Score:  input.Team2Score,
		IsConfirmed: actor.Role.ManagesMatches(),
		Details:     input.Details,
	}
	if actor.UserID != 0 {
		submitter := actor.UserID
		result.SubmittedBy = &submitter
	}

	endedAt := s.now()
	err = s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.repos.Results.Create(ctx, exec, result); err != nil {
			return fmt.Errorf("store result: %w", err)
		}
		completed, err := s.repos.Matches.Complete(ctx, exec, match.ID, endedAt)
		if err != nil {
			return fmt.Errorf("complete match: %w", err)
		}
		if !completed {
			return ErrMatchAlreadyCompleted
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMatchAlreadyCompleted) {
			return nil, err
		}
		logger.ErrorContext(ctx, "failed to record result", slog.Any("error", err))
		return nil, fmt.Errorf("failed to record result for match %d: %w", match.ID, err)
	}

	markCompleted(match, endedAt)
	match.LatestResult = result
	metrics.ResultsRecorded.WithLabelValues(string(bracket.Kind)).Inc()
	logger.InfoContext(ctx, "result recorded",
		slog.Int("team1_score", result.Team1Score),
		slog.Int("team2_score", result.Team2Score),
		slog.Bool("confirmed", result.IsConfirmed))

	recorded := &RecordedResult{Match: match, Result: result, Advanced: []*models.Match{}}
	s.notifier.Publish(match.TournamentID, brackets.EventMatchUpdated, recorded)

	if draw {
		if err := s.finishTable(ctx, tournament, bracket); err != nil {
			return nil, &AdvancementError{Match: match, Result: result, Err: err}
		}
		return recorded, nil
	}

	winnerSlot, _ := result.WinnerSlot()
	winnerID := *match.TeamIn(winnerSlot)
	loserID := match.TeamIn(winnerSlot.Other())
	if err := s.advance(ctx, layout, tournament, bracket, recorded, winnerID, loserID); err != nil {
		return nil, err
	}
	return recorded, nil
}

// AdvanceBye completes a match holding a single team and moves that team on.
func (s *matchService) AdvanceBye(ctx context.Context, matchID int) (*RecordedResult, error) {
	match, unlock, err := s.lockedMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch match.Status {
	case models.MatchStatusCompleted:
		return nil, ErrMatchAlreadyCompleted
	case models.MatchStatusCancelled:
		return nil, ErrMatchCancelled
	}
	teamID, ok := match.SoleTeam()
	if !ok {
		return nil, ErrNotAByeMatch
	}

	tournament, err := loadTournament(ctx, s.repos.Tournaments, match.TournamentID)
	if err != nil {
		return nil, err
	}
	if !tournament.Status.AcceptsBracketGeneration() {
		return nil, ErrTournamentClosed
	}
	layout, err := s.loadLayout(ctx, match.TournamentID)
	if err != nil {
		return nil, err
	}
	bracket, ok := layout.byID[match.BracketID]
	if !ok {
		return nil, ErrBracketNotFound
	}
	if !match.IsBye {
		if err := s.checkNoPendingFeeder(ctx, layout, bracket, match); err != nil {
			return nil, err
		}
	}

	endedAt := s.now()
	err = s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if !match.IsBye {
			if err := s.repos.Matches.MarkBye(ctx, exec, match.ID); err != nil {
				return fmt.Errorf("mark bye: %w", err)
			}
		}
		completed, err := s.repos.Matches.Complete(ctx, exec, match.ID, endedAt)
		if err != nil {
			return fmt.Errorf("complete match: %w", err)
		}
		if !completed {
			return ErrMatchAlreadyCompleted
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMatchAlreadyCompleted) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to complete bye match %d: %w", match.ID, err)
	}

	match.IsBye = true
	markCompleted(match, endedAt)
	s.logger.InfoContext(ctx, "bye advanced",
		slog.Int("tournament_id", match.TournamentID),
		slog.Int("match_id", match.ID),
		slog.Int("team_id", teamID))

	recorded := &RecordedResult{Match: match, Advanced: []*models.Match{}}
	s.notifier.Publish(match.TournamentID, brackets.EventMatchUpdated, recorded)
	if err := s.advance(ctx, layout, tournament, bracket, recorded, teamID, nil); err != nil {
		return nil, err
	}
	return recorded, nil
}

// checkNoPendingFeeder refuses to close a one-sided match while an unfinished
// match of the tournament is still routed into its empty slot.
func (s *matchService) checkNoPendingFeeder(ctx context.Context, layout *bracketLayout, bracket *models.Bracket, match *models.Match) error {
	empty := models.SlotTeam1
	if match.Team2ID == nil {
		empty = models.SlotTeam2
	}
	want := brackets.Destination{Kind: bracket.Kind, Round: match.Round, Position: match.Position, Slot: empty}

	matches, err := s.repos.Matches.ListByTournament(ctx, match.TournamentID, repositories.MatchFilter{})
	if err != nil {
		return fmt.Errorf("failed to load matches of tournament %d: %w", match.TournamentID, err)
	}
	for _, m := range matches {
		if m.ID == match.ID || m.Status.IsTerminal() {
			continue
		}
		source, ok := layout.byID[m.BracketID]
		if !ok {
			continue
		}
		if dest, ok := layout.topo.WinnerDestination(source.Kind, m.Round, m.Position); ok && dest == want {
			return fmt.Errorf("%w: match %d feeds %s", ErrByeFeederPending, m.ID, empty)
		}
		if dest, ok := layout.topo.LoserDestination(source.Kind, m.Round, m.Position); ok && dest == want {
			return fmt.Errorf("%w: loser of match %d feeds %s", ErrByeFeederPending, m.ID, empty)
		}
	}
	return nil
}

// advance routes the decided teams of a completed match and closes the
// tournament when that match decided it. Any failure here happens after the
// result was committed and is reported as an AdvancementError.
func (s *matchService) advance(ctx context.Context, layout *bracketLayout, tournament *models.Tournament, bracket *models.Bracket, recorded *RecordedResult, winnerID int, loserID *int) error {
	match := recorded.Match

	var err error
	switch {
	case !bracket.Kind.Advances():
		err = s.finishTable(ctx, tournament, bracket)
	case layout.topo.IsTerminal(bracket.Kind, match.Round):
		err = s.completeTournament(ctx, tournament, winnerID)
	default:
		var updated []*models.Match
		updated, err = s.resolver.resolve(ctx, layout, match, winnerID, loserID)
		recorded.Advanced = append(recorded.Advanced, updated...)
		for _, m := range updated {
			s.notifier.Publish(match.TournamentID, brackets.EventMatchUpdated, m)
		}
	}
	if err != nil {
		return &AdvancementError{Match: match, Result: recorded.Result, Err: err}
	}
	return nil
}

// finishTable closes a round robin or Swiss tournament once its last round is
// fully played; the table leader wins.
func (s *matchService) finishTable(ctx context.Context, tournament *models.Tournament, bracket *models.Bracket) error {
	if bracket.Kind.Advances() {
		return nil
	}
	matches, err := s.repos.Matches.ListByTournament(ctx, tournament.ID, repositories.MatchFilter{BracketID: &bracket.ID})
	if err != nil {
		return fmt.Errorf("failed to list matches of bracket %d: %w", bracket.ID, err)
	}
	if !tableFinished(bracket, matches) {
		return nil
	}

	teams, err := s.repos.Teams.ListByTournament(ctx, tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to list teams for tournament %d: %w", tournament.ID, err)
	}
	results, err := s.repos.Results.LatestByTournament(ctx, tournament.ID)
	if err != nil {
		return fmt.Errorf("failed to load results for tournament %d: %w", tournament.ID, err)
	}
	table := brackets.ComputeStandings(teams, matches, results)
	if len(table) == 0 {
		return nil
	}
	return s.completeTournament(ctx, tournament, table[0].TeamID)
}

// tableFinished reports whether every match of the bracket's last round is
// decided. Bye matches count as decided.
func tableFinished(bracket *models.Bracket, matches []*models.Match) bool {
	seen := false
	for _, m := range matches {
		if m.Round != bracket.Rounds {
			continue
		}
		seen = true
		if m.IsBye || m.Status.IsTerminal() {
			continue
		}
		return false
	}
	return seen
}

func (s *matchService) completeTournament(ctx context.Context, tournament *models.Tournament, winnerID int) error {
	err := s.repos.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.repos.Tournaments.UpdateWinner(ctx, exec, tournament.ID, &winnerID); err != nil {
			return err
		}
		return s.repos.Tournaments.UpdateStatus(ctx, exec, tournament.ID, models.StatusCompleted)
	})
	if err != nil {
		return fmt.Errorf("failed to complete tournament %d: %w", tournament.ID, err)
	}

	tournament.Status = models.StatusCompleted
	tournament.WinnerTeamID = &winnerID
	s.logger.InfoContext(ctx, "tournament completed",
		slog.Int("tournament_id", tournament.ID),
		slog.Int("winner_team_id", winnerID))
	s.notifier.Publish(tournament.ID, brackets.EventTournamentUpdated, tournament)
	return nil
}

func (s *matchService) ConfirmResult(ctx context.Context, matchID int) (*models.MatchResult, error) {
	match, err := loadMatch(ctx, s.repos.Matches, matchID)
	if err != nil {
		return nil, err
	}
	latest, err := s.repos.Results.LatestByMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchResultNotFound) {
			return nil, ErrNoResult
		}
		return nil, fmt.Errorf("failed to load result of match %d: %w", matchID, err)
	}
	if latest.IsConfirmed {
		return latest, nil
	}

	if err := s.repos.Results.Confirm(ctx, nil, latest.ID); err != nil {
		if errors.Is(err, repositories.ErrMatchResultNotFound) {
			return nil, ErrNoResult
		}
		return nil, fmt.Errorf("failed to confirm result %d: %w", latest.ID, err)
	}
	latest.IsConfirmed = true
	match.LatestResult = latest
	s.notifier.Publish(match.TournamentID, brackets.EventMatchUpdated, match)
	return latest, nil
}

// UpdateStatus moves a match along its lifecycle. COMPLETED is reached only by
// recording a result or advancing a bye.
func (s *matchService) UpdateStatus(ctx context.Context, matchID int, status models.MatchStatus) (*models.Match, error) {
	if status == models.MatchStatusCompleted {
		return nil, fmt.Errorf("%w: record a result to complete a match", ErrInvalidStatusTransition)
	}

	match, unlock, err := s.lockedMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !match.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, match.Status, status)
	}
	if status == models.MatchStatusInProgress && !match.HasBothTeams() {
		return nil, ErrMatchNotReady
	}
	if status == match.Status {
		return match, nil
	}

	at := s.now()
	if err := s.repos.Matches.UpdateStatus(ctx, nil, match.ID, status, at); err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, fmt.Errorf("failed to update status of match %d: %w", match.ID, err)
	}

	match.Status = status
	if status == models.MatchStatusInProgress && match.StartedAt == nil {
		match.StartedAt = &at
	}
	s.logger.InfoContext(ctx, "match status updated",
		slog.Int("tournament_id", match.TournamentID),
		slog.Int("match_id", match.ID),
		slog.String("status", string(status)))
	s.notifier.Publish(match.TournamentID, brackets.EventMatchUpdated, match)
	return match, nil
}

func (s *matchService) loadLayout(ctx context.Context, tournamentID int) (*bracketLayout, error) {
	list, err := s.repos.Brackets.ListByTournament(ctx, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list brackets for tournament %d: %w", tournamentID, err)
	}
	return newBracketLayout(list), nil
}

func markCompleted(m *models.Match, at time.Time) {
	m.Status = models.MatchStatusCompleted
	m.EndedAt = &at
	if m.StartedAt == nil {
		m.StartedAt = &at
	}
}
