package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-brackets/brackets"
	"github.com/Dosada05/tournament-brackets/metrics"
	"github.com/Dosada05/tournament-brackets/models"
	"github.com/Dosada05/tournament-brackets/repositories"
)

// bracketLayout indexes the brackets of one tournament.
type bracketLayout struct {
	byID   map[int]*models.Bracket
	byKind map[models.BracketKind]*models.Bracket
	topo   brackets.Topology
}

func newBracketLayout(list []*models.Bracket) *bracketLayout {
	layout := &bracketLayout{
		byID:   make(map[int]*models.Bracket, len(list)),
		byKind: make(map[models.BracketKind]*models.Bracket, len(list)),
		topo:   brackets.TopologyFor(list),
	}
	for _, b := range list {
		layout.byID[b.ID] = b
		layout.byKind[b.Kind] = b
	}
	return layout
}

// AdvancementResolver writes decided teams into downstream match slots.
type AdvancementResolver struct {
	matchRepo   repositories.MatchRepository
	bracketRepo repositories.BracketRepository
	logger      *slog.Logger
}

func NewAdvancementResolver(
	matchRepo repositories.MatchRepository,
	bracketRepo repositories.BracketRepository,
	logger *slog.Logger,
) *AdvancementResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdvancementResolver{
		matchRepo:   matchRepo,
		bracketRepo: bracketRepo,
		logger:      logger,
	}
}

// Advance moves the winner of (completedRound, completedPosition) to wherever
// the tournament's bracket layout sends it: the next round of the same
// bracket, the next losers round, or the grand final. Terminal matches,
// missing targets and brackets that do not advance are no-ops.
func (r *AdvancementResolver) Advance(ctx context.Context, tournamentID, completedRound, completedPosition, winnerTeamID, bracketID int) error {
	list, err := r.bracketRepo.ListByTournament(ctx, tournamentID)
	if err != nil {
		return fmt.Errorf("failed to load brackets of tournament %d: %w", tournamentID, err)
	}
	layout := newBracketLayout(list)

	bracket, ok := layout.byID[bracketID]
	if !ok {
		return ErrBracketNotFound
	}

	dest, ok := layout.topo.WinnerDestination(bracket.Kind, completedRound, completedPosition)
	if !ok {
		return nil
	}
	_, err = r.route(ctx, layout, tournamentID, dest, winnerTeamID)
	return err
}

// resolve routes the winner, and the loser when the topology drops it into
// another bracket, of a completed match. It returns the matches that changed.
func (r *AdvancementResolver) resolve(ctx context.Context, layout *bracketLayout, match *models.Match, winnerID int, loserID *int) ([]*models.Match, error) {
	bracket, ok := layout.byID[match.BracketID]
	if !ok {
		return nil, ErrBracketNotFound
	}

	updated := make([]*models.Match, 0, 2)
	if dest, ok := layout.topo.WinnerDestination(bracket.Kind, match.Round, match.Position); ok {
		target, err := r.route(ctx, layout, match.TournamentID, dest, winnerID)
		if err != nil {
			return updated, err
		}
		if target != nil {
			updated = append(updated, target)
		}
	}

	if loserID == nil {
		return updated, nil
	}
	if dest, ok := layout.topo.LoserDestination(bracket.Kind, match.Round, match.Position); ok {
		target, err := r.route(ctx, layout, match.TournamentID, dest, *loserID)
		if err != nil {
			return updated, err
		}
		if target != nil {
			updated = append(updated, target)
		}
	}
	return updated, nil
}

func (r *AdvancementResolver) route(ctx context.Context, layout *bracketLayout, tournamentID int, dest brackets.Destination, teamID int) (*models.Match, error) {
	target, ok := layout.byKind[dest.Kind]
	if !ok {
		r.logger.WarnContext(ctx, "destination bracket missing",
			slog.Int("tournament_id", tournamentID),
			slog.String("bracket_kind", string(dest.Kind)))
		metrics.Advancements.WithLabelValues(metrics.OutcomeNoTarget).Inc()
		return nil, nil
	}
	return r.place(ctx, tournamentID, target.ID, dest.Round, dest.Position, dest.Slot, teamID)
}

// place writes teamID into one slot with a set-if-empty update. Writing the team
// that is already there is a no-op; anything else occupying the slot, or the
// team already holding the opposite slot, is a StructuralConflictError.
func (r *AdvancementResolver) place(ctx context.Context, tournamentID, bracketID, round, position int, slot models.Slot, teamID int) (*models.Match, error) {
	logger := r.logger.With(
		slog.Int("tournament_id", tournamentID),
		slog.Int("bracket_id", bracketID),
		slog.Int("round", round),
		slog.Int("position", position),
		slog.String("slot", slot.String()),
		slog.Int("team_id", teamID),
	)

	target, err := r.matchRepo.FindBySlot(ctx, nil, tournamentID, bracketID, round, position)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			metrics.Advancements.WithLabelValues(metrics.OutcomeNoTarget).Inc()
			logger.DebugContext(ctx, "no downstream match, nothing to advance")
			return nil, nil
		}
		metrics.Advancements.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to find match at round %d position %d: %w", round, position, err)
	}

	if done, err := checkSlot(target, slot, teamID); done || err != nil {
		return r.finishPlacement(ctx, logger, target, err)
	}

	changed, err := r.matchRepo.SetSlotIfEmpty(ctx, nil, target.ID, slot, teamID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchSameTeam) {
			return r.finishPlacement(ctx, logger, target, &StructuralConflictError{MatchID: target.ID, Slot: slot, TeamID: teamID})
		}
		metrics.Advancements.WithLabelValues(metrics.OutcomeError).Inc()
		return nil, fmt.Errorf("failed to write team %d into match %d: %w", teamID, target.ID, err)
	}

	if !changed {
		// lost a race; see what the other writer left behind
		current, err := r.matchRepo.GetByID(ctx, target.ID)
		if err != nil {
			metrics.Advancements.WithLabelValues(metrics.OutcomeError).Inc()
			return nil, fmt.Errorf("failed to reload match %d: %w", target.ID, err)
		}
		done, err := checkSlot(current, slot, teamID)
		if !done && err == nil {
			err = &StructuralConflictError{MatchID: current.ID, Slot: slot, TeamID: teamID, Existing: current.TeamIn(slot)}
		}
		return r.finishPlacement(ctx, logger, current, err)
	}

	target.SetTeam(slot, &teamID)
	metrics.Advancements.WithLabelValues(metrics.OutcomePlaced).Inc()
	logger.InfoContext(ctx, "team advanced", slog.Int("match_id", target.ID))
	return target, nil
}

// checkSlot inspects the slot before writing. done is true when teamID is
// already in place.
func checkSlot(m *models.Match, slot models.Slot, teamID int) (done bool, err error) {
	if current := m.TeamIn(slot); current != nil && *current == teamID {
		return true, nil
	}
	if m.Status.IsTerminal() {
		return false, &StructuralConflictError{MatchID: m.ID, Slot: slot, TeamID: teamID, Existing: m.TeamIn(slot), Closed: m.Status}
	}
	if other := m.TeamIn(slot.Other()); other != nil && *other == teamID {
		return false, &StructuralConflictError{MatchID: m.ID, Slot: slot, TeamID: teamID}
	}
	if current := m.TeamIn(slot); current != nil {
		if *current == teamID {
			return true, nil
		}
		existing := *current
		return false, &StructuralConflictError{MatchID: m.ID, Slot: slot, TeamID: teamID, Existing: &existing}
	}
	return false, nil
}

func (r *AdvancementResolver) finishPlacement(ctx context.Context, logger *slog.Logger, m *models.Match, err error) (*models.Match, error) {
	if err != nil {
		metrics.Advancements.WithLabelValues(metrics.OutcomeConflict).Inc()
		logger.ErrorContext(ctx, "advancement rejected", slog.Int("match_id", m.ID), slog.Any("error", err))
		return nil, err
	}
	metrics.Advancements.WithLabelValues(metrics.OutcomeIdempotent).Inc()
	logger.DebugContext(ctx, "team already in place", slog.Int("match_id", m.ID))
	return nil, nil
}
