package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/tournament-brackets/models"
	"github.com/lib/pq"
)

var (
	ErrMatchNotFound         = errors.New("match not found")
	ErrMatchSlotTaken        = errors.New("a match already exists at this bracket round and position")
	ErrMatchSameTeam         = errors.New("a team cannot occupy both slots of a match")
	ErrMatchReferenceInvalid = errors.New("match tournament, bracket or team reference invalid")
	ErrMatchValueInvalid     = errors.New("match round, position or status invalid")
)

// MatchFilter narrows ListByTournament; nil fields are ignored.
type MatchFilter struct {
	BracketID *int
	Round     *int
	Status    *models.MatchStatus
}

type MatchRepository interface {
	Create(ctx context.Context, exec SQLExecutor, match *models.Match) error
	GetByID(ctx context.Context, id int) (*models.Match, error)
	FindBySlot(ctx context.Context, exec SQLExecutor, tournamentID, bracketID, round, position int) (*models.Match, error)
	ListByTournament(ctx context.Context, tournamentID int, filter MatchFilter) ([]*models.Match, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
	// SetSlotIfEmpty writes teamID into the slot only while it is NULL and the
	// match is not COMPLETED or CANCELLED, and reports whether a row changed.
	SetSlotIfEmpty(ctx context.Context, exec SQLExecutor, matchID int, slot models.Slot, teamID int) (bool, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, matchID int, status models.MatchStatus, at time.Time) error
	// Complete marks a non-terminal match COMPLETED and reports whether it did.
	Complete(ctx context.Context, exec SQLExecutor, matchID int, endedAt time.Time) (bool, error)
	MarkBye(ctx context.Context, exec SQLExecutor, matchID int) error
}

type postgresMatchRepository struct {
	db *sql.DB
}

func NewPostgresMatchRepository(db *sql.DB) MatchRepository {
	return &postgresMatchRepository{db: db}
}

const matchColumns = `id, tournament_id, bracket_id, round, position, team1_id, team2_id, status, is_bye, started_at, ended_at, created_at`

func scanMatch(row rowScanner) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID,
		&m.TournamentID,
		&m.BracketID,
		&m.Round,
		&m.Position,
		&m.Team1ID,
		&m.Team2ID,
		&m.Status,
		&m.IsBye,
		&m.StartedAt,
		&m.EndedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *postgresMatchRepository) Create(ctx context.Context, exec SQLExecutor, match *models.Match) error {
	query := `
		INSERT INTO matches
			(tournament_id, bracket_id, round, position, team1_id, team2_id, status, is_bye)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	err := executor(r.db, exec).QueryRowContext(ctx, query,
		match.TournamentID,
		match.BracketID,
		match.Round,
		match.Position,
		match.Team1ID,
		match.Team2ID,
		match.Status,
		match.IsBye,
	).Scan(&match.ID, &match.CreatedAt)

	return r.handleMatchError(err)
}

func (r *postgresMatchRepository) GetByID(ctx context.Context, id int) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`

	m, err := scanMatch(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) FindBySlot(ctx context.Context, exec SQLExecutor, tournamentID, bracketID, round, position int) (*models.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE tournament_id = $1 AND bracket_id = $2 AND round = $3 AND position = $4`

	m, err := scanMatch(executor(r.db, exec).QueryRowContext(ctx, query, tournamentID, bracketID, round, position))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMatchRepository) ListByTournament(ctx context.Context, tournamentID int, filter MatchFilter) ([]*models.Match, error) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT ` + matchColumns + ` FROM matches WHERE tournament_id = $1`)

	args := []any{tournamentID}
	placeholderIndex := 2

	if filter.BracketID != nil {
		queryBuilder.WriteString(" AND bracket_id = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.BracketID)
		placeholderIndex++
	}
	if filter.Round != nil {
		queryBuilder.WriteString(" AND round = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.Round)
		placeholderIndex++
	}
	if filter.Status != nil {
		queryBuilder.WriteString(" AND status = $")
		queryBuilder.WriteString(strconv.Itoa(placeholderIndex))
		args = append(args, *filter.Status)
	}

	queryBuilder.WriteString(" ORDER BY bracket_id ASC, round ASC, position ASC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]*models.Match, 0)
	for rows.Next() {
		m, scanErr := scanMatch(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return matches, nil
}

func (r *postgresMatchRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	query := `DELETE FROM matches WHERE tournament_id = $1`
	_, err := executor(r.db, exec).ExecContext(ctx, query, tournamentID)
	return r.handleMatchError(err)
}

func slotColumn(slot models.Slot) (string, error) {
	switch slot {
	case models.SlotTeam1:
		return "team1_id", nil
	case models.SlotTeam2:
		return "team2_id", nil
	default:
		return "", fmt.Errorf("invalid match slot %d", int(slot))
	}
}

func (r *postgresMatchRepository) SetSlotIfEmpty(ctx context.Context, exec SQLExecutor, matchID int, slot models.Slot, teamID int) (bool, error) {
	column, err := slotColumn(slot)
	if err != nil {
		return false, err
	}
	query := `UPDATE matches SET ` + column + ` = $1 WHERE id = $2 AND ` + column + ` IS NULL AND status NOT IN ('COMPLETED', 'CANCELLED')`

	result, err := executor(r.db, exec).ExecContext(ctx, query, teamID, matchID)
	if err != nil {
		return false, r.handleMatchError(err)
	}
	return changedRows(result)
}

// UpdateStatus sets the status; moving to IN_PROGRESS records started_at once.
func (r *postgresMatchRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, matchID int, status models.MatchStatus, at time.Time) error {
	query := `UPDATE matches SET status = $1 WHERE id = $2`
	args := []any{status, matchID}
	if status == models.MatchStatusInProgress {
		query = `UPDATE matches SET status = $1, started_at = COALESCE(started_at, $2) WHERE id = $3`
		args = []any{status, at, matchID}
	}

	result, err := executor(r.db, exec).ExecContext(ctx, query, args...)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) Complete(ctx context.Context, exec SQLExecutor, matchID int, endedAt time.Time) (bool, error) {
	query := `
		UPDATE matches
		SET status = 'COMPLETED', ended_at = $1, started_at = COALESCE(started_at, $1)
		WHERE id = $2 AND status NOT IN ('COMPLETED', 'CANCELLED')`

	result, err := executor(r.db, exec).ExecContext(ctx, query, endedAt, matchID)
	if err != nil {
		return false, r.handleMatchError(err)
	}
	return changedRows(result)
}

func (r *postgresMatchRepository) MarkBye(ctx context.Context, exec SQLExecutor, matchID int) error {
	query := `UPDATE matches SET is_bye = TRUE WHERE id = $1`
	result, err := executor(r.db, exec).ExecContext(ctx, query, matchID)
	if err != nil {
		return r.handleMatchError(err)
	}
	return checkAffectedRows(result, ErrMatchNotFound)
}

func (r *postgresMatchRepository) handleMatchError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "matches_bracket_round_position_key" {
				return ErrMatchSlotTaken
			}
		case "23503":
			return ErrMatchReferenceInvalid
		case "23514":
			if pqErr.Constraint == "matches_distinct_teams_check" {
				return ErrMatchSameTeam
			}
			return ErrMatchValueInvalid
		}
	}
	return err
}
