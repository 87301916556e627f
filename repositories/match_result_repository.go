package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/tournament-brackets/models"
	"github.com/lib/pq"
)

var (
	ErrMatchResultNotFound     = errors.New("match result not found")
	ErrMatchResultMatchInvalid = errors.New("match result references an unknown match")
	ErrMatchResultScoreInvalid = errors.New("match result score invalid")
)

// MatchResultRepository stores append-only score submissions; the most recent
// row of a match is authoritative.
type MatchResultRepository interface {
	Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error
	LatestByMatch(ctx context.Context, matchID int) (*models.MatchResult, error)
	// LatestByTournament maps match id to its latest result.
	LatestByTournament(ctx context.Context, tournamentID int) (map[int]*models.MatchResult, error)
	Confirm(ctx context.Context, exec SQLExecutor, resultID int) error
}

type postgresMatchResultRepository struct {
	db *sql.DB
}

func NewPostgresMatchResultRepository(db *sql.DB) MatchResultRepository {
	return &postgresMatchResultRepository{db: db}
}

const matchResultColumns = `id, match_id, team1_score, team2_score, submitted_by, is_confirmed, details, created_at`

func scanMatchResult(row rowScanner) (*models.MatchResult, error) {
	var res models.MatchResult
	err := row.Scan(
		&res.ID,
		&res.MatchID,
		&res.Team1Score,
		&res.Team2Score,
		&res.SubmittedBy,
		&res.IsConfirmed,
		&res.Details,
		&res.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *postgresMatchResultRepository) Create(ctx context.Context, exec SQLExecutor, result *models.MatchResult) error {
	query := `
		INSERT INTO match_results (match_id, team1_score, team2_score, submitted_by, is_confirmed, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	err := executor(r.db, exec).QueryRowContext(ctx, query,
		result.MatchID,
		result.Team1Score,
		result.Team2Score,
		result.SubmittedBy,
		result.IsConfirmed,
		result.Details,
	).Scan(&result.ID, &result.CreatedAt)

	return r.handleMatchResultError(err)
}

func (r *postgresMatchResultRepository) LatestByMatch(ctx context.Context, matchID int) (*models.MatchResult, error) {
	query := `
		SELECT ` + matchResultColumns + `
		FROM match_results
		WHERE match_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	res, err := scanMatchResult(r.db.QueryRowContext(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchResultNotFound
		}
		return nil, err
	}
	return res, nil
}

func (r *postgresMatchResultRepository) LatestByTournament(ctx context.Context, tournamentID int) (map[int]*models.MatchResult, error) {
	query := `
		SELECT DISTINCT ON (mr.match_id)
			mr.id, mr.match_id, mr.team1_score, mr.team2_score, mr.submitted_by, mr.is_confirmed, mr.details, mr.created_at
		FROM match_results mr
		JOIN matches m ON m.id = mr.match_id
		WHERE m.tournament_id = $1
		ORDER BY mr.match_id, mr.created_at DESC, mr.id DESC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make(map[int]*models.MatchResult)
	for rows.Next() {
		res, scanErr := scanMatchResult(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		results[res.MatchID] = res
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *postgresMatchResultRepository) Confirm(ctx context.Context, exec SQLExecutor, resultID int) error {
	query := `UPDATE match_results SET is_confirmed = TRUE WHERE id = $1`
	result, err := executor(r.db, exec).ExecContext(ctx, query, resultID)
	if err != nil {
		return r.handleMatchResultError(err)
	}
	return checkAffectedRows(result, ErrMatchResultNotFound)
}

func (r *postgresMatchResultRepository) handleMatchResultError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			if pqErr.Constraint == "match_results_match_id_fkey" {
				return ErrMatchResultMatchInvalid
			}
		case "23514":
			return ErrMatchResultScoreInvalid
		}
	}
	return err
}
