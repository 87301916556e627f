package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/tournament-brackets/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrTournamentInvalidWinner = errors.New("invalid winner team reference")
	ErrTournamentInvalidValue  = errors.New("invalid tournament status or format")
)

type TournamentRepository interface {
	GetByID(ctx context.Context, id int) (*models.Tournament, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	UpdateFormat(ctx context.Context, exec SQLExecutor, id int, format models.FormatKind) error
	UpdateWinner(ctx context.Context, exec SQLExecutor, id int, winnerTeamID *int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	query := `
		SELECT id, name, format, status, organizer_id, winner_team_id, created_at
		FROM tournaments
		WHERE id = $1`

	var (
		t      models.Tournament
		format sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&format,
		&t.Status,
		&t.OrganizerID,
		&t.WinnerTeamID,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if format.Valid {
		kind := models.FormatKind(format.String)
		t.Format = &kind
	}
	return &t, nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := executor(r.db, exec).ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateFormat(ctx context.Context, exec SQLExecutor, id int, format models.FormatKind) error {
	query := `UPDATE tournaments SET format = $1 WHERE id = $2`
	result, err := executor(r.db, exec).ExecContext(ctx, query, format, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) UpdateWinner(ctx context.Context, exec SQLExecutor, id int, winnerTeamID *int) error {
	query := `UPDATE tournaments SET winner_team_id = $1 WHERE id = $2`
	result, err := executor(r.db, exec).ExecContext(ctx, query, winnerTeamID, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			if pqErr.Constraint == "tournaments_winner_team_id_fkey" {
				return ErrTournamentInvalidWinner
			}
		case "23514":
			return ErrTournamentInvalidValue
		}
	}
	return err
}
