package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Dosada05/tournament-brackets/models"
	"github.com/lib/pq"
)

var (
	ErrBracketNotFound          = errors.New("bracket not found")
	ErrBracketTournamentInvalid = errors.New("bracket tournament conflict or invalid")
	ErrBracketKindInvalid       = errors.New("bracket kind or rounds invalid")
)

type BracketRepository interface {
	Create(ctx context.Context, exec SQLExecutor, bracket *models.Bracket) error
	GetByID(ctx context.Context, id int) (*models.Bracket, error)
	ListByTournament(ctx context.Context, tournamentID int) ([]*models.Bracket, error)
	DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error
}

type postgresBracketRepository struct {
	db *sql.DB
}

func NewPostgresBracketRepository(db *sql.DB) BracketRepository {
	return &postgresBracketRepository{db: db}
}

func (r *postgresBracketRepository) Create(ctx context.Context, exec SQLExecutor, bracket *models.Bracket) error {
	query := `
		INSERT INTO brackets (tournament_id, name, kind, rounds)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := executor(r.db, exec).QueryRowContext(ctx, query,
		bracket.TournamentID,
		bracket.Name,
		bracket.Kind,
		bracket.Rounds,
	).Scan(&bracket.ID, &bracket.CreatedAt)

	return r.handleBracketError(err)
}

func scanBracket(row rowScanner) (*models.Bracket, error) {
	var b models.Bracket
	if err := row.Scan(&b.ID, &b.TournamentID, &b.Name, &b.Kind, &b.Rounds, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *postgresBracketRepository) GetByID(ctx context.Context, id int) (*models.Bracket, error) {
	query := `
		SELECT id, tournament_id, name, kind, rounds, created_at
		FROM brackets
		WHERE id = $1`

	b, err := scanBracket(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBracketNotFound
		}
		return nil, err
	}
	return b, nil
}

func (r *postgresBracketRepository) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Bracket, error) {
	query := `
		SELECT id, tournament_id, name, kind, rounds, created_at
		FROM brackets
		WHERE tournament_id = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brackets := make([]*models.Bracket, 0)
	for rows.Next() {
		b, scanErr := scanBracket(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		brackets = append(brackets, b)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return brackets, nil
}

// DeleteByTournament removes every bracket of the tournament; matches and
// their results go with them through ON DELETE CASCADE.
func (r *postgresBracketRepository) DeleteByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) error {
	query := `DELETE FROM brackets WHERE tournament_id = $1`
	_, err := executor(r.db, exec).ExecContext(ctx, query, tournamentID)
	return r.handleBracketError(err)
}

func (r *postgresBracketRepository) handleBracketError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503":
			if pqErr.Constraint == "brackets_tournament_id_fkey" {
				return ErrBracketTournamentInvalid
			}
		case "23514":
			return ErrBracketKindInvalid
		}
	}
	return err
}
