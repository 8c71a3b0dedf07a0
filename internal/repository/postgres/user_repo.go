package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/triplog-app/triplog/internal/domain"
)

type UserRepo struct {
	DB *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userSelectFields = `id, provider, social_id, COALESCE(email, '') AS email, COALESCE(name, '') AS name, created_at`

// scanUser is a helper that scans a row into a domain.User
func scanUser(row interface{ Scan(dest ...any) error }) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Provider,
		&user.SocialID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID retrieves a user by ID. Returns nil without error when absent.
func (r *UserRepo) GetByID(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE id = $1;`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}
	return user, nil
}

// GetBySocialID retrieves a user by (provider, social_id).
func (r *UserRepo) GetBySocialID(ctx context.Context, provider domain.Provider, socialID string) (*domain.User, error) {
	query := `SELECT ` + userSelectFields + ` FROM users WHERE provider = $1 AND social_id = $2;`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, provider, socialID))
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}
	return user, nil
}

// FindOrCreate resolves an identity assertion to a user row, creating it on
// first login. The (provider, social_id) uniqueness constraint plus
// ON CONFLICT DO NOTHING collapse concurrent first logins to a single row,
// so repeated exchanges for the same external identity never duplicate users.
// Email drift across logins does not update an existing row.
func (r *UserRepo) FindOrCreate(ctx context.Context, a domain.IdentityAssertion) (*domain.User, bool, error) {
	user, err := r.GetBySocialID(ctx, a.Provider, a.SocialID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	insert := `
	INSERT INTO users (provider, social_id, email, name)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (provider, social_id) DO NOTHING
	RETURNING ` + userSelectFields + `;`

	user, err = scanUser(r.DB.QueryRowContext(ctx, insert, a.Provider, a.SocialID, a.Email, a.Name))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %v", err)
	}
	if user != nil {
		return user, true, nil
	}

	// Conflict: a concurrent exchange won the insert. Re-read its row.
	user, err = r.GetBySocialID(ctx, a.Provider, a.SocialID)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, fmt.Errorf("user vanished after insert conflict: %s/%s", a.Provider, a.SocialID)
	}
	return user, false, nil
}
