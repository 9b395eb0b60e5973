package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	txcontext "certledger/pkg/platform/tx"

	"certledger/internal/issuer/models"
)

// PostgresStore persists issuer profiles in PostgreSQL. The unique index on
// account_id enforces one profile per account under concurrency.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed profile store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const profileColumns = `id, account_id, name, contact_number, address, location_url, logo_path, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO issuer_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(profile.ID),
		uuid.UUID(profile.AccountID),
		profile.Name,
		profile.ContactNumber,
		profile.Address,
		profile.LocationURL,
		profile.LogoPath,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("account already has an issuer profile: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert issuer profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, issuerID id.IssuerID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM issuer_profiles WHERE id = $1`
	profile, err := scanProfile(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(issuerID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find issuer profile by id: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) FindByAccountID(ctx context.Context, accountID id.AccountID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM issuer_profiles WHERE account_id = $1`
	profile, err := scanProfile(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(accountID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find issuer profile by account: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) Update(ctx context.Context, profile *models.Profile) error {
	query := `
		UPDATE issuer_profiles
		SET name = $2, contact_number = $3, address = $4, location_url = $5,
		    logo_path = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(profile.ID),
		profile.Name,
		profile.ContactNumber,
		profile.Address,
		profile.LocationURL,
		profile.LogoPath,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update issuer profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update issuer profile: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteByAccountID(ctx context.Context, accountID id.AccountID) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM issuer_profiles WHERE account_id = $1`, uuid.UUID(accountID))
	if err != nil {
		return fmt.Errorf("delete issuer profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete issuer profile: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("issuer profile not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, query string, limit int) ([]*models.Profile, error) {
	sqlQuery := `SELECT ` + profileColumns + ` FROM issuer_profiles`
	args := []any{}
	if query != "" {
		args = append(args, "%"+query+"%")
		sqlQuery += ` WHERE name ILIKE $1`
	}
	sqlQuery += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		sqlQuery += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.execer(ctx).QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("list issuer profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issuer profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issuer profiles: %w", err)
	}
	return profiles, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	var profile models.Profile
	var issuerID, accountID uuid.UUID
	if err := row.Scan(
		&issuerID,
		&accountID,
		&profile.Name,
		&profile.ContactNumber,
		&profile.Address,
		&profile.LocationURL,
		&profile.LogoPath,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	); err != nil {
		return nil, err
	}
	profile.ID = id.IssuerID(issuerID)
	profile.AccountID = id.AccountID(accountID)
	return &profile, nil
}
