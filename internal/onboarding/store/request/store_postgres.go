package request

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

	"certledger/internal/onboarding/models"
)

// PostgresStore persists onboarding requests in PostgreSQL.
//
// The at-most-one-PENDING-request-per-email invariant is enforced by a
// partial unique index:
//
//	CREATE UNIQUE INDEX onboarding_requests_pending_email
//	    ON onboarding_requests (email) WHERE status = 'PENDING'
//
// Execute serializes concurrent decisions with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
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

const requestColumns = `id, institution_name, email, phone, address, document_path, document_name,
	status, decided_by, decided_at, created_account_id, created_at, updated_at`

func (s *PostgresStore) CreateIfNoPending(ctx context.Context, req *models.Request) error {
	query := `
		INSERT INTO onboarding_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(req.ID),
		req.InstitutionName,
		req.Email,
		req.Phone,
		req.Address,
		req.DocumentPath,
		req.DocumentName,
		string(req.Status),
		nullableAccountID(req.DecidedBy),
		req.DecidedAt,
		nullableAccountID(req.CreatedAccountID),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("pending request exists for %q: %w", req.Email, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert onboarding request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM onboarding_requests WHERE id = $1`
	req, err := scanRequest(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("onboarding request not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find onboarding request: %w", err)
	}
	return req, nil
}

// Execute atomically validates and mutates a request. The row is locked with
// FOR UPDATE for the duration, so concurrent decisions on the same request
// serialize and the loser sees the already-transitioned row in validate.
// Call inside a transaction (txcontext) or the lock is released immediately.
func (s *PostgresStore) Execute(
	ctx context.Context,
	requestID id.RequestID,
	validate func(*models.Request) error,
	mutate func(*models.Request),
) (*models.Request, error) {
	exec := s.execer(ctx)

	query := `SELECT ` + requestColumns + ` FROM onboarding_requests WHERE id = $1 FOR UPDATE`
	req, err := scanRequest(exec.QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("onboarding request not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("lock onboarding request: %w", err)
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	mutate(req)

	update := `
		UPDATE onboarding_requests
		SET status = $2, decided_by = $3, decided_at = $4, created_account_id = $5, updated_at = $6
		WHERE id = $1
	`
	if _, err := exec.ExecContext(ctx, update,
		uuid.UUID(req.ID),
		string(req.Status),
		nullableAccountID(req.DecidedBy),
		req.DecidedAt,
		nullableAccountID(req.CreatedAccountID),
		req.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update onboarding request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM onboarding_requests
		WHERE status = 'PENDING'
		ORDER BY created_at DESC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending onboarding requests: %w", err)
	}
	defer rows.Close()

	var pending []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan onboarding request: %w", err)
		}
		pending = append(pending, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending onboarding requests: %w", err)
	}
	return pending, nil
}

func (s *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM onboarding_requests WHERE status = 'PENDING'`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending onboarding requests: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var req models.Request
	var requestID uuid.UUID
	var status string
	var decidedBy, createdAccountID uuid.NullUUID
	if err := row.Scan(
		&requestID,
		&req.InstitutionName,
		&req.Email,
		&req.Phone,
		&req.Address,
		&req.DocumentPath,
		&req.DocumentName,
		&status,
		&decidedBy,
		&req.DecidedAt,
		&createdAccountID,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.ID = id.RequestID(requestID)
	req.Status = models.Status(status)
	if decidedBy.Valid {
		accountID := id.AccountID(decidedBy.UUID)
		req.DecidedBy = &accountID
	}
	if createdAccountID.Valid {
		accountID := id.AccountID(createdAccountID.UUID)
		req.CreatedAccountID = &accountID
	}
	return &req, nil
}

func nullableAccountID(accountID *id.AccountID) uuid.NullUUID {
	if accountID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*accountID), Valid: true}
}
