package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	txcontext "certledger/pkg/platform/tx"

	"certledger/internal/notification/models"
)

// PostgresStore persists notifications in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed notification store.
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

const notificationColumns = `id, recipient_email, type, title, message, certificate_id, is_read, read_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(n.ID),
		n.RecipientEmail,
		n.Type,
		n.Title,
		n.Message,
		uuid.UUID(n.CertificateID),
		n.IsRead,
		n.ReadAt,
		n.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("notification already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkRead flips one notification to read, matching on both id and
// recipient. Zero rows affected is NotFound whether the id is unknown or the
// recipient does not match.
func (s *PostgresStore) MarkRead(ctx context.Context, notifID id.NotificationID, recipientEmail string, readAt time.Time) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_email = $2
	`
	result, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(notifID), recipientEmail, readAt)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, recipientEmail string, readAt time.Time) (int, error) {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = $2
		WHERE recipient_email = $1 AND is_read = FALSE
	`
	result, err := s.execer(ctx).ExecContext(ctx, query, recipientEmail, readAt)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(affected), nil
}

func (s *PostgresStore) CountUnread(ctx context.Context, recipientEmail string) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_email = $1 AND is_read = FALSE`,
		recipientEmail).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipientEmail string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_email = $1
		ORDER BY created_at DESC
	`
	args := []any{recipientEmail}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var n models.Notification
	var notifID, certID uuid.UUID
	if err := row.Scan(
		&notifID,
		&n.RecipientEmail,
		&n.Type,
		&n.Title,
		&n.Message,
		&certID,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.ID = id.NotificationID(notifID)
	n.CertificateID = id.CertificateID(certID)
	return &n, nil
}
