package certificate

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

	"certledger/internal/issuance/models"
)

// PostgresStore persists certificates in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed certificate store.
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

const certificateColumns = `id, issuer_id, issuer_name_snapshot, recipient_name_snapshot,
	recipient_email_snapshot, subject, time_period, extra_content, template,
	certificate_code, attestation_id, issued_at`

func (s *PostgresStore) Create(ctx context.Context, cert *models.Certificate) error {
	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(cert.ID),
		uuid.UUID(cert.IssuerID),
		cert.IssuerNameSnapshot,
		cert.RecipientNameSnapshot,
		cert.RecipientEmailSnapshot,
		cert.Subject,
		cert.TimePeriod,
		cert.ExtraContent,
		cert.Template,
		cert.CertificateCode,
		cert.AttestationID,
		cert.IssuedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("certificate already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	cert, err := scanCertificate(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(certID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	return cert, nil
}

// SetAttestationID records the attestation reference with a compare-and-set:
// the update only applies while attestation_id is still NULL.
func (s *PostgresStore) SetAttestationID(ctx context.Context, certID id.CertificateID, ref string) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`UPDATE certificates SET attestation_id = $2 WHERE id = $1 AND attestation_id IS NULL`,
		uuid.UUID(certID), ref)
	if err != nil {
		return fmt.Errorf("set attestation id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set attestation id: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM certificates WHERE id = $1)`, uuid.UUID(certID)).Scan(&exists); err != nil {
			return fmt.Errorf("set attestation id: %w", err)
		}
		if !exists {
			return fmt.Errorf("certificate not found: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("certificate already attested: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *PostgresStore) ListByIssuer(ctx context.Context, issuerID id.IssuerID) ([]*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE issuer_id = $1 ORDER BY issued_at DESC`
	return s.queryCertificates(ctx, query, uuid.UUID(issuerID))
}

func (s *PostgresStore) ListByRecipientEmail(ctx context.Context, emailAddr string) ([]*models.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE recipient_email_snapshot = $1 ORDER BY issued_at DESC`
	return s.queryCertificates(ctx, query, emailAddr)
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]*models.Certificate, int, error) {
	where := ``
	args := []any{}
	and := func(cond string) {
		if where == "" {
			where = ` WHERE ` + cond
		} else {
			where += ` AND ` + cond
		}
	}

	if q := filter.Query; q != "" {
		args = append(args, "%"+q+"%")
		p := fmt.Sprintf("$%d", len(args))
		and(`(subject ILIKE ` + p +
			` OR recipient_name_snapshot ILIKE ` + p +
			` OR recipient_email_snapshot ILIKE ` + p +
			` OR issuer_name_snapshot ILIKE ` + p + `)`)
	}
	if filter.IssuerID != nil {
		args = append(args, uuid.UUID(*filter.IssuerID))
		and(fmt.Sprintf(`issuer_id = $%d`, len(args)))
	}
	if filter.IssuedFrom != nil {
		args = append(args, *filter.IssuedFrom)
		and(fmt.Sprintf(`issued_at >= $%d`, len(args)))
	}
	if filter.IssuedTo != nil {
		args = append(args, *filter.IssuedTo)
		and(fmt.Sprintf(`issued_at <= $%d`, len(args)))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM certificates` + where
	if err := s.execer(ctx).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count certificates: %w", err)
	}

	pageQuery := `SELECT ` + certificateColumns + ` FROM certificates` + where + ` ORDER BY issued_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		pageQuery += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		pageQuery += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	certs, err := s.queryCertificates(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	return certs, total, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM certificates`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count certificates: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountByIssuer(ctx context.Context, issuerID id.IssuerID) (int, error) {
	var count int
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM certificates WHERE issuer_id = $1`, uuid.UUID(issuerID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count certificates by issuer: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) queryCertificates(ctx context.Context, query string, args ...any) ([]*models.Certificate, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.Certificate, error) {
	var cert models.Certificate
	var certID, issuerID uuid.UUID
	var attestationID sql.NullString
	if err := row.Scan(
		&certID,
		&issuerID,
		&cert.IssuerNameSnapshot,
		&cert.RecipientNameSnapshot,
		&cert.RecipientEmailSnapshot,
		&cert.Subject,
		&cert.TimePeriod,
		&cert.ExtraContent,
		&cert.Template,
		&cert.CertificateCode,
		&attestationID,
		&cert.IssuedAt,
	); err != nil {
		return nil, err
	}
	cert.ID = id.CertificateID(certID)
	cert.IssuerID = id.IssuerID(issuerID)
	if attestationID.Valid {
		cert.AttestationID = &attestationID.String
	}
	return &cert, nil
}
