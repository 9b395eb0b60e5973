//go:build integration

package request_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/onboarding/models"
	"certledger/internal/onboarding/store/request"
	"certledger/internal/platform/postgres"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/platform/tx"
	"certledger/pkg/testutil/containers"
)

type PostgresRequestSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *request.PostgresStore
	runner   *tx.SQLRunner
}

func TestPostgresRequestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRequestSuite))
}

func (s *PostgresRequestSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.EnsureSchema(context.Background(), s.postgres.DB))
	s.store = request.NewPostgres(s.postgres.DB)
	s.runner = tx.NewSQLRunner(s.postgres.DB)
}

func (s *PostgresRequestSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresRequestSuite) newRequest(name, emailAddr string) *models.Request {
	req, err := models.NewRequest(id.NewRequestID(), name, emailAddr, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return req
}

// The partial unique index admits at most one PENDING row per email, even
// under concurrent submissions.
func (s *PostgresRequestSuite) TestConcurrentPendingUniqueness() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicted atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfNoPending(ctx, s.newRequest("Acme U", "admin@acme.edu"))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicted.Load())
}

func (s *PostgresRequestSuite) TestEmailFreedAfterDecision() {
	ctx := context.Background()
	first := s.newRequest("Acme U", "admin@acme.edu")
	s.Require().NoError(s.store.CreateIfNoPending(ctx, first))

	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Execute(txCtx, first.ID,
			func(*models.Request) error { return nil },
			func(r *models.Request) { r.ApplyRejection(id.NewAccountID(), time.Now().UTC()) },
		)
		return err
	})
	s.Require().NoError(err)

	s.Require().NoError(s.store.CreateIfNoPending(ctx, s.newRequest("Acme Again", "admin@acme.edu")))
}

// FOR UPDATE serializes concurrent decisions: the loser's validate sees the
// already-transitioned row.
func (s *PostgresRequestSuite) TestExecuteSerializesDecisions() {
	ctx := context.Background()
	req := s.newRequest("Acme U", "race@acme.edu")
	s.Require().NoError(s.store.CreateIfNoPending(ctx, req))

	validate := func(r *models.Request) error {
		if r.Status != models.StatusPending {
			return sentinel.ErrAlreadyDecided
		}
		return nil
	}

	const goroutines = 8
	var wg sync.WaitGroup
	var approved, alreadyDecided atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
				_, err := s.store.Execute(txCtx, req.ID, validate, func(r *models.Request) {
					r.ApplyApproval(id.NewAccountID(), id.NewAccountID(), time.Now().UTC())
				})
				return err
			})
			switch {
			case err == nil:
				approved.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyDecided):
				alreadyDecided.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), approved.Load())
	s.Equal(int32(goroutines-1), alreadyDecided.Load())

	found, err := s.store.FindByID(ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, found.Status)
	s.NotNil(found.DecidedBy)
	s.NotNil(found.CreatedAccountID)
}

func (s *PostgresRequestSuite) TestListAndCountPending() {
	ctx := context.Background()

	older := s.newRequest("Older U", "older@u.edu")
	s.Require().NoError(s.store.CreateIfNoPending(ctx, older))
	newer := s.newRequest("Newer U", "newer@u.edu")
	newer.CreatedAt = older.CreatedAt.Add(time.Minute)
	s.Require().NoError(s.store.CreateIfNoPending(ctx, newer))

	decided := s.newRequest("Decided U", "decided@u.edu")
	s.Require().NoError(s.store.CreateIfNoPending(ctx, decided))
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Execute(txCtx, decided.ID,
			func(*models.Request) error { return nil },
			func(r *models.Request) { r.ApplyRejection(id.NewAccountID(), time.Now().UTC()) },
		)
		return err
	})
	s.Require().NoError(err)

	pending, err := s.store.ListPending(ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal("Newer U", pending[0].InstitutionName)

	count, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}
