//go:build integration

package account_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certledger/internal/identity/models"
	"certledger/internal/identity/store/account"
	"certledger/internal/platform/postgres"
	id "certledger/pkg/domain"
	"certledger/pkg/platform/sentinel"
	"certledger/pkg/testutil/containers"
)

type PostgresAccountSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *account.PostgresStore
}

func TestPostgresAccountSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAccountSuite))
}

func (s *PostgresAccountSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.EnsureSchema(context.Background(), s.postgres.DB))
	s.store = account.NewPostgres(s.postgres.DB)
}

func (s *PostgresAccountSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateAll(context.Background()))
}

func (s *PostgresAccountSuite) newAccount(name, emailAddr string, role id.Role) *models.Account {
	created, err := models.NewAccount(id.NewAccountID(), name, emailAddr, role, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	created.SecretHash = "hash"
	return created
}

// The unique email constraint admits exactly one account under concurrent
// creation.
func (s *PostgresAccountSuite) TestConcurrentDuplicateEmail() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicted atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.CreateIfEmailAvailable(ctx, s.newAccount("Jane", "jane@example.com", id.RoleStudent))
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

func (s *PostgresAccountSuite) TestLookupsAndUpdate() {
	ctx := context.Background()
	created := s.newAccount("Jane", "jane@example.com", id.RoleStudent)
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, created))

	byEmail, err := s.store.FindByEmail(ctx, "jane@example.com")
	s.Require().NoError(err)
	s.Equal(created.ID, byEmail.ID)

	byEmail.Email = "jane.doe@example.com"
	byEmail.Banned = true
	s.Require().NoError(s.store.Update(ctx, byEmail))

	_, err = s.store.FindByEmail(ctx, "jane@example.com")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	updated, err := s.store.FindByID(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal("jane.doe@example.com", updated.Email)
	s.True(updated.Banned)

	// Moving onto a taken email is a conflict.
	other := s.newAccount("John", "john@example.com", id.RoleStudent)
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, other))
	other.Email = "jane.doe@example.com"
	s.Require().ErrorIs(s.store.Update(ctx, other), sentinel.ErrConflict)
}

func (s *PostgresAccountSuite) TestDelete() {
	ctx := context.Background()
	created := s.newAccount("Jane", "del@example.com", id.RoleStudent)
	s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, created))

	s.Require().NoError(s.store.Delete(ctx, created.ID))
	_, err := s.store.FindByID(ctx, created.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	s.Require().ErrorIs(s.store.Delete(ctx, created.ID), sentinel.ErrNotFound)
}

func (s *PostgresAccountSuite) TestListAndCounts() {
	ctx := context.Background()
	accounts := []*models.Account{
		s.newAccount("Acme University", "registrar@acme.edu", id.RoleInstitution),
		s.newAccount("Jane Doe", "jane@example.com", id.RoleStudent),
		s.newAccount("John Doe", "john@example.com", id.RoleStudent),
	}
	for i, acc := range accounts {
		acc.CreatedAt = acc.CreatedAt.Add(time.Duration(i) * time.Second)
		s.Require().NoError(s.store.CreateIfEmailAvailable(ctx, acc))
	}

	listed, total, err := s.store.List(ctx, models.AccountFilter{Role: id.RoleStudent})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(listed, 2)

	listed, total, err = s.store.List(ctx, models.AccountFilter{Query: "acme"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("registrar@acme.edu", listed[0].Email)

	listed, total, err = s.store.List(ctx, models.AccountFilter{Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(listed, 2)
	s.Equal("john@example.com", listed[0].Email)

	byRole, err := s.store.CountByRole(ctx)
	s.Require().NoError(err)
	s.Equal(2, byRole[id.RoleStudent])
	s.Equal(1, byRole[id.RoleInstitution])
}
