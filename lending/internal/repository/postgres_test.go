package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/errs"
	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
	"github.com/Astemirdum/lending-service/lending/migrations"
	"github.com/Astemirdum/lending-service/pkg/postgres"
)

func startPostgresDockerContainer(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err = pool.Client.Ping(); err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=postgres",
			"POSTGRES_DB=lending",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("Failed to start postgres: %+v", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	})

	cfg := &postgres.DB{
		Host:     "localhost",
		Port:     resource.GetPort("5432/tcp"),
		Username: "postgres",
		Password: "postgres",
		NameDB:   "lending",
		SSLMode:  "disable",
	}
	var db *pgxpool.Pool
	err = pool.Retry(func() error {
		var errC error
		db, errC = postgres.NewPostgresDB(context.Background(), cfg, migrations.MigrationFiles)
		return errC
	})
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %+v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestPostgresStore(t *testing.T) {
	db := startPostgresDockerContainer(t)
	repo := repository.NewPostgresRepository(db, zap.NewNop())
	ctx := context.Background()

	t.Run("books", func(t *testing.T) {
		err := repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			return s.CreateBook(ctx, model.Book{ID: "b1", Title: "Dune", Author: "Herbert", Available: true})
		})
		require.NoError(t, err)

		err = repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			return s.CreateBook(ctx, model.Book{ID: "b1", Title: "Dup", Author: "x"})
		})
		require.ErrorIs(t, err, errs.ErrAlreadyExists)

		err = repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			return s.UpdateBook(ctx, model.Book{ID: "b1", Title: "Dune", Author: "Frank Herbert", Available: false})
		})
		require.NoError(t, err)

		err = repo.View(ctx, func(ctx context.Context, s repository.Store) error {
			book, err := s.GetBook(ctx, "b1")
			if err != nil {
				return err
			}
			assert.Equal(t, "Frank Herbert", book.Author)
			assert.True(t, book.Available)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("one active loan per book", func(t *testing.T) {
		err := repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			_, err := s.CreateLoan(ctx, model.Loan{ID: "l1", MemberID: "m1", BookID: "b1", LoanDate: date("2024-03-01")})
			return err
		})
		require.NoError(t, err)

		err = repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			_, err := s.CreateLoan(ctx, model.Loan{ID: "l2", MemberID: "m2", BookID: "b1", LoanDate: date("2024-03-01")})
			return err
		})
		require.ErrorIs(t, err, errs.ErrDuplicateActiveLoan)

		err = repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			_, err := s.CreateLoan(ctx, model.Loan{ID: "l1", MemberID: "m2", BookID: "b9", LoanDate: date("2024-03-01")})
			return err
		})
		require.ErrorIs(t, err, errs.ErrAlreadyExists)
	})

	t.Run("return", func(t *testing.T) {
		err := repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			loan, err := s.MarkReturned(ctx, "l1", date("2024-03-04"))
			if err != nil {
				return err
			}
			assert.Equal(t, model.LoanStatusReturned, loan.Status)
			assert.Equal(t, "2024-03-04", loan.ReturnDate.String())
			return nil
		})
		require.NoError(t, err)

		err = repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			_, err := s.MarkReturned(ctx, "l1", date("2024-03-05"))
			return err
		})
		require.ErrorIs(t, err, errs.ErrInvalidTransition)

		err = repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			_, err := s.MarkReturned(ctx, "missing", date("2024-03-05"))
			return err
		})
		require.ErrorIs(t, err, errs.ErrNotFound)

		err = repo.View(ctx, func(ctx context.Context, s repository.Store) error {
			history, err := s.ListLoans(ctx, model.LoanStatusReturned)
			if err != nil {
				return err
			}
			require.Len(t, history, 1)
			_, ok, err := s.FindActiveByBook(ctx, "b1")
			assert.False(t, ok)
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rollback keeps the flag", func(t *testing.T) {
		err := repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			if err := s.SetAvailability(ctx, "b1", false); err != nil {
				return err
			}
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		err = repo.View(ctx, func(ctx context.Context, s repository.Store) error {
			book, err := s.GetBook(ctx, "b1")
			if err != nil {
				return err
			}
			assert.True(t, book.Available)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("concurrent loans on one book", func(t *testing.T) {
		require.NoError(t, repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
			return s.CreateBook(ctx, model.Book{ID: "b2", Title: "Emma", Author: "Austen", Available: true})
		}))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for _, id := range []string{"c1", "c2", "c3", "c4"} {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
					book, err := s.GetBook(ctx, "b2")
					if err != nil {
						return err
					}
					if !book.Available {
						return errs.ErrBookNotAvailable
					}
					if err := s.SetAvailability(ctx, "b2", false); err != nil {
						return err
					}
					_, err = s.CreateLoan(ctx, model.Loan{ID: id, MemberID: "m1", BookID: "b2", LoanDate: date("2024-03-01")})
					return err
				})
				if err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, success)
	})

	t.Run("concurrent returns of one loan", func(t *testing.T) {
		var active model.Loan
		require.NoError(t, repo.View(ctx, func(ctx context.Context, s repository.Store) error {
			loan, ok, err := s.FindActiveByBook(ctx, "b2")
			require.True(t, ok)
			active = loan
			return err
		}))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
			results []error
		)
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.Update(ctx, func(ctx context.Context, s repository.Store) error {
					stored, err := s.GetLoan(ctx, active.ID)
					if err != nil {
						return err
					}
					if !stored.IsActive() {
						return errs.ErrAlreadyReturned
					}
					_, err = s.MarkReturned(ctx, active.ID, date("2024-03-06"))
					return err
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					success++
					return
				}
				results = append(results, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, success)
		for _, err := range results {
			assert.ErrorIs(t, err, errs.ErrAlreadyReturned)
		}
	})

	t.Run("loans by member", func(t *testing.T) {
		err := repo.View(ctx, func(ctx context.Context, s repository.Store) error {
			loans, err := s.ListLoansByMember(ctx, "m1")
			if err != nil {
				return err
			}
			require.Len(t, loans, 2)
			assert.Equal(t, "l1", loans[1].ID)
			for _, loan := range loans {
				assert.Equal(t, "m1", loan.MemberID)
			}

			none, err := s.ListLoansByMember(ctx, "nobody")
			assert.Empty(t, none)
			return err
		})
		require.NoError(t, err)
	})
}

func TestPostgresResourceStore(t *testing.T) {
	db := startPostgresDockerContainer(t)
	students := repository.NewPostgresResourceStore[model.Student](db, repository.KindStudent, zap.NewNop())
	ctx := context.Background()

	s := model.Student{ID: "s1", Name: "Luis", Surname: "Gomez", Age: 20}
	require.NoError(t, students.Put(ctx, s.ID, s))
	s.Age = 21
	require.NoError(t, students.Put(ctx, s.ID, s))

	got, err := students.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 21, got.Age)

	list, err := students.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	err = students.Create(ctx, s.ID, model.Student{ID: "s1", Name: "Other", Age: 30})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
	got, err = students.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Luis", got.Name)

	require.NoError(t, students.Delete(ctx, "s1"))
	_, err = students.Get(ctx, "s1")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	require.NoError(t, students.Create(ctx, "s1", s))
}
