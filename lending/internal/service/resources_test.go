package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/errs"
	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
	"github.com/Astemirdum/lending-service/lending/internal/service"
)

func TestResourceService_Members(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	svc := service.NewMemberService(fx.members, zap.NewNop())

	created, err := svc.Create(ctx, model.Member{Name: "Ana", Surname: "Ruiz", Email: "ana@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.NewDate(time.Now()).String(), created.RegistrationDate.String())

	_, err = svc.Create(ctx, model.Member{ID: created.ID, Name: "Dup", Surname: "Dup", Email: "dup@example.com"})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	updated, err := svc.Update(ctx, created.ID, model.Member{ID: "ignored", Name: "Ana", Surname: "Ruiz", Email: "ana@example.org"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, created.RegistrationDate, updated.RegistrationDate)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.org", got.Email)

	_, err = svc.Update(ctx, "missing", model.Member{Name: "x"})
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, created.ID), errs.ErrNotFound)
}

func TestResourceService_StudentsAndEmployees(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	students := service.NewStudentService(
		repository.NewBoltResourceStore[model.Student](fx.client, repository.KindStudent), zap.NewNop())
	employees := service.NewEmployeeService(
		repository.NewBoltResourceStore[model.Employee](fx.client, repository.KindEmployee), zap.NewNop())

	_, err := students.Create(ctx, model.Student{ID: "s1", Name: "Luis", Surname: "Gomez", Age: 20})
	require.NoError(t, err)
	list, err := students.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	hired := model.NewDate(time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC))
	_, err = employees.Create(ctx, model.Employee{ID: "e1", Name: "Eva", Surname: "Lopez", HireDate: hired})
	require.NoError(t, err)
	e, err := employees.Update(ctx, "e1", model.Employee{Name: "Eva", Surname: "Lopez", Position: "librarian"})
	require.NoError(t, err)
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, "2020-05-01", e.HireDate.String())
}

func TestResourceService_ConcurrentCreateSameID(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()
	svc := service.NewMemberService(fx.members, zap.NewNop())

	const (
		rounds  = 50
		workers = 8
	)
	for round := 0; round < rounds; round++ {
		id := fmt.Sprintf("m-%d", round)
		var (
			wg      sync.WaitGroup
			created atomic.Int32
			winner  atomic.Value
		)
		for w := 0; w < workers; w++ {
			w := w
			wg.Add(1)
			go func() {
				defer wg.Done()
				name := fmt.Sprintf("worker-%d", w)
				_, err := svc.Create(ctx, model.Member{ID: id, Name: name, Surname: "X", Email: "x@example.com"})
				if err == nil {
					created.Add(1)
					winner.Store(name)
					return
				}
				assert.ErrorIs(t, err, errs.ErrAlreadyExists)
			}()
		}
		wg.Wait()

		require.Equal(t, int32(1), created.Load(), "round %d", round)
		got, err := svc.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, winner.Load(), got.Name)
	}
}
