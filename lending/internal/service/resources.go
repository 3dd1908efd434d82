package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
)

// ResourceService is CRUD over a resource store for records that carry no
// lending rules of their own.
type ResourceService[T any] struct {
	log   *zap.Logger
	store repository.ResourceStore[T]
	clock Clock
	id    func(*T) *string
	// fill completes a record before it is written; prev is nil on create.
	fill func(rec *T, prev *T, today model.Date)
}

func NewMemberService(store repository.ResourceStore[model.Member], log *zap.Logger) *ResourceService[model.Member] {
	return &ResourceService[model.Member]{
		log:   log.Named(repository.KindMember),
		store: store,
		clock: systemClock{},
		id:    func(m *model.Member) *string { return &m.ID },
		fill: func(m, prev *model.Member, today model.Date) {
			if !m.RegistrationDate.IsZero() {
				return
			}
			if prev != nil {
				m.RegistrationDate = prev.RegistrationDate
				return
			}
			m.RegistrationDate = today
		},
	}
}

func NewStudentService(store repository.ResourceStore[model.Student], log *zap.Logger) *ResourceService[model.Student] {
	return &ResourceService[model.Student]{
		log:   log.Named(repository.KindStudent),
		store: store,
		clock: systemClock{},
		id:    func(s *model.Student) *string { return &s.ID },
	}
}

func NewEmployeeService(store repository.ResourceStore[model.Employee], log *zap.Logger) *ResourceService[model.Employee] {
	return &ResourceService[model.Employee]{
		log:   log.Named(repository.KindEmployee),
		store: store,
		clock: systemClock{},
		id:    func(e *model.Employee) *string { return &e.ID },
		fill: func(e, prev *model.Employee, _ model.Date) {
			if e.HireDate.IsZero() && prev != nil {
				e.HireDate = prev.HireDate
			}
		},
	}
}

func (s *ResourceService[T]) List(ctx context.Context) ([]T, error) {
	return s.store.List(ctx)
}

func (s *ResourceService[T]) Get(ctx context.Context, id string) (T, error) {
	return s.store.Get(ctx, id)
}

// Create stores rec under its own id, or under a fresh uuid when it has none.
func (s *ResourceService[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	id := s.id(&rec)
	if *id == "" {
		*id = uuid.NewString()
	}

	if s.fill != nil {
		s.fill(&rec, nil, model.NewDate(s.clock.Now()))
	}
	if err := s.store.Create(ctx, *id, rec); err != nil {
		return zero, err
	}
	s.log.Debug("created", zap.String("id", *id))
	return rec, nil
}

// Update replaces an existing record. The id in the path wins over the body.
func (s *ResourceService[T]) Update(ctx context.Context, id string, rec T) (T, error) {
	var zero T
	prev, err := s.store.Get(ctx, id)
	if err != nil {
		return zero, err
	}

	*s.id(&rec) = id
	if s.fill != nil {
		s.fill(&rec, &prev, model.NewDate(s.clock.Now()))
	}
	if err := s.store.Put(ctx, id, rec); err != nil {
		return zero, err
	}
	return rec, nil
}

func (s *ResourceService[T]) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}
