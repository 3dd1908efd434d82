package service

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
	"github.com/Astemirdum/lending-service/pkg/keylock"
)

// Locker serializes lending writes per book id.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Publisher interface {
	Enqueue(topic, key string, v any) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID() string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ulidGenerator hands out monotonic ulids, so loan ids sort in creation order.
type ulidGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDGenerator() *ulidGenerator {
	return &ulidGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

type noopPublisher struct{}

func (noopPublisher) Enqueue(string, string, any) error { return nil }

type Option func(*Service)

func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithClock(c Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) {
		s.ids = g
	}
}

// Service is the lending engine. It is the only writer of a book's
// availability flag and of loan status.
type Service struct {
	log       *zap.Logger
	repo      repository.Repository
	members   repository.ResourceStore[model.Member]
	locker    Locker
	publisher Publisher
	clock     Clock
	ids       IDGenerator
}

func NewService(repo repository.Repository, members repository.ResourceStore[model.Member], log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		log:       log.Named("engine"),
		repo:      repo,
		members:   members,
		locker:    keylock.New(),
		publisher: noopPublisher{},
		clock:     systemClock{},
		ids:       newULIDGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() model.Date {
	return model.NewDate(s.clock.Now())
}
