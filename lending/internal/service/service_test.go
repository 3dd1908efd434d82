package service_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/boltdb/bolt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/lending-service/lending/internal/model"
	"github.com/Astemirdum/lending-service/lending/internal/repository"
	"github.com/Astemirdum/lending-service/lending/internal/service"
	"github.com/Astemirdum/lending-service/pkg/boltdb"
	"github.com/Astemirdum/lending-service/pkg/kafka"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(day string) *fakeClock {
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		panic(err)
	}
	return &fakeClock{now: t.Add(10 * time.Hour)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(day string) {
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.now = t.Add(10 * time.Hour)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.EventLending
	err    error
}

func (p *recordingPublisher) Enqueue(topic, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ev := v.(kafka.EventLending)
	if topic != kafka.LendingTopic || key != ev.BookID {
		panic("unexpected topic or key")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []kafka.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]kafka.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc     *service.Service
	repo    repository.Repository
	client  *bolt.DB
	members repository.ResourceStore[model.Member]
	clock   *fakeClock
	events  *recordingPublisher
}

func newFixture(t *testing.T, wrap func(repository.Repository) repository.Repository) *fixture {
	t.Helper()
	f, err := os.CreateTemp("", "tmp.engine.db-")
	require.NoError(t, err)
	f.Close()

	client, err := boltdb.NewBoltDB(boltdb.Config{FilePath: f.Name(), Timeout: 5 * time.Second}, repository.BoltBuckets...)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.Close()
		os.Remove(f.Name())
	})

	var repo repository.Repository = repository.NewBoltRepository(client, zap.NewNop())
	if wrap != nil {
		repo = wrap(repo)
	}
	members := repository.NewBoltResourceStore[model.Member](client, repository.KindMember)
	fx := &fixture{
		repo:    repo,
		client:  client,
		members: members,
		clock:   newFakeClock("2024-03-01"),
		events:  &recordingPublisher{},
	}
	fx.svc = service.NewService(repo, members, zap.NewNop(),
		service.WithClock(fx.clock),
		service.WithPublisher(fx.events),
	)
	return fx
}

func (fx *fixture) addMember(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, fx.members.Put(context.Background(), id, model.Member{
		ID: id, Name: "Name " + id, Surname: "Surname", Email: id + "@example.com",
	}))
}

func (fx *fixture) addBook(t *testing.T, id string) {
	t.Helper()
	_, err := fx.svc.CreateBook(context.Background(), model.BookRequest{ID: id, Title: "Title " + id, Author: "Author"})
	require.NoError(t, err)
}

func (fx *fixture) book(t *testing.T, id string) model.Book {
	t.Helper()
	b, err := fx.svc.GetBook(context.Background(), id)
	require.NoError(t, err)
	return b
}

// requireConsistent checks that every flag matches the ledger.
func (fx *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := fx.svc.CheckConsistency(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Violations)
}
