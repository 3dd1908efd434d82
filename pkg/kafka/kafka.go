package kafka

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"github.com/Astemirdum/lending-service/pkg/circuit_breaker"
)

const (
	LendingTopic = "lending.events"
)

type Config struct {
	Addrs             []string `yaml:"addrs" envconfig:"KAFKA_ADDRS"`
	NumPartitions     int32    `yaml:"numPartitions" envconfig:"KAFKA_PARTITIONS" default:"1"`
	ReplicationFactor int16    `yaml:"replicationFactor" envconfig:"KAFKA_REPLICATION" default:"1"`
}

func (c Config) Enabled() bool {
	return len(c.Addrs) > 0
}

type EventType string

const (
	EventLoanCreated  EventType = "loan.created"
	EventLoanReturned EventType = "loan.returned"
	EventLoanDeleted  EventType = "loan.deleted"
)

type EventLending struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	LoanID     string    `json:"loanId"`
	BookID     string    `json:"bookId"`
	MemberID   string    `json:"memberId"`
	OccurredAt time.Time `json:"occurredAt"`
}

func NewSyncProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true
	defaultCfg.Producer.Retry.Max = 3

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}

// CreateTopics makes sure the lending topic exists. An already existing topic is not an error.
func CreateTopics(cfg Config) error {
	admin, err := sarama.NewClusterAdmin(cfg.Addrs, sarama.NewConfig())
	if err != nil {
		return errors.Wrap(err, "sarama.NewClusterAdmin")
	}
	defer admin.Close()

	err = admin.CreateTopic(LendingTopic, &sarama.TopicDetail{
		NumPartitions:     cfg.NumPartitions,
		ReplicationFactor: cfg.ReplicationFactor,
	}, false)
	var topicErr *sarama.TopicError
	if errors.As(err, &topicErr) && topicErr.Err == sarama.ErrTopicAlreadyExists {
		return nil
	}
	return err
}

// Enqueuer sends JSON messages through a sync producer guarded by a circuit breaker.
type Enqueuer struct {
	producer sarama.SyncProducer
	cb       circuit_breaker.CircuitBreaker
}

func NewEnqueuer(producer sarama.SyncProducer, cb circuit_breaker.CircuitBreaker) *Enqueuer {
	return &Enqueuer{
		producer: producer,
		cb:       cb,
	}
}

func (q *Enqueuer) Enqueue(topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}
	return q.cb.Call(func() error {
		_, _, err := q.producer.SendMessage(msg)
		return err
	})
}

func (q *Enqueuer) Close() error {
	return q.producer.Close()
}
