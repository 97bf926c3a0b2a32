package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	Addrs []string `yaml:"addrs" envconfig:"KAFKA_ADDRS"`
}

const (
	BorrowEventsTopic = "borrow-events"
)

type EventType string

const (
	EventBorrowed EventType = "BORROWED"
	EventReturned EventType = "RETURNED"
)

// BorrowEvent is the payload published for every committed borrow/return.
type BorrowEvent struct {
	EventID  string    `json:"eventId"`
	Type     EventType `json:"type"`
	RecordID int       `json:"recordId"`
	UserID   int       `json:"userId"`
	BookID   int       `json:"bookId"`
	At       time.Time `json:"at"`
}

func NewProducer(cfg Config) (sarama.SyncProducer, error) {
	defaultCfg := sarama.NewConfig()

	defaultCfg.Producer.RequiredAcks = sarama.WaitForAll
	defaultCfg.Producer.Return.Successes = true

	return sarama.NewSyncProducer(cfg.Addrs, defaultCfg)
}
