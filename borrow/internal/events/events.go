package events

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	cb "github.com/libshelf/borrow-service/pkg/circuit_breaker"
	"github.com/libshelf/borrow-service/pkg/kafka"
)

// Publisher emits borrow/return events. Publishing is best effort: the
// ledger transaction has already committed, so a broker failure only
// costs the event, never the borrow.
type Publisher interface {
	Publish(event kafka.BorrowEvent)
}

type publisher struct {
	producer sarama.SyncProducer
	breaker  cb.CircuitBreaker
	log      *zap.Logger
}

func NewPublisher(producer sarama.SyncProducer, log *zap.Logger) *publisher {
	return &publisher{
		producer: producer,
		breaker:  cb.New(20, 30*time.Second, 0.5, 5),
		log:      log.Named("events"),
	}
}

func (p *publisher) Publish(event kafka.BorrowEvent) {
	if err := p.breaker.Call(func() error {
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		msg := &sarama.ProducerMessage{Topic: kafka.BorrowEventsTopic, Value: sarama.StringEncoder(data)}
		_, _, err = p.producer.SendMessage(msg)
		return err
	}); err != nil {
		p.log.Warn("publish borrow event",
			zap.String("eventId", event.EventID),
			zap.String("type", string(event.Type)),
			zap.Error(err))
	}
}

type nopPublisher struct{}

// NewNopPublisher is used when no Kafka brokers are configured.
func NewNopPublisher() *nopPublisher { return &nopPublisher{} }

func (*nopPublisher) Publish(kafka.BorrowEvent) {}
