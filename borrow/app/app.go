package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/libshelf/borrow-service/borrow/config"
	"github.com/libshelf/borrow-service/borrow/internal/events"
	"github.com/libshelf/borrow-service/borrow/internal/handler"
	"github.com/libshelf/borrow-service/borrow/internal/repository"
	"github.com/libshelf/borrow-service/borrow/internal/server"
	"github.com/libshelf/borrow-service/borrow/internal/service"
	"github.com/libshelf/borrow-service/borrow/migrations"
	"github.com/libshelf/borrow-service/pkg/kafka"
	"github.com/libshelf/borrow-service/pkg/logger"
	"github.com/libshelf/borrow-service/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "borrow")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %w", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo borrow %w", err)
	}

	var (
		producer sarama.SyncProducer
		pub      events.Publisher = events.NewNopPublisher()
	)
	if len(cfg.Kafka.Addrs) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("kafka.NewProducer %w", err)
		}
		pub = events.NewPublisher(producer, log)
	}

	svc := service.NewService(repo, repository.NewBookStore(db), repository.NewUserStore(db), pub, log)
	h := handler.New(svc, log)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warn("producer.Close", zap.Error(err))
		}
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}
