package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/lending-service/lending/config"
	"github.com/Astemirdum/lending-service/lending/internal/handler"
	"github.com/Astemirdum/lending-service/lending/internal/server"
	"github.com/Astemirdum/lending-service/lending/internal/service"
	"github.com/Astemirdum/lending-service/pkg/circuit_breaker"
	"github.com/Astemirdum/lending-service/pkg/kafka"
	"github.com/Astemirdum/lending-service/pkg/logger"
	"github.com/Astemirdum/lending-service/pkg/redislock"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "lending")
	ctx := context.Background()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "storage init")
	}
	defer func() {
		if err := store.repo.Close(); err != nil {
			log.Error("storage close", zap.Error(err))
		}
	}()

	var opts []service.Option
	if cfg.Redis.Enabled() {
		client, err := redislock.NewClient(ctx, cfg.Redis)
		if err != nil {
			return errors.Wrap(err, "redis init")
		}
		defer client.Close()
		opts = append(opts, service.WithLocker(redislock.New(client, cfg.Redis, log)))
		log.Info("per-book locks in redis", zap.String("addr", cfg.Redis.Addr))
	}
	if cfg.Kafka.Enabled() {
		if err := kafka.CreateTopics(cfg.Kafka); err != nil {
			log.Warn("kafka create topics", zap.Error(err))
		}
		producer, err := kafka.NewSyncProducer(cfg.Kafka)
		if err != nil {
			return errors.Wrap(err, "kafka producer")
		}
		enqueuer := kafka.NewEnqueuer(producer, circuit_breaker.New(cfg.CircuitBreaker))
		defer enqueuer.Close()
		opts = append(opts, service.WithPublisher(enqueuer))
	}

	svc := service.NewService(store.repo, store.members, log, opts...)
	h := handler.New(svc, handler.Resources{
		Members:   service.NewMemberService(store.members, log),
		Students:  service.NewStudentService(store.students, log),
		Employees: service.NewEmployeeService(store.employees, log),
	}, log)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)),
		zap.String("storage", cfg.Storage.Driver))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gCtx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Debug("Graceful shutdown", zap.Error(context.Cause(gCtx)))

		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		return srv.Stop(closeCtx)
	})
	if err := g.Wait(); err != nil {
		log.Error("server", zap.Error(err))
		return err
	}
	log.Info("Graceful shutdown finished")
	return nil
}
