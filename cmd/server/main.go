package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"    // .env loading for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/concert-ticketing/internal/config"
	"github.com/iliyamo/concert-ticketing/internal/database"
	"github.com/iliyamo/concert-ticketing/internal/handler"
	"github.com/iliyamo/concert-ticketing/internal/lock"
	"github.com/iliyamo/concert-ticketing/internal/notify"
	"github.com/iliyamo/concert-ticketing/internal/queue"
	"github.com/iliyamo/concert-ticketing/internal/repository"
	"github.com/iliyamo/concert-ticketing/internal/router"
	"github.com/iliyamo/concert-ticketing/internal/saga"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using process environment")
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("mysql connect: %v", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient()
	if err != nil {
		log.Fatalf("redis connect: %v", err)
	}
	defer rdb.Close()

	// Stores and lock provider share the Redis instance.
	tokens := repository.NewQueueTokenStore(rdb, cfg.TokenRetention)
	sagaStore := repository.NewSagaContextStore(rdb, cfg.SagaContextTTL)
	locks := lock.NewRedis(rdb)

	publisher := notify.NewAMQP()
	go func() {
		if err := notify.StartStatusConsumer(); err != nil {
			log.Printf("status consumer stopped: %v", err)
		}
	}()

	admission := queue.NewAdmissionService(tokens, locks, publisher, queue.Config{
		MaxActivePerConcert: cfg.QueueMaxActive,
		ActiveTokenTTL:      cfg.ActiveTokenTTL,
		Policy: queue.ThroughputPolicy{
			BatchSize: cfg.QueueBatchSize,
			Interval:  cfg.QueueBatchInterval,
		},
	})

	sagas := saga.NewOrchestrator(
		sagaStore,
		repository.NewSeatRepo(db),
		repository.NewTempReservationRepo(db),
		repository.NewReservationRepo(db),
		repository.NewUserRepo(db),
		repository.NewPaymentRepo(db),
		locks,
		publisher,
	)

	bgCtx, stopBackground := context.WithCancel(context.Background())
	go runActivationLoop(bgCtx, admission, tokens, cfg.QueueBatchInterval)
	go runRecoveryLoop(bgCtx, sagas, cfg.SagaStuckAfter)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e,
		handler.NewQueueHandler(admission, cfg.JWTSecret),
		handler.NewPaymentHandler(sagas, admission),
		cfg.JWTSecret,
		db, rdb,
	)

	go func() {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// Drain on SIGINT/SIGTERM: stop accepting requests, then let
	// in-flight sagas reach a terminal state before exiting.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")

	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	sagas.Wait()
}

// runActivationLoop performs one admission batch per interval for
// every concert that has tokens waiting.  The interval is the same
// tunable that feeds the position→ETA estimate, so the published
// wait times track the actual drain rate.
func runActivationLoop(ctx context.Context, admission *queue.AdmissionService, tokens *repository.QueueTokenStore, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		concerts, err := tokens.ConcertsWithWaiting(ctx)
		if err != nil {
			log.Printf("activation: listing concerts failed: %v", err)
			continue
		}
		for _, concertID := range concerts {
			n, err := admission.RunActivationCycle(ctx, concertID)
			if err != nil {
				log.Printf("activation: concert %d: %v", concertID, err)
				continue
			}
			if n > 0 {
				log.Printf("activation: concert %d admitted %d tokens", concertID, n)
			}
		}
	}
}

// runRecoveryLoop periodically force-fails sagas abandoned by a
// crashed orchestrator instance.
func runRecoveryLoop(ctx context.Context, sagas *saga.Orchestrator, stuckAfter time.Duration) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := sagas.RecoverStuckSagas(ctx, stuckAfter)
		if err != nil {
			log.Printf("recovery: sweep failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("recovery: swept %d stuck sagas", n)
		}
	}
}
