package main // Entry point package

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/lenticket/ticketing/internal/clock"
	"github.com/lenticket/ticketing/internal/config"
	"github.com/lenticket/ticketing/internal/database"
	"github.com/lenticket/ticketing/internal/handler"
	"github.com/lenticket/ticketing/internal/middleware"
	"github.com/lenticket/ticketing/internal/model"
	"github.com/lenticket/ticketing/internal/outbox"
	"github.com/lenticket/ticketing/internal/repository"
	"github.com/lenticket/ticketing/internal/router"
	"github.com/lenticket/ticketing/internal/service"
	"github.com/lenticket/ticketing/internal/store"
	"github.com/lenticket/ticketing/internal/store/memory"
	"github.com/lenticket/ticketing/internal/store/redisstore"
	"github.com/lenticket/ticketing/internal/stream"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()
	clk := clock.Real{}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema: %v", err)
	}

	seatRepo := repository.NewSeatRepo(db)
	reservationRepo := repository.NewReservationRepo(db)
	outboxRepo := repository.NewOutboxRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)

	if cfg.SeedRows > 0 && cfg.SeedSeatsPerRow > 0 {
		if err := seedSeats(ctx, seatRepo, cfg); err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("seeded schedule %d with %d seats", cfg.SeedScheduleID, cfg.SeedRows*cfg.SeedSeatsPerRow)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		if cfg.StoreEngine == config.EngineRedis {
			log.Fatal("store engine is redis but redis is unreachable")
		}
		log.Print("redis unreachable, rate limiting and snapshot cache disabled")
	} else {
		defer rdb.Close()
	}

	var (
		locks    store.SeatLockStore
		queue    store.QueueStore
		sweepers []interface{}
	)
	switch cfg.StoreEngine {
	case config.EngineRedis:
		locks = redisstore.NewSeatLockStore(rdb)
		queue = redisstore.NewQueueStore(rdb, clk)
	case config.EngineMemory:
		ml := memory.NewSeatLockStore(clk)
		mq := memory.NewQueueStore(clk)
		locks, queue = ml, mq
		sweepers = append(sweepers, ml, mq)
	default:
		log.Fatalf("unknown store engine %q", cfg.StoreEngine)
	}

	hub := stream.NewHub()

	ticketSvc := service.NewTicketService(locks, queue, reservationRepo, seatRepo, hub, clk, service.TicketConfig{
		HoldTTL:        cfg.HoldTTL,
		QueueEnabled:   cfg.QueueEnabled,
		OutboxMaxRetry: cfg.OutboxMaxRetry,
	})
	queueSvc := service.NewQueueService(queue, service.QueueConfig{
		Capacity: cfg.QueueCapacity,
		PassTTL:  cfg.PassTTL,
	})
	paymentSvc := service.NewPaymentService(seatRepo, reservationRepo, paymentRepo, ticketSvc, clk)

	reaper := service.NewReaper(reservationRepo, locks, hub, clk, service.ReaperConfig{
		Interval:  cfg.ReaperInterval,
		BatchSize: cfg.ReaperBatch,
	}, sweepers...)
	go reaper.Run(ctx)

	if cfg.AMQPURL != "" {
		publisher := outbox.NewPublisher(cfg.AMQPURL)
		defer publisher.Close()
		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, clk, outbox.DispatcherConfig{
			Interval:  cfg.OutboxInterval,
			BatchSize: cfg.OutboxBatch,
		})
		go dispatcher.Run(ctx)

		consumer := outbox.NewConsumer(paymentRepo, clk, outbox.ConsumerConfig{
			URL:      cfg.AMQPURL,
			MaxAge:   cfg.ConsumerMaxAge,
			Prefetch: cfg.ConsumerPrefetch,
		})
		go consumer.Run(ctx)
	} else {
		log.Print("AMQP_URL not set, outbox dispatcher and settlement consumer disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(echomw.Recover())

	router.RegisterRoutes(e, router.Handlers{
		Queue:       handler.NewQueueHandler(queueSvc),
		Ticket:      handler.NewTicketHandler(ticketSvc, cfg.BypassEnabled),
		Seat:        handler.NewSeatHandler(seatRepo, hub, cfg.SSEPingInterval),
		Payment:     handler.NewPaymentHandler(paymentSvc),
		Reservation: handler.NewReservationHandler(reservationRepo, ticketSvc, cfg.BypassEnabled),
	}, cfg, rdb)

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s engine=%s queue=%v)", addr, cfg.Env, cfg.StoreEngine, cfg.QueueEnabled)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
		os.Exit(1)
	}
}

// seedSeats populates the seat catalog for one schedule with rows A, B, C
// and so on. INSERT IGNORE semantics make re-running a no-op.
func seedSeats(ctx context.Context, repo *repository.SeatRepo, cfg config.Config) error {
	seats := make([]model.Seat, 0, cfg.SeedRows*cfg.SeedSeatsPerRow)
	for row := 0; row < cfg.SeedRows; row++ {
		for n := 1; n <= cfg.SeedSeatsPerRow; n++ {
			seats = append(seats, model.Seat{
				ScheduleID: cfg.SeedScheduleID,
				SeatNo:     fmt.Sprintf("%c-%d", 'A'+row, n),
				PriceCents: uint32(cfg.SeedPriceCents),
			})
		}
	}
	return repo.SeedBulk(ctx, cfg.SeedScheduleID, seats)
}
