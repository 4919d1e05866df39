// Command dispatchd wires the dispatch core's services to Postgres, Redis,
// and Prometheus, following the teacher's main.go convention: load config,
// construct stores with a startup liveness check, wire dependent services in
// dependency order, start background loops, serve metrics, and shut down in
// a fixed order on signal.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdulqdaer-q/porter-dispatch-core/internal/api"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/availability"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/config"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/consumers"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/coordination"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/earnings"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/eventbus"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/hotstate"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/idempotency"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/location"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/offer"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/porter"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/ratelimit"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/resilience"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/scheduler"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/store"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/timeline"
	"github.com/abdulqdaer-q/porter-dispatch-core/internal/wshub"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "dispatchd: ", log.LstdFlags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	durable, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatalf("connect durable store: %v", err)
	}
	defer durable.Close()

	hot, err := hotstate.NewRedisStore(cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("connect hot-state store: %v", err)
	}
	defer hot.Close()

	publisher := eventbus.NewLogPublisher(logger)
	defer publisher.Close()

	degraded := resilience.NewDegradedMode()
	idem := idempotency.NewLayer(durable, cfg.IdempotencyRecordTTL())
	limiter := ratelimit.NewSharedWindowLimiter(hot, degraded, int64(cfg.LocationUpdateRatePerSecond), time.Second, cfg.LocationUpdateRatePerSecond)
	tl := timeline.NewStore()

	elector := coordination.NewLeaderElector(hot, durable, 15*time.Second)
	janitor := coordination.NewLockJanitor(hot, time.Minute)
	staleMonitor := coordination.NewStaleOnlineMonitor(hot, 30*time.Second)

	porterSvc := porter.NewService(durable, publisher)
	availabilitySvc := availability.NewService(hot, durable, publisher, cfg.AvailabilityStateTTL())
	locationSvc := location.NewService(hot, durable, publisher, limiter, cfg.AvailabilityStateTTL(), cfg.LocationSnapshotInterval())
	offerSvc := offer.NewService(durable, publisher, idem, tl, cfg.OfferTimeout(), cfg.MaxConcurrentOffersPerPorter)
	earningsSvc := earnings.NewService(durable, publisher, idem)

	// app is the typed procedure surface a transport adapter (HTTP, gRPC)
	// would bind to; wiring that adapter is outside this core's scope (§6).
	app := api.New(porterSvc, availabilitySvc, locationSvc, offerSvc, earningsSvc)
	_ = app

	eventConsumers := consumers.New(durable)
	eventConsumers.Register(publisher)

	hub := wshub.NewHub()
	hub.SubscribeAll(publisher, []string{
		"PorterOnline", "PorterOffline", "PorterLocationUpdated",
		"PorterOfferCreated", "PorterAcceptedJob", "PorterRejectedJob",
		"PorterEarningRecorded", "PorterWithdrawalRequested",
	})

	sched := scheduler.NewDefault(elector, offerSvc, locationSvc, durable, cfg.LocationHistoryRetention())

	go elector.Run(ctx)
	go janitor.Run(ctx)
	go staleMonitor.Run(ctx)
	go sched.Run(ctx)
	go hub.Run(ctx)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()

	logger.Printf("dispatchd started, metrics on %s", cfg.MetricsAddr)
	<-ctx.Done()

	// Shutdown order: stop accepting new scheduler/janitor/monitor work
	// (already tied to ctx above), drain the metrics server, then close the
	// stores last so any in-flight request still has a durable/hot-state
	// handle to write through.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Printf("dispatchd shutting down")
}
