package cmd

import (
	"context"
	"net/http"
	"time"

	// pprof imports
	_ "net/http/pprof"

	sentry "github.com/getsentry/sentry-go"
	"github.com/go-chi/chi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdutils "github.com/etruckzm/etruck-go/cmd"
	"github.com/etruckzm/etruck-go/libs/closers"
	appctx "github.com/etruckzm/etruck-go/libs/context"
	"github.com/etruckzm/etruck-go/libs/datastore"
	"github.com/etruckzm/etruck-go/libs/handlers"
	kafkautils "github.com/etruckzm/etruck-go/libs/kafka"
	"github.com/etruckzm/etruck-go/libs/middleware"
	"github.com/etruckzm/etruck-go/services/cmd"
	"github.com/etruckzm/etruck-go/services/payments"
)

// RestRun - Main entrypoint of the REST subcommand
// This function takes a cobra command and starts up the
// payments rest microservice.
func RestRun(command *cobra.Command, args []string) {
	ctx := command.Context()
	logger, err := appctx.GetLogger(ctx)
	cmdutils.Must(err)
	// add profiling flag to enable profiling routes
	if viper.GetString("pprof-enabled") != "" {
		// pprof attaches routes to default serve mux
		// host:6061/debug/pprof/
		go func() {
			logger.Error().Err(http.ListenAndServe(":6061", http.DefaultServeMux)).Msg("pprof server stopped")
		}()
	}

	ctx = context.WithValue(ctx, appctx.RateLimitPerMinuteCTXKey, viper.GetInt("rate-limit-per-min"))

	cfg, err := newConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid payments configuration")
	}

	pg, err := datastore.NewPostgres(ctx, datastore.Config{
		URL:           viper.GetString("database-url"),
		MigrationsURL: viper.GetString("database-migrations-url"),
		Migrate:       viper.GetBool("migrate"),
		StatsName:     "payments",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize datastore")
	}

	gateways, err := payments.NewGatewayRegistry(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize gateways")
	}

	checkers := map[string]handlers.HealthChecker{"postgres": pg.Ping}

	var lease payments.Lease
	if cfg.RedisAddr != "" {
		rc, err := payments.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisUser, cfg.RedisPass)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer closers.Log(ctx, rc)

		lease = payments.NewRedisLease(rc, "etruck:")
		checkers["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	var events payments.Publisher
	if cfg.KafkaBrokers != "" {
		w, err := kafkautils.InitKafkaWriter(ctx, cfg.KafkaBrokers, cfg.EventsTopic, cfg.KafkaTLS)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka")
		}

		pub, err := payments.NewKafkaPublisher(w)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize event codecs")
		}
		defer closers.Log(ctx, pub)

		events = pub
	}

	s := payments.NewService(ctx, cfg, pg.RawDB(), gateways, events, lease)
	defer s.Close()

	r := cmd.SetupRouter(ctx, checkers, payments.WebhookPrefix)
	r.Mount("/v1", payments.Router(s))

	err = cmd.SetupJobWorkers(ctx, s.Jobs())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize job workers")
	}

	// make sure exceptions go to sentry
	defer sentry.Flush(time.Second * 2)

	go func() {
		err := http.ListenAndServe(":9090", middleware.Metrics())
		if err != nil {
			sentry.CaptureException(err)
			logger.Panic().Err(err).Msg("metrics HTTP server start failed!")
		}
	}()

	// setup server, and run
	srv := http.Server{
		Addr:         viper.GetString("address"),
		Handler:      chi.ServerBaseContext(ctx, r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 50 * time.Second,
	}

	if err = srv.ListenAndServe(); err != nil {
		sentry.CaptureException(err)
		logger.Error().Err(err).Msg("HTTP server start failed!")
	}
}
