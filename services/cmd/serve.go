package cmd

import (
	"context"
	"time"

	rootcmd "github.com/etruckzm/etruck-go/cmd"
	appctx "github.com/etruckzm/etruck-go/libs/context"
	"github.com/etruckzm/etruck-go/libs/handlers"
	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/libs/middleware"
	srv "github.com/etruckzm/etruck-go/libs/service"
	"github.com/go-chi/chi"
	chiware "github.com/go-chi/chi/middleware"
	"github.com/rs/zerolog/hlog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// gateway calls are bounded at 30s, the request must outlive them
	timeout = 45 * time.Second
)

func init() {
	rootcmd.RootCmd.AddCommand(ServeCmd)

	// address - sets the address of the server to be started
	ServeCmd.PersistentFlags().String("address", ":8080",
		"the default address to bind to")
	rootcmd.Must(viper.BindPFlag("address", ServeCmd.PersistentFlags().Lookup("address")))
	rootcmd.Must(viper.BindEnv("address", "ADDR"))

	ServeCmd.PersistentFlags().Bool("enable-job-workers", true,
		"enable job workers (defaults true)")
	rootcmd.Must(viper.BindPFlag("enable-job-workers", ServeCmd.PersistentFlags().Lookup("enable-job-workers")))
	rootcmd.Must(viper.BindEnv("enable-job-workers", "ENABLE_JOB_WORKERS"))

	ServeCmd.PersistentFlags().Int("rate-limit-per-min", 180,
		"requests per minute allowed per ip outside local")
	rootcmd.Must(viper.BindPFlag("rate-limit-per-min", ServeCmd.PersistentFlags().Lookup("rate-limit-per-min")))
	rootcmd.Must(viper.BindEnv("rate-limit-per-min", "RATE_LIMIT_PER_MIN"))

	ServeCmd.PersistentFlags().StringSlice("allowed-origins", []string{},
		"origins allowed to call the public endpoints")
	rootcmd.Must(viper.BindPFlag("allowed-origins", ServeCmd.PersistentFlags().Lookup("allowed-origins")))
	rootcmd.Must(viper.BindEnv("allowed-origins", "ALLOWED_ORIGINS"))
}

// ServeCmd the serve command
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "entrypoint to serve a micro-service",
}

// SetupRouter sets up a router with the shared middleware stack.
// Paths under exemptPrefixes are never rate limited.
func SetupRouter(ctx context.Context, checkers map[string]handlers.HealthChecker, exemptPrefixes ...string) *chi.Mux {
	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		ctx, logger = logging.SetupLogger(ctx)
	}

	r := chi.NewRouter()
	r.Use(
		chiware.RequestID,
		chiware.RealIP,
		chiware.Heartbeat("/"),
		chiware.Timeout(timeout),
		middleware.RequestIDTransfer,
		middleware.CORS(viper.GetStringSlice("allowed-origins"), viper.GetBool("debug")),
	)

	if env, _ := ctx.Value(appctx.EnvironmentCTXKey).(string); env != "" && env != "local" {
		rl, ok := ctx.Value(appctx.RateLimitPerMinuteCTXKey).(int)
		if !ok || rl <= 0 {
			rl = 180
		}
		r.Use(middleware.RateLimiter(ctx, rl, exemptPrefixes...))
	}

	version, _ := ctx.Value(appctx.VersionCTXKey).(string)
	commit, _ := ctx.Value(appctx.CommitCTXKey).(string)
	buildTime, _ := ctx.Value(appctx.BuildTimeCTXKey).(string)

	// Also handles panic recovery
	r.Use(
		hlog.NewHandler(*logger),
		hlog.UserAgentHandler("user_agent"),
		hlog.RequestIDHandler("req_id", "Request-Id"),
		middleware.RequestLogger(logger))

	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_time", buildTime).
		Str("address", viper.GetString("address")).
		Str("environment", viper.GetString("environment")).
		Msg("server starting")

	r.Get("/health-check", handlers.HealthCheckHandler(version, buildTime, commit, checkers))
	return r
}

// SetupJobWorkers - setup job workers
func SetupJobWorkers(ctx context.Context, jobs []srv.Job) error {
	logger, err := appctx.GetLogger(ctx)
	if err != nil {
		ctx, logger = logging.SetupLogger(ctx)
	}

	if !viper.GetBool("enable-job-workers") {
		logger.Info().Msg("job workers disabled")
		return nil
	}

	for _, job := range jobs {
		workers := job.Workers
		if workers <= 0 {
			workers = 1
		}
		for i := 0; i < workers; i++ {
			logger.Debug().Str("job", job.Name).Msg("starting job worker")
			go srv.JobWorker(ctx, job.Func, job.Cadence)
		}
	}
	return nil
}
