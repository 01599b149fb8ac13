package cmd

import (
	"time"

	cmdutils "github.com/etruckzm/etruck-go/cmd"
	"github.com/etruckzm/etruck-go/services/cmd"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	paymentsCmd.AddCommand(restCmd, migrateCmd)

	// add this command as a serve subcommand
	cmd.ServeCmd.AddCommand(paymentsCmd)

	// shared by rest and migrate
	paymentsCmd.PersistentFlags().String("database-url", "",
		"the postgres connection string")
	cmdutils.Must(viper.BindPFlag("database-url", paymentsCmd.PersistentFlags().Lookup("database-url")))
	cmdutils.Must(viper.BindEnv("database-url", "DATABASE_URL"))

	paymentsCmd.PersistentFlags().String("database-migrations-url", "file://./migrations",
		"the location of the sql migrations")
	cmdutils.Must(viper.BindPFlag("database-migrations-url", paymentsCmd.PersistentFlags().Lookup("database-migrations-url")))
	cmdutils.Must(viper.BindEnv("database-migrations-url", "DATABASE_MIGRATIONS_URL"))

	rest := cmdutils.NewFlagBuilder(restCmd)

	rest.Bool("migrate", false, "run migrations before serving").
		Bind().
		Env("MIGRATE")

	rest.String("price-table", "", "json object of serviceCategory to {amount, currency}, the ZMW table when empty").
		Bind().
		Env("PRICE_TABLE")

	rest.String("redirect-url", "", "where card and flutterwave checkouts send the payer back").
		Bind().
		Env("REDIRECT_URL")

	rest.String("cancel-url", "", "where a cancelled card checkout sends the payer").
		Bind().
		Env("CANCEL_URL")

	rest.Duration("reconcile-interval", 10*time.Second, "delay between two status polls of a mobile money payment").
		Bind().
		Env("RECONCILE_INTERVAL")

	rest.Int("reconcile-max-attempts", 30, "polls before a mobile money payment expires").
		Bind().
		Env("RECONCILE_MAX_ATTEMPTS")

	rest.Duration("card-stale-after", 24*time.Hour, "age after which an unfinished card checkout is swept").
		Bind().
		Env("CARD_STALE_AFTER")

	rest.Duration("dispatch-grace", time.Minute, "age of an unconfirmed dispatch before the retry job picks it up").
		Bind().
		Env("DISPATCH_GRACE")

	rest.String("ecard-signing-key", "", "hmac key signing issued e-cards").
		Bind().
		Env("ECARD_SIGNING_KEY")

	rest.Duration("ecard-validity", 365*24*time.Hour, "how long an issued e-card stays valid").
		Bind().
		Env("ECARD_VALIDITY")

	rest.Duration("renewal-validity", 365*24*time.Hour, "how long a recorded renewal stays valid").
		Bind().
		Env("RENEWAL_VALIDITY")

	rest.String("flutterwave-server", "https://api.flutterwave.com", "the flutterwave api address").
		Bind().
		Env("FLUTTERWAVE_SERVER")

	rest.String("flutterwave-secret-key", "", "the flutterwave secret key").
		Bind().
		Env("FLUTTERWAVE_SECRET_KEY")

	rest.String("flutterwave-webhook-secret", "", "the flutterwave verif-hash secret").
		Bind().
		Env("FLUTTERWAVE_WEBHOOK_SECRET")

	rest.String("flutterwave-logo-url", "", "logo shown on the flutterwave checkout").
		Bind().
		Env("FLUTTERWAVE_LOGO_URL")

	rest.String("momo-server", "https://sandbox.momodeveloper.mtn.com", "the mtn momo api address").
		Bind().
		Env("MOMO_SERVER")

	rest.String("momo-subscription-key", "", "the mtn momo collection subscription key").
		Bind().
		Env("MOMO_SUBSCRIPTION_KEY")

	rest.String("momo-api-user", "", "the mtn momo api user").
		Bind().
		Env("MOMO_API_USER")

	rest.String("momo-api-key", "", "the mtn momo api key").
		Bind().
		Env("MOMO_API_KEY")

	rest.String("momo-target-environment", "sandbox", "the mtn momo target environment").
		Bind().
		Env("MOMO_TARGET_ENVIRONMENT")

	rest.String("momo-callback-url", "", "the callback url registered with mtn momo").
		Bind().
		Env("MOMO_CALLBACK_URL")

	rest.String("momo-callback-secret", "", "the secret signing mtn momo callbacks").
		Bind().
		Env("MOMO_CALLBACK_SECRET")

	rest.String("stripe-secret-key", "", "the stripe secret key").
		Bind().
		Env("STRIPE_SECRET_KEY")

	rest.String("stripe-webhook-secret", "", "the stripe webhook endpoint secret").
		Bind().
		Env("STRIPE_WEBHOOK_SECRET")

	rest.String("redis-addr", "", "redis holding reconciliation leases, leases are local when empty").
		Bind().
		Env("REDIS_ADDR")

	rest.String("redis-user", "", "the redis user").
		Bind().
		Env("REDIS_USERNAME")

	rest.String("redis-pass", "", "the redis password").
		Bind().
		Env("REDIS_PASSWORD")

	rest.String("kafka-brokers", "", "comma separated kafka brokers, events are not published when empty").
		Bind().
		Env("KAFKA_BROKERS")

	rest.Bool("kafka-tls", true, "dial kafka with the client certificate").
		Bind().
		Env("KAFKA_TLS")

	rest.String("payments-events-topic", "payments.succeeded", "the topic of payment succeeded events").
		Bind().
		Env("PAYMENTS_EVENTS_TOPIC")
}

var (
	paymentsCmd = &cobra.Command{
		Use:   "payments",
		Short: "provides payments micro-service entrypoint",
	}

	restCmd = &cobra.Command{
		Use:   "rest",
		Short: "provides REST api services",
		Run:   RestRun,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "migrates the payments database and exits",
		Run:   cmdutils.Perform("migrate", MigrateRun),
	}
)
