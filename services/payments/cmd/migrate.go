package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/etruckzm/etruck-go/libs/datastore"
)

// MigrateRun brings the payments database to the current schema version.
func MigrateRun(command *cobra.Command, args []string) error {
	ctx := command.Context()

	pg, err := datastore.NewPostgres(ctx, datastore.Config{
		URL:           viper.GetString("database-url"),
		MigrationsURL: viper.GetString("database-migrations-url"),
		MaxOpenConns:  2,
	})
	if err != nil {
		return err
	}
	defer func() { _ = pg.Close() }()

	return pg.Migrate(ctx)
}
