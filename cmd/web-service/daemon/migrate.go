package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // PGX driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"
)

func installMigrateCmd(app *App) {
	app.cmd.AddCommand(&cobra.Command{
		Use:   "migrate [path-to-migration-scripts]",
		Short: "Run migration scripts",
		Long: `Run migration scripts to update the history database schema or data.
The path to the migration scripts must be provided.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bad migration paths are usage errors, not runtime ones.
			app.cmd.SilenceUsage = false
			dir := args[0]
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("the provided path to migration scripts is not valid: %v", err)
			}
			if !info.IsDir() {
				return errors.New("the provided path to migration scripts should be a directory, not a file")
			}
			app.cmd.SilenceUsage = true

			app.config.MigrationsDir = dir
			slog.Info("Running migrate command", "dir", dir)
			return app.migrateUp()
		},
	})
}

func (a App) migrateUp() error {
	db := a.config.DB
	dsn := fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, db.Password, db.Host, db.Port, db.DBName, db.SSLMode)

	m, err := migrate.New(fmt.Sprintf("file://%s", a.config.MigrationsDir), dsn)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %v", err)
	}
	defer func() {
		sErr, dbErr := m.Close()
		if sErr != nil {
			slog.Error("failed to close migration instance", "error", sErr)
		}
		if dbErr != nil {
			slog.Error("failed to close database connection", "error", dbErr)
		}
	}()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		slog.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %v", err)
	default:
		slog.Info("Migrations applied successfully")
	}
	return nil
}
