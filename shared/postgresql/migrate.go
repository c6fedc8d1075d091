package postgresql

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/cuongbtq/product-import/shared/postgresql/migrations"
)

// Migrate applies every pending schema migration
func (c *Client) Migrate(ctx context.Context) error {
	return migrate(ctx, c, migrations.FS)
}

func migrate(ctx context.Context, c *Client, fsys fs.FS) error {
	goose.SetLogger(&gooseLogger{logger: c.logger})
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	c.logger.Info("Applying database migrations")

	if err := goose.UpContext(ctx, c.db.DB, "."); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, c.db.DB)
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	c.logger.Info("Database migrations applied", slog.Int64("version", version))
	return nil
}

// gooseLogger implements goose.Logger on top of slog
type gooseLogger struct {
	logger *slog.Logger
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}

// Fatalf logs at error level and does not exit
func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), slog.String("component", "goose"))
}
