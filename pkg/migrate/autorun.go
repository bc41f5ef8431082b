package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/misterfood-backend/pkg/config"
	"github.com/angelmondragon/misterfood-backend/pkg/db"
	"github.com/angelmondragon/misterfood-backend/pkg/logger"
)

// MaybeRunDev brings a dev database up to the embedded schema on boot when
// MISTERFOOD_AUTO_MIGRATE is set. Other environments migrate via cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.App.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	before, err := CurrentVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": EmbeddedSource().String(), "from_version": before})

	if err := RunEmbedded(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	after, err := CurrentVersion(ctx, sqlDB)
	if err != nil {
		return err
	}
	if after == before {
		logg.Debug(ctx, "migrate.schema_current")
		return nil
	}
	logg.Info(logg.WithField(ctx, "to_version", after), "migrate.schema_upgraded")
	return nil
}
