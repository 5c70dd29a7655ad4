package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	receiptdomain "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/domain"
	receiptrepo "github.com/smallbiznis/fuelledger/internal/deliveryreceipt/repository"
	"github.com/smallbiznis/fuelledger/internal/events"
	ledgerdomain "github.com/smallbiznis/fuelledger/internal/ledger/domain"
	orderslipdomain "github.com/smallbiznis/fuelledger/internal/orderslip/domain"
	placementdomain "github.com/smallbiznis/fuelledger/internal/placement/domain"
	recalculationdomain "github.com/smallbiznis/fuelledger/internal/recalculation/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every table the engine owns, in dependency order.
func Models() []any {
	return []any{
		&orderslipdomain.OrderSlip{},
		&receiptdomain.DeliveryReceipt{},
		&ledgerdomain.Entry{},
		&recalculationdomain.PriceRevision{},
		&recalculationdomain.ReceiptAdjustment{},
		&placementdomain.Placement{},
		&placementdomain.PlacementSwap{},
		&events.OutboxEvent{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Apply brings the schema up to date for the configured dialect. Postgres
// runs the versioned SQL files, everything else is auto migrated.
func Apply(conn *gorm.DB, dbType string) error {
	if dbType != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := receiptrepo.EnsureManualNumberIndex(conn); err != nil {
			return fmt.Errorf("manual number index: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
