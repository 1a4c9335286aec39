package database

import (
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/yonagi/curio"
	"github.com/yonagi/curio/internal/infra/database/models"
)

func NewPostgres(dsn string) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             300 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
	return db, err
}

func MigratePostgres(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Item{},
		&models.Collection{},
		&models.Royalty{},
		&models.Approval{},
		&models.Minter{},
		&models.Order{},
		&models.ExchangeState{},
		&models.FeeBalance{},
		&models.AssetBalance{},
		&models.AssetAllowance{},
	)
}

// SeedPostgres inserts the rows the system assumes exist: the default
// collection (id 0, no owner, no fuses) and the exchange state row. Both
// inserts are no-ops when the rows are already there, so reconfiguring the
// exchange owner or fee after first boot has no effect here.
func SeedPostgres(db *gorm.DB, exchangeOwner string, feeBps uint32) error {
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Collection{
		ID:           curio.DefaultCollectionID,
		Name:         "default",
		InboxAddress: curio.DeriveInboxAddress(curio.DefaultCollectionID),
	}).Error
	if err != nil {
		return err
	}

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ExchangeState{
		ID:     1,
		Owner:  exchangeOwner,
		FeeBps: feeBps,
	}).Error
}
