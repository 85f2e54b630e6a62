package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"schema-relay/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createRecordsTable(),
		createDeliveryAttemptsTable(),
	})

	return m.Migrate()
}

func createRecordsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_records",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.RecordModel{}); err != nil {
				return err
			}
			indexes := []string{
				// Pagination reads by schema ride the monotonic id.
				`CREATE INDEX IF NOT EXISTS idx_records_schema_name_id ON records (schema_name, id)`,
				`CREATE INDEX IF NOT EXISTS idx_records_status ON records (status)`,
				`CREATE INDEX IF NOT EXISTS idx_records_retry ON records (next_retry_at) WHERE status = 'FORWARDING'`,
				`CREATE INDEX IF NOT EXISTS idx_records_correlation_id ON records (correlation_id)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.RecordModel{})
		},
	}
}

func createDeliveryAttemptsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_delivery_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_delivery_attempts_record_id ON delivery_attempts (record_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
		},
	}
}
