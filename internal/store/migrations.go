package store

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// migration is one versioned, forward-only schema change.
type migration struct {
	Version int
	Name    string
	SQL     []string
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "create_properties",
		SQL: []string{`
			CREATE TABLE IF NOT EXISTS properties (
				id TEXT PRIMARY KEY,
				sources TEXT NOT NULL,
				price_min INTEGER NOT NULL,
				price_max INTEGER NOT NULL,
				postcode TEXT,
				outcode TEXT,
				street TEXT,
				bedrooms INTEGER NOT NULL DEFAULT 0,
				bathrooms INTEGER,
				latitude REAL,
				longitude REAL,
				title TEXT,
				description TEXT,
				floorplan_url TEXT,
				first_seen TIMESTAMP NOT NULL,
				enrichment_status TEXT NOT NULL DEFAULT 'pending',
				enrichment_attempts INTEGER NOT NULL DEFAULT 0,
				analysis_status TEXT NOT NULL DEFAULT 'pending_analysis',
				analysis_payload TEXT,
				notification_status TEXT NOT NULL DEFAULT 'pending',
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			);
		`},
	},
	{
		Version: 2,
		Name:    "create_property_images",
		SQL: []string{`
			CREATE TABLE IF NOT EXISTS property_images (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				property_id TEXT NOT NULL,
				url TEXT NOT NULL,
				hash TEXT,
				UNIQUE (property_id, url)
			);
		`},
	},
	{
		Version: 3,
		Name:    "create_status_indexes",
		SQL: []string{
			`CREATE INDEX IF NOT EXISTS idx_properties_enrichment ON properties(enrichment_status, enrichment_attempts);`,
			`CREATE INDEX IF NOT EXISTS idx_properties_analysis ON properties(analysis_status);`,
			`CREATE INDEX IF NOT EXISTS idx_properties_notification ON properties(notification_status);`,
			`CREATE INDEX IF NOT EXISTS idx_properties_outcode ON properties(outcode, bedrooms);`,
		},
	},
}

type appliedMigration struct {
	Version   int       `gorm:"column:version;primaryKey"`
	Name      string    `gorm:"column:name"`
	AppliedAt time.Time `gorm:"column:applied_at"`
}

func (appliedMigration) TableName() string { return "schema_migrations" }

// RunMigrations applies every pending migration in version order. Each
// migration runs in its own transaction together with its bookkeeping row, so
// "already applied" is decided by the schema_migrations table rather than by
// inspecting errors from schema statements.
func (s *Store) RunMigrations() error {
	if err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		);
	`).Error; err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var count int64
		if err := s.db.Model(&appliedMigration{}).Where("version = ?", m.Version).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			s.logger.WithFields(logrus.Fields{
				"version": m.Version,
				"name":    m.Name,
			}).Debug("Migration already applied")
			continue
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			for _, stmt := range m.SQL {
				if err := tx.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return tx.Create(&appliedMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}

		s.logger.WithFields(logrus.Fields{
			"version": m.Version,
			"name":    m.Name,
		}).Info("Applied migration")
	}

	return nil
}
