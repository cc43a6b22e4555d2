package conn

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Postgres wraps a gorm connection pool behind a small handle so callers
// never hold gorm types directly.
type Postgres struct {
	db *gorm.DB
}

// NewPostgres opens a connection pool from a DSN. Query logging stays off;
// the journal writes rows, nobody reads them back here.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	return &Postgres{db: db}, nil
}

// DB returns the underlying gorm handle.
func (p *Postgres) DB() *gorm.DB {
	if p == nil {
		return nil
	}
	return p.db
}

// Close drains the connection pool. Safe on a nil handle.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}

	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
