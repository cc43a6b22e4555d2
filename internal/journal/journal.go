package journal

import (
	"time"

	"main/internal/model"
	"main/pkg/conn"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// BalanceRecord is one periodic balance snapshot row. Values keep the
// venue's decimal-string form; this table feeds dashboards, not the core.
type BalanceRecord struct {
	ID        uint      `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`

	Account string `gorm:"size:64;index"`
	Symbol  string `gorm:"size:32"`

	Balance         string `gorm:"size:40"`
	Equity          string `gorm:"size:40"`
	Upnl            string `gorm:"size:40"`
	IsolatedBalance string `gorm:"size:40"`
	CrossBalance    string `gorm:"size:40"`
	Locked          string `gorm:"size:40"`
}

// Journal is an optional write-only Postgres sink for observability rows.
// A nil journal drops every write, so callers never branch on whether
// persistence is configured.
type Journal struct {
	pg      *conn.Postgres
	account string
}

// Open connects and migrates the journal schema. An empty DSN returns a nil
// journal, which is valid and silently drops writes.
func Open(dsn, account string) (*Journal, error) {
	if dsn == "" {
		return nil, nil
	}

	pg, err := conn.NewPostgres(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	if err := pg.DB().AutoMigrate(&BalanceRecord{}); err != nil {
		_ = pg.Close()
		return nil, errors.Wrap(err, "migrate journal schema")
	}

	return &Journal{pg: pg, account: account}, nil
}

// RecordBalance appends one balance snapshot row, best effort.
func (j *Journal) RecordBalance(symbol string, b model.Balance) {
	if j == nil {
		return
	}

	record := BalanceRecord{
		CreatedAt:       time.Now(),
		Account:         j.account,
		Symbol:          symbol,
		Balance:         b.Balance,
		Equity:          b.Equity,
		Upnl:            b.Upnl,
		IsolatedBalance: b.IsolatedBalance,
		CrossBalance:    b.CrossBalance,
		Locked:          b.Locked,
	}
	if err := j.pg.DB().Create(&record).Error; err != nil {
		logs.Warnf("journal balance row: %+v", err)
	}
}

// Close drains the connection pool. Safe on a nil journal.
func (j *Journal) Close() {
	if j == nil {
		return
	}
	if err := j.pg.Close(); err != nil {
		logs.Warnf("close journal: %+v", err)
	}
}
