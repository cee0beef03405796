package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Munoverse/Catallaxyz-sub002/pkg/market"
)

// Ledger wraps the GORM handle and exposes only the idempotent
// operations the persistence worker and API layer need, mirroring
// web3guy0-polybot's Database wrapper shape (a single struct holding
// *gorm.DB, narrow typed methods per table).
type Ledger struct {
	db *gorm.DB
}

// Open connects to Postgres and auto-migrates the schema.
func Open(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Ledger, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("ledger: automigrate: %w", err)
	}

	return &Ledger{db: db}, nil
}

// FillExists probes for an existing fill row keyed on the
// (makerOrderHash, takerOrderHash) idempotency pair.
func (l *Ledger) FillExists(ctx context.Context, makerHash, takerHash string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&OrderFill{}).
		Where("maker_order_hash = ? AND taker_order_hash = ?", makerHash, takerHash).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("ledger: fill exists probe: %w", err)
	}
	return count > 0, nil
}

// UpsertFill inserts a fill row, doing nothing on a conflicting
// (maker, taker) pair — spec.md §4.6's idempotent fill processing.
func (l *Ledger) UpsertFill(ctx context.Context, f OrderFill) error {
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "maker_order_hash"}, {Name: "taker_order_hash"}},
			DoNothing: true,
		}).
		Create(&f).Error
	if err != nil {
		return fmt.Errorf("ledger: upsert fill: %w", err)
	}
	return nil
}

// AppendTrade writes a trade-history row; trades are append-only so
// there is no conflict target.
func (l *Ledger) AppendTrade(ctx context.Context, t Trade) error {
	if err := l.db.WithContext(ctx).Create(&t).Error; err != nil {
		return fmt.Errorf("ledger: append trade: %w", err)
	}
	return nil
}

// UpsertOrder overwrites the mutable fields (status, filled/remaining,
// updatedAt) for an order's permanent ledger row, creating it if
// absent.
func (l *Ledger) UpsertOrder(ctx context.Context, o Order) error {
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "filled_amount", "remaining_amount", "updated_at",
			}),
		}).
		Create(&o).Error
	if err != nil {
		return fmt.Errorf("ledger: upsert order: %w", err)
	}
	return nil
}

// UpsertOperation records a deposit or withdrawal idempotently on
// transaction_signature, doing nothing on replay.
func (l *Ledger) UpsertOperation(ctx context.Context, op UserOperation) (inserted bool, err error) {
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_signature"}},
			DoNothing: true,
		}).
		Create(&op)
	if res.Error != nil {
		return false, fmt.Errorf("ledger: upsert operation: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarketTitle looks up a market's display title for notification text;
// callers should front this with the LRU in pkg/persistence.
func (l *Ledger) MarketTitle(ctx context.Context, marketID string) (string, error) {
	var m Market
	if err := l.db.WithContext(ctx).Select("title").Where("market_id = ?", marketID).First(&m).Error; err != nil {
		return "", fmt.Errorf("ledger: market title: %w", err)
	}
	return m.Title, nil
}

// ListMarkets returns every row of the lookup-only markets table,
// satisfying pkg/market.Loader for Registry.Refresh.
func (l *Ledger) ListMarkets(ctx context.Context) ([]market.Market, error) {
	var rows []Market
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ledger: list markets: %w", err)
	}

	out := make([]market.Market, 0, len(rows))
	for _, r := range rows {
		out = append(out, market.Market{ID: r.MarketID, Title: r.Title, Active: r.Active})
	}
	return out, nil
}

// BulkUpsertBalanceSnapshots writes a batch of cached balances during
// the periodic snapshot pass (spec.md §4.6), 50 rows at a time per
// caller-controlled batching.
func (l *Ledger) BulkUpsertBalanceSnapshots(ctx context.Context, balances []UserBalance) error {
	if len(balances) == 0 {
		return nil
	}
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"usdc_available", "usdc_locked", "yes_available", "yes_locked", "no_available", "no_locked", "updated_at",
			}),
		}).
		CreateInBatches(balances, 50).Error
	if err != nil {
		return fmt.Errorf("ledger: bulk upsert balances: %w", err)
	}
	return nil
}
