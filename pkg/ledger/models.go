// Package ledger is the relational persistence layer the persistence
// worker (C6) writes into and the API layer reads from. It is grounded
// on web3guy0-polybot's GORM-based storage.Database (models.Market/
// Trade shape, gorm.Open(postgres.Open(dsn))), adapted from a
// decimal.Decimal-heavy perpetuals/arbitrage schema to the prediction
// market order/fill/balance schema spec.md §6 names. Amounts are kept
// as numeric strings end to end, matching spec.md §9's "no in-process
// balance arithmetic is authoritative" note: every mutation funnels
// through a ledger stored procedure invoked with an amount string.
package ledger

import "time"

// Order mirrors a resting/settled order's permanent ledger row, keyed
// by its hex-encoded fingerprint.
type Order struct {
	OrderHash       string `gorm:"primaryKey;column:order_hash"`
	Maker           string `gorm:"index;column:maker"`
	Signer          string `gorm:"column:signer"`
	Taker           string `gorm:"column:taker"`
	Market          string `gorm:"index;column:market"`
	TokenID         uint8  `gorm:"column:token_id"`
	Side            uint8  `gorm:"column:side"`
	MakerAmount     string `gorm:"column:maker_amount"`
	TakerAmount     string `gorm:"column:taker_amount"`
	Expiration      int64  `gorm:"column:expiration"`
	Nonce           uint64 `gorm:"column:nonce"`
	FeeRateBps      uint16 `gorm:"column:fee_rate_bps"`
	Status          string `gorm:"column:status"`
	FilledAmount    string `gorm:"column:filled_amount"`
	RemainingAmount string `gorm:"column:remaining_amount"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Order) TableName() string { return "orders" }

// OrderFill is one executed leg; the idempotency key from spec.md §6
// is the (maker_order_hash, taker_order_hash) pair.
type OrderFill struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	MakerOrderHash string `gorm:"uniqueIndex:idx_fill_pair;column:maker_order_hash"`
	TakerOrderHash string `gorm:"uniqueIndex:idx_fill_pair;column:taker_order_hash"`
	MakerOwner     string `gorm:"index;column:maker_owner"`
	TakerOwner     string `gorm:"index;column:taker_owner"`
	Market         string `gorm:"index;column:market"`
	TokenID        uint8  `gorm:"column:token_id"`
	Side           uint8  `gorm:"column:side"`
	Price          string `gorm:"column:price"`
	Size           string `gorm:"column:size"`
	TimestampMs    int64  `gorm:"column:timestamp_ms"`
	CreatedAt      time.Time
}

func (OrderFill) TableName() string { return "order_fills" }

// Trade is an append-only trade-history row written alongside each
// fill upsert.
type Trade struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	MakerOrderHash string `gorm:"index;column:maker_order_hash"`
	TakerOrderHash string `gorm:"index;column:taker_order_hash"`
	Market         string `gorm:"index;column:market"`
	TokenID        uint8  `gorm:"column:token_id"`
	Price          string `gorm:"column:price"`
	Size           string `gorm:"column:size"`
	TimestampMs    int64  `gorm:"column:timestamp_ms"`
	CreatedAt      time.Time
}

func (Trade) TableName() string { return "trades" }

// UserBalance holds the six available/locked balances spec.md §6
// names: {usdc,yes,no} x {available,locked}. It is read here for
// display and mutated through the stored procedures in procs.go, apart
// from the periodic snapshot upsert in BulkUpsertBalanceSnapshots.
type UserBalance struct {
	UserID         string `gorm:"primaryKey;column:user_id"`
	UsdcAvailable  string `gorm:"column:usdc_available"`
	UsdcLocked     string `gorm:"column:usdc_locked"`
	YesAvailable   string `gorm:"column:yes_available"`
	YesLocked      string `gorm:"column:yes_locked"`
	NoAvailable    string `gorm:"column:no_available"`
	NoLocked       string `gorm:"column:no_locked"`
	UpdatedAt      time.Time
}

func (UserBalance) TableName() string { return "user_balances" }

// UserOperation is a deposit or withdrawal row, idempotent on
// transaction_signature.
type UserOperation struct {
	ID                   uint64 `gorm:"primaryKey;autoIncrement"`
	UserID               string `gorm:"index;column:user_id"`
	Type                 string `gorm:"column:type"` // "deposit" | "withdrawal"
	TransactionSignature string `gorm:"uniqueIndex;column:transaction_signature"`
	Amount               string `gorm:"column:amount"`
	Status               string `gorm:"column:status"`
	CreatedAt            time.Time
}

func (UserOperation) TableName() string { return "user_operations" }

// Market is a lookup-only row: title/status for notification text and
// the intake path's active-market check, never mutated by the
// matching/settlement path.
type Market struct {
	MarketID  string `gorm:"primaryKey;column:market_id"`
	Title     string `gorm:"column:title"`
	Active    bool   `gorm:"column:active"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Market) TableName() string { return "markets" }

// AllModels is the set AutoMigrate runs over at startup.
func AllModels() []interface{} {
	return []interface{}{
		&Order{}, &OrderFill{}, &Trade{}, &UserBalance{}, &UserOperation{}, &Market{},
	}
}
