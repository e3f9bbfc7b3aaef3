// Package storage is the GORM-backed persistence layer for accounts, orders,
// LP positions, ledger entries, and transactions.
//
// Grounded on ChoSanghyuk-blackholedex/internal/db/transaction_recorder.go's
// gorm.Open/AutoMigrate/TableName() pattern, generalized from a single
// snapshot-recording table to the full account/order/ledger schema, and on
// the teacher's store.Open/Close naming (internal/store/store.go) which this
// package keeps even though the backing technology changed from JSON files
// to a SQL database.
package storage

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"goldbroker/pkg/types"
)

// DB wraps a *gorm.DB with the schema this broker needs.
type DB struct {
	gdb *gorm.DB
}

// Open connects to the database identified by dsn using the given driver
// ("mysql" in production, "sqlite" in tests — see storage/storage_test.go)
// and auto-migrates the schema.
func Open(driver, dsn string) (*DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite":
		// glebarez/sqlite wraps modernc.org/sqlite, a pure-Go driver — this
		// is what lets tests run without cgo or a live MySQL instance.
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("open db: unsupported driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{gdb: gdb}
	if err := db.migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	return db.gdb.AutoMigrate(
		&types.Account{},
		&types.Order{},
		&types.LPPosition{},
		&types.LedgerEntry{},
		&types.Transaction{},
	)
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.gdb.DB()
	if err != nil {
		return fmt.Errorf("get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// Tx is the handle passed into a Transaction closure. It exposes the typed
// repository methods the engine needs, all scoped to the one GORM
// transaction so every write is atomic.
type Tx struct {
	gdb *gorm.DB
}

// Transaction runs fn inside a single database transaction. If fn returns an
// error, every write it made is rolled back — this is how OpenTrade and
// CloseTrade get their "nine writes are atomic" guarantee (spec.md §4.6/§9).
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return db.gdb.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&Tx{gdb: gtx})
	})
}

// LockAccount loads an Account by id with a row-level lock (SELECT ... FOR
// UPDATE), giving OpenTrade/CloseTrade the serialization spec.md §5 requires
// the storage layer to provide for concurrent calls on the same account.
func (tx *Tx) LockAccount(id uint) (*types.Account, error) {
	var acc types.Account
	err := tx.gdb.Clauses(clause.Locking{Strength: "UPDATE"}).First(&acc, id).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// LockAccountScoped loads an Account by (id, adminOwner), enforcing the
// authorization-scope invariant: cross-admin access must behave exactly
// like the row not existing.
func (tx *Tx) LockAccountScoped(id, adminOwner uint) (*types.Account, error) {
	var acc types.Account
	err := tx.gdb.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND admin_owner = ?", id, adminOwner).
		First(&acc).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (tx *Tx) SaveAccount(acc *types.Account) error {
	return tx.gdb.Save(acc).Error
}

func (tx *Tx) CreateOrder(o *types.Order) error {
	return tx.gdb.Create(o).Error
}

func (tx *Tx) SaveOrder(o *types.Order) error {
	return tx.gdb.Save(o).Error
}

func (tx *Tx) OrderByIDScoped(id, adminID uint) (*types.Order, error) {
	var o types.Order
	err := tx.gdb.Where("id = ? AND admin_id = ?", id, adminID).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (tx *Tx) CreateLPPosition(p *types.LPPosition) error {
	return tx.gdb.Create(p).Error
}

func (tx *Tx) SaveLPPosition(p *types.LPPosition) error {
	return tx.gdb.Save(p).Error
}

func (tx *Tx) LPPositionByPositionID(positionID string) (*types.LPPosition, error) {
	var p types.LPPosition
	err := tx.gdb.Where("position_id = ?", positionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (tx *Tx) AppendLedgerEntry(e *types.LedgerEntry) error {
	return tx.gdb.Create(e).Error
}

func (tx *Tx) CreateTransaction(t *types.Transaction) error {
	return tx.gdb.Create(t).Error
}

func (tx *Tx) TransactionByTransactionID(txID string) (*types.Transaction, error) {
	var t types.Transaction
	err := tx.gdb.Where("transaction_id = ?", txID).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (tx *Tx) SaveTransaction(t *types.Transaction) error {
	return tx.gdb.Save(t).Error
}

// ExistingProcessingVolume returns the account's PROCESSING orders, whose
// volumes the balance policy's maxAllowedVolume derivation sums.
func (tx *Tx) ExistingProcessingVolume(accountID uint) ([]types.Order, error) {
	var orders []types.Order
	err := tx.gdb.Where("user_id = ? AND order_status = ?", accountID, types.OrderProcessing).Find(&orders).Error
	return orders, err
}

// ————————————————————————————————————————————————————————————————————————
// Read-only queries (outside any write transaction)
// ————————————————————————————————————————————————————————————————————————

// AccountByID loads an account without locking, for read-only endpoints.
func (db *DB) AccountByID(ctx context.Context, id uint) (*types.Account, error) {
	var acc types.Account
	err := db.gdb.WithContext(ctx).First(&acc, id).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// AccountByPhone finds the account whose PhoneNumber matches one of the
// candidate normalizations produced by the webhook authorizer.
func (db *DB) AccountByPhone(ctx context.Context, candidates []string) (*types.Account, error) {
	var acc types.Account
	err := db.gdb.WithContext(ctx).Where("phone_number IN ?", candidates).First(&acc).Error
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// AccountsByAdmin lists every account owned by adminID, used by the admin
// dashboard snapshot and the per-admin ledger reconciliation endpoint.
func (db *DB) AccountsByAdmin(ctx context.Context, adminID uint) ([]types.Account, error) {
	var accounts []types.Account
	err := db.gdb.WithContext(ctx).Where("admin_owner = ?", adminID).Find(&accounts).Error
	return accounts, err
}

// OrdersByAccount lists orders for an account, most recent first.
func (db *DB) OrdersByAccount(ctx context.Context, accountID uint, limit int) ([]types.Order, error) {
	var orders []types.Order
	q := db.gdb.WithContext(ctx).Where("user_id = ?", accountID).Order("opening_date DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&orders).Error
	return orders, err
}

// OrderByOrderNo finds an order by its client-facing order number, used by
// the session layer to resolve a "CLOSE <orderId>" command to an engine call.
func (db *DB) OrderByOrderNo(ctx context.Context, orderNo string) (*types.Order, error) {
	var o types.Order
	err := db.gdb.WithContext(ctx).Where("order_no = ?", orderNo).First(&o).Error
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// OrdersByAdmin lists orders scoped to an admin.
func (db *DB) OrdersByAdmin(ctx context.Context, adminID uint) ([]types.Order, error) {
	var orders []types.Order
	err := db.gdb.WithContext(ctx).Where("admin_id = ?", adminID).Order("opening_date DESC").Find(&orders).Error
	return orders, err
}

// LedgerByUser lists ledger entries for a user and asset, paginated, most
// recent first — the statement-rendering query of spec.md §4.5.
func (db *DB) LedgerByUser(ctx context.Context, userID uint, asset types.Asset, page, pageSize int) ([]types.LedgerEntry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	var entries []types.LedgerEntry
	q := db.gdb.WithContext(ctx).Where("user_id = ?", userID)
	if asset != "" {
		q = q.Where("asset = ?", asset)
	}
	err := q.Order("date DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&entries).Error
	return entries, err
}

// LedgerSum sums signed ledger amounts for (user, asset) — DEBIT and CREDIT
// totals reported separately so the caller can verify they reconcile against
// the account's current balance (the ledger-conservation check, spec.md §8).
func (db *DB) LedgerSum(ctx context.Context, userID uint, asset types.Asset) (debit, credit decimal.Decimal, err error) {
	var debits, credits []types.LedgerEntry
	if err = db.gdb.WithContext(ctx).Where("user_id = ? AND asset = ? AND entry_nature = ?", userID, asset, types.Debit).Find(&debits).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if err = db.gdb.WithContext(ctx).Where("user_id = ? AND asset = ? AND entry_nature = ?", userID, asset, types.Credit).Find(&credits).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range debits {
		debit = debit.Add(e.Amount)
	}
	for _, e := range credits {
		credit = credit.Add(e.Amount)
	}
	return debit, credit, nil
}
