package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"goldbroker/pkg/types"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedAccount(t *testing.T, db *DB) *types.Account {
	t.Helper()
	acc := &types.Account{
		RefMID:      "MID0001",
		Accode:      "ACC0001",
		CashBalance: decimal.NewFromInt(10000),
		MetalWeight: decimal.Zero,
		Margin:      decimal.NewFromFloat(5),
		AskSpread:   decimal.NewFromFloat(0.5),
		BidSpread:   decimal.NewFromFloat(0.5),
		AdminOwner:  1,
		Status:      types.AccountActive,
	}
	if err := db.gdb.Create(acc).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func TestTransactionLockAccountAndSave(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	acc := seedAccount(t, db)

	err := db.Transaction(context.Background(), func(tx *Tx) error {
		locked, err := tx.LockAccount(acc.ID)
		if err != nil {
			return err
		}
		locked.CashBalance = locked.CashBalance.Sub(decimal.NewFromInt(100))
		return tx.SaveAccount(locked)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	got, err := db.AccountByID(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("account by id: %v", err)
	}
	if !got.CashBalance.Equal(decimal.NewFromInt(9900)) {
		t.Errorf("cash balance = %s, want 9900", got.CashBalance)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	acc := seedAccount(t, db)

	wantErr := errRollback{}
	err := db.Transaction(context.Background(), func(tx *Tx) error {
		locked, err := tx.LockAccount(acc.ID)
		if err != nil {
			return err
		}
		locked.CashBalance = decimal.Zero
		if err := tx.SaveAccount(locked); err != nil {
			return err
		}
		return wantErr
	})
	if err == nil {
		t.Fatal("expected transaction error")
	}

	got, err := db.AccountByID(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("account by id: %v", err)
	}
	if !got.CashBalance.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("cash balance after rollback = %s, want unchanged 10000", got.CashBalance)
	}
}

type errRollback struct{}

func (errRollback) Error() string { return "forced rollback" }

func TestLedgerSumReconciles(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	acc := seedAccount(t, db)

	entries := []types.LedgerEntry{
		{EntryID: "e1", EntryType: types.EntryOrder, EntryNature: types.Debit, ReferenceNumber: "O1", Amount: decimal.NewFromInt(100), RunningBalance: decimal.NewFromInt(9900), User: acc.ID, Asset: types.AssetCash},
		{EntryID: "e2", EntryType: types.EntryTransaction, EntryNature: types.Credit, ReferenceNumber: "T1", Amount: decimal.NewFromInt(500), RunningBalance: decimal.NewFromInt(10400), User: acc.ID, Asset: types.AssetCash},
	}
	for i := range entries {
		if err := db.gdb.Create(&entries[i]).Error; err != nil {
			t.Fatalf("create ledger entry: %v", err)
		}
	}

	debit, credit, err := db.LedgerSum(context.Background(), acc.ID, types.AssetCash)
	if err != nil {
		t.Fatalf("ledger sum: %v", err)
	}
	if !debit.Equal(decimal.NewFromInt(100)) {
		t.Errorf("debit = %s, want 100", debit)
	}
	if !credit.Equal(decimal.NewFromInt(500)) {
		t.Errorf("credit = %s, want 500", credit)
	}
}
