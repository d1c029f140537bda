package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/courtside/matchbook/internal/model"
	"github.com/courtside/matchbook/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func seedEvent(t *testing.T, ms *store.MemoryStore, id string) {
	t.Helper()
	err := ms.CreateEvent(context.Background(), &model.Event{
		ID:        id,
		MatchID:   "match-" + id,
		Question:  "Will A win against B?",
		TotalYes:  decimal.Zero,
		TotalNo:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func seedAccount(t *testing.T, ms *store.MemoryStore, userID string, balance float64) {
	t.Helper()
	err := ms.CreateAccount(context.Background(), &model.Account{
		UserID:    userID,
		Balance:   d(balance),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

func TestGetEvent_NotFound(t *testing.T) {
	ms := store.NewMemoryStore()
	_, err := ms.GetEvent(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDebit_InsufficientFunds(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, ms, "alice", 10)

	err := ms.Debit(ctx, "alice", d(10.01))
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	acct, err := ms.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !acct.Balance.Equal(d(10)) {
		t.Errorf("failed debit should not change balance, got %s", acct.Balance)
	}
}

func TestApplyBalance_AllowsNegative(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, ms, "bob", 5)

	if err := ms.ApplyBalance(ctx, "bob", d(-7.5)); err != nil {
		t.Fatalf("apply balance: %v", err)
	}
	acct, _ := ms.GetAccount(ctx, "bob")
	if !acct.Balance.Equal(d(-2.5)) {
		t.Errorf("balance = %s, want -2.5", acct.Balance)
	}
}

func TestRunInTx_RollbackRestoresState(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedEvent(t, ms, "ev1")
	seedAccount(t, ms, "alice", 100)

	boom := errors.New("boom")
	err := ms.RunInTx(ctx, func(tx store.Store) error {
		if err := tx.Debit(ctx, "alice", d(40)); err != nil {
			return err
		}
		if err := tx.UpdateAggregates(ctx, "ev1", d(10), decimal.Zero); err != nil {
			return err
		}
		if err := tx.CreatePosition(ctx, &model.Position{
			ID:      "p1",
			UserID:  "alice",
			EventID: "ev1",
			Outcome: model.OutcomeYes,
			Side:    model.SideBuy,
			Amount:  d(10),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	acct, _ := ms.GetAccount(ctx, "alice")
	if !acct.Balance.Equal(d(100)) {
		t.Errorf("balance = %s, want 100 after rollback", acct.Balance)
	}
	ev, _ := ms.GetEvent(ctx, "ev1")
	if !ev.TotalYes.IsZero() {
		t.Errorf("total yes = %s, want 0 after rollback", ev.TotalYes)
	}
	positions, _ := ms.ListPositionsByEvent(ctx, "ev1")
	if len(positions) != 0 {
		t.Errorf("expected no positions after rollback, got %d", len(positions))
	}
}

func TestRunInTx_CommitKeepsState(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedAccount(t, ms, "alice", 100)

	err := ms.RunInTx(ctx, func(tx store.Store) error {
		return tx.Credit(ctx, "alice", d(25))
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	acct, _ := ms.GetAccount(ctx, "alice")
	if !acct.Balance.Equal(d(125)) {
		t.Errorf("balance = %s, want 125", acct.Balance)
	}
}

func TestListPositionsByUserAndEvent_CreationOrder(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		err := ms.CreatePosition(ctx, &model.Position{
			ID:      id,
			UserID:  "alice",
			EventID: "ev1",
			Outcome: model.OutcomeYes,
			Side:    model.SideBuy,
			Amount:  d(1),
		})
		if err != nil {
			t.Fatalf("create position %s: %v", id, err)
		}
	}

	positions, err := ms.ListPositionsByUserAndEvent(ctx, "alice", "ev1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(positions) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(positions))
	}
	for i, want := range []string{"first", "second", "third"} {
		if positions[i].ID != want {
			t.Errorf("positions[%d] = %s, want %s", i, positions[i].ID, want)
		}
	}
}

func TestListPositionsWithLimit_FiltersUnlimited(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	limit := d(30)
	ms.CreatePosition(ctx, &model.Position{ID: "plain", UserID: "a", EventID: "ev1", Outcome: model.OutcomeYes, Side: model.SideBuy, Amount: d(1)})
	ms.CreatePosition(ctx, &model.Position{ID: "resting", UserID: "a", EventID: "ev1", Outcome: model.OutcomeYes, Side: model.SideBuy, Amount: d(1), LimitPrice: &limit})

	positions, err := ms.ListPositionsWithLimit(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(positions) != 1 || positions[0].ID != "resting" {
		t.Errorf("expected only the limit position, got %+v", positions)
	}
}

func TestUpdatePosition_Overwrites(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	p := &model.Position{ID: "p1", UserID: "a", EventID: "ev1", Outcome: model.OutcomeYes, Side: model.SideBuy, Amount: d(10)}
	if err := ms.CreatePosition(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}

	p.Amount = d(4)
	if err := ms.UpdatePosition(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	positions, _ := ms.ListPositionsByEvent(ctx, "ev1")
	if len(positions) != 1 || !positions[0].Amount.Equal(d(4)) {
		t.Errorf("expected amount 4, got %+v", positions)
	}
}

func TestDeletePosition_Missing(t *testing.T) {
	ms := store.NewMemoryStore()
	err := ms.DeletePosition(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
