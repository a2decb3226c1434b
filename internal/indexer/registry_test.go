package indexer

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"sonicindexer/internal/chain"
	"sonicindexer/internal/models"
)

func TestPlaceholderThenReconcilePreservesStats(t *testing.T) {
	repo := newStubRepo()
	reg := &Registry{Repo: repo, Logger: zap.NewNop()}
	agg := newTestAggregator(repo)
	ctx := context.Background()

	// Trading event arrives before the creation event.
	m, err := reg.ResolveOrCreate(ctx, 1, "0xmarket", models.MarketTypeAMM, testTime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.Complete {
		t.Fatalf("placeholder must be incomplete")
	}

	buy := tradeEvent(chain.EventSharesBought, "0xb1", 1, "0xalice", models.SideYes, "100", "200", "0")
	if err := agg.ApplyBuy(ctx, m, buy); err != nil {
		t.Fatalf("buy: %v", err)
	}

	fee := int64(200)
	payload := &chain.MarketCreatedPayload{
		MarketType:      models.MarketTypeAMM,
		PollAddress:     "0xpoll",
		Creator:         "0xcreator",
		CollateralToken: "0xusdc",
		FeeBps:          &fee,
	}
	m, first, err := reg.Reconcile(ctx, 1, "0xmarket", payload, testTime)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !first {
		t.Fatalf("first completion expected")
	}
	if !m.Complete || m.Creator != "0xcreator" || m.PollAddress != "0xpoll" {
		t.Fatalf("identity not merged: %+v", m)
	}
	if !m.TotalVolume.Equal(dec("100")) || m.TotalTrades != 1 {
		t.Fatalf("placeholder stats lost: volume=%s trades=%d", m.TotalVolume, m.TotalTrades)
	}

	// Records written while the poll was unknown got backfilled.
	trade, _ := repo.GetTradeByEventKey(ctx, 1, "0xb1", 1)
	if trade.PollAddress != "0xpoll" {
		t.Fatalf("trade poll=%q want backfilled 0xpoll", trade.PollAddress)
	}
	p, _ := repo.GetPosition(ctx, 1, "0xmarket", "0xalice")
	if p.PollAddress != "0xpoll" {
		t.Fatalf("position poll=%q want backfilled 0xpoll", p.PollAddress)
	}
}

func TestReconcileSecondDeliveryNotFirstCompletion(t *testing.T) {
	repo := newStubRepo()
	reg := &Registry{Repo: repo, Logger: zap.NewNop()}
	ctx := context.Background()

	payload := &chain.MarketCreatedPayload{
		MarketType:  models.MarketTypeAMM,
		PollAddress: "0xpoll",
		Creator:     "0xcreator",
	}
	if _, first, err := reg.Reconcile(ctx, 1, "0xmarket", payload, testTime); err != nil || !first {
		t.Fatalf("first reconcile: first=%v err=%v", first, err)
	}
	if _, first, err := reg.Reconcile(ctx, 1, "0xmarket", payload, testTime); err != nil || first {
		t.Fatalf("second reconcile: first=%v err=%v, must not complete twice", first, err)
	}
}

func TestResolveOrCreateReturnsExisting(t *testing.T) {
	repo := newStubRepo()
	reg := &Registry{Repo: repo, Logger: zap.NewNop()}
	ctx := context.Background()

	m1, err := reg.ResolveOrCreate(ctx, 1, "0xmarket", models.MarketTypePariMutuel, testTime)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	m1.TotalTrades = 7
	if err := repo.SaveMarket(ctx, m1); err != nil {
		t.Fatalf("save: %v", err)
	}

	m2, err := reg.ResolveOrCreate(ctx, 1, "0xmarket", models.MarketTypeAMM, testTime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m2.TotalTrades != 7 {
		t.Fatalf("existing record not returned: %+v", m2)
	}
	if m2.MarketType != models.MarketTypePariMutuel {
		t.Fatalf("type overwritten on resolve: %s", m2.MarketType)
	}
}
