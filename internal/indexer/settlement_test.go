package indexer

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"sonicindexer/internal/chain"
	"sonicindexer/internal/models"
)

func resolutionEvent(status chain.ResolutionStatus) chain.Event {
	return chain.Event{
		ChainID:     1,
		Name:        chain.EventMarketResolved,
		BlockNumber: 300,
		LogIndex:    1,
		TxHash:      "0xres",
		BlockTime:   testTime,
		Resolution: &chain.ResolutionPayload{
			PollAddress: "0xpoll",
			Status:      status,
			Reason:      "outcome observed",
		},
	}
}

func setupSettlement(t *testing.T) (*stubRepo, *Settler) {
	t.Helper()
	repo := newStubRepo()
	agg := newTestAggregator(repo)
	m := seedMarket(t, repo, models.MarketTypeAMM)
	ctx := context.Background()

	// Alice holds yes, Bob holds no, Carol holds both sides.
	events := []struct {
		tx, user, side, collateral, tokens string
	}{
		{"0xb1", "0xalice", models.SideYes, "100", "200"},
		{"0xb2", "0xbob", models.SideNo, "50", "80"},
		{"0xb3", "0xcarol", models.SideYes, "30", "60"},
		{"0xb4", "0xcarol", models.SideNo, "20", "30"},
	}
	for i, e := range events {
		m, _ = repo.GetMarket(ctx, 1, m.Address)
		ev := tradeEvent(chain.EventSharesBought, e.tx, uint32(i+1), e.user, e.side, e.collateral, e.tokens, "0")
		if err := agg.ApplyBuy(ctx, m, ev); err != nil {
			t.Fatalf("buy %s: %v", e.tx, err)
		}
	}
	return repo, &Settler{Repo: repo, Logger: zap.NewNop()}
}

func TestResolutionYesRecordsNoSideLosses(t *testing.T) {
	repo, settler := setupSettlement(t)
	ctx := context.Background()

	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusYes)); err != nil {
		t.Fatalf("resolution: %v", err)
	}

	losses, _ := repo.ListPositionLosses(ctx, 1, "0xmarket")
	if len(losses) != 2 {
		t.Fatalf("losses=%d want 2 (bob and carol held no)", len(losses))
	}
	for _, l := range losses {
		if l.Side != models.SideNo {
			t.Fatalf("loss side=%s want no", l.Side)
		}
	}

	bob, _ := repo.GetUser(ctx, 1, "0xbob")
	if bob.TotalLosses != 1 || bob.CurrentStreak != -1 {
		t.Fatalf("bob losses=%d streak=%d want 1/-1", bob.TotalLosses, bob.CurrentStreak)
	}
	alice, _ := repo.GetUser(ctx, 1, "0xalice")
	if alice.TotalLosses != 0 {
		t.Fatalf("alice losses=%d want 0, she held the winning side", alice.TotalLosses)
	}

	platform, _ := repo.GetPlatformStat(ctx, 1)
	if platform.TotalLosses != 2 {
		t.Fatalf("platform losses=%d want 2", platform.TotalLosses)
	}

	res, _ := repo.GetMarketResolution(ctx, 1, "0xpoll")
	if res == nil || res.Outcome != "yes" {
		t.Fatalf("resolution record missing or wrong: %+v", res)
	}
}

func TestResolutionScanIsExactlyOnce(t *testing.T) {
	repo, settler := setupSettlement(t)
	ctx := context.Background()

	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusYes)); err != nil {
		t.Fatalf("first resolution: %v", err)
	}
	// Re-delivery of the same resolution event.
	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusYes)); err != nil {
		t.Fatalf("second resolution: %v", err)
	}

	losses, _ := repo.ListPositionLosses(ctx, 1, "0xmarket")
	if len(losses) != 2 {
		t.Fatalf("losses=%d want 2 after double scan", len(losses))
	}
	bob, _ := repo.GetUser(ctx, 1, "0xbob")
	if bob.TotalLosses != 1 {
		t.Fatalf("bob losses=%d want 1, scan must not double count", bob.TotalLosses)
	}
	platform, _ := repo.GetPlatformStat(ctx, 1)
	if platform.TotalLosses != 2 {
		t.Fatalf("platform losses=%d want 2", platform.TotalLosses)
	}
}

func TestVoidResolutionProducesNoLosses(t *testing.T) {
	repo, settler := setupSettlement(t)
	ctx := context.Background()

	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusVoid)); err != nil {
		t.Fatalf("resolution: %v", err)
	}

	losses, _ := repo.ListPositionLosses(ctx, 1, "0xmarket")
	if len(losses) != 0 {
		t.Fatalf("losses=%d want 0 for void", len(losses))
	}
	res, _ := repo.GetMarketResolution(ctx, 1, "0xpoll")
	if res == nil || res.Outcome != "void" {
		t.Fatalf("void outcome still gets recorded: %+v", res)
	}
}

func TestNonTerminalResolutionIgnored(t *testing.T) {
	repo, settler := setupSettlement(t)
	ctx := context.Background()

	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusPending)); err != nil {
		t.Fatalf("resolution: %v", err)
	}

	res, _ := repo.GetMarketResolution(ctx, 1, "0xpoll")
	if res != nil {
		t.Fatalf("pending resolution must not be recorded, got %+v", res)
	}
	losses, _ := repo.ListPositionLosses(ctx, 1, "0xmarket")
	if len(losses) != 0 {
		t.Fatalf("losses=%d want 0", len(losses))
	}
}

func TestLossScanCompletesInterruptedRecord(t *testing.T) {
	repo, settler := setupSettlement(t)
	ctx := context.Background()

	// A loss row without the position flag, as left by a scan that stopped
	// between the insert and the position save. The position counters and
	// platform total are still owed.
	bobPos, _ := repo.GetPosition(ctx, 1, "0xmarket", "0xbob")
	if err := repo.InsertPositionLoss(ctx, &models.PositionLoss{
		PositionID:    bobPos.ID,
		ChainID:       1,
		MarketAddress: "0xmarket",
		UserAddress:   "0xbob",
		Side:          models.SideNo,
		Amount:        dec("50"),
		RecordedAt:    testTime,
	}); err != nil {
		t.Fatalf("insert loss: %v", err)
	}

	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusYes)); err != nil {
		t.Fatalf("first resolution: %v", err)
	}
	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusYes)); err != nil {
		t.Fatalf("second resolution: %v", err)
	}

	losses, _ := repo.ListPositionLosses(ctx, 1, "0xmarket")
	if len(losses) != 2 {
		t.Fatalf("losses=%d want 2 (bob and carol)", len(losses))
	}
	bobPos, _ = repo.GetPosition(ctx, 1, "0xmarket", "0xbob")
	if !bobPos.LossRecorded {
		t.Fatalf("recovered loss must flag the position")
	}
	bob, _ := repo.GetUser(ctx, 1, "0xbob")
	if bob.TotalLosses != 1 || bob.CurrentStreak != -1 {
		t.Fatalf("bob losses=%d streak=%d want 1/-1", bob.TotalLosses, bob.CurrentStreak)
	}
	platform, _ := repo.GetPlatformStat(ctx, 1)
	if platform.TotalLosses != 2 {
		t.Fatalf("platform losses=%d want 2, rescans must not inflate the total", platform.TotalLosses)
	}
}

func TestLossSkipsFullyExitedPosition(t *testing.T) {
	repo, settler := setupSettlement(t)
	ctx := context.Background()
	ledger := &Ledger{Repo: repo, Logger: zap.NewNop()}

	// Bob exits his entire no position before resolution.
	if _, err := ledger.ApplyClose(ctx, 1, "0xmarket", "0xbob", models.SideNo, dec("80"), testTime); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := settler.ApplyResolution(ctx, resolutionEvent(chain.StatusYes)); err != nil {
		t.Fatalf("resolution: %v", err)
	}

	bob, _ := repo.GetUser(ctx, 1, "0xbob")
	if bob.TotalLosses != 0 {
		t.Fatalf("bob losses=%d want 0, no stake left at resolution", bob.TotalLosses)
	}
	losses, _ := repo.ListPositionLosses(ctx, 1, "0xmarket")
	if len(losses) != 1 {
		t.Fatalf("losses=%d want 1 (only carol)", len(losses))
	}
	if losses[0].UserAddress != "0xcarol" {
		t.Fatalf("loss user=%s want carol", losses[0].UserAddress)
	}
	if !losses[0].Amount.Equal(dec("20")) {
		t.Fatalf("loss amount=%s want 20, the remaining no-side basis", losses[0].Amount)
	}
}
