package chain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventName identifies the domain event category.
type EventName string

const (
	EventMarketCreated    EventName = "MarketCreated"
	EventSharesBought     EventName = "SharesBought"
	EventSharesSold       EventName = "SharesSold"
	EventTokensSwapped    EventName = "TokensSwapped"
	EventLiquidityAdded   EventName = "LiquidityAdded"
	EventLiquidityRemoved EventName = "LiquidityRemoved"
	EventPoolSeeded       EventName = "PoolSeeded"
	EventPoolBetPlaced    EventName = "PoolBetPlaced"
	EventWinningsRedeemed EventName = "WinningsRedeemed"
	EventMarketResolved   EventName = "MarketResolved"
)

// ResolutionStatus mirrors the on-chain status enum.
type ResolutionStatus int

const (
	StatusPending ResolutionStatus = 0
	StatusYes     ResolutionStatus = 1
	StatusNo      ResolutionStatus = 2
	StatusVoid    ResolutionStatus = 3
)

func (s ResolutionStatus) Terminal() bool {
	return s == StatusYes || s == StatusNo || s == StatusVoid
}

func (s ResolutionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusYes:
		return "yes"
	case StatusNo:
		return "no"
	case StatusVoid:
		return "void"
	}
	return "unknown"
}

// seqBlockSpan dominates any realistic per-block log index range, so ordering
// by Seq() matches ordering by (blockNumber, logIndex).
const seqBlockSpan = 100_000

// Event is one decoded log from a market contract, the unit the engine
// applies. Exactly one payload pointer is set, matching Name.
type Event struct {
	ChainID       uint64    `json:"chain_id"`
	Name          EventName `json:"name"`
	MarketAddress string    `json:"market_address"`

	BlockNumber uint64    `json:"block_number"`
	LogIndex    uint32    `json:"log_index"`
	TxHash      string    `json:"tx_hash"`
	BlockTime   time.Time `json:"block_time"`

	MarketCreated *MarketCreatedPayload `json:"market_created,omitempty"`
	Trade         *TradePayload         `json:"trade,omitempty"`
	Swap          *SwapPayload          `json:"swap,omitempty"`
	Liquidity     *LiquidityPayload     `json:"liquidity,omitempty"`
	Seed          *SeedPayload          `json:"seed,omitempty"`
	Redeem        *RedeemPayload        `json:"redeem,omitempty"`
	Resolution    *ResolutionPayload    `json:"resolution,omitempty"`
}

// Seq is the total ordering key derived from (blockNumber, logIndex).
func (e Event) Seq() uint64 {
	return e.BlockNumber*seqBlockSpan + uint64(e.LogIndex)
}

type MarketCreatedPayload struct {
	MarketType      string          `json:"market_type"`
	PollAddress     string          `json:"poll_address"`
	Creator         string          `json:"creator"`
	CollateralToken string          `json:"collateral_token"`
	FeeBps          *int64          `json:"fee_bps,omitempty"`
	ImbalanceCapBps *int64          `json:"imbalance_cap_bps,omitempty"`
	CurveFlattener  *int64          `json:"curve_flattener,omitempty"`
	CurveOffsetBps  *int64          `json:"curve_offset_bps,omitempty"`
	Deadline        *time.Time      `json:"deadline,omitempty"`
	InitialFunding  decimal.Decimal `json:"initial_funding"`
}

// TradePayload covers buys, sells and pool bets.
type TradePayload struct {
	Trader     string          `json:"trader"`
	Side       string          `json:"side"` // yes | no
	Collateral decimal.Decimal `json:"collateral"`
	Tokens     decimal.Decimal `json:"tokens"`
	Fee        decimal.Decimal `json:"fee"`
}

type SwapPayload struct {
	Trader    string          `json:"trader"`
	FromSide  string          `json:"from_side"`
	TokensIn  decimal.Decimal `json:"tokens_in"`
	TokensOut decimal.Decimal `json:"tokens_out"`
}

type LiquidityPayload struct {
	Provider        string          `json:"provider"`
	Collateral      decimal.Decimal `json:"collateral"`
	ImbalanceReturn decimal.Decimal `json:"imbalance_return"`
}

type SeedPayload struct {
	Provider   string          `json:"provider"`
	Collateral decimal.Decimal `json:"collateral"`
}

type RedeemPayload struct {
	Redeemer string          `json:"redeemer"`
	Side     string          `json:"side"`
	Payout   decimal.Decimal `json:"payout"`
}

type ResolutionPayload struct {
	PollAddress string           `json:"poll_address"`
	Status      ResolutionStatus `json:"status"`
	Reason      string           `json:"reason"`
}

// Validate rejects malformed events before they reach any aggregate. A
// validation failure is permanent: the event is never retried.
func (e Event) Validate() error {
	if e.ChainID == 0 {
		return fmt.Errorf("event missing chain id")
	}
	if strings.TrimSpace(e.TxHash) == "" {
		return fmt.Errorf("event missing tx hash")
	}
	if strings.TrimSpace(e.MarketAddress) == "" && e.Name != EventMarketResolved {
		return fmt.Errorf("event %s missing market address", e.Name)
	}
	switch e.Name {
	case EventMarketCreated:
		if e.MarketCreated == nil {
			return fmt.Errorf("%s without payload", e.Name)
		}
		switch e.MarketCreated.MarketType {
		case "amm", "parimutuel":
		default:
			return fmt.Errorf("unknown market type %q", e.MarketCreated.MarketType)
		}
	case EventSharesBought, EventSharesSold, EventPoolBetPlaced:
		if e.Trade == nil {
			return fmt.Errorf("%s without payload", e.Name)
		}
		if err := validSide(e.Trade.Side); err != nil {
			return err
		}
		if e.Trade.Collateral.IsNegative() || e.Trade.Tokens.IsNegative() || e.Trade.Fee.IsNegative() {
			return fmt.Errorf("%s with negative amount", e.Name)
		}
	case EventTokensSwapped:
		if e.Swap == nil {
			return fmt.Errorf("%s without payload", e.Name)
		}
		if err := validSide(e.Swap.FromSide); err != nil {
			return err
		}
	case EventLiquidityAdded, EventLiquidityRemoved:
		if e.Liquidity == nil {
			return fmt.Errorf("%s without payload", e.Name)
		}
		if e.Liquidity.Collateral.IsNegative() {
			return fmt.Errorf("%s with negative collateral", e.Name)
		}
	case EventPoolSeeded:
		if e.Seed == nil {
			return fmt.Errorf("%s without payload", e.Name)
		}
	case EventWinningsRedeemed:
		if e.Redeem == nil {
			return fmt.Errorf("%s without payload", e.Name)
		}
	case EventMarketResolved:
		if e.Resolution == nil {
			return fmt.Errorf("%s without payload", e.Name)
		}
		if e.Resolution.Status < StatusPending || e.Resolution.Status > StatusVoid {
			return fmt.Errorf("invalid resolution status %d", e.Resolution.Status)
		}
	default:
		return fmt.Errorf("unknown event %q", e.Name)
	}
	return nil
}

func validSide(side string) error {
	if side != "yes" && side != "no" {
		return fmt.Errorf("invalid side %q", side)
	}
	return nil
}

// RawJSON re-encodes the event for the trade record's jsonb column.
func (e Event) RawJSON() []byte {
	raw, err := json.Marshal(e)
	if err != nil {
		return []byte(`{}`)
	}
	return raw
}
