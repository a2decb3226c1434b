package indexer

import (
	"math"
	"math/big"
)

// BPS is the basis-point scale used by the pari-mutuel odds curve: 1,000,000
// equals 100%.
const BPS = int64(1_000_000)

// TimeWeight computes the curve's time weight for a progress value
// p in [0, BPS] (elapsed/duration in basis points), flattening factor k and
// basis-point floor offset. The result interpolates from offset at p=0 to BPS
// at p=BPS and is clamped to that range.
//
// k=1 is evaluated losslessly in integers; higher exponents go through
// float64 exponentiation with the result rounded down, matching the reference
// integer formula closely enough for the golden vectors (exact bit parity is
// not required, see DESIGN.md).
func TimeWeight(p, k, offset int64) int64 {
	if offset < 0 {
		offset = 0
	}
	if offset > BPS {
		offset = BPS
	}
	if p <= 0 {
		return offset
	}
	if p >= BPS {
		return BPS
	}
	if k < 1 {
		k = 1
	}

	// scaled = p^k / BPS^(k-1), kept in the [0, BPS] range.
	var scaled int64
	if k == 1 {
		scaled = p
	} else {
		scaled = int64(math.Floor(math.Pow(float64(p), float64(k)) / math.Pow(float64(BPS), float64(k-1))))
	}

	w := offset + (BPS-offset)*scaled/BPS
	if w < offset {
		w = offset
	}
	if w > BPS {
		w = BPS
	}
	return w
}

// ImpliedYesE9 computes the time-weighted implied probability of YES for a
// pool market, fixed point scale 1e9. Pools are collateral totals in base
// units. The value interpolates between an even split at progress 0 (modulo
// the offset floor) and the pool-imbalance split at progress BPS. Floored at
// 1 so a live market never reports a zero probability.
//
// This is derived state: it is recomputed from the pools on every call and
// never persisted.
func ImpliedYesE9(yesPool, noPool int64, flattener, offsetBps, progressBps int64) int64 {
	if yesPool < 0 {
		yesPool = 0
	}
	if noPool < 0 {
		noPool = 0
	}
	total := yesPool + noPool
	if total == 0 {
		return PriceScale / 2
	}

	w := TimeWeight(progressBps, flattener, offsetBps)
	yesShares := unitShares(w, noPool, total)
	noShares := unitShares(w, yesPool, total)

	den := new(big.Int).Add(yesShares, noShares)
	if den.Sign() == 0 {
		return PriceScale / 2
	}
	num := new(big.Int).Mul(noShares, big.NewInt(PriceScale))
	p := new(big.Int).Quo(num, den).Int64()
	if p < 1 {
		p = 1
	}
	if p > PriceScale {
		p = PriceScale
	}
	return p
}

// unitShares is the per-unit payout multiplier for a side: a blend of the
// even split and the target multiplier implied by the opposite pool.
func unitShares(wTime, oppositePool, totalPool int64) *big.Int {
	// targetMult = 2 * opposite * BPS / total
	target := new(big.Int).Mul(big.NewInt(2*oppositePool), big.NewInt(BPS))
	target.Quo(target, big.NewInt(totalPool))

	// shares = BPS - wTime + wTime*targetMult/BPS
	blend := new(big.Int).Mul(big.NewInt(wTime), target)
	blend.Quo(blend, big.NewInt(BPS))
	shares := big.NewInt(BPS - wTime)
	return shares.Add(shares, blend)
}

// ProgressBps converts elapsed/duration seconds into the curve's basis-point
// progress value, clamped to [0, BPS].
func ProgressBps(elapsed, duration int64) int64 {
	if duration <= 0 || elapsed <= 0 {
		return 0
	}
	if elapsed >= duration {
		return BPS
	}
	return elapsed * BPS / duration
}
