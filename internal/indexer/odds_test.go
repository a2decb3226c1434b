package indexer

import "testing"

func TestTimeWeight(t *testing.T) {
	cases := []struct {
		name            string
		p, k, offset    int64
		want            int64
	}{
		{"zero progress returns offset", 0, 1, 50_000, 50_000},
		{"full progress returns full weight", BPS, 3, 50_000, BPS},
		{"linear midpoint", BPS / 2, 1, 0, BPS / 2},
		{"quadratic flattens early progress", BPS / 2, 2, 0, BPS / 4},
		{"offset floors the curve", BPS / 2, 2, 100_000, 325_000},
		{"negative offset clamps to zero", 0, 1, -5, 0},
		{"offset above scale clamps", 0, 1, BPS + 1, BPS},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := TimeWeight(tc.p, tc.k, tc.offset); got != tc.want {
				t.Fatalf("TimeWeight(%d,%d,%d)=%d want %d", tc.p, tc.k, tc.offset, got, tc.want)
			}
		})
	}
}

func TestImpliedYesE9(t *testing.T) {
	cases := []struct {
		name                         string
		yes, no                      int64
		flattener, offset, progress  int64
		want                         int64
	}{
		{"empty pools are even", 0, 0, 1, 0, 0, PriceScale / 2},
		{"no time weight means even regardless of imbalance", 300, 100, 1, 0, 0, PriceScale / 2},
		{"offset lets imbalance in at progress zero", 300, 100, 1, 100_000, 0, 525_000_000},
		{"full progress reports pool share", 300, 100, 1, 0, BPS, 750_000_000},
		{"all-yes pool clamps high", 400, 0, 1, 0, BPS, PriceScale},
		{"all-no pool floors at one", 0, 400, 1, 0, BPS, 1},
		{"balanced pools stay even at any progress", 200, 200, 2, 50_000, BPS / 3, PriceScale / 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ImpliedYesE9(tc.yes, tc.no, tc.flattener, tc.offset, tc.progress)
			if got != tc.want {
				t.Fatalf("ImpliedYesE9(%d,%d,k=%d,off=%d,p=%d)=%d want %d",
					tc.yes, tc.no, tc.flattener, tc.offset, tc.progress, got, tc.want)
			}
		})
	}
}

func TestImpliedYesMonotonicInProgress(t *testing.T) {
	// A yes-heavy pool drifts from even toward its pool share as the market
	// ages; the implied probability must never move backwards.
	prev := int64(0)
	for p := int64(0); p <= BPS; p += BPS / 20 {
		got := ImpliedYesE9(900, 100, 2, 25_000, p)
		if got < prev {
			t.Fatalf("implied yes dropped from %d to %d at progress %d", prev, got, p)
		}
		prev = got
	}
	if prev != 900_000_000 {
		t.Fatalf("final implied=%d want 900000000 (pool share)", prev)
	}
}

func TestProgressBps(t *testing.T) {
	if got := ProgressBps(0, 100); got != 0 {
		t.Fatalf("at start: %d want 0", got)
	}
	if got := ProgressBps(50, 100); got != BPS/2 {
		t.Fatalf("midway: %d want %d", got, BPS/2)
	}
	if got := ProgressBps(200, 100); got != BPS {
		t.Fatalf("past deadline: %d want %d", got, BPS)
	}
	if got := ProgressBps(10, 0); got != 0 {
		t.Fatalf("zero duration: %d want 0", got)
	}
}
