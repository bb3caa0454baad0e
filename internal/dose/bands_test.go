package dose

import (
	"math"
	"testing"
)

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		adjusted float64
		category string
		rank     int
	}{
		{"zero", 0, "No observable effects", 0},
		{"just below first threshold", 99.999, "No observable effects", 0},
		{"first threshold inclusive", 100, "Minor biological impact", 1},
		{"mid band", 499.999, "Minor biological impact", 1},
		{"ars threshold", 500, "Possible ARS symptoms (nausea, vomiting)", 2},
		{"severe threshold", 1000, "Severe ARS, possible temporary sterility", 3},
		{"lethal threshold", 3000, "Life-threatening, intensive treatment required", 4},
		{"fatal threshold", 6000, "Fatal in most cases", 5},
		{"beyond slider maximum", 15400, "Fatal in most cases", 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			band := Classify(tc.adjusted)
			if band.Category != tc.category {
				t.Fatalf("expected %q got %q", tc.category, band.Category)
			}
			if band.Rank != tc.rank {
				t.Fatalf("expected rank %d got %d", tc.rank, band.Rank)
			}
		})
	}
}

func TestBandsContiguous(t *testing.T) {
	table := Bands()
	if len(table) != 6 {
		t.Fatalf("expected 6 bands got %d", len(table))
	}
	for i, b := range table {
		if b.Rank != i {
			t.Fatalf("band %d has rank %d", i, b.Rank)
		}
		if i == 0 {
			if b.LowerMSv != 0 {
				t.Fatalf("first band must start at 0, got %v", b.LowerMSv)
			}
			continue
		}
		if b.LowerMSv != table[i-1].UpperMSv {
			t.Fatalf("gap between band %d and %d: %v != %v", i-1, i, table[i-1].UpperMSv, b.LowerMSv)
		}
	}
	if !math.IsInf(table[len(table)-1].UpperMSv, 1) {
		t.Fatalf("top band must be open-ended")
	}
}

func TestChartTicksAscending(t *testing.T) {
	ticks := ChartTicks()
	if len(ticks) != 7 {
		t.Fatalf("expected 7 ticks got %d", len(ticks))
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i].DoseMSv <= ticks[i-1].DoseMSv {
			t.Fatalf("tick doses must ascend: %v then %v", ticks[i-1].DoseMSv, ticks[i].DoseMSv)
		}
		if ticks[i].Severity != ticks[i-1].Severity+1 {
			t.Fatalf("tick severities must step by one: %d then %d", ticks[i-1].Severity, ticks[i].Severity)
		}
	}
}
