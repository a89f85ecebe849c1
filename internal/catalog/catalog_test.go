package catalog

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDefaultCatalogWeightsSumToOne(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	if len(c.Cases()) == 0 {
		t.Fatal("expected at least one case")
	}

	for _, cs := range c.Cases() {
		var sum float64
		for _, p := range cs.Prizes {
			sum += p.Weight
		}
		if math.Abs(sum-1) > WeightTolerance {
			t.Fatalf("case %s: expected weights to sum to 1, got %f", cs.ID, sum)
		}
	}
}

func TestParseNormalizesDriftedWeights(t *testing.T) {
	data := []byte(`
prizes:
  - { name: "A", value: "1" }
  - { name: "B", value: "2" }
cases:
  - id: "pct"
    price: "1"
    prizes:
      - { name: "A", weight: 30 }
      - { name: "B", weight: 70 }
`)
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cs, _ := c.Case("pct")
	if math.Abs(cs.Prizes[0].Weight-0.3) > 1e-9 || math.Abs(cs.Prizes[1].Weight-0.7) > 1e-9 {
		t.Fatalf("expected weights 0.3/0.7, got %v", cs.Prizes)
	}
}

func TestParseRejectsBrokenCatalogs(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{
			name: "unknown prize",
			data: `
prizes: [{ name: "A", value: "1" }]
cases: [{ id: "x", price: "1", prizes: [{ name: "Z", weight: 1 }] }]`,
		},
		{
			name: "duplicate prize",
			data: `
prizes: [{ name: "A", value: "1" }, { name: "A", value: "2" }]`,
		},
		{
			name: "zero price",
			data: `
prizes: [{ name: "A", value: "1" }]
cases: [{ id: "x", price: "0", prizes: [{ name: "A", weight: 1 }] }]`,
		},
		{
			name: "negative weight",
			data: `
prizes: [{ name: "A", value: "1" }]
cases: [{ id: "x", price: "1", prizes: [{ name: "A", weight: -1 }] }]`,
		},
		{
			name: "negative value",
			data: `
prizes: [{ name: "A", value: "-1" }]`,
		},
		{
			name: "empty case",
			data: `
prizes: [{ name: "A", value: "1" }]
cases: [{ id: "x", price: "1", prizes: [] }]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if !errors.Is(err, ErrIntegrity) {
				t.Fatalf("expected ErrIntegrity, got %v", err)
			}
		})
	}
}

func TestTablePickFallsBackToLastEntry(t *testing.T) {
	table := Table{bounds: []float64{0.2, 0.5, 0.9999}}

	tests := []struct {
		r    float64
		want int
	}{
		{0, 0},
		{0.2, 0},
		{0.2000001, 1},
		{0.5, 1},
		{0.99995, 2},
		{1.5, 2},
	}
	for _, tt := range tests {
		if got := table.Pick(tt.r); got != tt.want {
			t.Fatalf("Pick(%v) = %d, want %d", tt.r, got, tt.want)
		}
	}
}

func TestNewTablePinsLastBound(t *testing.T) {
	table := NewTable([]Prize{{Name: "a", Weight: 0.1}, {Name: "b", Weight: 0.2}, {Name: "c", Weight: 0.69999}})
	if table.bounds[len(table.bounds)-1] != 1 {
		t.Fatalf("expected last bound 1, got %v", table.bounds)
	}
	if got := table.Pick(0.99999999); got != 2 {
		t.Fatalf("expected last entry, got %d", got)
	}
}

func TestDrawDistribution(t *testing.T) {
	c, err := Parse([]byte(`
prizes: [{ name: "A", value: "1" }, { name: "B", value: "1" }]
cases: [{ id: "coin", price: "1", prizes: [{ name: "A", weight: 0.5 }, { name: "B", weight: 0.5 }] }]`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	const n = 100_000
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		won, err := c.Draw("coin", 1, rng.Float64)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		counts[won[0].Name]++
	}

	for _, name := range []string{"A", "B"} {
		freq := float64(counts[name]) / n
		if math.Abs(freq-0.5) > 0.01 {
			t.Fatalf("expected %s frequency near 0.5, got %f", name, freq)
		}
	}
}

func TestDrawBatchAndValidation(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}

	won, err := c.Draw("starter", 3, func() float64 { return 0.999999 })
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if len(won) != 3 {
		t.Fatalf("expected 3 prizes, got %d", len(won))
	}
	if won[0].Name != "Toy Bear" {
		t.Fatalf("expected top roll to land on the last prize, got %s", won[0].Name)
	}

	for _, count := range []int{0, 4} {
		if _, err := c.Draw("starter", count, rand.Float64); !errors.Is(err, ErrInvalidCount) {
			t.Fatalf("count %d: expected ErrInvalidCount, got %v", count, err)
		}
	}
	if _, err := c.Draw("missing", 1, rand.Float64); !errors.Is(err, ErrUnknownCase) {
		t.Fatalf("expected ErrUnknownCase, got %v", err)
	}
}

func TestPromoLookup(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}

	p, ok := c.Promo(" welcome ")
	if !ok {
		t.Fatal("expected WELCOME promo")
	}
	if !p.Reward.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("expected reward 0.50, got %s", p.Reward)
	}
	if !p.Active(time.Now()) {
		t.Fatal("expected promo without expiry to be active")
	}

	fest, ok := c.Promo("GIFTFEST")
	if !ok {
		t.Fatal("expected GIFTFEST promo")
	}
	if fest.Active(time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("expected GIFTFEST to be expired in mid 2027")
	}
}

func TestEntryCarriesModelAndFamily(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("load default catalog: %v", err)
	}
	e, ok := c.Entry("Toy Bear Matrix")
	if !ok {
		t.Fatal("expected Toy Bear Matrix entry")
	}
	if e.Family != "Toy Bear" || e.Model != "Matrix" {
		t.Fatalf("expected family Toy Bear / model Matrix, got %q / %q", e.Family, e.Model)
	}
}
