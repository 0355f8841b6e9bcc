package quote

import (
	"math"

	"github.com/quotewise/quotewise/internal/models"
)

// DefaultTargetMargin applies when a quote carries no explicit target.
const DefaultTargetMargin = 20.0

// Line is one costed product line feeding the computation.
type Line struct {
	TradePrice  float64
	RetailPrice float64
}

// CostParams are the quote-level inputs that combine with product lines.
type CostParams struct {
	LaborHours         float64
	LaborCostPerHour   float64
	FixedOverheads     float64
	TargetProfitMargin float64
}

// Breakdown is the full derived output of one computation.
type Breakdown struct {
	TotalTradePrice  float64
	TotalRetailPrice float64
	GrossProfit      float64
	LaborCost        float64
	NetProfit        float64
	CalculatedMargin float64
	HealthStatus     string
}

// Compute derives the profitability verdict for a set of lines and cost
// parameters. Deterministic, no side effects; this is the single source of
// truth for quote financials - every persisted derived field comes from here.
func Compute(lines []Line, p CostParams) Breakdown {
	var b Breakdown
	for _, l := range lines {
		b.TotalTradePrice += l.TradePrice
		b.TotalRetailPrice += l.RetailPrice
	}
	b.GrossProfit = b.TotalRetailPrice - b.TotalTradePrice
	b.LaborCost = p.LaborHours * p.LaborCostPerHour
	b.NetProfit = b.GrossProfit - b.LaborCost - p.FixedOverheads
	if b.TotalRetailPrice != 0 {
		// Zero total retail reports 0 margin, never a division error.
		b.CalculatedMargin = round2(b.NetProfit / b.TotalRetailPrice * 100)
	}
	b.HealthStatus = Classify(b.CalculatedMargin, p.TargetProfitMargin)
	return b
}

// Classify maps a margin onto the traffic-light scale against a target.
// Boundary values fall into the lower-severity bucket: exactly half the target
// is amber, exactly the target is green.
func Classify(margin, target float64) string {
	if target == 0 {
		target = DefaultTargetMargin
	}
	switch {
	case margin < target/2:
		return models.HealthRed
	case margin < target:
		return models.HealthAmber
	default:
		return models.HealthGreen
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
