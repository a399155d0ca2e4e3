package energy

import (
	"sort"
)

// Fixed tariff and emission constants applied per bucket.
const (
	EmissionFactor   = 0.5  // mass units per unit of unmet demand
	ElectricityPrice = 0.15 // per unit consumed, also the avoided-cost proxy
	GasPrice         = 0.05 // per unit consumed
)

// BucketLayout is the minute-resolution key format of a bucket.
const BucketLayout = "2006-01-02 15:04"

// Generation is energy produced, per category plus the overall total.
// Categories outside solar, wind and hydro only count towards Total.
type Generation struct {
	Solar float64 `json:"solar"`
	Wind  float64 `json:"wind"`
	Hydro float64 `json:"hydro"`
	Total float64 `json:"total"`
}

// add credits v to the named slot for c and always to Total.
func (g *Generation) add(c Category, v float64) {
	switch c {
	case Solar:
		g.Solar += v
	case Wind:
		g.Wind += v
	case Hydro:
		g.Hydro += v
	}
	g.Total += v
}

// Costs prices consumption as electricity and gas.
type Costs struct {
	Electricity float64 `json:"electricity"`
	Gas         float64 `json:"gas"`
	Total       float64 `json:"total"`
}

// Bucket aggregates every reading that falls into one minute.
type Bucket struct {
	Timestamp       string     `json:"timestamp"`
	Consumption     float64    `json:"consumption"`
	Generation      Generation `json:"generation"`
	CarbonFootprint float64    `json:"carbonFootprint"`
	Costs           Costs      `json:"costs"`
}

// Date returns the calendar-day part of the bucket key.
func (b Bucket) Date() string {
	if len(b.Timestamp) < len("2006-01-02") {
		return b.Timestamp
	}
	return b.Timestamp[:len("2006-01-02")]
}

func (b *Bucket) derive() {
	unmet := b.Consumption - b.Generation.Total
	if unmet < 0 {
		unmet = 0
	}
	b.CarbonFootprint = unmet * EmissionFactor

	electricity := b.Consumption * ElectricityPrice
	gas := b.Consumption * GasPrice
	b.Costs = Costs{
		Electricity: electricity,
		Gas:         gas,
		Total:       electricity + gas,
	}
}

// Rounded returns a copy with every numeric field rounded to two decimals,
// the shape served by the list view. Totals are rebuilt from the rounded
// parts so they still add up; generation from other categories keeps its
// own rounded share of Total.
func (b Bucket) Rounded() Bucket {
	gen := Generation{
		Solar: round2(b.Generation.Solar),
		Wind:  round2(b.Generation.Wind),
		Hydro: round2(b.Generation.Hydro),
	}
	other := round2(b.Generation.Total - b.Generation.Solar - b.Generation.Wind - b.Generation.Hydro)
	gen.Total = round2(gen.Solar + gen.Wind + gen.Hydro + other)

	electricity := round2(b.Costs.Electricity)
	gas := round2(b.Costs.Gas)

	return Bucket{
		Timestamp:       b.Timestamp,
		Consumption:     round2(b.Consumption),
		Generation:      gen,
		CarbonFootprint: round2(b.CarbonFootprint),
		Costs: Costs{
			Electricity: electricity,
			Gas:         gas,
			Total:       round2(electricity + gas),
		},
	}
}
