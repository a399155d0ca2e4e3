package energy

import (
	"math"

	"github.com/shopspring/decimal"
)

// Summary is the period-wide reduction of a bucket sequence.
type Summary struct {
	TotalConsumption    float64    `json:"totalConsumption"`
	TotalGeneration     Generation `json:"totalGeneration"`
	RenewablePercentage float64    `json:"renewablePercentage"`
	CarbonFootprint     float64    `json:"carbonFootprint"`
	SavingsEstimate     float64    `json:"savingsEstimate"`
	EnergyIntensity     float64    `json:"energyIntensity"`
	Costs               Costs      `json:"costs"`
}

// Aggregate reduces buckets to a Summary rounded to two decimals.
//
// CarbonFootprint is the sum of the per-bucket footprints, so minutes with a
// generation surplus do not offset minutes with unmet demand.
func Aggregate(buckets []Bucket) Summary {
	if len(buckets) == 0 {
		return Summary{}
	}

	var (
		consumption float64
		generation  Generation
		footprint   float64
		electricity float64
		gas         float64
	)
	days := make(map[string]struct{})
	for _, b := range buckets {
		consumption += b.Consumption
		generation.Solar += b.Generation.Solar
		generation.Wind += b.Generation.Wind
		generation.Hydro += b.Generation.Hydro
		generation.Total += b.Generation.Total
		footprint += b.CarbonFootprint
		electricity += b.Costs.Electricity
		gas += b.Costs.Gas
		days[b.Date()] = struct{}{}
	}

	var renewable float64
	if consumption > 0 {
		renewable = generation.Total / consumption * 100
	}
	var intensity float64
	if len(days) > 0 {
		intensity = consumption / float64(len(days))
	}

	return Summary{
		TotalConsumption: round2(consumption),
		TotalGeneration: Generation{
			Solar: round2(generation.Solar),
			Wind:  round2(generation.Wind),
			Hydro: round2(generation.Hydro),
			Total: round2(generation.Total),
		},
		RenewablePercentage: round2(renewable),
		CarbonFootprint:     round2(footprint),
		SavingsEstimate:     round2(generation.Total * ElectricityPrice),
		EnergyIntensity:     round2(intensity),
		Costs: Costs{
			Electricity: round2(electricity),
			Gas:         round2(gas),
			Total:       round2(electricity + gas),
		},
	}
}

// BucketizeAndAggregate keeps the readings inside w and returns both the
// unrounded bucket sequence and its Summary.
func BucketizeAndAggregate(readings []Reading, w Window) ([]Bucket, Summary) {
	in := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if w.Contains(r.Timestamp) {
			in = append(in, r)
		}
	}
	buckets := Bucketize(in)
	return buckets, Aggregate(buckets)
}

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
