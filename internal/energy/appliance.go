package energy

// Appliance is one entry of a household's appliance catalogue.
type Appliance struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Consumption      float64  `json:"consumption"`
	Unit             string   `json:"unit"`
	TimeOfUse        []string `json:"timeOfUse,omitempty"`
	EnergyEfficiency string   `json:"energyEfficiency,omitempty"`
	StandbyPower     float64  `json:"standbyPower"`
	UsageHours       float64  `json:"usageHours"`
}

// DefaultAppliances is the catalogue served to users that have not stored
// their own.
func DefaultAppliances() []Appliance {
	return []Appliance{
		{ID: "1", Name: "Heating & AC", Consumption: 1.4, Unit: "kWh", EnergyEfficiency: "A+", StandbyPower: 0.1, UsageHours: 5, TimeOfUse: []string{"06:00-09:00", "17:00-22:00"}},
		{ID: "2", Name: "EV Charge", Consumption: 0.9, Unit: "kWh", EnergyEfficiency: "A++", StandbyPower: 0, UsageHours: 3, TimeOfUse: []string{"22:00-06:00"}},
		{ID: "3", Name: "Refrigerator", Consumption: 0.7, Unit: "kWh", EnergyEfficiency: "A+", StandbyPower: 0.7, UsageHours: 24, TimeOfUse: []string{"Various"}},
		{ID: "4", Name: "Washer & Dryer", Consumption: 0.6, Unit: "kWh", EnergyEfficiency: "B", StandbyPower: 0.02, UsageHours: 2, TimeOfUse: []string{"10:00-12:00"}},
		{ID: "5", Name: "Lighting", Consumption: 0.5, Unit: "kWh", EnergyEfficiency: "A+++", StandbyPower: 0, UsageHours: 6, TimeOfUse: []string{"17:00-23:00"}},
		{ID: "6", Name: "Other", Consumption: 0.3, Unit: "kWh", EnergyEfficiency: "C", StandbyPower: 0.1, UsageHours: 4, TimeOfUse: []string{"Various"}},
	}
}
