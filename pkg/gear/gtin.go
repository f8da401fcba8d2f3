// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gear

// Product is a known gear model
type Product struct {
	Name         string
	GTIN         GTIN
	Family       Family
	RatedWattage uint32
}

// Products lists the gear models with a known telemetry dialect
var Products = []Product{
	{Name: "OTi30DX", GTIN: GTIN{0x00, 0x0A, 0xBD, 0xE8, 0x23, 0xEC}, Family: FamilyD4i, RatedWattage: 30},
	{Name: "OTi50DX", GTIN: GTIN{0x00, 0x0A, 0xBD, 0xE8, 0x23, 0xFD}, Family: FamilyDexal, RatedWattage: 50},
	{Name: "OTi85DX", GTIN: GTIN{0x03, 0xAF, 0xA3, 0xA3, 0x5D, 0xF1}, Family: FamilyDexal, RatedWattage: 85},
	{Name: "XI040C110V054VPT1", GTIN: GTIN{0x00, 0xB5, 0xDC, 0x6B, 0xDD, 0x00}, Family: FamilySR, RatedWattage: 40},
	{Name: "XI040C110V054VPT2", GTIN: GTIN{0x00, 0xB5, 0xDC, 0x6C, 0x2F, 0x1B}, Family: FamilySR, RatedWattage: 40},
	// placeholder until the real GTIN is known
	{Name: "XI075C200V054VPT1", GTIN: GTIN{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, Family: FamilySR, RatedWattage: 75},
}

// Dexal unit multipliers are fixed by the dialect
const (
	DexalPowerUnit  = 0.015625
	DexalEnergyUnit = 1
)

// Lookup returns the product with the given GTIN
func Lookup(g GTIN) (Product, bool) {
	for _, p := range Products {
		if p.GTIN == g {
			return p, true
		}
	}
	return Product{}, false
}

// Classify fills in the family, rated wattage and any static units of r
// from its bank 0 GTIN. Unknown products are generic DALI gear.
func Classify(r *DriverRecord) {
	p, ok := Lookup(r.Bank0.GTIN)
	if !ok {
		r.Family = FamilyDali
		r.RatedWattage = 0
		return
	}
	r.Family = p.Family
	r.RatedWattage = p.RatedWattage
	if p.Family == FamilyDexal {
		r.PowerUnit = DexalPowerUnit
		r.EnergyUnit = DexalEnergyUnit
		r.ResetEnergyUnit = DexalEnergyUnit
	}
}
