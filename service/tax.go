package service

import "strings"

// ZoneRule is one destination's tax treatment. RateBps is the combined
// rate in basis points. Shipping is taxable unless ExemptShipping is
// set on the rule that matched.
type ZoneRule struct {
	RateBps        int64
	ExemptShipping bool
}

// ZoneTable resolves a destination country (and, where sub-national
// tax applies, region) to a tax rule. Countries with region-level
// rates fall back to the country default when the region is unknown.
type ZoneTable struct {
	countries map[string]ZoneRule
	regions   map[string]map[string]ZoneRule
}

// NewZoneTable builds the default marketplace rate table: EU-style
// VAT countries, US state sales tax, and Canadian GST/HST/PST blends.
func NewZoneTable() *ZoneTable {
	return &ZoneTable{
		countries: map[string]ZoneRule{
			"GB": {RateBps: 2000},
			"DE": {RateBps: 1900},
			"FR": {RateBps: 2000},
			"IT": {RateBps: 2200},
			"ES": {RateBps: 2100},
			"NL": {RateBps: 2100},
			"IE": {RateBps: 2300},
			"AU": {RateBps: 1000},
			"NZ": {RateBps: 1500},
			"US": {RateBps: 0},
			"CA": {RateBps: 500}, // GST only where no provincial rule matches
		},
		regions: map[string]map[string]ZoneRule{
			"US": {
				"CA": {RateBps: 725, ExemptShipping: true},
				"NY": {RateBps: 400},
				"TX": {RateBps: 625, ExemptShipping: true},
				"FL": {RateBps: 600},
				"WA": {RateBps: 650},
				// p.ex. Oregon, Montana, New Hampshire, Delaware: no sales tax
				"OR": {RateBps: 0},
				"MT": {RateBps: 0},
				"NH": {RateBps: 0},
				"DE": {RateBps: 0},
			},
			"CA": {
				"ON": {RateBps: 1300}, // HST
				"QC": {RateBps: 1498}, // GST + QST
				"BC": {RateBps: 1200}, // GST + PST
				"AB": {RateBps: 500},  // GST only
				"NS": {RateBps: 1500},
			},
		},
	}
}

// Lookup returns the rule for a destination. Unknown countries are
// untaxed here; jurisdictional handling beyond the table is a seller
// concern.
func (t *ZoneTable) Lookup(country, region string) ZoneRule {
	country = strings.ToUpper(strings.TrimSpace(country))
	region = strings.ToUpper(strings.TrimSpace(region))

	if byRegion, ok := t.regions[country]; ok {
		if rule, ok := byRegion[region]; ok {
			return rule
		}
	}
	if rule, ok := t.countries[country]; ok {
		return rule
	}
	return ZoneRule{}
}

// Tax computes the tax for one seller group's subtotal and shipping
// under a rule. Rounding is half-up on the basis-point product.
func (r ZoneRule) Tax(subtotalCents, shippingCents int64) int64 {
	base := subtotalCents
	if !r.ExemptShipping {
		base += shippingCents
	}
	return (base*r.RateBps + 5000) / 10000
}
