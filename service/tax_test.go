package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZoneLookup(t *testing.T) {
	zones := NewZoneTable()

	t.Run("country level VAT", func(t *testing.T) {
		rule := zones.Lookup("GB", "")
		assert.Equal(t, int64(2000), rule.RateBps)
		assert.False(t, rule.ExemptShipping)
	})

	t.Run("region overrides country", func(t *testing.T) {
		rule := zones.Lookup("US", "CA")
		assert.Equal(t, int64(725), rule.RateBps)
		assert.True(t, rule.ExemptShipping)
	})

	t.Run("unknown region falls back to country", func(t *testing.T) {
		rule := zones.Lookup("CA", "YT")
		assert.Equal(t, int64(500), rule.RateBps)
	})

	t.Run("unknown country is untaxed", func(t *testing.T) {
		rule := zones.Lookup("ZZ", "")
		assert.Equal(t, int64(0), rule.RateBps)
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		assert.Equal(t, zones.Lookup("US", "NY"), zones.Lookup(" us ", "ny"))
	})
}

func TestZoneRuleTax(t *testing.T) {
	t.Run("shipping taxable by default", func(t *testing.T) {
		rule := ZoneRule{RateBps: 2000}
		// 20% of $25.00 + $5.00
		assert.Equal(t, int64(600), rule.Tax(2500, 500))
	})

	t.Run("exempt shipping excluded from base", func(t *testing.T) {
		rule := ZoneRule{RateBps: 625, ExemptShipping: true}
		// 6.25% of $20.00 only
		assert.Equal(t, int64(125), rule.Tax(2000, 799))
	})

	t.Run("half-up rounding", func(t *testing.T) {
		rule := ZoneRule{RateBps: 725}
		// 1034 * 725 = 749650 -> 74.965 -> 75
		assert.Equal(t, int64(75), rule.Tax(1034, 0))
		// 1033 * 725 = 748925 -> 74.8925 -> 75? (748925+5000)/10000 = 75
		assert.Equal(t, int64(75), rule.Tax(1033, 0))
		// 1027 * 725 = 744575 -> 74.4575 -> 74
		assert.Equal(t, int64(74), rule.Tax(1027, 0))
	})

	t.Run("zero rate yields zero tax", func(t *testing.T) {
		assert.Equal(t, int64(0), ZoneRule{}.Tax(99999, 500))
	})
}
