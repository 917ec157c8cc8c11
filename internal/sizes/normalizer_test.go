package sizes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDisplay(t *testing.T) {
	tests := []struct {
		name    string
		display string
		brand   string
		want    float64
		ok      bool
	}{
		{"bare US size", "10.5", "Nike", 10.5, true},
		{"US prefixed", "US 9", "Nike", 9, true},
		{"UK nike offset", "UK 9", "Nike", 10, true},
		{"UK adidas offset", "UK 9", "Adidas", 9.5, true},
		{"UK unknown brand falls back to default", "UK 8", "Brandless", 9, true},
		{"EU default grid", "EU 42", "Nike", 8.5, true},
		{"EU adidas thirds", "EU 42 2/3", "Adidas", 9, true},
		{"EU size missing from grid", "EU 39.7", "Nike", 0, false},
		{"garbage input", "one size", "Nike", 0, false},
		{"empty input", "", "Nike", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeDisplay(tt.display, tt.brand)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	first, ok := NormalizeDisplay("UK 9", "Adidas")
	assert.True(t, ok)
	for i := 0; i < 100; i++ {
		again, ok := NormalizeDisplay("UK 9", "Adidas")
		assert.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestVariantValueFallbackChain(t *testing.T) {
	assert.Equal(t, "9.5", VariantValue("9.5", "US 9.5"))
	assert.Equal(t, "US 9.5", VariantValue("", "US 9.5"))
	assert.Equal(t, "US 9.5", VariantValue("   ", "US 9.5"))
	assert.Equal(t, UnknownVariantValue, VariantValue("", ""))
	assert.Equal(t, UnknownVariantValue, VariantValue(" ", "  "))

	// never empty, whatever the inputs
	assert.NotEmpty(t, VariantValue("", ""))
}

func TestFormatCanonical(t *testing.T) {
	assert.Equal(t, "9", FormatCanonical(9))
	assert.Equal(t, "9.5", FormatCanonical(9.5))
}

func TestDetect(t *testing.T) {
	system, rest := Detect("UK 9")
	assert.Equal(t, SystemUK, system)
	assert.Equal(t, "9", rest)

	system, rest = Detect("42")
	assert.Equal(t, SystemUS, system)
	assert.Equal(t, "42", rest)
}
