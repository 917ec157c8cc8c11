// Package sizes converts display sizes across brand-specific sizing systems
// into one canonical numeric size (US men's) used as the join key across
// marketplace providers. All functions are pure.
package sizes

import (
	"strconv"
	"strings"
)

// System tags the sizing system a display size was expressed in.
type System string

const (
	SystemUS System = "US"
	SystemUK System = "UK"
	SystemEU System = "EU"
)

// UnknownVariantValue is the terminal fallback for a variant size token.
// Providers reject null size values, so something non-empty always goes out.
const UnknownVariantValue = "Unknown"

// ukToUSOffset is added to a UK size to get the canonical US size. Lasts
// differ between brands, so a handful of brands override the default.
var ukToUSOffset = map[string]float64{
	"default":     1.0,
	"nike":        1.0,
	"jordan":      1.0,
	"adidas":      0.5,
	"yeezy":       0.5,
	"new balance": 0.5,
}

// euToUS maps EU sizes onto US sizes per brand. Adidas runs on thirds, so
// its grid is listed separately from the default whole/half grid.
var euToUS = map[string]map[float64]float64{
	"default": {
		38.5: 6, 39: 6.5, 40: 7, 40.5: 7.5, 41: 8, 42: 8.5, 42.5: 9,
		43: 9.5, 44: 10, 44.5: 10.5, 45: 11, 45.5: 11.5, 46: 12,
		47: 12.5, 47.5: 13, 48.5: 14,
	},
	"adidas": {
		38 + 2.0/3.0: 6, 39 + 1.0/3.0: 6.5, 40: 7, 40 + 2.0/3.0: 7.5,
		41 + 1.0/3.0: 8, 42: 8.5, 42 + 2.0/3.0: 9, 43 + 1.0/3.0: 9.5,
		44: 10, 44 + 2.0/3.0: 10.5, 45 + 1.0/3.0: 11, 46: 11.5,
		46 + 2.0/3.0: 12, 47 + 1.0/3.0: 12.5, 48: 13, 48 + 2.0/3.0: 14,
	},
}

// Normalize converts a display size under the given system and brand into
// the canonical US numeric size. ok is false when no conversion table entry
// exists; callers must treat that as a non-fatal skip, not an error.
func Normalize(displaySize string, system System, brand string) (canonical float64, ok bool) {
	value, parsed := parseNumeric(displaySize)
	if !parsed {
		return 0, false
	}

	switch system {
	case SystemUS, "":
		return value, true
	case SystemUK:
		offset, found := ukToUSOffset[brandKey(brand)]
		if !found {
			offset = ukToUSOffset["default"]
		}
		return value + offset, true
	case SystemEU:
		table, found := euToUS[brandKey(brand)]
		if !found {
			table = euToUS["default"]
		}
		us, found := lookupEU(table, value)
		if !found {
			return 0, false
		}
		return us, true
	}
	return 0, false
}

// Detect extracts the system from prefixed display sizes like "UK 9" or
// "EU 42" and returns the remaining size text. Bare numbers are US.
func Detect(displaySize string) (System, string) {
	trimmed := strings.TrimSpace(displaySize)
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(upper, "UK"):
		return SystemUK, strings.TrimSpace(trimmed[2:])
	case strings.HasPrefix(upper, "EU"):
		return SystemEU, strings.TrimSpace(trimmed[2:])
	case strings.HasPrefix(upper, "US"):
		return SystemUS, strings.TrimSpace(trimmed[2:])
	}
	return SystemUS, trimmed
}

// NormalizeDisplay resolves a raw display size (possibly system-prefixed)
// for a brand into the canonical size.
func NormalizeDisplay(displaySize, brand string) (float64, bool) {
	system, rest := Detect(displaySize)
	return Normalize(rest, system, brand)
}

// VariantValue applies the fallback chain for a variant's stored size
// token: explicit size, then display size, then "Unknown". The result is
// never empty.
func VariantValue(explicit, display string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	if v := strings.TrimSpace(display); v != "" {
		return v
	}
	return UnknownVariantValue
}

// FormatCanonical renders a canonical size the way exchange-style providers
// expect their size tokens ("9", "9.5").
func FormatCanonical(canonical float64) string {
	return strconv.FormatFloat(canonical, 'f', -1, 64)
}

// parseNumeric handles plain decimals ("10.5") and EU thirds ("42 2/3").
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if idx := strings.IndexByte(s, ' '); idx > 0 && strings.Contains(s[idx+1:], "/") {
		whole, err := strconv.ParseFloat(s[:idx], 64)
		if err != nil {
			return 0, false
		}
		frac := strings.SplitN(strings.TrimSpace(s[idx+1:]), "/", 2)
		num, err1 := strconv.ParseFloat(frac[0], 64)
		den, err2 := strconv.ParseFloat(frac[1], 64)
		if err1 != nil || err2 != nil || den == 0 {
			return 0, false
		}
		return whole + num/den, true
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// lookupEU tolerates float drift from fraction parsing.
func lookupEU(table map[float64]float64, value float64) (float64, bool) {
	for eu, us := range table {
		if diff := eu - value; diff < 0.05 && diff > -0.05 {
			return us, true
		}
	}
	return 0, false
}

func brandKey(brand string) string {
	return strings.ToLower(strings.TrimSpace(brand))
}
