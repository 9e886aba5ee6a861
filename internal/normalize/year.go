package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Year labels carry forecast markers in the wild: "2025E", "2025F", "2025(e)",
// "FY2025E". Parsing is deterministic: the same label always yields the same
// (year, marked) pair.

var reYearLabel = regexp.MustCompile(`(?i)^(?:fy\s*)?(\d{4})\s*(\(?\s*(?:e|f|est\.?|fc|forecast|budget)\s*\)?)?$`)

// parseYear extracts the fiscal year and an explicit forecast marker from a
// raw JSON year value. ok is false when no 4-digit year can be recovered.
func parseYear(raw json.RawMessage) (year int, marked bool, ok bool) {
	if len(raw) == 0 {
		return 0, false, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if plausibleYear(n) {
			return n, false, true
		}
		return 0, false, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, false
	}
	m := reYearLabel.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || !plausibleYear(n) {
		return 0, false, false
	}
	return n, m[2] != "", true
}

func plausibleYear(n int) bool {
	return n >= 1900 && n <= 2200
}
