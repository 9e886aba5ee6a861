package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Figures arrive as numbers, nulls, or strings the way documents print them:
// "€1,234.5m", "12.3%", "(1.2)", "1 234", "n/a". Coercion is lenient by
// policy: anything unparseable becomes null rather than failing the record.

var (
	reCurrencyNoise = regexp.MustCompile(`(?i)[€$£¥]|\b(eur|usd|gbp|chf|sek|nok|dkk)\b`)
	reScaleSuffix   = regexp.MustCompile(`(?i)(bn|b|m|k|mm|thousand|million|billion)\.?\s*$`)
	reMissing       = regexp.MustCompile(`(?i)^\s*(-|–|—|n/?a|n\.a\.?|nm|n/m|none|null)?\s*$`)
)

// parseNumeric coerces a raw JSON value to a float pointer; nil means missing.
func parseNumeric(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return parseNumericString(s)
}

func parseNumericString(s string) *float64 {
	s = strings.TrimSpace(s)
	if reMissing.MatchString(s) {
		return nil
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}

	s = reCurrencyNoise.ReplaceAllString(s, "")
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	s = reScaleSuffix.ReplaceAllString(strings.TrimSpace(s), "")

	// Thousands separators that are never decimal marks.
	s = strings.NewReplacer(" ", "", " ", "", "'", "", "’", "").Replace(s)
	s = strings.TrimSpace(s)
	s = normalizeSeparators(s)

	if s == "" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if neg {
		v = -v
	}
	return &v
}

// normalizeSeparators resolves comma/dot ambiguity: the last separator kind in
// the string is the decimal mark when it is followed by 1-2 digits; everything
// else is a thousands separator.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// European style: 1.234,5
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// Anglo style: 1,234.5
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		tail := len(s) - lastComma - 1
		if strings.Count(s, ",") == 1 && tail >= 1 && tail <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
