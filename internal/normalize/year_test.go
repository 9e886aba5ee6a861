package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseYear(t *testing.T) {
	tests := []struct {
		raw    string
		year   int
		marked bool
		ok     bool
	}{
		{`2023`, 2023, false, true},
		{`"2023"`, 2023, false, true},
		{`"2025E"`, 2025, true, true},
		{`"2025e"`, 2025, true, true},
		{`"2025F"`, 2025, true, true},
		{`"2025 (e)"`, 2025, true, true},
		{`"FY2025E"`, 2025, true, true},
		{`"FY 2024"`, 2024, false, true},
		{`"2025 est."`, 2025, true, true},
		{`"2025 forecast"`, 2025, true, true},
		{`"2025 budget"`, 2025, true, true},
		{`"LTM"`, 0, false, false},
		{`"H1 2023"`, 0, false, false},
		{`"23"`, 0, false, false},
		{`1850`, 0, false, false},
		{`9999`, 0, false, false},
		{`null`, 0, false, false},
		{`true`, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			year, marked, ok := parseYear(json.RawMessage(tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.year, year)
			assert.Equal(t, tt.marked, marked)
		})
	}
}
