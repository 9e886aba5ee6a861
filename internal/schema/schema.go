// Package schema holds the canonical structured-output contract: the section
// set and financial columns every extraction must conform to. The prompt
// builder and the validator both consume BuildCompanySchema, so a response
// that validates here is exactly a response the model was asked for.
package schema

import (
	"encoding/json"

	"github.com/aipe-tech/dataextract/internal/entity"
)

// FinancialColumns are the metric columns of the financial table, in display
// order.
var FinancialColumns = []string{"revenue", "ebitda", "margin", "debt"}

// BuildCompanySchema returns the JSON-Schema (draft 2020-12 subset) as a
// generic map. Sections are deliberately optional: partial extraction is a
// valid outcome and the normalizer fills the gaps. Types are loose where the
// model is loose (years may arrive as "2025E", figures as "€1,2m").
func BuildCompanySchema() map[string]any {
	sections := map[string]any{
		"name": sectionProp("Name of the company."),
	}
	descriptions := map[entity.SectionName]string{
		entity.SectionDescription:   "Description of the company.",
		entity.SectionBusinessModel: "The business model of the company, or how the company earns money.",
		entity.SectionMarket:        "The market in which the company is active, including a description.",
		entity.SectionClients:       "The clients of the company, including a description.",
		entity.SectionProducts:      "The products or services the company sells, including a description.",
		entity.SectionTopManagement: "The top management / executive team: one line per person with name, role and background.",
	}
	for _, name := range entity.SectionNames {
		sections[string(name)] = sectionProp(descriptions[name])
	}
	sections["financials"] = map[string]any{
		"type":        "object",
		"description": "Time series of actual and forecast financial data by year.",
		"properties": map[string]any{
			"currency": map[string]any{
				"type":        "string",
				"description": "ISO currency optionally with scale, e.g. EURm or USDk.",
			},
			"pages":   pagesProp(),
			"quality": qualityProp(),
			"data": map[string]any{
				"type":  "array",
				"items": financialRowProp(),
			},
		},
	}

	return map[string]any{
		"type":       "object",
		"properties": sections,
	}
}

func sectionProp(description string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": description,
		"properties": map[string]any{
			"text":    map[string]any{"type": "string"},
			"pages":   pagesProp(),
			"quality": qualityProp(),
		},
		"required": []string{"text"},
	}
}

func pagesProp() map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "integer", "minimum": 1},
		"description": "1-based page numbers in the PDF where the information was found.",
	}
}

func qualityProp() map[string]any {
	return map[string]any{
		"type":        "string",
		"enum":        []string{"high", "medium", "low"},
		"description": "Extraction confidence for this field.",
	}
}

func financialRowProp() map[string]any {
	props := map[string]any{
		"year": map[string]any{
			// Integer when clean, string when the source labels the year
			// ("2025E"); the normalizer handles both.
			"type": []string{"integer", "string"},
		},
		"type": map[string]any{
			"type": "string",
			"enum": []string{"actual", "forecast"},
		},
	}
	for _, col := range FinancialColumns {
		props[col] = map[string]any{
			"type": []string{"number", "string", "null"},
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   []string{"year"},
	}
}

// MarshalIndent renders the schema for embedding into the model prompt.
func MarshalIndent() string {
	b, _ := json.MarshalIndent(BuildCompanySchema(), "", "  ")
	return string(b)
}
