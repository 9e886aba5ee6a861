package entity

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SectionName enumerates the fixed set of company sections every record
// carries. A record's section map always holds exactly these keys.
type SectionName string

const (
	SectionDescription   SectionName = "description"
	SectionBusinessModel SectionName = "business_model"
	SectionMarket        SectionName = "market"
	SectionClients       SectionName = "clients"
	SectionProducts      SectionName = "products"
	SectionTopManagement SectionName = "top_management"
)

// SectionNames is the canonical ordering used for validation and display.
var SectionNames = []SectionName{
	SectionDescription,
	SectionBusinessModel,
	SectionMarket,
	SectionClients,
	SectionProducts,
	SectionTopManagement,
}

// SectionNotFound is the explicit text stored when the model returned nothing
// for a section. Missing data is first-class, never an absent key.
const SectionNotFound = "not found"

// SectionContent is one extracted section with its supporting page reference
// (1-based within the source document) and the model's self-reported quality.
type SectionContent struct {
	Text          string `json:"text"`
	PageReference *int   `json:"page_reference,omitempty"`
	Quality       string `json:"quality,omitempty"` // high | medium | low
}

// NotFound reports whether the section holds the explicit missing marker.
func (s SectionContent) NotFound() bool {
	return s.Text == SectionNotFound
}

// FinancialDataPoint is one fiscal year of the financial time series. Nil
// pointers are genuinely missing values. Forecast years render with an "E"
// suffix in every export surface.
type FinancialDataPoint struct {
	Year       int      `json:"year"`
	Revenue    *float64 `json:"revenue"`
	EBITDA     *float64 `json:"ebitda"`
	Margin     *float64 `json:"margin"`
	Debt       *float64 `json:"debt"`
	IsForecast bool     `json:"is_forecast"`
}

// ExtractionRecord is the finalized structured output for one company. A new
// extraction replaces the prior record atomically.
type ExtractionRecord struct {
	CompanyID        uuid.UUID                      `json:"company_id"`
	CompanyName      string                         `json:"company_name,omitempty"`
	Currency         string                         `json:"currency,omitempty"` // e.g. "EURm"
	Sections         map[SectionName]SectionContent `json:"sections"`
	Financials       []FinancialDataPoint           `json:"financials"`
	Warnings         []string                       `json:"warnings,omitempty"`
	SourceDocumentID uuid.UUID                      `json:"source_document_id"`
	ExtractedAt      time.Time                      `json:"extracted_at"`
}

// YearLabel formats a data point's year for display, suffixing forecast years.
func (p FinancialDataPoint) YearLabel() string {
	if p.IsForecast {
		return strconv.Itoa(p.Year) + "E"
	}
	return strconv.Itoa(p.Year)
}
