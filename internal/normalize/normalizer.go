// Package normalize turns raw model output into a committed-shape
// ExtractionRecord. Partial extraction is a first-class outcome: missing
// sections become explicit "not found" entries, unparseable figures become
// nulls, out-of-range page references are dropped. The only hard failure is a
// payload with no extractable structure at all.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/entity"
	"github.com/aipe-tech/dataextract/internal/llm"
)

type rawSection struct {
	Text    string `json:"text"`
	Pages   []int  `json:"pages"`
	Quality string `json:"quality"`
}

type rawFinancialRow struct {
	Year    json.RawMessage `json:"year"`
	Revenue json.RawMessage `json:"revenue"`
	Ebitda  json.RawMessage `json:"ebitda"`
	Margin  json.RawMessage `json:"margin"`
	Debt    json.RawMessage `json:"debt"`
	Type    string          `json:"type"` // actual | forecast
}

type rawFinancials struct {
	Currency string            `json:"currency"`
	Pages    []int             `json:"pages"`
	Quality  string            `json:"quality"`
	Data     []rawFinancialRow `json:"data"`
}

// Normalizer validates and repairs raw results against the canonical shape.
type Normalizer struct {
	log *slog.Logger
}

func New(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{log: logger}
}

// Normalize builds the ExtractionRecord for a raw result against its source
// document. It fails only when the payload carries no recognizable structure.
func (n *Normalizer) Normalize(raw llm.RawResult, doc entity.SourceDocument) (*entity.ExtractionRecord, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw.JSON, &top); err != nil {
		return nil, fmt.Errorf("normalize: not a JSON object: %v: %w", err, common.ErrNormalization)
	}

	rec := &entity.ExtractionRecord{
		CompanyID:        doc.CompanyID,
		Sections:         make(map[entity.SectionName]entity.SectionContent, len(entity.SectionNames)),
		Financials:       nil,
		SourceDocumentID: doc.ID,
		ExtractedAt:      time.Now().UTC(),
	}

	recognized := 0

	if sec := decodeSection(top["name"]); sec != nil && strings.TrimSpace(sec.Text) != "" {
		rec.CompanyName = strings.TrimSpace(sec.Text)
		recognized++
	}

	for _, name := range entity.SectionNames {
		content, found := n.normalizeSection(rec, name, decodeSection(top[string(name)]), doc.PageCount)
		rec.Sections[name] = content
		if found {
			recognized++
		}
	}

	if fin := decodeFinancials(top["financials"]); fin != nil {
		rec.Currency = strings.TrimSpace(fin.Currency)
		rec.Financials = n.normalizeFinancials(rec, fin.Data)
		recognized++
	}

	if recognized == 0 {
		return nil, fmt.Errorf("normalize: no recognizable fields in payload: %w", common.ErrNormalization)
	}

	n.log.Info("normalize.ok",
		"company_id", doc.CompanyID,
		"sections_found", recognized,
		"financial_years", len(rec.Financials),
		"warnings", len(rec.Warnings),
	)
	return rec, nil
}

// normalizeSection fills one section slot. A missing or empty section becomes
// the explicit "not found" marker with a null page reference.
func (n *Normalizer) normalizeSection(rec *entity.ExtractionRecord, name entity.SectionName, raw *rawSection, pageCount int) (entity.SectionContent, bool) {
	if raw == nil || strings.TrimSpace(raw.Text) == "" {
		return entity.SectionContent{Text: entity.SectionNotFound}, false
	}
	content := entity.SectionContent{
		Text:    strings.TrimSpace(raw.Text),
		Quality: normalizeQuality(raw.Quality),
	}
	page, dropped := resolvePage(raw.Pages, pageCount)
	content.PageReference = page
	if dropped {
		rec.Warnings = append(rec.Warnings,
			fmt.Sprintf("section %s: page reference out of range [1,%d], dropped", name, pageCount))
	}
	return content, true
}

// resolvePage picks the first page reference within [1, pageCount]. dropped is
// true when references were supplied but none were usable.
func resolvePage(pages []int, pageCount int) (ref *int, dropped bool) {
	for _, p := range pages {
		if p >= 1 && p <= pageCount {
			v := p
			return &v, false
		}
	}
	return nil, len(pages) > 0
}

// normalizeFinancials coerces, deduplicates and orders the time series.
// Duplicate years collapse to the latest-encountered value with a warning.
// A year is a forecast when its label carries an explicit marker or it lies
// strictly beyond the document's latest historical year.
func (n *Normalizer) normalizeFinancials(rec *entity.ExtractionRecord, rows []rawFinancialRow) []entity.FinancialDataPoint {
	type parsedRow struct {
		point  entity.FinancialDataPoint
		marked bool
	}

	parsed := make([]parsedRow, 0, len(rows))
	for i, row := range rows {
		year, marked, ok := parseYear(row.Year)
		if !ok {
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("financials: row %d has unparseable year %s, skipped", i, compactJSON(row.Year)))
			continue
		}
		marked = marked || strings.EqualFold(strings.TrimSpace(row.Type), "forecast")
		parsed = append(parsed, parsedRow{
			point: entity.FinancialDataPoint{
				Year:    year,
				Revenue: parseNumeric(row.Revenue),
				EBITDA:  parseNumeric(row.Ebitda),
				Margin:  parseNumeric(row.Margin),
				Debt:    parseNumeric(row.Debt),
			},
			marked: marked,
		})
	}

	// Latest historical year: the max among rows without a forecast marker.
	latestHistorical := 0
	for _, r := range parsed {
		if !r.marked && r.point.Year > latestHistorical {
			latestHistorical = r.point.Year
		}
	}

	byYear := make(map[int]entity.FinancialDataPoint, len(parsed))
	order := make([]int, 0, len(parsed))
	for _, r := range parsed {
		p := r.point
		p.IsForecast = r.marked || (latestHistorical > 0 && p.Year > latestHistorical)
		if _, exists := byYear[p.Year]; exists {
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("financials: duplicate year %d, keeping last-encountered value", p.Year))
		} else {
			order = append(order, p.Year)
		}
		byYear[p.Year] = p
	}

	sort.Ints(order)
	out := make([]entity.FinancialDataPoint, 0, len(order))
	for _, y := range order {
		out = append(out, byYear[y])
	}
	return out
}

func decodeSection(raw json.RawMessage) *rawSection {
	if len(raw) == 0 {
		return nil
	}
	var s rawSection
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func decodeFinancials(raw json.RawMessage) *rawFinancials {
	if len(raw) == 0 {
		return nil
	}
	var f rawFinancials
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil
	}
	return &f
}

func normalizeQuality(q string) string {
	switch strings.ToLower(strings.TrimSpace(q)) {
	case "high", "medium", "low":
		return strings.ToLower(strings.TrimSpace(q))
	default:
		return ""
	}
}

func compactJSON(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return s
}
