// Package export renders committed extraction records as TSV or XLSX. The
// financial table is transposed: one row per metric, one column per year,
// forecast years suffixed with "E".
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/aipe-tech/dataextract/internal/entity"
	"github.com/aipe-tech/dataextract/internal/repository"
)

// Service is a tiny façade over the record repository that produces export bytes.
type Service struct {
	records repository.RecordRepository
	logger  *slog.Logger
}

func NewService(records repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, logger: logger}
}

var metricRows = []struct {
	label string
	value func(p entity.FinancialDataPoint) *float64
}{
	{"Revenue", func(p entity.FinancialDataPoint) *float64 { return p.Revenue }},
	{"EBITDA", func(p entity.FinancialDataPoint) *float64 { return p.EBITDA }},
	{"Margin", func(p entity.FinancialDataPoint) *float64 { return p.Margin }},
	{"Debt", func(p entity.FinancialDataPoint) *float64 { return p.Debt }},
}

// ExportTSV returns the record's financial time series as tab-separated text.
func (s *Service) ExportTSV(ctx context.Context, companyID uuid.UUID) ([]byte, error) {
	rec, err := s.records.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	caption := "Metric"
	if rec.Currency != "" {
		caption = fmt.Sprintf("Metric (%s)", rec.Currency)
	}
	b.WriteString(caption)
	for _, p := range rec.Financials {
		b.WriteByte('\t')
		b.WriteString(p.YearLabel())
	}
	b.WriteByte('\n')

	for _, m := range metricRows {
		b.WriteString(m.label)
		for _, p := range rec.Financials {
			b.WriteByte('\t')
			if v := m.value(p); v != nil {
				b.WriteString(formatNumber(*v))
			}
		}
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// ExportXLSX returns an XLSX workbook (as bytes) with the company profile
// sections and the transposed financial table.
func (s *Service) ExportXLSX(ctx context.Context, companyID uuid.UUID) ([]byte, error) {
	start := time.Now()

	rec, err := s.records.Get(ctx, companyID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Company"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	row := 1
	write(1, row, "Company")
	write(2, row, rec.CompanyName)
	row += 2

	for _, name := range entity.SectionNames {
		sec := rec.Sections[name]
		write(1, row, sectionTitle(name))
		write(2, row, sec.Text)
		if sec.PageReference != nil {
			write(3, row, fmt.Sprintf("p. %d", *sec.PageReference))
		}
		row++
	}
	row++

	caption := "Financials"
	if rec.Currency != "" {
		caption = fmt.Sprintf("Financials (%s)", rec.Currency)
	}
	write(1, row, caption)
	for i, p := range rec.Financials {
		write(i+2, row, p.YearLabel())
	}
	row++
	for _, m := range metricRows {
		write(1, row, m.label)
		for i, p := range rec.Financials {
			if v := m.value(p); v != nil {
				write(i+2, row, *v)
			}
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 20)
	_ = f.SetColWidth(sheet, "B", "B", 80)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("exported record",
		"company_id", companyID,
		"financial_years", len(rec.Financials),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func sectionTitle(name entity.SectionName) string {
	words := strings.Split(string(name), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func formatNumber(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
