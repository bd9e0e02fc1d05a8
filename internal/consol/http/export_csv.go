package http

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/consol"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	// Pending csv records must land before the raw comment line.
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	line = strings.TrimRight(line, "\r\n") + "\r\n"
	_, err := s.buf.WriteString(line)
	return err
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

// WriteReportCSV streams a report as one header row followed by one record
// per report row, then the summary figures.
func WriteReportCSV(w io.Writer, report consol.Report) error {
	streamer := newCSVStreamer(w)
	if err := writeMetadata(streamer, report); err != nil {
		return err
	}
	header := make([]string, 0, len(report.Columns)+1)
	header = append(header, "Account")
	for _, col := range report.Columns {
		header = append(header, col.Label)
	}
	if err := streamer.writeRow(header); err != nil {
		return err
	}
	for _, row := range report.Rows {
		record := make([]string, len(header))
		if row.Kind != consol.RowBlank {
			record[0] = strings.Repeat("  ", row.Indent) + row.Label
			for i, col := range report.Columns {
				if v, ok := row.Values[col.Key]; ok {
					record[i+1] = formatDecimal(v)
				}
			}
		}
		if err := streamer.writeRow(record); err != nil {
			return err
		}
	}
	if len(report.Summary) > 0 {
		if err := streamer.writeRow(make([]string, len(header))); err != nil {
			return err
		}
		for _, item := range report.Summary {
			record := make([]string, len(header))
			record[0] = item.Label
			if len(record) > 1 {
				record[len(record)-1] = formatDecimal(item.Value)
			}
			if err := streamer.writeRow(record); err != nil {
				return err
			}
		}
	}
	return streamer.Close()
}

func writeMetadata(streamer *csvStreamer, report consol.Report) error {
	if err := streamer.writeComment("# Report: " + reportTitle(report.Kind)); err != nil {
		return err
	}
	branches := "All"
	if len(report.Filters.Branches) > 0 {
		branches = strings.Join(report.Filters.Branches, ",")
	}
	line := fmt.Sprintf("# Company: %s | Fiscal Year: %s | Period: %s to %s | Currency: %s | Branches: %s",
		report.Filters.Company, report.FiscalYear,
		report.From.Format(time.DateOnly), report.To.Format(time.DateOnly),
		report.Currency, branches)
	if err := streamer.writeComment(line); err != nil {
		return err
	}
	if len(report.Warnings) == 0 {
		return streamer.writeComment("# Warnings: none")
	}
	joined := make([]string, len(report.Warnings))
	for i, w := range report.Warnings {
		joined[i] = strings.TrimSpace(w)
	}
	return streamer.writeComment("# Warnings: " + strings.Join(joined, "; "))
}

func reportTitle(kind consol.Kind) string {
	switch kind {
	case consol.KindBalanceSheet:
		return "Consolidated Balance Sheet"
	case consol.KindProfitAndLoss:
		return "Consolidated Profit and Loss Statement"
	case consol.KindCashFlow:
		return "Consolidated Cash Flow Statement"
	case consol.KindTrialBalance:
		return "Consolidated Trial Balance"
	}
	return "Consolidated Report"
}

func formatDecimal(v decimal.Decimal) string {
	return v.StringFixed(2)
}
