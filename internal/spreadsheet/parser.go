package spreadsheet

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability"
	obslog "claimsync/internal/observability/logger"
)

// Document is a parsed settlement spreadsheet: classification plus the
// tabular section keyed by canonical field.
type Document struct {
	Path     string
	Filename string
	Category Category
	Scheme   entity.Scheme
	Period   entity.Period

	// Columns maps canonical field names to zero-based column indexes of
	// the matched header row.
	Columns map[string]int
	// Rows holds the raw cell values of every data row below the header.
	Rows [][]string
}

// Parser classifies and extracts settlement spreadsheets.
type Parser struct {
	logger  observability.Logger
	metrics observability.Metrics
}

// NewParser creates a Parser.
func NewParser(logger observability.Logger, metrics observability.Metrics) *Parser {
	return &Parser{logger: logger, metrics: metrics}
}

// headerScanDepth bounds how deep the header row is searched. Portal
// exports put a title block of at most a few rows above the table.
const headerScanDepth = 12

// Parse reads the file at path, classifies it and extracts its tabular
// section. Files that match a category but whose headers match nothing in
// the vocabulary fail with a schema-mismatch error rather than yielding
// zero rows, so operators are not misled into thinking an empty period was
// imported.
func (p *Parser) Parse(ctx context.Context, path string) (*Document, error) {
	p.metrics.StartOperation("parse")
	defer p.metrics.EndOperation("parse")

	filename := filepath.Base(path)
	ctx = obslog.WithArtifact(ctx, filename)

	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".xlsx" {
		return nil, domain.E(domain.KindParse, "spreadsheet.Parse",
			fmt.Sprintf("unsupported spreadsheet format %q", ext), nil)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		p.metrics.RecordError("parse", "parse")
		return nil, domain.E(domain.KindParse, "spreadsheet.Parse", "opening workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.E(domain.KindParse, "spreadsheet.Parse", "workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, domain.E(domain.KindParse, "spreadsheet.Parse", "reading sheet rows", err)
	}

	doc := &Document{
		Path:     path,
		Filename: filename,
	}

	category, scheme, period, ok := ClassifyFilename(filename)
	if ok {
		doc.Category, doc.Scheme, doc.Period = category, scheme, period
	}

	headerIdx, columns := findHeaderRow(rows)
	if columns == nil {
		p.metrics.RecordError("parse", "schema_mismatch")
		return nil, domain.E(domain.KindSchemaMismatch, "spreadsheet.Parse",
			fmt.Sprintf("no header row in %s matches the expected vocabulary", filename), nil)
	}
	doc.Columns = columns

	if doc.Category == "" {
		// Filename was uninformative; sniff the matched columns. An AN
		// column only appears on inpatient statements.
		if _, hasAN := columns[FieldAN]; hasAN {
			doc.Category = CategoryIPD
		} else {
			doc.Category = CategoryOPD
		}
	}

	for _, field := range mandatoryFields {
		if _, ok := columns[field]; !ok {
			p.metrics.RecordError("parse", "schema_mismatch")
			return nil, domain.E(domain.KindSchemaMismatch, "spreadsheet.Parse",
				fmt.Sprintf("mandatory column %s missing from %s", field, filename), nil)
		}
	}

	doc.Rows = dataRows(rows, headerIdx, columns)

	p.metrics.RecordSuccess("parse")
	p.logger.Info(ctx, "spreadsheet parsed", observability.Fields{
		"filename": filename,
		"category": doc.Category,
		"columns":  len(doc.Columns),
		"rows":     len(doc.Rows),
	})
	return doc, nil
}

// findHeaderRow scans the top of the sheet for the row with the most
// vocabulary matches. Two matched columns is the minimum to call a row a
// header; below that the sheet is unrecognizable.
func findHeaderRow(rows [][]string) (int, map[string]int) {
	bestIdx := -1
	var bestCols map[string]int

	depth := headerScanDepth
	if len(rows) < depth {
		depth = len(rows)
	}

	for i := 0; i < depth; i++ {
		cols := make(map[string]int)
		for j, cell := range rows[i] {
			if field, ok := MatchHeader(cell); ok {
				if _, taken := cols[field]; !taken {
					cols[field] = j
				}
			}
		}
		if len(cols) > len(bestCols) {
			bestIdx, bestCols = i, cols
		}
	}

	if len(bestCols) < 2 {
		return -1, nil
	}
	return bestIdx, bestCols
}

// dataRows collects rows below the header, stopping at summary footers and
// skipping blanks. A row whose claim-number cell starts with the Thai word
// for "total" is the footer the portal appends after the data.
func dataRows(rows [][]string, headerIdx int, columns map[string]int) [][]string {
	claimCol := columns[FieldClaimNo]
	var out [][]string

	for _, row := range rows[headerIdx+1:] {
		if isBlank(row) {
			continue
		}
		if claimCol < len(row) {
			cell := strings.TrimSpace(row[claimCol])
			if strings.HasPrefix(cell, "รวม") {
				break
			}
		}
		out = append(out, row)
	}
	return out
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
