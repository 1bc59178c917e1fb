package spreadsheet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"claimsync/internal/domain"
	"claimsync/internal/entity"
	"claimsync/internal/observability/mocks"
)

// writeWorkbook writes an xlsx fixture with the given rows on the first
// sheet and returns its path.
func writeWorkbook(t *testing.T, filename string, rows [][]interface{}) string {
	t.Helper()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), filename)
	require.NoError(t, f.SaveAs(path))
	return path
}

func newTestParser() *Parser {
	return NewParser(mocks.NopLogger{}, mocks.NopMetrics{})
}

func TestParserParse(t *testing.T) {
	ctx := context.Background()

	t.Run("outpatient statement with title block", func(t *testing.T) {
		path := writeWorkbook(t, "eRep_OPD_UCS_256810.xlsx", [][]interface{}{
			{"รายงานการจ่ายเงินกองทุน"},
			{"งวดที่ 10/2568"},
			{"เลขที่เบิก", "HN", "ชื่อ-สกุล", "วันที่รับบริการ", "จำนวนเงินที่ขอเบิก", "จำนวนเงินที่ได้รับ"},
			{"A0001", "100234", "สมชาย ใจดี", "01/10/2568", "1,200.50", "1,000.00"},
			{"A0002", "100235", "สมหญิง ใจงาม", "02/10/2568", "800.00", "800.00"},
			{"รวม", "", "", "", "2,000.50", "1,800.00"},
		})

		doc, err := newTestParser().Parse(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, CategoryOPD, doc.Category)
		assert.Equal(t, entity.SchemeUCS, doc.Scheme)
		assert.Equal(t, entity.Period{Year: 2568, Month: 10}, doc.Period)
		assert.Len(t, doc.Rows, 2, "footer row must be excluded")
		assert.Equal(t, 0, doc.Columns[FieldClaimNo])
		assert.Equal(t, 3, doc.Columns[FieldServiceDate])
	})

	t.Run("header with embedded line break still matches", func(t *testing.T) {
		path := writeWorkbook(t, "eRep_OPD_UCS_256810.xlsx", [][]interface{}{
			{"เลขที่เบิก\nใหม่", "HN", "จำนวนเงินที่ขอเบิก"},
			{"B0001", "200001", "500.00"},
		})

		doc, err := newTestParser().Parse(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 0, doc.Columns[FieldClaimNo])
		assert.Len(t, doc.Rows, 1)
	})

	t.Run("an column sniffs inpatient when filename is uninformative", func(t *testing.T) {
		path := writeWorkbook(t, "export.xlsx", [][]interface{}{
			{"เลขที่เบิก", "AN", "จำนวนเงินที่ได้รับ"},
			{"C0001", "AN123", "1500.00"},
		})

		doc, err := newTestParser().Parse(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, CategoryIPD, doc.Category)
	})

	t.Run("unrecognizable headers fail as schema mismatch", func(t *testing.T) {
		path := writeWorkbook(t, "eRep_OPD_UCS_256810.xlsx", [][]interface{}{
			{"colA", "colB", "colC"},
			{"1", "2", "3"},
		})

		_, err := newTestParser().Parse(ctx, path)
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindSchemaMismatch))
	})

	t.Run("missing claim number column fails as schema mismatch", func(t *testing.T) {
		path := writeWorkbook(t, "eRep_OPD_UCS_256810.xlsx", [][]interface{}{
			{"HN", "ชื่อ-สกุล", "จำนวนเงินที่ขอเบิก"},
			{"100234", "สมชาย ใจดี", "1200.00"},
		})

		_, err := newTestParser().Parse(ctx, path)
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindSchemaMismatch))
	})

	t.Run("legacy xls is rejected with a parse error", func(t *testing.T) {
		_, err := newTestParser().Parse(ctx, filepath.Join(t.TempDir(), "eRep_OPD_UCS_256810.xls"))
		require.Error(t, err)
		assert.True(t, domain.IsKind(err, domain.KindParse))
		assert.Contains(t, err.Error(), "unsupported spreadsheet format")
	})

	t.Run("blank rows between data rows are skipped", func(t *testing.T) {
		path := writeWorkbook(t, "eRep_OPD_UCS_256810.xlsx", [][]interface{}{
			{"เลขที่เบิก", "HN"},
			{"D0001", "300001"},
			{"", ""},
			{"D0002", "300002"},
		})

		doc, err := newTestParser().Parse(ctx, path)
		require.NoError(t, err)
		assert.Len(t, doc.Rows, 2)
	})
}
