package loader

import (
	"fmt"
	"strings"
	"time"

	"claimsync/internal/spreadsheet"
)

// ClaimRow is one typed row ready for upsert. The natural key is
// (ClaimNo, Category); re-importing the same file produces the same keys
// and therefore the same final row set.
type ClaimRow struct {
	ClaimNo        string
	Category       string
	PatientRef     string // HN for outpatient tables, AN for inpatient
	CitizenID      string
	PatientName    string
	ServiceDate    *time.Time
	ClaimedAmount  float64
	PaidAmount     float64
	Scheme         string
	RepNo          string
	Remark         string
	ImportedFileID int64
}

// TargetTable returns the import table for a category. The split follows
// the schema: outpatient-side categories share claims_opd, inpatient-side
// categories share claims_ipd.
func TargetTable(category spreadsheet.Category) string {
	if category.Inpatient() {
		return "claims_ipd"
	}
	return "claims_opd"
}

// patientRefColumn names the per-table patient reference column.
func patientRefColumn(category spreadsheet.Category) string {
	if category.Inpatient() {
		return "an"
	}
	return "hn"
}

// RowWarning is a non-fatal per-row conversion problem. The row is still
// loaded; the offending field is left at its zero value (NULL for dates).
type RowWarning struct {
	Row     int
	Field   string
	Message string
}

// mapRow converts one raw spreadsheet row into a ClaimRow. A missing or
// empty claim number is a row-level failure; everything else degrades to a
// warning.
func mapRow(doc *spreadsheet.Document, rowIdx int, raw []string, importedFileID int64) (*ClaimRow, []RowWarning, error) {
	cell := func(field string) string {
		col, ok := doc.Columns[field]
		if !ok || col >= len(raw) {
			return ""
		}
		return strings.TrimSpace(raw[col])
	}

	claimNo := cell(spreadsheet.FieldClaimNo)
	if claimNo == "" {
		return nil, nil, fmt.Errorf("row %d: empty claim number", rowIdx)
	}

	row := &ClaimRow{
		ClaimNo:        claimNo,
		Category:       string(doc.Category),
		CitizenID:      cell(spreadsheet.FieldCitizenID),
		PatientName:    cell(spreadsheet.FieldPatientName),
		Scheme:         string(doc.Scheme),
		RepNo:          cell(spreadsheet.FieldRepNo),
		Remark:         cell(spreadsheet.FieldRemark),
		ImportedFileID: importedFileID,
	}

	if doc.Category.Inpatient() {
		row.PatientRef = cell(spreadsheet.FieldAN)
	} else {
		row.PatientRef = cell(spreadsheet.FieldHN)
	}

	var warnings []RowWarning

	if raw := cell(spreadsheet.FieldServiceDate); raw != "" {
		if t, err := ParseThaiDate(raw); err != nil {
			warnings = append(warnings, RowWarning{
				Row:     rowIdx,
				Field:   spreadsheet.FieldServiceDate,
				Message: err.Error(),
			})
		} else {
			row.ServiceDate = &t
		}
	}

	if raw := cell(spreadsheet.FieldClaimedAmount); raw != "" {
		if v, err := ParseAmount(raw); err != nil {
			warnings = append(warnings, RowWarning{
				Row:     rowIdx,
				Field:   spreadsheet.FieldClaimedAmount,
				Message: err.Error(),
			})
		} else {
			row.ClaimedAmount = v
		}
	}

	if raw := cell(spreadsheet.FieldPaidAmount); raw != "" {
		if v, err := ParseAmount(raw); err != nil {
			warnings = append(warnings, RowWarning{
				Row:     rowIdx,
				Field:   spreadsheet.FieldPaidAmount,
				Message: err.Error(),
			})
		} else {
			row.PaidAmount = v
		}
	}

	return row, warnings, nil
}
