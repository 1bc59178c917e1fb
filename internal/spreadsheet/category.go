package spreadsheet

import (
	"regexp"
	"strconv"
	"strings"

	"claimsync/internal/entity"
)

// Category is the closed set of settlement spreadsheet kinds the portal
// publishes.
type Category string

const (
	CategoryOPD      Category = "OPD"       // outpatient statement
	CategoryIPD      Category = "IPD"       // inpatient statement
	CategoryORF      Category = "ORF"       // outpatient referral
	CategoryIRF      Category = "IRF"       // inpatient referral
	CategoryOPAppeal Category = "OP_APPEAL" // outpatient appeal
	CategoryIPAppeal Category = "IP_APPEAL" // inpatient appeal
)

// Inpatient reports whether rows of this category land in the inpatient
// claims table.
func (c Category) Inpatient() bool {
	switch c {
	case CategoryIPD, CategoryIRF, CategoryIPAppeal:
		return true
	default:
		return false
	}
}

// periodPattern matches the 6-digit Buddhist-era YYYYMM fragment embedded
// in portal filenames, e.g. "eRep_OPD_UCS_256810.xlsx".
var periodPattern = regexp.MustCompile(`(25\d{2})(0[1-9]|1[0-2])`)

// ClassifyFilename recovers (category, scheme, period) from the portal's
// filename convention. ok is false when the name carries no recognizable
// category token; the caller then falls back to header sniffing.
func ClassifyFilename(filename string) (Category, entity.Scheme, entity.Period, bool) {
	upper := strings.ToUpper(filename)

	var category Category
	switch {
	case strings.Contains(upper, "APPEAL") && strings.Contains(upper, "IP"):
		category = CategoryIPAppeal
	case strings.Contains(upper, "APPEAL"):
		category = CategoryOPAppeal
	case strings.Contains(upper, "ORF"):
		category = CategoryORF
	case strings.Contains(upper, "IRF"):
		category = CategoryIRF
	case strings.Contains(upper, "IPD"), strings.Contains(upper, "_IP_"):
		category = CategoryIPD
	case strings.Contains(upper, "OPD"), strings.Contains(upper, "_OP_"):
		category = CategoryOPD
	default:
		return "", "", entity.Period{}, false
	}

	var scheme entity.Scheme
	for _, s := range []entity.Scheme{entity.SchemeUCS, entity.SchemeOFC, entity.SchemeSSS, entity.SchemeLGO} {
		if strings.Contains(upper, string(s)) {
			scheme = s
			break
		}
	}

	var period entity.Period
	if m := periodPattern.FindStringSubmatch(upper); m != nil {
		period.Year, _ = strconv.Atoi(m[1])
		period.Month, _ = strconv.Atoi(m[2])
	}

	return category, scheme, period, true
}
