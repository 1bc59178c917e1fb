package spreadsheet

// Canonical field names produced by header matching. The loader maps these
// to table columns.
const (
	FieldClaimNo       = "claim_no"
	FieldHN            = "hn"
	FieldAN            = "an"
	FieldCitizenID     = "citizen_id"
	FieldPatientName   = "patient_name"
	FieldServiceDate   = "service_date"
	FieldClaimedAmount = "claimed_amount"
	FieldPaidAmount    = "paid_amount"
	FieldRepNo         = "rep_no"
	FieldRemark        = "remark"
)

// vocabulary maps normalized header text to canonical fields. Keys are the
// output of NormalizeHeader applied to every header variant observed in
// portal exports; Thai headers have no internal whitespace after
// normalization.
var vocabulary = map[string]string{
	// Claim identifier, old and new numbering.
	"เลขที่เบิก":     FieldClaimNo,
	"เลขที่เบิกใหม่": FieldClaimNo,
	"TRAN_ID":        FieldClaimNo,

	// Patient identifiers.
	"HN":                  FieldHN,
	"เลขที่HN":            FieldHN,
	"AN":                  FieldAN,
	"เลขที่AN":            FieldAN,
	"เลขประจำตัวประชาชน":  FieldCitizenID,
	"เลขบัตรประชาชน":      FieldCitizenID,
	"PID":                 FieldCitizenID,

	"ชื่อ-สกุล":    FieldPatientName,
	"ชื่อ-นามสกุล": FieldPatientName,
	"ชื่อผู้ป่วย":  FieldPatientName,

	// Dates arrive in the Buddhist calendar; conversion happens in the
	// loader.
	"วันที่รับบริการ": FieldServiceDate,
	"วันรับบริการ":    FieldServiceDate,
	"DATESERV":        FieldServiceDate,
	"วันที่จำหน่าย":   FieldServiceDate,

	"จำนวนเงินที่ขอเบิก": FieldClaimedAmount,
	"ยอดเบิก":            FieldClaimedAmount,
	"จำนวนพึงเบิก":       FieldClaimedAmount,
	"จำนวนเงินที่ได้รับ": FieldPaidAmount,
	"จำนวนเงินอนุมัติ":   FieldPaidAmount,
	"ยอดจ่าย":            FieldPaidAmount,

	"งวดที่":   FieldRepNo,
	"REPNO":    FieldRepNo,
	"หมายเหตุ": FieldRemark,
}

// mandatoryFields must be present for every category; a file whose header
// row lacks any of them cannot be loaded safely.
var mandatoryFields = []string{FieldClaimNo}

// MatchHeader returns the canonical field for a raw header cell, if any.
func MatchHeader(raw string) (string, bool) {
	field, ok := vocabulary[NormalizeHeader(raw)]
	return field, ok
}
