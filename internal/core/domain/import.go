package domain

import "fmt"

// ImportRow is one raw line of a bulk import file. Every value is kept as
// the text found in the file; coercion happens in the import service.
type ImportRow struct {
	RowNumber           int
	PartNumber          string
	Name                string
	Description         string
	Quantity            string
	LineNo              string
	PageNo              string
	OrderNo             string
	MaterialCode        string
	IlmsCode            string
	ItemDenomination    string
	Mustered            string
	CompartmentNo       string
	BoxNo               string
	Remark              string
	Barcode             string
	MinOrderLevel       string
	MinOrderQuantity    string
	LastMaintenanceDate string
	NextMaintenanceDate string
}

type ImportStatus string

const (
	ImportSuccess ImportStatus = "success"
	ImportFailed  ImportStatus = "failed"
)

type ImportOutcome struct {
	RowNumber  int          `json:"row_number"`
	PartNumber string       `json:"part_number"`
	Name       string       `json:"name"`
	Barcode    string       `json:"barcode"`
	Status     ImportStatus `json:"status"`
	Message    string       `json:"message"`
}

type ImportReport struct {
	Outcomes     []ImportOutcome `json:"results"`
	Total        int             `json:"total"`
	SuccessCount int             `json:"success_count"`
	FailedCount  int             `json:"failed_count"`
	Aborted      bool            `json:"aborted"`
	Message      string          `json:"message"`
}

// Record appends an outcome and keeps the counters in step.
func (r *ImportReport) Record(o ImportOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	r.Total++
	if o.Status == ImportSuccess {
		r.SuccessCount++
	} else {
		r.FailedCount++
	}
}

// Summarize fills the aggregate message.
func (r *ImportReport) Summarize() {
	r.Message = fmt.Sprintf("Processed %d rows: %d succeeded, %d failed", r.Total, r.SuccessCount, r.FailedCount)
	if r.Aborted {
		r.Message += " (import aborted)"
	}
}
