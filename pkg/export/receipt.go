package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt carries the fields printed on a commitment acknowledgment receipt.
type Receipt struct {
	CommitmentID       int64
	ProjectReferenceID string
	ProjectTitle       string
	OrganizationName   string
	CommittedBy        string
	Amount             string
	Currency           string
	FundingMode        string
	ApprovedBy         string
	ApprovedAt         time.Time
}

// ReceiptRenderer produces acknowledgment receipt PDFs for approved commitments.
type ReceiptRenderer struct{}

// NewReceiptRenderer constructs a receipt renderer.
func NewReceiptRenderer() *ReceiptRenderer {
	return &ReceiptRenderer{}
}

// Render creates the PDF document for the given receipt.
func (r *ReceiptRenderer) Render(receipt Receipt) ([]byte, error) {
	if receipt.ProjectReferenceID == "" {
		return nil, fmt.Errorf("receipt requires a project reference id")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "FUNDING COMMITMENT ACKNOWLEDGMENT", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Receipt No. MUNIFY-ACK-%d", receipt.CommitmentID), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	rows := [][2]string{
		{"Project Reference", receipt.ProjectReferenceID},
		{"Project Title", receipt.ProjectTitle},
		{"Lender Organization", receipt.OrganizationName},
		{"Committed By", receipt.CommittedBy},
		{"Committed Amount", fmt.Sprintf("%s %s", receipt.Currency, receipt.Amount)},
		{"Funding Mode", receipt.FundingMode},
		{"Approved By", receipt.ApprovedBy},
		{"Approved At", receipt.ApprovedAt.Format("02 Jan 2006 15:04 MST")},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(55, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(125, 8, row[1], "1", 1, "", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.MultiCell(0, 4, "This receipt acknowledges that the commitment above has been approved on the Munify platform. It is not a disbursement record.", "", "L", false)

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
