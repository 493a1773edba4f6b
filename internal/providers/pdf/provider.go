// Package pdf renders invoice documents for download and posting to
// funders that require paper remittance.
package pdf

import (
	"context"
	"io"
)

type Provider interface {
	GenerateInvoice(ctx context.Context, doc InvoiceDocument) (io.Reader, error)
}

// InvoiceDocument carries pre-formatted strings; amounts are rendered
// by the caller so the renderer stays free of money arithmetic.
type InvoiceDocument struct {
	ProviderName    string
	ProviderAddress string
	ProviderEmail   string

	InvoiceNumber string
	IssueDate     string
	DueDate       string
	ServicePeriod string
	Status        string

	FunderName string

	Lines []InvoiceDocumentLine

	Total      string
	AmountPaid string
	AmountDue  string
}

type InvoiceDocumentLine struct {
	Description   string
	VisitCount    int
	TotalMinutes  int
	CareAmount    string
	MileageAmount string
	LineAmount    string
}
