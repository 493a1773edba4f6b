package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	"github.com/carebridge/billing/internal/providers/pdf"
	"github.com/carebridge/billing/pkg/db/pagination"
)

type generateInvoiceRequest struct {
	FunderID    string `json:"funder_id" binding:"required"`
	PeriodStart string `json:"period_start" binding:"required"`
	PeriodEnd   string `json:"period_end" binding:"required"`
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	var req generateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	funderID, err := parseSnowflakeID(req.FunderID)
	if err != nil {
		AbortWithError(c, newValidationError("funder_id", "invalid_id", "invalid id"))
		return
	}
	periodStart, err := parseRequiredTime("period_start", req.PeriodStart, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	periodEnd, err := parseRequiredTime("period_end", req.PeriodEnd, true)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceSvc.Generate(c.Request.Context(), invoicedomain.GenerateRequest{
		FunderID:    funderID,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) SendInvoice(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.Send(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

type recordPaymentRequest struct {
	PaidDate  string `json:"paid_date" binding:"required"`
	Amount    *int64 `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

func (s *Server) RecordInvoicePayment(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	paidDate, err := parseRequiredTime("paid_date", req.PaidDate, false)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.invoiceSvc.MarkPaid(c.Request.Context(), invoicedomain.MarkPaidRequest{
		InvoiceID: id,
		PaidDate:  paidDate,
		Amount:    *req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) VoidInvoice(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.Void(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) WriteOffInvoice(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.WriteOff(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	funderID, err := parseOptionalSnowflakeID(c.Query("funder_id"))
	if err != nil {
		AbortWithError(c, newValidationError("funder_id", "invalid_id", "invalid id"))
		return
	}

	req := invoicedomain.ListRequest{
		Pagination: page,
		FunderID:   funderID,
	}
	if raw := c.Query("status"); raw != "" {
		status := invoicedomain.InvoiceStatus(raw)
		req.Status = &status
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	detail, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail.Invoice})
}

func (s *Server) GetInvoicePDF(c *gin.Context) {
	id, ok := s.invoiceID(c)
	if !ok {
		return
	}

	detail, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	funder, err := s.funderSvc.GetByID(c.Request.Context(), detail.Invoice.FunderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc := s.invoiceDocument(detail, funder.Name)
	reader, err := s.pdfProvider.GenerateInvoice(c.Request.Context(), doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	rendered, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", detail.Invoice.InvoiceNumber))
	c.Data(http.StatusOK, "application/pdf", rendered)
}

func (s *Server) invoiceDocument(detail invoicedomain.InvoiceDetail, funderName string) pdf.InvoiceDocument {
	invoice := detail.Invoice

	doc := pdf.InvoiceDocument{
		ProviderName:    s.cfg.ProviderName,
		ProviderAddress: s.cfg.ProviderAddress,
		ProviderEmail:   s.cfg.ProviderEmail,

		InvoiceNumber: invoice.InvoiceNumber,
		IssueDate:     invoice.InvoiceDate.Format(dateOnlyLayout),
		DueDate:       invoice.DueDate.Format(dateOnlyLayout),
		ServicePeriod: fmt.Sprintf("%s to %s",
			invoice.PeriodStart.Format(dateOnlyLayout),
			invoice.PeriodEnd.Format(dateOnlyLayout)),
		Status: string(invoice.Derive(s.clock.Now())),

		FunderName: funderName,

		Total:      formatPence(invoice.TotalAmount),
		AmountPaid: formatPence(invoice.AmountPaid),
		AmountDue:  formatPence(invoice.TotalAmount - invoice.AmountPaid),
	}

	for _, line := range invoice.Lines {
		description := fmt.Sprintf("Service user %d / package %d", line.ServiceUserID, line.CarePackageID)
		doc.Lines = append(doc.Lines, pdf.InvoiceDocumentLine{
			Description:   description,
			VisitCount:    line.VisitCount,
			TotalMinutes:  line.TotalMinutes,
			CareAmount:    formatPence(line.CareSubtotal),
			MileageAmount: formatPence(line.MileageSubtotal),
			LineAmount:    formatPence(line.LineTotal),
		})
	}

	return doc
}

func formatPence(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s£%d.%02d", sign, amount/100, amount%100)
}

func (s *Server) invoiceID(c *gin.Context) (snowflake.ID, bool) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}
