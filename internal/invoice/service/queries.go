package service

import (
	"context"

	"github.com/bwmarrin/snowflake"

	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
	"github.com/carebridge/billing/pkg/db/option"
	"github.com/carebridge/billing/pkg/db/pagination"
)

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) (invoicedomain.ListResponse, error) {
	page := req.Pagination.Normalize()

	filter := &invoicedomain.Invoice{}
	if req.FunderID != nil {
		filter.FunderID = *req.FunderID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	total, err := s.invoiceRepo.Count(ctx, filter)
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}

	items, err := s.invoiceRepo.Find(ctx, filter,
		option.WithOrder("invoice_date DESC, id DESC"),
		option.WithLimitOffset(page.Limit, page.Offset()),
	)
	if err != nil {
		return invoicedomain.ListResponse{}, err
	}

	now := s.clock.Now()
	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoice := *item
		invoice.EffectiveStatus = invoice.Derive(now)
		invoices = append(invoices, invoice)
	}

	return invoicedomain.ListResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Invoices: invoices,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.InvoiceDetail, error) {
	invoice, err := s.invoiceRepo.FindOne(ctx, &invoicedomain.Invoice{ID: id})
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}
	if invoice == nil {
		return invoicedomain.InvoiceDetail{}, invoicedomain.ErrNotFound
	}

	lines, err := s.lineRepo.Find(ctx, &invoicedomain.InvoiceLine{InvoiceID: invoice.ID},
		option.WithOrder("service_user_id ASC, care_package_id ASC"))
	if err != nil {
		return invoicedomain.InvoiceDetail{}, err
	}

	detail := invoicedomain.InvoiceDetail{
		Visits: make(map[snowflake.ID][]recdomain.BillableVisit, len(lines)),
	}
	for _, line := range lines {
		invoice.Lines = append(invoice.Lines, *line)

		var visits []recdomain.BillableVisit
		err := s.db.WithContext(ctx).
			Where("invoice_line_id = ?", line.ID).
			Order("visit_date ASC, id ASC").
			Find(&visits).Error
		if err != nil {
			return invoicedomain.InvoiceDetail{}, err
		}
		detail.Visits[line.ID] = visits
	}

	invoice.EffectiveStatus = invoice.Derive(s.clock.Now())
	detail.Invoice = *invoice
	return detail, nil
}
