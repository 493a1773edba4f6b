package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type marotoProvider struct{}

func New() Provider {
	return &marotoProvider{}
}

func (p *marotoProvider) GenerateInvoice(ctx context.Context, doc InvoiceDocument) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Invoice number: "+doc.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 4}),
			text.New("Date due: "+doc.DueDate, props.Text{Top: 8}),
			text.New("Service period: "+doc.ServicePeriod, props.Text{Top: 12}),
			text.New("Status: "+doc.Status, props.Text{Top: 16}),
		),
		col.New(6),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New(doc.ProviderName, props.Text{Style: fontstyle.Bold}),
			text.New(doc.ProviderAddress, props.Text{Top: 5}),
			text.New(doc.ProviderEmail, props.Text{Top: 18}),
		),
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(doc.FunderName, props.Text{Top: 5}),
		),
	)

	m.AddRow(10,
		text.NewCol(5, "Care package", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Visits", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Minutes", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Mileage", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range doc.Lines {
		m.AddRow(12,
			text.NewCol(5, line.Description, props.Text{Size: 9}),
			text.NewCol(1, fmt.Sprintf("%d", line.VisitCount), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, fmt.Sprintf("%d", line.TotalMinutes), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.MileageAmount, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.LineAmount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9}),
		text.NewCol(2, doc.Total, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Paid", props.Text{Size: 9}),
		text.NewCol(2, doc.AmountPaid, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, doc.AmountDue, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	rendered, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(rendered.GetBytes()), nil
}
