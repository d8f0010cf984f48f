// Package pdf renders GST tax invoices for printing and sharing.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	businessdomain "github.com/smallbiznis/billbook/internal/business/domain"
	invoicedomain "github.com/smallbiznis/billbook/internal/invoice/domain"
)

const dateLayout = "02 Jan 2006"

var ErrNothingToRender = errors.New("invoice_not_renderable")

type Renderer interface {
	Render(ctx context.Context, business businessdomain.Profile, invoice invoicedomain.Invoice) ([]byte, error)
}

type MarotoRenderer struct{}

func New() Renderer {
	return &MarotoRenderer{}
}

func (r *MarotoRenderer) Render(ctx context.Context, business businessdomain.Profile, invoice invoicedomain.Invoice) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if invoice.ID == "" {
		return nil, ErrNothingToRender
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, documentTitle(invoice), props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, string(invoice.Status), props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New(business.Name, props.Text{Style: fontstyle.Bold}),
			text.New(stateLine(business.StateCode), props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Number: "+invoice.DocumentNumber, props.Text{Align: align.Right}),
			text.New("Date: "+invoice.InvoiceDate.Format(dateLayout), props.Text{Top: 5, Align: align.Right}),
			text.New(dueLine(invoice), props.Text{Top: 10, Align: align.Right}),
		),
	)

	if c := invoice.Customer; c != nil {
		billTo := col.New(12).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold}),
			text.New(c.Name, props.Text{Top: 5}),
		)
		if c.GSTIN != "" {
			billTo.Add(text.New("GSTIN: "+c.GSTIN, props.Text{Top: 10}))
		}
		m.AddRow(20, billTo)
	}
	if invoice.PlaceOfSupply != "" {
		m.AddRow(8, text.NewCol(12, "Place of supply: "+invoice.PlaceOfSupply, props.Text{Size: 9}))
	}

	m.AddRow(10,
		text.NewCol(5, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "HSN/SAC", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Rate", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range invoice.Items {
		m.AddRow(8,
			text.NewCol(5, item.Description, props.Text{Size: 9}),
			text.NewCol(2, item.HSNCode, props.Text{Size: 9}),
			text.NewCol(1, item.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, Money(item.UnitPrice), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, Money(item.Amount), props.Text{Size: 9, Align: align.Right}),
		)
	}

	for _, line := range totals(invoice) {
		style := fontstyle.Normal
		if line.bold {
			style = fontstyle.Bold
		}
		m.AddRow(7,
			col.New(7),
			text.NewCol(3, line.label, props.Text{Size: 9, Style: style}),
			text.NewCol(2, Money(line.amount), props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	if notes := strings.TrimSpace(invoice.Notes); notes != "" {
		m.AddRow(16, text.NewCol(12, notes, props.Text{Size: 8, Top: 4}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", invoice.ID, err)
	}
	return doc.GetBytes(), nil
}

type totalLine struct {
	label  string
	amount int64
	bold   bool
}

// totals lists the summary rows. Intra-state supplies show CGST and SGST,
// inter-state supplies show IGST.
func totals(invoice invoicedomain.Invoice) []totalLine {
	lines := []totalLine{{label: "Subtotal", amount: invoice.Subtotal}}
	if invoice.DiscountAmount > 0 {
		lines = append(lines, totalLine{label: "Discount", amount: -invoice.DiscountAmount})
	}
	lines = append(lines, totalLine{label: "Taxable value", amount: invoice.TaxableAmount})
	rate := invoice.TaxRate
	if invoice.IGST > 0 {
		lines = append(lines, totalLine{label: "IGST @ " + rate.String() + "%", amount: invoice.IGST})
	} else if invoice.CGST > 0 || invoice.SGST > 0 {
		half := rate.Div(decimal.NewFromInt(2))
		lines = append(lines,
			totalLine{label: "CGST @ " + half.String() + "%", amount: invoice.CGST},
			totalLine{label: "SGST @ " + half.String() + "%", amount: invoice.SGST},
		)
	}
	return append(lines, totalLine{label: "Total", amount: invoice.GrandTotal, bold: true})
}

// Money formats paise as rupees with two decimals.
func Money(paise int64) string {
	return "INR " + decimal.New(paise, -2).StringFixed(2)
}

func documentTitle(invoice invoicedomain.Invoice) string {
	if invoice.DocumentType == "" || strings.EqualFold(invoice.DocumentType, "invoice") {
		return "Tax Invoice"
	}
	words := strings.Fields(strings.ReplaceAll(invoice.DocumentType, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func stateLine(stateCode string) string {
	if stateCode == "" {
		return ""
	}
	return "State code: " + stateCode
}

func dueLine(invoice invoicedomain.Invoice) string {
	if invoice.DueDate == nil {
		return ""
	}
	return "Due: " + invoice.DueDate.Format(dateLayout)
}
