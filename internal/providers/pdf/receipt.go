package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReceiptData carries preformatted values; amounts are display strings.
type ReceiptData struct {
	Number       string
	DatePaid     string
	BillToName   string
	BillToEmail  string
	BillToAddr   string
	ProductKey   string
	Items        []ReceiptItem
	Net          string
	VATLabel     string
	VAT          string
	Total        string
	PaymentNotes string
}

type ReceiptItem struct {
	Description string
	Qty         int
	Amount      string
}

var ErrEmptyReceipt = errors.New("receipt has no items")

func (r *MarotoRenderer) RenderReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	if len(receipt.Items) == 0 {
		return nil, ErrEmptyReceipt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Seite {current} von {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Zahlungsbestätigung", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, r.cfg.SellerName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Belegnummer: "+receipt.Number, props.Text{Top: 0}),
			text.New("Bezahlt am: "+receipt.DatePaid, props.Text{Top: 4}),
		),
		col.New(6).Add(
			text.New(r.cfg.SellerAddress, props.Text{Align: align.Right}),
			text.New(r.cfg.SellerEmail, props.Text{Top: 4, Align: align.Right}),
		),
	)

	m.AddRow(25,
		col.New(12).Add(
			text.New("Rechnungsempfänger", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.BillToName, props.Text{Top: 5}),
			text.New(receipt.BillToAddr, props.Text{Top: 9}),
			text.New(receipt.BillToEmail, props.Text{Top: 13}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Beschreibung", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Menge", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Betrag", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range receipt.Items {
		m.AddRow(8,
			text.NewCol(8, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	totals := [][2]string{
		{"Netto", receipt.Net},
		{receipt.VATLabel, receipt.VAT},
		{"Gesamt", receipt.Total},
	}
	for _, row := range totals {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, row[0], props.Text{Size: 9}),
			text.NewCol(2, row[1], props.Text{Size: 9, Align: align.Right}),
		)
	}

	if receipt.ProductKey != "" {
		m.AddRow(15,
			text.NewCol(12, "Ihr Produktschlüssel: "+receipt.ProductKey, props.Text{
				Size:  12,
				Style: fontstyle.Bold,
				Top:   5,
			}),
		)
	}
	if receipt.PaymentNotes != "" {
		m.AddRow(15, text.NewCol(12, receipt.PaymentNotes, props.Text{Size: 8}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
