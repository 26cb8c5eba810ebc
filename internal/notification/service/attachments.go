package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smallbiznis/coursepay/internal/apperror"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	"github.com/smallbiznis/coursepay/internal/providers/email"
	"github.com/smallbiznis/coursepay/internal/providers/pdf"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

const (
	maxPDFSize    = 20 << 20
	receiptPrefix = "receipts"
)

// collectAttachments fetches the invoice PDF and the legal documents
// concurrently. A failed fetch is logged and leaves its slot empty; the
// remaining fetches keep running.
func (s *Service) collectAttachments(ctx context.Context, p notificationdomain.Purchase) []email.Attachment {
	keys := append([]string(nil), s.legalDocs...)
	if p.PartnerOptIn && s.partnerDoc != "" {
		keys = append(keys, s.partnerDoc)
	}

	slots := make([]*email.Attachment, len(keys)+1)
	var g errgroup.Group

	g.Go(func() error {
		att, err := s.invoiceAttachment(ctx, p)
		if err != nil {
			s.log.Warn("invoice pdf unavailable, rendering receipt",
				zap.String("source_id", p.SourceID), zap.Error(err))
			att, err = s.receiptAttachment(ctx, p)
			if err != nil {
				s.log.Warn("receipt rendering failed", zap.String("source_id", p.SourceID), zap.Error(err))
				return nil
			}
		}
		slots[0] = att
		return nil
	})

	for i, key := range keys {
		g.Go(func() error {
			obj, err := s.store.Get(ctx, key)
			if err != nil {
				s.log.Warn("legal document missing", zap.String("key", key), zap.Error(err))
				return nil
			}
			ct := obj.ContentType
			if ct == "" {
				ct = "application/pdf"
			}
			slots[i+1] = &email.Attachment{Filename: documentFilename(key), ContentType: ct, Data: obj.Body}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]email.Attachment, 0, len(slots))
	for _, a := range slots {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

// invoiceAttachment resolves the invoice for a purchase: the invoice of
// the charge attempt for one-time purchases, the latest invoice of the
// enrollment for subscriptions.
func (s *Service) invoiceAttachment(ctx context.Context, p notificationdomain.Purchase) (*email.Attachment, error) {
	invoiceID := p.InvoiceID
	if invoiceID == "" && p.PaymentType == purchasedomain.PaymentTypeSubscription && p.SubscriptionID != "" {
		sub, err := s.gateway.GetSubscription(ctx, p.SubscriptionID)
		if err != nil {
			return nil, err
		}
		invoiceID = sub.LatestInvoiceID
	}
	if invoiceID == "" && p.PaymentIntentID != "" {
		charge, err := s.gateway.GetChargeAttempt(ctx, p.PaymentIntentID)
		if err != nil {
			return nil, err
		}
		invoiceID = charge.InvoiceID
	}
	if invoiceID == "" {
		return nil, errors.New("no invoice linked to purchase")
	}

	inv, err := s.gateway.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.PDFURL == "" {
		return nil, fmt.Errorf("invoice %s has no pdf", invoiceID)
	}
	body, err := s.download(ctx, inv.PDFURL)
	if err != nil {
		return nil, &apperror.TransportError{Op: "fetch_invoice_pdf", Err: err}
	}
	return &email.Attachment{
		Filename:    "rechnung-" + slug.Make(invoiceID) + ".pdf",
		ContentType: "application/pdf",
		Data:        body,
	}, nil
}

func (s *Service) receiptAttachment(ctx context.Context, p notificationdomain.Purchase) (*email.Attachment, error) {
	data := pdf.ReceiptData{
		Number:      p.SourceID,
		DatePaid:    formatDate(p.PaidAt),
		BillToName:  p.CustomerName,
		BillToEmail: p.CustomerEmail,
		ProductKey:  p.ProductKey,
		Total:       formatMoney(p.AmountPaid, p.Currency),
	}
	for _, item := range p.Items {
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: item.Description,
			Qty:         int(item.Quantity),
			Amount:      formatMoney(item.Amount, p.Currency),
		})
	}
	if len(data.Items) == 0 {
		data.Items = []pdf.ReceiptItem{{Description: "Kurszugang", Qty: 1, Amount: data.Total}}
	}
	if t := p.Tax; t != nil {
		data.Net = formatMoney(t.Net, p.Currency)
		data.VAT = formatMoney(t.VAT, p.Currency)
		data.VATLabel = "USt. " + formatRate(t.Rate)
	}

	body, err := s.renderer.RenderReceipt(ctx, data)
	if err != nil {
		return nil, err
	}
	s.archiveReceipt(ctx, p.SourceID, body)
	return &email.Attachment{
		Filename:    "beleg-" + slug.Make(p.SourceID) + ".pdf",
		ContentType: "application/pdf",
		Data:        body,
	}, nil
}

// archiveReceipt stores a rendered receipt next to the legal documents.
// The email does not wait for it.
func (s *Service) archiveReceipt(ctx context.Context, sourceID string, body []byte) {
	key := path.Join(receiptPrefix, slug.Make(sourceID)+".pdf")
	up := s.store.Upload(context.WithoutCancel(ctx), key, "application/pdf", bytes.NewReader(body), int64(len(body)))
	go func() {
		res := <-up.Done()
		if res.Err != nil {
			s.log.Warn("receipt archive failed", zap.String("key", key), zap.Error(res.Err))
			return
		}
		s.log.Debug("receipt archived", zap.String("key", key), zap.Int64("size", res.Size))
	}()
}

func (s *Service) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxPDFSize {
		return nil, errors.New("pdf too large")
	}
	return body, nil
}

func documentFilename(key string) string {
	base := path.Base(key)
	ext := path.Ext(base)
	name := slug.Make(strings.TrimSuffix(base, ext))
	if name == "" {
		name = "dokument"
	}
	if ext == "" {
		ext = ".pdf"
	}
	return name + strings.ToLower(ext)
}
