package service

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/coursepay/internal/apperror"
	"github.com/smallbiznis/coursepay/internal/config"
	"github.com/smallbiznis/coursepay/internal/gateway"
	notificationdomain "github.com/smallbiznis/coursepay/internal/notification/domain"
	"github.com/smallbiznis/coursepay/internal/objectstore"
	"github.com/smallbiznis/coursepay/internal/observability/logger"
	"github.com/smallbiznis/coursepay/internal/observability/metrics"
	"github.com/smallbiznis/coursepay/internal/providers/email"
	"github.com/smallbiznis/coursepay/internal/providers/pdf"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Params struct {
	fx.In

	Config   config.Config
	Log      *zap.Logger
	Gateway  gateway.Gateway `name:"reconcile"`
	Store    objectstore.Store
	Mailer   email.Mailer
	Renderer pdf.Renderer
	Metrics  *metrics.Metrics `optional:"true"`
	HTTP     *http.Client     `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	gateway     gateway.Gateway
	store       objectstore.Store
	mailer      email.Mailer
	renderer    pdf.Renderer
	metrics     *metrics.Metrics
	http        *http.Client
	sender      string
	unsubscribe string
	fromAddress string
	legalDocs   []string
	partnerDoc  string
}

func NewService(p Params) notificationdomain.Assembler {
	return New(p)
}

func New(p Params) *Service {
	client := p.HTTP
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	sender := p.Config.SMTP.FromName
	if sender == "" {
		sender = p.Config.AppName
	}
	return &Service{
		log:         p.Log.Named("notification.service"),
		gateway:     p.Gateway,
		store:       p.Store,
		mailer:      p.Mailer,
		renderer:    p.Renderer,
		metrics:     p.Metrics,
		http:        client,
		sender:      sender,
		unsubscribe: strings.TrimSpace(p.Config.SMTP.UnsubscribeURL),
		fromAddress: p.Config.SMTP.From,
		legalDocs:   p.Config.S3.LegalDocuments,
		partnerDoc:  p.Config.S3.PartnerDocument,
	}
}

type itemView struct {
	Description string
	Quantity    int64
	Amount      string
}

type purchaseView struct {
	Subject    string
	Name       string
	Total      string
	Items      []itemView
	Tax        string
	Discount   string
	ProductKey string
	Recurring  bool
	Sender     string
	Reference  string
}

func (s *Service) SendPurchaseConfirmation(ctx context.Context, p notificationdomain.Purchase) error {
	if strings.TrimSpace(p.CustomerEmail) == "" {
		return apperror.NewValidationError("customer email is required", "customer_email")
	}

	view := purchaseView{
		Subject:    "Ihre Bestellbestätigung und Ihr Produktschlüssel",
		Name:       p.CustomerName,
		Total:      formatMoney(p.AmountPaid, p.Currency),
		ProductKey: p.ProductKey,
		Recurring:  p.PaymentType == purchasedomain.PaymentTypeSubscription,
		Sender:     s.sender,
		Reference:  p.SourceID,
	}
	for _, item := range p.Items {
		view.Items = append(view.Items, itemView{
			Description: item.Description,
			Quantity:    max(item.Quantity, 1),
			Amount:      formatMoney(item.Amount, p.Currency),
		})
	}
	if t := p.Tax; t != nil && t.VAT > 0 {
		view.Tax = formatMoney(t.VAT, p.Currency) + " USt. (" + formatRate(t.Rate) + ")"
	}
	if d := p.Discount; d != nil && d.Amount > 0 {
		view.Discount = formatMoney(d.Amount, p.Currency)
		if d.PromotionCode != "" {
			view.Discount += " (" + d.PromotionCode + ")"
		}
	}

	attachments := s.collectAttachments(ctx, p)
	return s.send(ctx, notificationdomain.TemplatePurchaseConfirmation, p.SourceID, p.CustomerEmail, view.Subject, view, attachments)
}

func (s *Service) SendPaymentFailed(ctx context.Context, n notificationdomain.PaymentFailed) error {
	if strings.TrimSpace(n.CustomerEmail) == "" {
		return apperror.NewValidationError("customer email is required", "customer_email")
	}
	view := map[string]any{
		"Subject":        "Zahlung fehlgeschlagen: bitte Zahlungsmethode aktualisieren",
		"Name":           n.CustomerName,
		"GracePeriodEnd": formatDate(n.GracePeriodEnd),
		"Sender":         s.sender,
		"Reference":      n.SubscriptionID,
	}
	return s.send(ctx, notificationdomain.TemplatePaymentFailed, n.SubscriptionID, n.CustomerEmail, view["Subject"].(string), view, nil)
}

func (s *Service) SendRenewalReminder(ctx context.Context, n notificationdomain.RenewalReminder) error {
	if strings.TrimSpace(n.CustomerEmail) == "" {
		return apperror.NewValidationError("customer email is required", "customer_email")
	}
	view := map[string]any{
		"Subject":       "Erinnerung: Ihr Abonnement verlängert sich bald",
		"Name":          n.CustomerName,
		"DaysRemaining": n.DaysRemaining,
		"RenewalDate":   formatDate(n.RenewalDate),
		"Sender":        s.sender,
		"Reference":     n.SubscriptionID,
	}
	return s.send(ctx, notificationdomain.TemplateRenewalReminder, n.SubscriptionID, n.CustomerEmail, view["Subject"].(string), view, nil)
}

func (s *Service) send(ctx context.Context, name, ref, to, subject string, data any, attachments []email.Attachment) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name+".html", data); err != nil {
		s.metrics.RecordEmail(ctx, name, "render_error")
		return &apperror.TransportError{Op: "render_" + name, Err: err}
	}

	if ref == "" {
		ref = uuid.NewString()
	}
	msg := email.Message{
		To:          []string{strings.TrimSpace(to)},
		Subject:     subject,
		HTML:        body.String(),
		Text:        toPlainText(body.String()),
		Headers:     s.headers(ref),
		Attachments: attachments,
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.metrics.RecordEmail(ctx, name, "failed")
		s.log.Error("email delivery failed",
			zap.String("template", name),
			logger.Recipient(to),
			zap.String("ref", ref),
			zap.Error(err),
		)
		return &apperror.TransportError{Op: "send_" + name, Err: err}
	}

	s.metrics.RecordEmail(ctx, name, "sent")
	s.log.Info("email sent",
		zap.String("template", name),
		logger.Recipient(to),
		zap.String("ref", ref),
		zap.Int("attachments", len(attachments)),
	)
	return nil
}

func (s *Service) headers(ref string) map[string]string {
	unsubscribe := s.unsubscribe
	if unsubscribe == "" {
		unsubscribe = "mailto:" + s.fromAddress + "?subject=unsubscribe"
	}
	return map[string]string{
		"List-Unsubscribe":      "<" + unsubscribe + ">",
		"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		"X-Entity-Ref-ID":       ref,
	}
}
