package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	entitlementdomain "github.com/smallbiznis/coursepay/internal/entitlement/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
	purchasedomain "github.com/smallbiznis/coursepay/internal/purchase/domain"
)

type customerRequest struct {
	ID      string           `json:"id"`
	Email   string           `json:"email"`
	Name    string           `json:"name"`
	Phone   string           `json:"phone"`
	Country string           `json:"country"`
	Address *gateway.Address `json:"address"`
}

type checkoutSessionRequest struct {
	PriceID      string          `json:"priceId"`
	Quantity     int64           `json:"quantity"`
	SuccessURL   string          `json:"successUrl"`
	CancelURL    string          `json:"cancelUrl"`
	Customer     customerRequest `json:"customer"`
	PartnerOptIn bool            `json:"partnerOptIn"`
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkoutSvc.CreateCheckoutSession(c.Request.Context(), checkoutdomain.CheckoutRequest{
		PriceID:    strings.TrimSpace(req.PriceID),
		Quantity:   req.Quantity,
		SuccessURL: strings.TrimSpace(req.SuccessURL),
		CancelURL:  strings.TrimSpace(req.CancelURL),
		Customer: checkoutdomain.CustomerData{
			ID:      strings.TrimSpace(req.Customer.ID),
			Email:   strings.TrimSpace(req.Customer.Email),
			Name:    strings.TrimSpace(req.Customer.Name),
			Phone:   strings.TrimSpace(req.Customer.Phone),
			Country: strings.TrimSpace(req.Customer.Country),
			Address: req.Customer.Address,
		},
		PartnerOptIn: req.PartnerOptIn,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type purchaseConfirmationRequest struct {
	SourceID       string   `json:"sourceId"`
	CustomerEmail  string   `json:"customerEmail"`
	CustomerName   string   `json:"customerName"`
	CourseIDs      []string `json:"courseIds"`
	AmountPaid     int64    `json:"amountPaid"`
	Currency       string   `json:"currency"`
	PaymentType    string   `json:"paymentType"`
	SubscriptionID string   `json:"subscriptionId"`
	InvoiceID      string   `json:"invoiceId"`
	PartnerOptIn   bool     `json:"partnerOptIn"`
}

func (s *Server) ConfirmPurchase(c *gin.Context) {
	var req purchaseConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.provisioner.IssuePurchaseConfirmation(c.Request.Context(), entitlementdomain.PurchaseData{
		SourceID:       strings.TrimSpace(req.SourceID),
		CustomerEmail:  strings.TrimSpace(req.CustomerEmail),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		CourseIDs:      req.CourseIDs,
		AmountPaid:     req.AmountPaid,
		Currency:       strings.TrimSpace(req.Currency),
		PaymentType:    purchasedomain.PaymentType(strings.TrimSpace(req.PaymentType)),
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		InvoiceID:      strings.TrimSpace(req.InvoiceID),
		PartnerOptIn:   req.PartnerOptIn,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
