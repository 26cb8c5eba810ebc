package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
	"github.com/smallbiznis/coursepay/internal/gateway"
)

type subscriptionResponse struct {
	ID               string            `json:"id"`
	CustomerID       string            `json:"customerId"`
	Status           string            `json:"status"`
	CurrentPeriodEnd *time.Time        `json:"currentPeriodEnd,omitempty"`
	LatestInvoiceID  string            `json:"latestInvoiceId,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

func toSubscriptionResponse(e *gateway.Enrollment) subscriptionResponse {
	resp := subscriptionResponse{
		ID:              e.ID,
		CustomerID:      e.CustomerID,
		Status:          e.Status,
		LatestInvoiceID: e.LatestInvoiceID,
		Metadata:        e.Metadata,
	}
	if !e.CurrentPeriodEnd.IsZero() {
		end := e.CurrentPeriodEnd
		resp.CurrentPeriodEnd = &end
	}
	return resp
}

type createSubscriptionRequest struct {
	CustomerID      string `json:"customerId"`
	PriceID         string `json:"priceId"`
	PaymentMethodID string `json:"paymentMethodId"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkoutSvc.CreateSubscription(c.Request.Context(), checkoutdomain.SubscriptionRequest{
		CustomerID:      strings.TrimSpace(req.CustomerID),
		PriceID:         strings.TrimSpace(req.PriceID),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toSubscriptionResponse(resp)})
}

func (s *Server) GetSubscription(c *gin.Context) {
	resp, err := s.checkoutSvc.GetSubscription(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toSubscriptionResponse(resp)})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	resp, err := s.checkoutSvc.CancelSubscription(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toSubscriptionResponse(resp)})
}

type failedPaymentRequest struct {
	GracePeriodDays int `json:"gracePeriodDays"`
}

func (s *Server) HandleFailedPayment(c *gin.Context) {
	var req failedPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.graceSvc.HandleFailedPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.GracePeriodDays)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toSubscriptionResponse(resp)})
}

func (s *Server) SendReminder(c *gin.Context) {
	resp, err := s.graceSvc.SendReminder(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type paymentMethodRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

func (s *Server) UpdatePaymentMethod(c *gin.Context) {
	var req paymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		AbortWithError(c, newValidationError("paymentMethodId", "required", "Zahlungsmethode fehlt"))
		return
	}

	resp, err := s.checkoutSvc.UpdatePaymentMethod(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.PaymentMethodID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toSubscriptionResponse(resp)})
}
