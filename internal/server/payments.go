package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
)

// createPaymentRequest takes customer and payment_method; the camelCase
// names are accepted as aliases.
type createPaymentRequest struct {
	Amount          int64    `json:"amount"`
	Country         string   `json:"country"`
	Customer        string   `json:"customer"`
	PaymentMethod   string   `json:"payment_method"`
	CustomerID      string   `json:"customerId"`
	PaymentMethodID string   `json:"paymentMethodId"`
	Description     string   `json:"description"`
	PriceID         string   `json:"priceId"`
	CourseIDs       []string `json:"courseIds"`
}

func (r createPaymentRequest) customer() string {
	return firstNonEmpty(r.Customer, r.CustomerID)
}

func (r createPaymentRequest) paymentMethod() string {
	return firstNonEmpty(r.PaymentMethod, r.PaymentMethodID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkoutSvc.CreateChargeAttempt(c.Request.Context(), checkoutdomain.ChargeRequest{
		Amount:          req.Amount,
		Country:         strings.TrimSpace(req.Country),
		CustomerID:      req.customer(),
		PaymentMethodID: req.paymentMethod(),
		Description:     strings.TrimSpace(req.Description),
		PriceID:         strings.TrimSpace(req.PriceID),
		CourseIDs:       req.CourseIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPayment(c *gin.Context) {
	resp, err := s.checkoutSvc.GetChargeAttempt(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CapturePayment(c *gin.Context) {
	resp, err := s.checkoutSvc.CaptureChargeAttempt(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RetryPayment(c *gin.Context) {
	resp, err := s.checkoutSvc.RetryChargeAttempt(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
