package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	checkoutdomain "github.com/smallbiznis/coursepay/internal/checkout/domain"
)

type createPricesRequest struct {
	Prices []checkoutdomain.PricePoint `json:"prices"`
}

func (s *Server) CreatePrices(c *gin.Context) {
	var req createPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.Prices) == 0 {
		AbortWithError(c, newValidationError("prices", "required", "Mindestens ein Preis ist erforderlich"))
		return
	}

	resp, err := s.checkoutSvc.CreatePrices(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Prices)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivatePrices(c *gin.Context) {
	resp, err := s.checkoutSvc.DeactivatePrices(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivatePrices(c *gin.Context) {
	resp, err := s.checkoutSvc.ActivatePrices(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
