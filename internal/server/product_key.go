package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	productkeydomain "github.com/smallbiznis/coursepay/internal/productkey/domain"
)

type productKeyResponse struct {
	Key                string                                 `json:"key"`
	Status             productkeydomain.Status                `json:"status"`
	PurchasedCourseIDs []string                               `json:"purchasedCourseIds"`
	Products           map[string]productkeydomain.Activation `json:"products"`
	IsActivated        bool                                   `json:"isActivated"`
	ActivatedAt        *time.Time                             `json:"activatedAt,omitempty"`
}

func toProductKeyResponse(k *productkeydomain.ProductKey) productKeyResponse {
	return productKeyResponse{
		Key:                k.Key,
		Status:             k.Status,
		PurchasedCourseIDs: []string(k.PurchasedCourseIDs),
		Products:           k.Products.Data(),
		IsActivated:        k.IsActivated,
		ActivatedAt:        k.ActivatedAt,
	}
}

func (s *Server) GetProductKey(c *gin.Context) {
	resp, err := s.keySvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("key")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toProductKeyResponse(resp)})
}

func (s *Server) RedeemProductKey(c *gin.Context) {
	var req productkeydomain.Consent
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.keySvc.Redeem(c.Request.Context(), strings.TrimSpace(c.Param("key")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": toProductKeyResponse(resp)})
}
