package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "Stripe-Signature"

func (s *Server) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	ack, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, ack)
}
