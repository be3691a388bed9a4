package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/invoiceflow/internal/payment/domain"
	pipelinedomain "github.com/smallbiznis/invoiceflow/internal/pipeline/domain"
)

// IngestPaymentEvent validates the event and hands it to the worker pool.
// The handler never blocks on rendering or delivery: accepted events answer
// 202, already-completed payment ids answer 200 with the original invoice,
// and non-succeeded events ack with 200 without creating a job.
func (s *Server) IngestPaymentEvent(c *gin.Context) {
	var event paymentdomain.Event
	if err := c.ShouldBindJSON(&event); err != nil {
		AbortWithError(c, newValidationError("body", "invalid_json", "request body is not a valid payment event"))
		return
	}
	if err := event.Validate(); err != nil {
		AbortWithError(c, err)
		return
	}

	if event.Status != paymentdomain.EventStatusSucceeded {
		c.JSON(http.StatusOK, gin.H{"data": pipelinedomain.Result{
			PaymentID: event.PaymentID,
			Ignored:   true,
		}})
		return
	}

	existing, err := s.pipeline.Lookup(c.Request.Context(), event.PaymentID)
	if err == nil && existing.Status == pipelinedomain.JobStatusCompleted {
		c.JSON(http.StatusOK, gin.H{"data": existing})
		return
	}
	if err != nil && !errors.Is(err, pipelinedomain.ErrJobNotFound) {
		AbortWithError(c, err)
		return
	}

	if err := s.pipeline.Submit(c.Request.Context(), &event); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"data": gin.H{
		"payment_id": event.PaymentID,
		"status":     "accepted",
	}})
}
