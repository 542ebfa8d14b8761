package admission

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Gin context keys used to hand the ticket and the measured cost between the
// middleware and the guarded handler.
const (
	// TicketContextKey stores the *Ticket for the admitted request.
	TicketContextKey = "admissionTicket"
	// ActualCostContextKey is set by the handler to the measured cost in pollen.
	ActualCostContextKey = "admissionActualCost"
)

// RequestExtractor derives the admission request from the HTTP request.
// Authentication happens upstream; the extractor only reads its results.
type RequestExtractor func(c *gin.Context) (Request, error)

// Middleware guards handlers with the admission gate: Admit before the
// handler, Complete after, on every exit path.
func Middleware(gate *Gate, extract RequestExtractor) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, errExtract := extract(c)
		if errExtract != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errExtract.Error()})
			return
		}

		ticket, errAdmit := gate.Admit(c.Request.Context(), req)
		if errAdmit != nil {
			WriteDenial(c, errAdmit)
			return
		}

		setBudgetHeaders(c, ticket.Limit, ticket.Remaining)
		c.Set(TicketContextKey, ticket)
		c.Next()

		failed := c.Writer.Status() >= http.StatusBadRequest || len(c.Errors) > 0
		actualCost := c.GetFloat64(ActualCostContextKey)
		if errComplete := gate.Complete(c.Request.Context(), ticket, actualCost, failed); errComplete != nil {
			log.WithError(errComplete).Warn("admission: complete failed")
		}
	}
}

// WriteDenial maps the admission taxonomy to the HTTP contract: 429 for both
// rate-limit denials (Retry-After present only for budget exhaustion, 0 for a
// held lock), 402 for insufficient balance, 503 when state is unavailable.
func WriteDenial(c *gin.Context, errAdmit error) {
	var denial *DenialError
	if !errors.As(errAdmit, &denial) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errAdmit.Error()})
		return
	}

	switch {
	case errors.Is(errAdmit, ErrBudgetExhausted):
		setBudgetHeaders(c, denial.Limit, denial.Remaining)
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(denial)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "pollen budget exhausted, retry later",
		})
	case errors.Is(errAdmit, ErrConcurrentRequestInProgress):
		setBudgetHeaders(c, denial.Limit, denial.Remaining)
		c.Header("Retry-After", "0")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "another request in progress for this key",
		})
	case errors.Is(errAdmit, ErrInsufficientBalance):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
			"error": "insufficient balance to cover the estimated request cost",
		})
	case errors.Is(errAdmit, ErrActorUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": "admission temporarily unavailable",
		})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errAdmit.Error()})
	}
}

func setBudgetHeaders(c *gin.Context, limit, remaining float64) {
	c.Header("RateLimit-Limit", strconv.FormatFloat(limit, 'f', -1, 64))
	c.Header("RateLimit-Remaining", strconv.FormatFloat(remaining, 'f', 4, 64))
}

// retryAfterSeconds rounds the wait up to whole seconds, minimum 1.
func retryAfterSeconds(denial *DenialError) int {
	if denial.Wait <= 0 {
		return 1
	}
	seconds := int(math.Ceil(denial.Wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
