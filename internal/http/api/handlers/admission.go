package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pollengate/pollengate/internal/admission"
)

// AdmissionHandler exposes the admission gate to the enclosing request
// pipeline as two synchronous calls: check before the protected work,
// complete after it.
type AdmissionHandler struct {
	gate *admission.Gate
}

// NewAdmissionHandler constructs an AdmissionHandler.
func NewAdmissionHandler(gate *admission.Gate) *AdmissionHandler {
	return &AdmissionHandler{gate: gate}
}

// checkRequest is the admission check payload.
type checkRequest struct {
	UserID        uint64  `json:"user_id" binding:"required"`        // Billed user.
	APIKeyID      uint64  `json:"api_key_id" binding:"required"`     // Caller's API key ID.
	ClientIP      string  `json:"client_ip" binding:"required"`      // Caller's client IP.
	EstimatedCost float64 `json:"estimated_cost" binding:"required"` // Worst-case cost in pollen.
}

// ticketResponse is the admission check response body.
type ticketResponse struct {
	UserID        uint64  `json:"user_id"`
	APIKeyID      uint64  `json:"api_key_id"`
	Identifier    string  `json:"identifier"`
	ReservationID string  `json:"reservation_id"`
	EstimatedCost float64 `json:"estimated_cost"`
	Limit         float64 `json:"limit"`
	Remaining     float64 `json:"remaining"`
	MeterSourceID string  `json:"meter_source_id"`
	MeterSlug     string  `json:"meter_slug"`
}

// Check admits or denies a request. Denials use the admission middleware's
// status and header mapping.
func (h *AdmissionHandler) Check(c *gin.Context) {
	var req checkRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ClientIP) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing client_ip"})
		return
	}
	if req.EstimatedCost <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "estimated_cost must be positive"})
		return
	}

	ticket, errAdmit := h.gate.Admit(c.Request.Context(), admission.Request{
		UserID:        req.UserID,
		APIKeyID:      req.APIKeyID,
		ClientIP:      req.ClientIP,
		EstimatedCost: req.EstimatedCost,
	})
	if errAdmit != nil {
		admission.WriteDenial(c, errAdmit)
		return
	}

	c.JSON(http.StatusOK, ticketResponse{
		UserID:        ticket.UserID,
		APIKeyID:      ticket.APIKeyID,
		Identifier:    ticket.Identifier,
		ReservationID: ticket.ReservationID,
		EstimatedCost: ticket.EstimatedCost,
		Limit:         ticket.Limit,
		Remaining:     ticket.Remaining,
		MeterSourceID: ticket.Meter.SourceID,
		MeterSlug:     ticket.Meter.Slug,
	})
}

// completeRequest is the admission complete payload.
type completeRequest struct {
	UserID        uint64  `json:"user_id" binding:"required"`
	APIKeyID      uint64  `json:"api_key_id"`
	Identifier    string  `json:"identifier" binding:"required"`
	ReservationID string  `json:"reservation_id" binding:"required"`
	EstimatedCost float64 `json:"estimated_cost"`
	ActualCost    float64 `json:"actual_cost"`
	Failed        bool    `json:"failed"`
}

// Complete settles the rate limit lock and confirms or releases the hold.
func (h *AdmissionHandler) Complete(c *gin.Context) {
	var req completeRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ticket := &admission.Ticket{
		UserID:        req.UserID,
		APIKeyID:      req.APIKeyID,
		Identifier:    req.Identifier,
		ReservationID: req.ReservationID,
		EstimatedCost: req.EstimatedCost,
	}
	if errComplete := h.gate.Complete(c.Request.Context(), ticket, req.ActualCost, req.Failed); errComplete != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "settle failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
