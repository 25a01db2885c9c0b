// Package handlers exposes the engine over HTTP. Handlers parse and validate
// the typed inputs, call the services and map error kinds to status codes —
// no business logic lives here and no raw vendor payloads reach clients.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vtupay/wallet-engine/internal/contacts"
	"github.com/vtupay/wallet-engine/internal/database"
	"github.com/vtupay/wallet-engine/internal/funding"
	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/pin"
	"github.com/vtupay/wallet-engine/internal/purchase"
	"github.com/vtupay/wallet-engine/internal/refund"
	"github.com/vtupay/wallet-engine/internal/wallet"
)

// SignatureHeader carries the payment provider's webhook signature.
const SignatureHeader = "X-Provider-Signature"

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db        *database.DB
	purchases *purchase.Service
	funding   *funding.Handler
	refunds   *refund.Engine
	pins      *pin.Service
	guard     *wallet.Guard
	contacts  *contacts.Cache
	validator *validator.Validate
}

// NewHandler creates a new handler instance
func NewHandler(db *database.DB, purchases *purchase.Service, fundingHandler *funding.Handler, refunds *refund.Engine, pins *pin.Service, guard *wallet.Guard, contactCache *contacts.Cache) *Handler {
	return &Handler{
		db:        db,
		purchases: purchases,
		funding:   fundingHandler,
		refunds:   refunds,
		pins:      pins,
		guard:     guard,
		contacts:  contactCache,
		validator: validator.New(),
	}
}

// PurchaseRequest represents the POST /v1/purchase body.
type PurchaseRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=airtime data bill exam recharge-card"`
	Amount    string `json:"amount" validate:"required,numeric"`
	Recipient string `json:"recipient" validate:"required"`
	ServiceID string `json:"service_id" validate:"required"`
	Pin       string `json:"pin" validate:"required,min=4"`
	Note      string `json:"note"`
	TxRef     string `json:"tx_ref" validate:"omitempty,uuid4"`
}

// Purchase handles POST /v1/purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	userID, email, ok := identity(w, r)
	if !ok {
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	result, err := h.purchases.Purchase(r.Context(), purchase.Request{
		UserID:    userID,
		Email:     email,
		Kind:      models.TransactionType(req.Kind),
		Amount:    amount,
		Recipient: req.Recipient,
		ServiceID: req.ServiceID,
		Pin:       req.Pin,
		Note:      req.Note,
		TxRef:     req.TxRef,
	})
	if err != nil && result == nil {
		h.respondDomainError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status == models.StatusFailed {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, map[string]any{
		"tx_ref":      result.TxRef,
		"status":      result.Status,
		"vendor_ref":  result.VendorRef,
		"message":     result.Message,
		"new_balance": result.NewBalance,
	})
}

// SetPinRequest represents the POST /v1/pin body.
type SetPinRequest struct {
	Pin string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

// SetPin handles POST /v1/pin
func (h *Handler) SetPin(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}

	var req SetPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	if err := h.pins.Set(r.Context(), userID, req.Pin); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "pin set"})
}

// Wallet handles GET /v1/wallet
func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}

	balance, err := h.guard.Balance(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

// RecentContact handles GET /v1/contacts/{kind}
func (h *Handler) RecentContact(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(w, r)
	if !ok {
		return
	}

	kind := models.TransactionType(chi.URLParam(r, "kind"))
	contact, err := h.contacts.Recent(r.Context(), userID, kind)
	if err != nil {
		log.Warn().Err(err).Msg("contact lookup failed")
		respondJSON(w, http.StatusOK, map[string]any{"contact": nil})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"contact": contact})
}

// FundingWebhook handles POST /webhooks/funding
func (h *Handler) FundingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request")
		return
	}

	result, err := h.funding.Apply(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, funding.ErrInvalidSignature):
			respondError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, funding.ErrIgnoredEvent):
			// Acknowledge unrelated events so the provider stops retrying.
			respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		default:
			log.Error().Err(err).Msg("funding webhook rejected")
			h.respondDomainError(w, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "accepted",
		"applied": result.Applied,
		"tx_ref":  result.TxRef,
	})
}

// RefundRequest represents the POST /admin/refund body.
type RefundRequest struct {
	TxRef string `json:"tx_ref" validate:"required"`
}

// Refund handles POST /admin/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	result, err := h.refunds.Refund(r.Context(), req.TxRef)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"original_ref": result.OriginalRef,
		"refund_ref":   result.RefundRef,
		"amount":       result.Amount,
		"new_balance":  result.NewBalance,
	})
}

// ResolveRequest represents the POST /admin/resolve body.
type ResolveRequest struct {
	TxRef     string `json:"tx_ref" validate:"required"`
	Outcome   string `json:"outcome" validate:"required,oneof=success failed"`
	VendorRef string `json:"vendor_ref"`
	Reason    string `json:"reason"`
}

// Resolve handles POST /admin/resolve — manual reconciliation of a pending
// transaction.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return
	}

	var vendorRef *string
	if req.VendorRef != "" {
		vendorRef = &req.VendorRef
	}
	if err := h.refunds.ResolvePending(r.Context(), req.TxRef, refund.Outcome(req.Outcome), vendorRef, req.Reason); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved", "tx_ref": req.TxRef})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}

	if err := h.db.Health(r.Context()); err != nil {
		health["database"] = "down"
		health["status"] = "degraded"
	} else {
		health["database"] = "up"
	}

	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, health)
}

// identity reads the authenticated user from the headers the session layer
// sets. The core trusts this identity once provided.
func identity(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	userID, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "missing or invalid user identity")
		return uuid.Nil, "", false
	}
	return userID, r.Header.Get("X-User-Email"), true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
