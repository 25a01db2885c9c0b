package handlers

import (
	"errors"
	"net/http"

	"github.com/vtupay/wallet-engine/internal/funding"
	"github.com/vtupay/wallet-engine/internal/models"
	"github.com/vtupay/wallet-engine/internal/pin"
	"github.com/vtupay/wallet-engine/internal/provider"
	"github.com/vtupay/wallet-engine/internal/purchase"
	"github.com/vtupay/wallet-engine/internal/refund"
	"github.com/vtupay/wallet-engine/internal/store"
)

// kindOf maps a domain error to its machine-readable kind and HTTP status.
func kindOf(err error) (string, int) {
	switch {
	case errors.Is(err, pin.ErrPinNotSet):
		return "PinNotSet", http.StatusForbidden
	case errors.Is(err, pin.ErrPinMismatch):
		return "PinMismatch", http.StatusForbidden
	case errors.Is(err, store.ErrInsufficientBalance):
		return "InsufficientBalance", http.StatusPaymentRequired
	case errors.Is(err, store.ErrInvalidAmount):
		return "InvalidAmount", http.StatusBadRequest
	case errors.Is(err, purchase.ErrTransactionLimitExceeded):
		return "TransactionLimitExceeded", http.StatusUnprocessableEntity
	case errors.Is(err, purchase.ErrTransactionTypeDisabled):
		return "TransactionTypeDisabled", http.StatusUnprocessableEntity
	case errors.Is(err, purchase.ErrSystemUnderMaintenance):
		return "SystemUnderMaintenance", http.StatusServiceUnavailable
	case errors.Is(err, provider.ErrVendorUnavailable):
		return "VendorUnavailable", http.StatusBadGateway
	case errors.Is(err, provider.ErrVendorRejected):
		return "VendorRejected", http.StatusBadGateway
	case errors.Is(err, store.ErrDuplicateReference):
		return "DuplicateReference", http.StatusConflict
	case errors.Is(err, funding.ErrInvalidSignature):
		return "InvalidSignature", http.StatusUnauthorized
	case errors.Is(err, store.ErrAccountNotFound):
		return "AccountNotFound", http.StatusNotFound
	case errors.Is(err, store.ErrWalletNotFound):
		return "AccountNotFound", http.StatusNotFound
	case errors.Is(err, store.ErrTransactionNotFound):
		return "TransactionNotFound", http.StatusNotFound
	case errors.Is(err, refund.ErrRefundAlreadyApplied):
		return "RefundAlreadyApplied", http.StatusConflict
	case errors.Is(err, refund.ErrNotRefundable):
		return "NotRefundable", http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrInvalidTransition):
		return "InvalidTransition", http.StatusConflict
	default:
		return "Internal", http.StatusInternalServerError
	}
}

// respondDomainError surfaces an error as a machine-readable kind plus a
// human message. Internal details are never leaked to end users.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	kind, status := kindOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondJSON(w, status, map[string]string{
		"kind":  kind,
		"error": message,
	})
}
