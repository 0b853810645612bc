package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/idempotency"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/repository"
)

// Settler is the settlement orchestrator as the handler sees it.
type Settler interface {
	Settle(ctx context.Context, req *domain.ChargeRequest, requestID string) (*domain.ProcessResponse, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

type PaymentHandler struct {
	svc    Settler
	guard  *idempotency.Store
	logger *zap.Logger
}

func NewPaymentHandler(svc Settler, guard *idempotency.Store, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		svc:    svc,
		guard:  guard,
		logger: logger,
	}
}

const jsonContentType = "application/json; charset=utf-8"

// ProcessPayment handles POST /payments/process. The idempotency guard
// wraps the whole flow: a terminal record replays the stored response bytes
// without re-executing anything, and a concurrent in-flight claim on the
// same key is rejected as a conflict.
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req domain.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid settlement request", zap.Error(err))
		status, body := h.render(nil, domain.ErrInvalidRequest.WithDetail("bind: %v", err))
		c.Data(status, jsonContentType, body)
		return
	}

	req.ClientIP = c.ClientIP()
	req.UserAgent = c.Request.UserAgent()
	if headerKey := c.GetHeader("Idempotency-Key"); headerKey != "" {
		req.IdempotencyKey = headerKey
	}

	requestID := c.GetString("request_id")
	key := req.IdempotencyKey

	if key != "" {
		stored, claimed, err := h.guard.Begin(key)
		if err != nil {
			// Guard store failure: proceed unguarded rather than block
			// every payment on a local bookkeeping file.
			h.logger.Error("idempotency store unavailable",
				zap.String("request_id", requestID),
				zap.Error(err))
			key = ""
		} else if stored != nil {
			h.logger.Info("Replaying idempotent settlement outcome",
				zap.String("request_id", requestID),
				zap.Int("status", stored.Status))
			c.Data(stored.Status, jsonContentType, stored.Body)
			return
		} else if !claimed {
			status, body := h.render(nil, domain.ErrConflict)
			c.Data(status, jsonContentType, body)
			return
		}
	}

	resp, err := h.svc.Settle(c.Request.Context(), &req, requestID)
	if err != nil {
		h.logger.Warn("Settlement failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}

	status, body := h.render(resp, err)
	if key != "" {
		// Transient failures release the claim so a retry re-executes the
		// settlement; only terminal outcomes are recorded and replayed.
		if transient(err) {
			if rErr := h.guard.Release(key); rErr != nil {
				h.logger.Error("failed to release idempotency claim",
					zap.String("request_id", requestID),
					zap.Error(rErr))
			}
		} else if cErr := h.guard.Complete(key, status, body); cErr != nil {
			h.logger.Error("failed to record idempotency outcome",
				zap.String("request_id", requestID),
				zap.Error(cErr))
		}
	}
	c.Data(status, jsonContentType, body)
}

// transient reports whether the settlement failed without reaching a
// terminal outcome. A gateway transport fault or an unclassified internal
// error may resolve on retry; declines, requires-action, and validation
// errors are terminal.
func transient(err error) bool {
	if err == nil {
		return false
	}
	var domErr *domain.Error
	if !errors.As(err, &domErr) {
		return true
	}
	return domErr.Code == domain.CodeGatewayUnavailable || domErr.Code == domain.CodeInternal
}

// GetOrder handles GET /orders/:id.
func (h *PaymentHandler) GetOrder(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		h.logger.Error("Failed to fetch order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch order"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// render maps a settlement result to its HTTP status and response bytes.
// The same bytes go to the client and into the idempotency record, so a
// replay is byte-identical.
func (h *PaymentHandler) render(resp *domain.ProcessResponse, err error) (int, []byte) {
	if err == nil {
		body, mErr := json.Marshal(resp)
		if mErr != nil {
			h.logger.Error("failed to marshal settlement response", zap.Error(mErr))
			return h.render(nil, domain.ErrInternal)
		}
		return http.StatusOK, body
	}

	var domErr *domain.Error
	if !errors.As(err, &domErr) {
		h.logger.Error("unclassified settlement error", zap.Error(err))
		domErr = domain.ErrInternal
	}

	body, mErr := json.Marshal(domErr)
	if mErr != nil {
		return http.StatusInternalServerError, []byte(`{"error_code":"internal_error"}`)
	}
	return statusFor(domErr.Code), body
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidRequest,
		domain.CodeInvalidAmount,
		domain.CodeAmountMismatch,
		domain.CodeDuplicateGiftCard,
		domain.CodeGiftCardTotalMismatch,
		domain.CodePaymentDeclined,
		domain.CodeRequiresAction:
		return http.StatusBadRequest
	case domain.CodeGiftCardNotFound:
		return http.StatusNotFound
	case domain.CodeGiftCardPending, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeGiftCardVoid, domain.CodeGiftCardEmpty:
		return http.StatusGone
	case domain.CodeRateLimited:
		return http.StatusTooManyRequests
	case domain.CodeHTTPSRequired:
		return http.StatusForbidden
	case domain.CodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
