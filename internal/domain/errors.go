package domain

import "fmt"

type ErrorCode string

const (
	CodeInvalidRequest        ErrorCode = "invalid_request"
	CodeInvalidAmount         ErrorCode = "invalid_amount"
	CodeAmountMismatch        ErrorCode = "amount_mismatch"
	CodeDuplicateGiftCard     ErrorCode = "duplicate_gift_card"
	CodeGiftCardNotFound      ErrorCode = "gift_card_not_found"
	CodeGiftCardVoid          ErrorCode = "gift_card_void"
	CodeGiftCardPending       ErrorCode = "gift_card_pending"
	CodeGiftCardEmpty         ErrorCode = "gift_card_empty"
	CodeGiftCardTotalMismatch ErrorCode = "gift_card_total_mismatch"
	CodePaymentDeclined       ErrorCode = "payment_declined"
	CodeRequiresAction        ErrorCode = "requires_action"
	CodeGatewayUnavailable    ErrorCode = "gateway_unavailable"
	CodeRateLimited           ErrorCode = "rate_limited"
	CodeHTTPSRequired         ErrorCode = "https_required"
	CodeOrderPersistence      ErrorCode = "order_persistence_failed"
	CodeConflict              ErrorCode = "conflict"
	CodeInternal              ErrorCode = "internal_error"
)

// Error is a caller-visible settlement failure. Code and Suggestion are the
// only text that reaches the client; detail stays in logs.
type Error struct {
	Code          ErrorCode `json:"error_code"`
	Suggestion    string    `json:"suggestion"`
	DeclineReason string    `json:"decline_reason,omitempty"`
	ActionRef     string    `json:"action_ref,omitempty"`

	detail string
}

func (e *Error) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.detail)
	}
	return string(e.Code)
}

// Is matches by error code so callers can test against the sentinels below
// with errors.Is regardless of attached detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetail returns a copy carrying internal context for logging. The
// detail is never serialized to the client.
func (e *Error) WithDetail(format string, args ...any) *Error {
	clone := *e
	clone.detail = fmt.Sprintf(format, args...)
	return &clone
}

var (
	ErrInvalidRequest = &Error{
		Code:       CodeInvalidRequest,
		Suggestion: "Check the request payload and try again.",
	}
	ErrInvalidAmount = &Error{
		Code:       CodeInvalidAmount,
		Suggestion: "Check the payment amount and try again.",
	}
	ErrAmountMismatch = &Error{
		Code:       CodeAmountMismatch,
		Suggestion: "Refresh the page and review your cart before resubmitting.",
	}
	ErrDuplicateGiftCard = &Error{
		Code:       CodeDuplicateGiftCard,
		Suggestion: "Remove the duplicate gift card and try again.",
	}
	ErrGiftCardNotFound = &Error{
		Code:       CodeGiftCardNotFound,
		Suggestion: "Check the gift card code for typos and try again.",
	}
	ErrGiftCardVoid = &Error{
		Code:       CodeGiftCardVoid,
		Suggestion: "This gift card is no longer valid. Try a different card.",
	}
	ErrGiftCardPending = &Error{
		Code:       CodeGiftCardPending,
		Suggestion: "This gift card is not active yet. Try again after its activation date.",
	}
	ErrGiftCardEmpty = &Error{
		Code:       CodeGiftCardEmpty,
		Suggestion: "This gift card has no remaining balance. Try a different card.",
	}
	ErrGiftCardTotalMismatch = &Error{
		Code:       CodeGiftCardTotalMismatch,
		Suggestion: "Refresh the page and review your cart before resubmitting.",
	}
	ErrGatewayUnavailable = &Error{
		Code:       CodeGatewayUnavailable,
		Suggestion: "The payment service is temporarily unavailable. Try again in a few minutes.",
	}
	ErrRateLimited = &Error{
		Code:       CodeRateLimited,
		Suggestion: "Too many payment attempts. Wait a minute before trying again.",
	}
	ErrHTTPSRequired = &Error{
		Code:       CodeHTTPSRequired,
		Suggestion: "Resubmit the request over a secure HTTPS connection.",
	}
	ErrConflict = &Error{
		Code:       CodeConflict,
		Suggestion: "A payment with this idempotency key is already in progress. Retry shortly.",
	}
	ErrInternal = &Error{
		Code:       CodeInternal,
		Suggestion: "Something went wrong on our side. Try again in a few minutes.",
	}
)

// DeclinedError wraps a gateway decline verbatim; the reason is the
// gateway's, never reinterpreted.
func DeclinedError(outcome *PaymentOutcome) *Error {
	return &Error{
		Code:          CodePaymentDeclined,
		Suggestion:    "Try a different payment method or contact your bank.",
		DeclineReason: outcome.DeclineReason,
	}
}

// RequiresActionError tells the caller to complete a step-up action and
// resubmit as a fresh settlement attempt.
func RequiresActionError(outcome *PaymentOutcome) *Error {
	return &Error{
		Code:       CodeRequiresAction,
		Suggestion: "Complete the additional verification step and resubmit your payment.",
		ActionRef:  outcome.ActionRef,
	}
}
