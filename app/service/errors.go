package service

import "errors"

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrPlanNotFound           = errors.New("plan not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDiscountNotFound       = errors.New("discount code not found")
	ErrInvalidStatus          = errors.New("invalid status")
	ErrProviderUnsupported    = errors.New("provider is not supported")
	ErrSignatureMismatch      = errors.New("payment signature mismatch")
	ErrVerificationInProgress = errors.New("payment verification already in progress")
	ErrPaymentFailed          = errors.New("payment failed at gateway")
	ErrRefundExceedsBalance   = errors.New("refund exceeds refundable balance")
	ErrGatewayUnavailable     = errors.New("payment gateway unavailable")
)
