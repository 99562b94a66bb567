package controller

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-gym-payments/app/factory"
	"github.com/vibast-solutions/ms-go-gym-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-gym-payments/app/service"
	"github.com/vibast-solutions/ms-go-gym-payments/app/types"
)

type PaymentController struct {
	paymentService *service.PaymentService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreateOrder(ctx echo.Context) error {
	req, err := types.NewCreateOrderRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.CreateOrder(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Create order failed")
	}

	return ctx.JSON(http.StatusOK, mapper.OrderToResponse(result))
}

func (c *PaymentController) VerifyPayment(ctx echo.Context) error {
	req, err := types.NewVerifyPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.VerifyPayment(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Verify payment failed")
	}

	return ctx.JSON(http.StatusOK, mapper.VerificationToResponse(result))
}

func (c *PaymentController) ListPlans(ctx echo.Context) error {
	items, err := c.paymentService.ListPlans(ctx.Request().Context())
	if err != nil {
		return c.handleServiceError(ctx, err, "List plans failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListPlansResponse{Success: true, Data: mapper.PlansToResponse(items)})
}

func (c *PaymentController) GetDiscount(ctx echo.Context) error {
	req, err := types.NewGetDiscountRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	discount, err := c.paymentService.LookupDiscount(req.Code)
	if err != nil {
		return c.handleServiceError(ctx, err, "Get discount failed")
	}

	return ctx.JSON(http.StatusOK, &types.DiscountResponse{Success: true, Data: mapper.DiscountToResponse(discount)})
}

func (c *PaymentController) ListPayments(ctx echo.Context) error {
	req, err := types.NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListPayments(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "List payments failed")
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Success: true, Data: mapper.PaymentsToResponse(items)})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetPayment(ctx.Request().Context(), req.GetID())
	if err != nil {
		return c.handleServiceError(ctx, err, "Get payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentResponse{Success: true, Data: mapper.PaymentToResponse(item)})
}

func (c *PaymentController) RefundPayment(ctx echo.Context) error {
	req, err := types.NewRefundPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.RefundPayment(ctx.Request().Context(), req)
	if err != nil {
		return c.handleServiceError(ctx, err, "Refund payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.PaymentResponse{Success: true, Data: mapper.PaymentToResponse(item)})
}

func (c *PaymentController) handleServiceError(ctx echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrSignatureMismatch),
		errors.Is(err, service.ErrProviderUnsupported),
		errors.Is(err, service.ErrRefundExceedsBalance):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrDiscountNotFound):
		return c.writeError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrVerificationInProgress):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPaymentFailed):
		return c.writeError(ctx, http.StatusPaymentRequired, err.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Success: false, Error: message})
}
