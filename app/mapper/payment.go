package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-gym-payments/app/entity"
	"github.com/vibast-solutions/ms-go-gym-payments/app/pricing"
	"github.com/vibast-solutions/ms-go-gym-payments/app/service"
	"github.com/vibast-solutions/ms-go-gym-payments/app/types"
)

func OrderToResponse(result *service.OrderResult) *types.CreateOrderResponse {
	if result == nil || result.Payment == nil {
		return nil
	}

	return &types.CreateOrderResponse{
		Success:   true,
		OrderID:   result.OrderID,
		Amount:    result.Payment.AmountMinor(),
		Currency:  result.Payment.Currency,
		KeyID:     result.KeyID,
		PaymentID: result.Payment.ID,
		Billing:   BreakdownToResponse(result.Breakdown),
		MockMode:  result.MockMode,
	}
}

func BreakdownToResponse(b pricing.Breakdown) types.BillingBreakdown {
	return types.BillingBreakdown{
		PlanPrice:      b.PlanPrice,
		DiscountAmount: b.DiscountAmount,
		GSTAmount:      b.TaxAmount,
		GSTRate:        b.TaxRate,
		TotalAmount:    b.Total,
		DiscountCode:   b.DiscountCode,
	}
}

func VerificationToResponse(result *service.VerificationResult) *types.VerifyPaymentResponse {
	if result == nil || result.Payment == nil {
		return nil
	}

	message := "Payment verified successfully"
	if result.AlreadyProcessed {
		message = "Payment already verified"
	}

	resp := &types.VerifyPaymentResponse{
		Success:          true,
		Message:          message,
		AlreadyProcessed: result.AlreadyProcessed,
		Data: types.VerificationData{
			Payment: types.VerifiedPayment{
				ID:            result.Payment.ID,
				Status:        string(result.Payment.Status),
				Amount:        result.Payment.Total,
				TransactionID: derefString(result.Payment.GatewayPaymentID),
			},
		},
	}

	if m := result.Member; m != nil {
		resp.Data.Member = &types.VerifiedMember{
			ID:                m.ID,
			Name:              m.Name,
			Email:             m.Email,
			MembershipStatus:  string(m.Status),
			MembershipEndDate: formatTimePtr(m.MembershipEndDate),
		}
	}

	return resp
}

func PlansToResponse(items []*entity.MembershipPlan) []*types.Plan {
	result := make([]*types.Plan, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		features := item.Features
		if features == nil {
			features = []string{}
		}
		result = append(result, &types.Plan{
			ID:            item.ID,
			Name:          item.Name,
			Price:         item.Price,
			Currency:      item.Currency,
			DurationValue: item.DurationValue,
			DurationUnit:  string(item.DurationUnit),
			DurationDays:  item.DurationInDays(),
			Features:      features,
			IsPopular:     item.IsPopular,
		})
	}
	return result
}

func DiscountToResponse(d pricing.Discount) *types.Discount {
	return &types.Discount{
		Code:        d.Code,
		Type:        string(d.Type),
		Value:       d.Value,
		Description: d.Description,
	}
}

func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	resp := &types.Payment{
		ID:                  item.ID,
		OrderID:             item.GatewayOrderID,
		TransactionID:       derefString(item.GatewayPaymentID),
		Mode:                string(item.Mode),
		Receipt:             item.Receipt,
		Amount:              item.Amount,
		TaxRate:             item.TaxRate,
		TaxAmount:           item.TaxAmount,
		DiscountAmount:      item.DiscountAmount,
		DiscountCode:        derefString(item.DiscountCode),
		Total:               item.Total,
		Currency:            item.Currency,
		Status:              string(item.Status),
		PaymentMethod:       derefString(item.PaymentMethod),
		PaidAt:              formatTimePtr(item.PaidAt),
		PlanID:              item.PlanID,
		CustomerName:        item.CustomerName,
		CustomerEmail:       item.CustomerEmail,
		CustomerPhone:       derefString(item.CustomerPhone),
		MembershipStartDate: formatTime(item.MembershipStartDate),
		MembershipEndDate:   formatTime(item.MembershipEndDate),
		Notes:               cloneNotes(item.Notes),
		RefundedAmount:      entity.RefundedAmount(item.Refunds),
		CreatedAt:           formatTime(item.CreatedAt),
		UpdatedAt:           formatTime(item.UpdatedAt),
	}
	if item.MemberID != nil {
		resp.MemberID = *item.MemberID
	}
	if a := item.BillingAddress; a != nil {
		resp.BillingAddress = &types.BillingAddress{
			Line1:      a.Line1,
			Line2:      a.Line2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
	}
	for _, r := range item.Refunds {
		if r == nil {
			continue
		}
		resp.Refunds = append(resp.Refunds, &types.Refund{
			ID:              r.ID,
			Amount:          r.Amount,
			Reason:          derefString(r.Reason),
			GatewayRefundID: derefString(r.GatewayRefundID),
			Status:          string(r.Status),
			CreatedAt:       formatTime(r.CreatedAt),
		})
	}

	return resp
}

func PaymentsToResponse(items []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func cloneNotes(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
