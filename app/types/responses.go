package types

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type BillingBreakdown struct {
	PlanPrice      int64  `json:"planPrice"`
	DiscountAmount int64  `json:"discountAmount"`
	GSTAmount      int64  `json:"gstAmount"`
	GSTRate        int64  `json:"gstRate"`
	TotalAmount    int64  `json:"totalAmount"`
	DiscountCode   string `json:"discountCode,omitempty"`
}

type CreateOrderResponse struct {
	Success   bool             `json:"success"`
	OrderID   string           `json:"orderId"`
	Amount    int64            `json:"amount"`
	Currency  string           `json:"currency"`
	KeyID     string           `json:"keyId"`
	PaymentID uint64           `json:"paymentId"`
	Billing   BillingBreakdown `json:"billing"`
	MockMode  bool             `json:"mockMode,omitempty"`
}

type VerifiedPayment struct {
	ID            uint64 `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transactionId"`
}

type VerifiedMember struct {
	ID                uint64 `json:"id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	MembershipStatus  string `json:"membershipStatus"`
	MembershipEndDate string `json:"membershipEndDate,omitempty"`
}

type VerificationData struct {
	Payment VerifiedPayment `json:"payment"`
	Member  *VerifiedMember `json:"member"`
}

type VerifyPaymentResponse struct {
	Success          bool             `json:"success"`
	Message          string           `json:"message"`
	AlreadyProcessed bool             `json:"alreadyProcessed,omitempty"`
	Data             VerificationData `json:"data"`
}

type Plan struct {
	ID            uint64   `json:"id"`
	Name          string   `json:"name"`
	Price         int64    `json:"price"`
	Currency      string   `json:"currency"`
	DurationValue int      `json:"durationValue"`
	DurationUnit  string   `json:"durationUnit"`
	DurationDays  int      `json:"durationDays"`
	Features      []string `json:"features"`
	IsPopular     bool     `json:"isPopular"`
}

type ListPlansResponse struct {
	Success bool    `json:"success"`
	Data    []*Plan `json:"data"`
}

type Discount struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	Value       int64  `json:"value"`
	Description string `json:"description,omitempty"`
}

type DiscountResponse struct {
	Success bool      `json:"success"`
	Data    *Discount `json:"data"`
}

type Refund struct {
	ID              uint64 `json:"id"`
	Amount          int64  `json:"amount"`
	Reason          string `json:"reason,omitempty"`
	GatewayRefundID string `json:"gatewayRefundId,omitempty"`
	Status          string `json:"status"`
	CreatedAt       string `json:"createdAt"`
}

type Payment struct {
	ID                  uint64            `json:"id"`
	OrderID             string            `json:"razorpayOrderId"`
	TransactionID       string            `json:"razorpayPaymentId,omitempty"`
	Mode                string            `json:"mode"`
	Receipt             string            `json:"receipt"`
	Amount              int64             `json:"amount"`
	TaxRate             int64             `json:"taxRate"`
	TaxAmount           int64             `json:"taxAmount"`
	DiscountAmount      int64             `json:"discountAmount"`
	DiscountCode        string            `json:"discountCode,omitempty"`
	Total               int64             `json:"total"`
	Currency            string            `json:"currency"`
	Status              string            `json:"status"`
	PaymentMethod       string            `json:"paymentMethod,omitempty"`
	PaidAt              string            `json:"paidAt,omitempty"`
	PlanID              uint64            `json:"planId"`
	MemberID            uint64            `json:"memberId,omitempty"`
	CustomerName        string            `json:"customerName"`
	CustomerEmail       string            `json:"customerEmail"`
	CustomerPhone       string            `json:"customerPhone,omitempty"`
	BillingAddress      *BillingAddress   `json:"billingAddress,omitempty"`
	MembershipStartDate string            `json:"membershipStartDate"`
	MembershipEndDate   string            `json:"membershipEndDate"`
	Notes               map[string]string `json:"notes,omitempty"`
	Refunds             []*Refund         `json:"refunds,omitempty"`
	RefundedAmount      int64             `json:"refundedAmount"`
	CreatedAt           string            `json:"createdAt"`
	UpdatedAt           string            `json:"updatedAt"`
}

type PaymentResponse struct {
	Success bool     `json:"success"`
	Data    *Payment `json:"data"`
}

type ListPaymentsResponse struct {
	Success bool       `json:"success"`
	Data    []*Payment `json:"data"`
}
