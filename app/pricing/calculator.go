package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// GSTRatePercent is applied to the discounted price.
const GSTRatePercent int64 = 18

type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

var ErrInvalidDiscountTable = errors.New("invalid discount table")

type Discount struct {
	Code        string
	Type        DiscountType
	Value       int64
	Description string
}

// DiscountTable is keyed by upper-cased code. Treat it as read-only once built.
type DiscountTable map[string]Discount

type Breakdown struct {
	PlanPrice      int64
	DiscountAmount int64
	DiscountCode   string
	TaxRate        int64
	TaxAmount      int64
	Total          int64
}

type Calculator struct {
	discounts DiscountTable
}

func NewCalculator(table DiscountTable) *Calculator {
	discounts := make(DiscountTable, len(table))
	for code, d := range table {
		key := NormalizeCode(code)
		if key == "" {
			continue
		}
		d.Code = key
		discounts[key] = d
	}
	return &Calculator{discounts: discounts}
}

func DefaultDiscountTable() DiscountTable {
	return DiscountTable{
		"WELCOME20": {Type: DiscountTypePercentage, Value: 20, Description: "20% off for new members"},
		"SAVE10":    {Type: DiscountTypePercentage, Value: 10, Description: "10% off any plan"},
		"FLAT500":   {Type: DiscountTypeFixed, Value: 500, Description: "Flat 500 off"},
		"STUDENT15": {Type: DiscountTypePercentage, Value: 15, Description: "15% student discount"},
	}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Calculator) Lookup(code string) (Discount, bool) {
	d, ok := c.discounts[NormalizeCode(code)]
	return d, ok
}

// Quote never fails: unknown codes simply yield no discount.
func (c *Calculator) Quote(planPrice int64, code string) Breakdown {
	if planPrice < 0 {
		planPrice = 0
	}

	result := Breakdown{PlanPrice: planPrice, TaxRate: GSTRatePercent}

	if d, ok := c.Lookup(code); ok {
		result.DiscountAmount = discountAmount(d, planPrice)
		result.DiscountCode = d.Code
	}

	discounted := planPrice - result.DiscountAmount
	result.TaxAmount = discounted * GSTRatePercent / 100
	result.Total = discounted + result.TaxAmount

	return result
}

func discountAmount(d Discount, price int64) int64 {
	var amount int64
	switch d.Type {
	case DiscountTypePercentage:
		amount = price * d.Value / 100
	case DiscountTypeFixed:
		amount = d.Value
	}
	if amount < 0 {
		return 0
	}
	if amount > price {
		return price
	}
	return amount
}

// ParseDiscountTable reads entries of the form CODE:percentage:20 or
// CODE:fixed:500 separated by commas.
func ParseDiscountTable(raw string) (DiscountTable, error) {
	table := DiscountTable{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: entry %q", ErrInvalidDiscountTable, entry)
		}

		code := NormalizeCode(parts[0])
		kind := DiscountType(strings.ToLower(strings.TrimSpace(parts[1])))
		value, err := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if code == "" || err != nil || value < 0 {
			return nil, fmt.Errorf("%w: entry %q", ErrInvalidDiscountTable, entry)
		}
		if kind != DiscountTypePercentage && kind != DiscountTypeFixed {
			return nil, fmt.Errorf("%w: unknown type in %q", ErrInvalidDiscountTable, entry)
		}
		if kind == DiscountTypePercentage && value > 100 {
			return nil, fmt.Errorf("%w: percentage above 100 in %q", ErrInvalidDiscountTable, entry)
		}

		d := Discount{Code: code, Type: kind, Value: value}
		if len(parts) > 3 {
			d.Description = strings.TrimSpace(strings.Join(parts[3:], ":"))
		}
		table[code] = d
	}
	return table, nil
}
