package domain

import "time"

type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CustomerBalance is a read-side snapshot. Both balances are sums over the
// customer's ledgers, never stored columns.
type CustomerBalance struct {
	CustomerID     string `json:"customer_id"`
	PointBalance   int64  `json:"point_balance"`
	PrepaidBalance int64  `json:"prepaid_balance"`
}

type Service struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	Name       string    `json:"name"`
	CategoryID string    `json:"category_id,omitempty"`
	ListPrice  int64     `json:"list_price"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

type Product struct {
	ID                     string    `json:"id"`
	StoreID                string    `json:"store_id"`
	Name                   string    `json:"name"`
	Kind                   string    `json:"kind"`
	DefaultRetailUnitPrice int64     `json:"default_retail_unit_price"`
	Active                 bool      `json:"active"`
	CreatedAt              time.Time `json:"created_at"`
}

// ForInventory reports whether the product's stock is tracked by the
// inventory ledger.
func (p Product) ForInventory() bool {
	return p.Kind == ProductKindConsumable || p.Kind == ProductKindBoth
}

// Sellable reports whether the product may appear on a visit line item.
func (p Product) Sellable() bool {
	return p.Kind == ProductKindRetail || p.Kind == ProductKindBoth
}

// DiscountRule is a store-scoped, time-windowed pricing policy. Seq is
// assigned by the store at create time and is the precedence order: the
// first active matching rule wins, nothing stacks.
type DiscountRule struct {
	ID        string     `json:"id"`
	StoreID   string     `json:"store_id"`
	Name      string     `json:"name"`
	RuleType  string     `json:"rule_type"`
	Value     int64      `json:"value"`
	Applies   string     `json:"applies_to"`
	TargetID  string     `json:"target_id,omitempty"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Seq       int64      `json:"seq"`
	CreatedAt time.Time  `json:"created_at"`
}

// PointRule governs loyalty accrual. Same window shape as DiscountRule;
// the first active rule by Seq is "the" rule, there is no stacking.
type PointRule struct {
	ID        string     `json:"id"`
	StoreID   string     `json:"store_id"`
	Name      string     `json:"name"`
	RuleType  string     `json:"rule_type"`
	Value     int64      `json:"value"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Seq       int64      `json:"seq"`
	CreatedAt time.Time  `json:"created_at"`
}

// Calculate returns the points accrued for a finalized visit total.
// percent_of_net floors, fixed ignores the total entirely.
func (r PointRule) Calculate(totalAmount int64) int64 {
	switch r.RuleType {
	case PointRulePercentOfNet:
		return totalAmount * r.Value / 100
	case PointRuleFixed:
		return r.Value
	default:
		return 0
	}
}

type Visit struct {
	ID         string         `json:"id"`
	StoreID    string         `json:"store_id"`
	CustomerID string         `json:"customer_id"`
	Status     string         `json:"status"`
	VisitedAt  time.Time      `json:"visited_at"`
	VoidedAt   *time.Time     `json:"voided_at,omitempty"`
	Subtotal   int64          `json:"subtotal_amount"`
	Total      int64          `json:"total_amount"`
	LineItems  []SaleLineItem `json:"line_items"`
	Payments   []Payment      `json:"payments"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RecomputeTotals derives subtotal and total from the current line items.
// Called immediately before every persist; the stored figures are never
// trusted as independently mutable state.
func (v *Visit) RecomputeTotals() {
	var subtotal, total int64
	for _, line := range v.LineItems {
		subtotal += line.ListUnitPrice * int64(line.Qty)
		total += line.NetTotal
	}
	v.Subtotal = subtotal
	v.Total = total
}

func (v Visit) PaidAmount() int64 {
	var paid int64
	for _, p := range v.Payments {
		paid += p.Amount
	}
	return paid
}

// RemainingAmount can be negative when the visit is overpaid.
func (v Visit) RemainingAmount() int64 {
	return v.Total - v.PaidAmount()
}

func (v Visit) FullyPaid() bool {
	return v.RemainingAmount() <= 0
}

func (v Visit) Voided() bool {
	return v.VoidedAt != nil
}

type SaleLineItem struct {
	ID             string  `json:"id"`
	VisitID        string  `json:"visit_id"`
	Item           ItemRef `json:"item"`
	StaffID        string  `json:"staff_id,omitempty"`
	Qty            int     `json:"qty"`
	ListUnitPrice  int64   `json:"list_unit_price"`
	DiscountRate   int64   `json:"discount_rate"`
	DiscountAmount int64   `json:"discount_amount"`
	NetUnitPrice   int64   `json:"net_unit_price"`
	PrepaidUsed    int64   `json:"prepaid_used"`
	NetTotal       int64   `json:"net_total"`
	AppliedRuleID  string  `json:"applied_pricing_rule,omitempty"`
}

type Payment struct {
	ID      string `json:"id"`
	VisitID string `json:"visit_id"`
	Method  string `json:"method"`
	Amount  int64  `json:"amount"`
}

// PrepaidPlan is the sellable template; each purchase becomes its own
// PrepaidSale account drawn down independently.
type PrepaidPlan struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Name        string    `json:"name"`
	PricePaid   int64     `json:"price_paid"`
	ValueAmount int64     `json:"value_amount"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type PrepaidSale struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	CustomerID  string    `json:"customer_id"`
	PlanID      string    `json:"plan_id"`
	StaffID     string    `json:"staff_id,omitempty"`
	AmountPaid  int64     `json:"amount_paid"`
	ValueAmount int64     `json:"value_amount"`
	SoldAt      time.Time `json:"sold_at"`
}

type PrepaidUsage struct {
	ID            string    `json:"id"`
	PrepaidSaleID string    `json:"prepaid_sale_id"`
	CustomerID    string    `json:"customer_id"`
	VisitID       string    `json:"visit_id,omitempty"`
	LineItemID    string    `json:"line_item_id,omitempty"`
	AmountUsed    int64     `json:"amount_used"`
	UsedAt        time.Time `json:"used_at"`
}

type PrepaidAccountDetail struct {
	Sale             PrepaidSale    `json:"sale"`
	RemainingBalance int64          `json:"remaining_balance"`
	Usages           []PrepaidUsage `json:"usages"`
}

// PointTransaction is an append-only ledger row. A negative delta must not
// push the customer's running balance below zero; the guard runs against
// the balance recomputed at append time, inside the store's critical
// section.
type PointTransaction struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	CustomerID  string    `json:"customer_id"`
	TxnType     string    `json:"txn_type"`
	PointsDelta int64     `json:"points_delta"`
	VisitID     string    `json:"visit_id,omitempty"`
	PaymentID   string    `json:"payment_id,omitempty"`
	RuleID      string    `json:"rule_id,omitempty"`
	Memo        string    `json:"memo,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// InventoryEvent is an append-only stock delta. Current stock is the signed
// sum over a product's events; there is no floor, negative stock marks an
// unreconciled data gap rather than an integrity violation.
type InventoryEvent struct {
	ID         string    `json:"id"`
	StoreID    string    `json:"store_id"`
	ProductID  string    `json:"product_id"`
	EventType  string    `json:"event_type"`
	QtyDelta   int       `json:"qty_delta"`
	VisitID    string    `json:"visit_id,omitempty"`
	LineItemID string    `json:"line_item_id,omitempty"`
	Memo       string    `json:"memo,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type StockSummaryRow struct {
	ProductID      string     `json:"product_id"`
	Name           string     `json:"name"`
	Kind           string     `json:"kind"`
	CurrentStock   int        `json:"current_stock"`
	LastPurchaseAt *time.Time `json:"last_purchase_at,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	VisitStatusDraft     = "draft"
	VisitStatusFinalized = "finalized"
)

const (
	ItemTypeService = "service"
	ItemTypeProduct = "product"
)

const (
	ProductKindRetail     = "retail"
	ProductKindConsumable = "consumable"
	ProductKindBoth       = "both"
)

const (
	RuleTypePercent = "percent"
	RuleTypeAmount  = "amount"
)

const (
	AppliesAllServices     = "all_services"
	AppliesServiceCategory = "service_category"
	AppliesSpecificService = "specific_service"
	AppliesAllProducts     = "all_products"
	AppliesSpecificProduct = "specific_product"
)

const (
	PointRulePercentOfNet = "percent_of_net"
	PointRuleFixed        = "fixed"
)

const (
	PointTxnEarn   = "earn"
	PointTxnRedeem = "redeem"
	PointTxnAdjust = "adjust"
	PointTxnExpire = "expire"
)

const (
	InventoryEventPurchase = "purchase"
	InventoryEventSale     = "sale"
	InventoryEventConsume  = "consume"
	InventoryEventAdjust   = "adjust"
	InventoryEventWaste    = "waste"
)

const (
	PaymentMethodCard    = "card"
	PaymentMethodCash    = "cash"
	PaymentMethodBank    = "bank"
	PaymentMethodCredit  = "credit"
	PaymentMethodPay     = "pay"
	PaymentMethodOther   = "other"
	PaymentMethodPrepaid = "prepaid"
	PaymentMethodPoints  = "points"
)

// ValidPaymentMethod reports whether method is one of the accepted tender
// kinds.
func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentMethodCard, PaymentMethodCash, PaymentMethodBank, PaymentMethodCredit,
		PaymentMethodPay, PaymentMethodOther, PaymentMethodPrepaid, PaymentMethodPoints:
		return true
	}
	return false
}
