package domain

import "time"

type StoreCreateRequest struct {
	Name string `json:"name"`
}

type CustomerCreateRequest struct {
	StoreID string `json:"store_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Memo    string `json:"memo"`
}

type ServiceCreateRequest struct {
	StoreID    string `json:"store_id"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	ListPrice  int64  `json:"list_price"`
}

type ProductCreateRequest struct {
	StoreID                string `json:"store_id"`
	Name                   string `json:"name"`
	Kind                   string `json:"kind"`
	DefaultRetailUnitPrice int64  `json:"default_retail_unit_price"`
}

type DiscountRuleCreateRequest struct {
	StoreID  string     `json:"store_id"`
	Name     string     `json:"name"`
	RuleType string     `json:"rule_type"`
	Value    int64      `json:"value"`
	Applies  string     `json:"applies_to"`
	TargetID string     `json:"target_id"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

type PointRuleCreateRequest struct {
	StoreID  string     `json:"store_id"`
	Name     string     `json:"name"`
	RuleType string     `json:"rule_type"`
	Value    int64      `json:"value"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
}

type PrepaidPlanCreateRequest struct {
	StoreID     string `json:"store_id"`
	Name        string `json:"name"`
	PricePaid   int64  `json:"price_paid"`
	ValueAmount int64  `json:"value_amount"`
}

// LineItemRequest is the inbound line shape. ServiceID and ProductID stay
// two optional fields on the wire and are validated into an ItemRef at the
// boundary. PrepaidUsed is the amount the caller already recorded against a
// prepaid account before submitting the visit.
type LineItemRequest struct {
	ItemType       string `json:"item_type"`
	ServiceID      string `json:"service_id,omitempty"`
	ProductID      string `json:"product_id,omitempty"`
	StaffID        string `json:"staff_id,omitempty"`
	Qty            int    `json:"qty"`
	DiscountRate   int64  `json:"discount_rate,omitempty"`
	DiscountAmount int64  `json:"discount_amount,omitempty"`
	RuleID         string `json:"rule_id,omitempty"`
	PrepaidUsed    int64  `json:"prepaid_used,omitempty"`
}

type PaymentRequest struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

type CreateVisitRequest struct {
	StoreID    string            `json:"store_id"`
	CustomerID string            `json:"customer_id"`
	VisitedAt  *time.Time        `json:"visited_at,omitempty"`
	Status     string            `json:"status,omitempty"`
	LineItems  []LineItemRequest `json:"line_items"`
	Payments   []PaymentRequest  `json:"payments"`
}

type VisitResponse struct {
	Visit Visit `json:"visit"`
}

type PrepaidSellRequest struct {
	StoreID    string     `json:"store_id"`
	CustomerID string     `json:"customer_id"`
	PlanID     string     `json:"plan_id"`
	StaffID    string     `json:"staff_id,omitempty"`
	SoldAt     *time.Time `json:"sold_at,omitempty"`
}

// PrepaidUseRequest consumes stored value from a single account. AccountID
// earmarks a specific account; when empty the earliest-sold account whose
// remaining balance covers the full amount is selected. A draw is never
// split across accounts.
type PrepaidUseRequest struct {
	StoreID    string `json:"store_id"`
	CustomerID string `json:"customer_id"`
	Amount     int64  `json:"amount"`
	VisitID    string `json:"visit_id,omitempty"`
	LineItemID string `json:"line_item_id,omitempty"`
	AccountID  string `json:"account_id,omitempty"`
}

type PointRedeemRequest struct {
	StoreID    string `json:"store_id"`
	CustomerID string `json:"customer_id"`
	Points     int64  `json:"points"`
	VisitID    string `json:"visit_id,omitempty"`
	PaymentID  string `json:"payment_id,omitempty"`
}

type PointAdjustRequest struct {
	StoreID     string `json:"store_id"`
	CustomerID  string `json:"customer_id"`
	PointsDelta int64  `json:"points_delta"`
	Memo        string `json:"memo"`
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type InventoryEventRequest struct {
	StoreID    string `json:"store_id"`
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	VisitID    string `json:"visit_id,omitempty"`
	LineItemID string `json:"line_item_id,omitempty"`
	Memo       string `json:"memo,omitempty"`
}
