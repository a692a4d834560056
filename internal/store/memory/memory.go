package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
	"salonkita/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	stores           map[string]domain.Store
	customersByID    map[string]domain.Customer
	servicesByID     map[string]domain.Service
	productsByID     map[string]domain.Product
	discountRules    map[string][]domain.DiscountRule
	pointRules       map[string][]domain.PointRule
	visitsByID       map[string]*domain.Visit
	plansByID        map[string]domain.PrepaidPlan
	prepaidSalesByID map[string]domain.PrepaidSale
	prepaidUsages    []domain.PrepaidUsage
	pointLedger      []domain.PointTransaction
	inventoryEvents  []domain.InventoryEvent
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		stores:           make(map[string]domain.Store),
		customersByID:    make(map[string]domain.Customer),
		servicesByID:     make(map[string]domain.Service),
		productsByID:     make(map[string]domain.Product),
		discountRules:    make(map[string][]domain.DiscountRule),
		pointRules:       make(map[string][]domain.PointRule),
		visitsByID:       make(map[string]*domain.Visit),
		plansByID:        make(map[string]domain.PrepaidPlan),
		prepaidSalesByID: make(map[string]domain.PrepaidSale),
		prepaidUsages:    make([]domain.PrepaidUsage, 0, 64),
		pointLedger:      make([]domain.PointTransaction, 0, 64),
		inventoryEvents:  make([]domain.InventoryEvent, 0, 64),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

// NewSeeded returns a store pre-loaded with a demo salon catalog. No
// discount or point rules are seeded; pricing defaults to list price until
// rules are created.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	s.stores["main-salon"] = domain.Store{ID: "main-salon", Name: "Salon Melati", CreatedAt: now}

	services := []domain.Service{
		{ID: "svc-haircut", StoreID: "main-salon", Name: "Potong Rambut", CategoryID: "cat-hair", ListPrice: 150000, Active: true, CreatedAt: now},
		{ID: "svc-coloring", StoreID: "main-salon", Name: "Pewarnaan Rambut", CategoryID: "cat-hair", ListPrice: 450000, Active: true, CreatedAt: now},
		{ID: "svc-smoothing", StoreID: "main-salon", Name: "Smoothing", CategoryID: "cat-hair", ListPrice: 650000, Active: true, CreatedAt: now},
		{ID: "svc-creambath", StoreID: "main-salon", Name: "Creambath", CategoryID: "cat-treatment", ListPrice: 120000, Active: true, CreatedAt: now},
		{ID: "svc-facial", StoreID: "main-salon", Name: "Facial", CategoryID: "cat-treatment", ListPrice: 200000, Active: true, CreatedAt: now},
		{ID: "svc-manicure", StoreID: "main-salon", Name: "Manicure", CategoryID: "cat-nail", ListPrice: 100000, Active: true, CreatedAt: now},
	}
	for _, svc := range services {
		s.servicesByID[svc.ID] = svc
	}

	products := []domain.Product{
		{ID: "prod-shampoo", StoreID: "main-salon", Name: "Shampoo Keratin 250ml", Kind: domain.ProductKindRetail, DefaultRetailUnitPrice: 85000, Active: true, CreatedAt: now},
		{ID: "prod-serum", StoreID: "main-salon", Name: "Serum Rambut 100ml", Kind: domain.ProductKindBoth, DefaultRetailUnitPrice: 120000, Active: true, CreatedAt: now},
		{ID: "prod-color-tube", StoreID: "main-salon", Name: "Tube Pewarna", Kind: domain.ProductKindConsumable, Active: true, CreatedAt: now},
		{ID: "prod-mask", StoreID: "main-salon", Name: "Masker Wajah", Kind: domain.ProductKindBoth, DefaultRetailUnitPrice: 45000, Active: true, CreatedAt: now},
	}
	for _, p := range products {
		s.productsByID[p.ID] = p
	}

	customers := []domain.Customer{
		{ID: "cust-dewi", StoreID: "main-salon", Name: "Dewi Lestari", Phone: "0812-1111-2222", CreatedAt: now},
		{ID: "cust-rina", StoreID: "main-salon", Name: "Rina Hartono", Phone: "0813-3333-4444", CreatedAt: now},
		{ID: "cust-sari", StoreID: "main-salon", Name: "Sari Wulandari", CreatedAt: now},
	}
	for _, c := range customers {
		s.customersByID[c.ID] = c
	}

	plans := []domain.PrepaidPlan{
		{ID: "plan-500", StoreID: "main-salon", Name: "Deposit 500rb", PricePaid: 500000, ValueAmount: 550000, Active: true, CreatedAt: now},
		{ID: "plan-1000", StoreID: "main-salon", Name: "Deposit 1jt", PricePaid: 1000000, ValueAmount: 1150000, Active: true, CreatedAt: now},
	}
	for _, plan := range plans {
		s.plansByID[plan.ID] = plan
	}

	return s
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return nil, store.ErrValidation
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if _, exists := s.stores[st.ID]; exists {
		return nil, store.ErrValidation
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.stores[st.ID] = st
	created := st
	return &created, nil
}

func (s *Store) GetStore(_ context.Context, storeID string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.stores[storeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySt := st
	return &copySt, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	if customer.StoreID == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[customer.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customersByID[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, storeID string, customerID string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customersByID[customerID]
	if !exists || customer.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context, storeID string, query string, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	result := make([]domain.Customer, 0, 32)
	for _, customer := range s.customersByID {
		if customer.StoreID != storeID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(customer.Name), query) && !strings.Contains(customer.Phone, query) {
			continue
		}
		result = append(result, customer)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc.Name = strings.TrimSpace(svc.Name)
	if svc.StoreID == "" || svc.Name == "" || svc.ListPrice < 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[svc.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	svc.Active = true
	s.servicesByID[svc.ID] = svc
	created := svc
	return &created, nil
}

func (s *Store) ListServices(_ context.Context, storeID string, activeOnly bool) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Service, 0, len(s.servicesByID))
	for _, svc := range s.servicesByID {
		if svc.StoreID != storeID {
			continue
		}
		if activeOnly && !svc.Active {
			continue
		}
		result = append(result, svc)
	}
	slices.SortFunc(result, func(a, b domain.Service) int {
		if a.CategoryID == b.CategoryID {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.CategoryID, b.CategoryID)
	})
	return result, nil
}

func (s *Store) GetServicesByIDs(_ context.Context, storeID string, ids []string) (map[string]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Service, len(ids))
	for _, id := range ids {
		if svc, ok := s.servicesByID[id]; ok && svc.StoreID == storeID && svc.Active {
			result[id] = svc
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	if product.StoreID == "" || product.Name == "" || product.DefaultRetailUnitPrice < 0 {
		return nil, store.ErrValidation
	}
	switch product.Kind {
	case domain.ProductKindRetail, domain.ProductKindConsumable, domain.ProductKindBoth:
	default:
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[product.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.productsByID[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.productsByID))
	for _, product := range s.productsByID {
		if product.StoreID != storeID {
			continue
		}
		if activeOnly && !product.Active {
			continue
		}
		result = append(result, product)
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if a.Kind == b.Kind {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Kind, b.Kind)
	})
	return result, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, storeID string, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.productsByID[id]; ok && product.StoreID == storeID && product.Active {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) CreateDiscountRule(_ context.Context, rule domain.DiscountRule) (*domain.DiscountRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validateDiscountRule(rule); err != nil {
		return nil, err
	}
	if _, exists := s.stores[rule.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if rule.ID == "" {
		rule.ID = xid.New("drule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.Seq = int64(len(s.discountRules[rule.StoreID]) + 1)
	s.discountRules[rule.StoreID] = append(s.discountRules[rule.StoreID], rule)
	created := rule
	return &created, nil
}

// ListDiscountRules returns the store's rules in precedence order. The
// pricing engine depends on this ordering.
func (s *Store) ListDiscountRules(_ context.Context, storeID string) ([]domain.DiscountRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := s.discountRules[storeID]
	result := make([]domain.DiscountRule, len(rules))
	copy(result, rules)
	slices.SortFunc(result, func(a, b domain.DiscountRule) int {
		return int(a.Seq - b.Seq)
	})
	return result, nil
}

func (s *Store) CreatePointRule(_ context.Context, rule domain.PointRule) (*domain.PointRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.StoreID == "" || strings.TrimSpace(rule.Name) == "" || rule.Value < 0 {
		return nil, store.ErrValidation
	}
	if rule.RuleType != domain.PointRulePercentOfNet && rule.RuleType != domain.PointRuleFixed {
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[rule.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if rule.ID == "" {
		rule.ID = xid.New("prule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	rule.Seq = int64(len(s.pointRules[rule.StoreID]) + 1)
	s.pointRules[rule.StoreID] = append(s.pointRules[rule.StoreID], rule)
	created := rule
	return &created, nil
}

func (s *Store) ListPointRules(_ context.Context, storeID string) ([]domain.PointRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := s.pointRules[storeID]
	result := make([]domain.PointRule, len(rules))
	copy(result, rules)
	slices.SortFunc(result, func(a, b domain.PointRule) int {
		return int(a.Seq - b.Seq)
	})
	return result, nil
}

func (s *Store) CreateVisit(_ context.Context, visit domain.Visit) (*domain.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if visit.StoreID == "" || visit.CustomerID == "" || len(visit.LineItems) == 0 {
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[visit.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	customer, exists := s.customersByID[visit.CustomerID]
	if !exists || customer.StoreID != visit.StoreID {
		return nil, store.ErrNotFound
	}
	if visit.Status == "" {
		visit.Status = domain.VisitStatusDraft
	}
	if visit.Status != domain.VisitStatusDraft && visit.Status != domain.VisitStatusFinalized {
		return nil, store.ErrValidation
	}
	if visit.ID == "" {
		visit.ID = xid.New("visit")
	}
	now := time.Now().UTC()
	if visit.VisitedAt.IsZero() {
		visit.VisitedAt = now
	}
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = now
	}
	visit.VoidedAt = nil

	for i := range visit.LineItems {
		line := &visit.LineItems[i]
		if line.Qty < 1 || line.NetTotal < 0 {
			return nil, store.ErrValidation
		}
		if !line.Item.IsService() && !line.Item.IsProduct() {
			return nil, store.ErrValidation
		}
		if line.ID == "" {
			line.ID = xid.New("line")
		}
		line.VisitID = visit.ID
	}
	for i := range visit.Payments {
		payment := &visit.Payments[i]
		if payment.Amount < 1 || payment.Method == "" {
			return nil, store.ErrValidation
		}
		if payment.ID == "" {
			payment.ID = xid.New("pay")
		}
		payment.VisitID = visit.ID
	}

	// Stored totals are always re-derived from children, never taken from
	// the request.
	visit.RecomputeTotals()

	saved := cloneVisit(&visit)
	s.visitsByID[visit.ID] = saved
	return cloneVisit(saved), nil
}

func (s *Store) GetVisit(_ context.Context, storeID string, visitID string) (*domain.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visit, exists := s.visitsByID[visitID]
	if !exists || visit.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return cloneVisit(visit), nil
}

func (s *Store) ListVisits(_ context.Context, storeID string, customerID string, from time.Time, to time.Time, limit int) ([]domain.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Visit, 0, 32)
	for _, visit := range s.visitsByID {
		if visit.StoreID != storeID {
			continue
		}
		if customerID != "" && visit.CustomerID != customerID {
			continue
		}
		if !from.IsZero() && visit.VisitedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !visit.VisitedAt.Before(to) {
			continue
		}
		result = append(result, *cloneVisit(visit))
	}
	slices.SortFunc(result, func(a, b domain.Visit) int {
		if a.VisitedAt.Equal(b.VisitedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.VisitedAt.After(b.VisitedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) FinalizeVisit(_ context.Context, storeID string, visitID string, _ time.Time) (*domain.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visit, exists := s.visitsByID[visitID]
	if !exists || visit.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	if visit.Voided() || visit.Status != domain.VisitStatusDraft {
		return nil, store.ErrValidation
	}
	visit.Status = domain.VisitStatusFinalized
	return cloneVisit(visit), nil
}

// VoidVisit sets the void flag. A second void is rejected rather than
// resetting the timestamp.
func (s *Store) VoidVisit(_ context.Context, storeID string, visitID string, at time.Time) (*domain.Visit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visit, exists := s.visitsByID[visitID]
	if !exists || visit.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	if visit.Voided() {
		return nil, store.ErrValidation
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	visit.VoidedAt = &at
	return cloneVisit(visit), nil
}

func (s *Store) CreatePrepaidPlan(_ context.Context, plan domain.PrepaidPlan) (*domain.PrepaidPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan.Name = strings.TrimSpace(plan.Name)
	if plan.StoreID == "" || plan.Name == "" || plan.PricePaid < 1 || plan.ValueAmount < 1 {
		return nil, store.ErrValidation
	}
	if _, exists := s.stores[plan.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if plan.ID == "" {
		plan.ID = xid.New("plan")
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	plan.Active = true
	s.plansByID[plan.ID] = plan
	created := plan
	return &created, nil
}

func (s *Store) ListPrepaidPlans(_ context.Context, storeID string, activeOnly bool) ([]domain.PrepaidPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PrepaidPlan, 0, len(s.plansByID))
	for _, plan := range s.plansByID {
		if plan.StoreID != storeID {
			continue
		}
		if activeOnly && !plan.Active {
			continue
		}
		result = append(result, plan)
	}
	slices.SortFunc(result, func(a, b domain.PrepaidPlan) int {
		if a.ValueAmount == b.ValueAmount {
			return cmpString(a.ID, b.ID)
		}
		if a.ValueAmount < b.ValueAmount {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) CreatePrepaidSale(_ context.Context, sale domain.PrepaidSale) (*domain.PrepaidSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.StoreID == "" || sale.CustomerID == "" || sale.AmountPaid < 1 || sale.ValueAmount < 1 {
		return nil, store.ErrValidation
	}
	customer, exists := s.customersByID[sale.CustomerID]
	if !exists || customer.StoreID != sale.StoreID {
		return nil, store.ErrNotFound
	}
	if sale.PlanID != "" {
		plan, ok := s.plansByID[sale.PlanID]
		if !ok || plan.StoreID != sale.StoreID {
			return nil, store.ErrNotFound
		}
	}
	if sale.ID == "" {
		sale.ID = xid.New("psale")
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}
	s.prepaidSalesByID[sale.ID] = sale
	created := sale
	return &created, nil
}

// UsePrepaid draws the full amount from one account. An earmarked account
// is used as-is; otherwise the earliest-sold account whose remaining
// balance covers the amount is selected (first fit, never split). Balance
// check and append happen under one write lock so concurrent draws cannot
// both pass the check.
func (s *Store) UsePrepaid(_ context.Context, storeID string, customerID string, amount int64, visitID string, lineItemID string, accountID string) (*domain.PrepaidUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount < 1 {
		return nil, store.ErrValidation
	}
	customer, exists := s.customersByID[customerID]
	if !exists || customer.StoreID != storeID {
		return nil, store.ErrNotFound
	}

	accounts := s.customerAccountsLocked(storeID, customerID)

	var selected *domain.PrepaidSale
	if accountID != "" {
		for i := range accounts {
			if accounts[i].ID == accountID {
				selected = &accounts[i]
				break
			}
		}
		if selected == nil {
			return nil, store.ErrNotFound
		}
		if s.saleRemainingLocked(*selected) < amount {
			return nil, store.ErrInsufficientBalance
		}
	} else {
		for i := range accounts {
			if s.saleRemainingLocked(accounts[i]) >= amount {
				selected = &accounts[i]
				break
			}
		}
		if selected == nil {
			return nil, store.ErrNoAccountAvailable
		}
	}

	usage := domain.PrepaidUsage{
		ID:            xid.New("puse"),
		PrepaidSaleID: selected.ID,
		CustomerID:    customerID,
		VisitID:       visitID,
		LineItemID:    lineItemID,
		AmountUsed:    amount,
		UsedAt:        time.Now().UTC(),
	}
	s.prepaidUsages = append(s.prepaidUsages, usage)
	created := usage
	return &created, nil
}

func (s *Store) PrepaidBalance(_ context.Context, storeID string, customerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance := int64(0)
	for _, sale := range s.customerAccountsLocked(storeID, customerID) {
		balance += s.saleRemainingLocked(sale)
	}
	return balance, nil
}

func (s *Store) PrepaidAccounts(_ context.Context, storeID string, customerID string) ([]domain.PrepaidAccountDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := s.customerAccountsLocked(storeID, customerID)
	result := make([]domain.PrepaidAccountDetail, 0, len(accounts))
	for _, sale := range accounts {
		usages := make([]domain.PrepaidUsage, 0, 4)
		for _, usage := range s.prepaidUsages {
			if usage.PrepaidSaleID == sale.ID {
				usages = append(usages, usage)
			}
		}
		result = append(result, domain.PrepaidAccountDetail{
			Sale:             sale,
			RemainingBalance: s.saleRemainingLocked(sale),
			Usages:           usages,
		})
	}
	return result, nil
}

// AppendPointTransaction appends one ledger row. The non-negative balance
// guard runs against the balance recomputed here, inside the write lock.
func (s *Store) AppendPointTransaction(_ context.Context, txn domain.PointTransaction) (*domain.PointTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if txn.StoreID == "" || txn.CustomerID == "" || txn.PointsDelta == 0 {
		return nil, store.ErrValidation
	}
	switch txn.TxnType {
	case domain.PointTxnEarn, domain.PointTxnRedeem, domain.PointTxnAdjust, domain.PointTxnExpire:
	default:
		return nil, store.ErrValidation
	}
	customer, exists := s.customersByID[txn.CustomerID]
	if !exists || customer.StoreID != txn.StoreID {
		return nil, store.ErrNotFound
	}
	if txn.PointsDelta < 0 && s.pointBalanceLocked(txn.StoreID, txn.CustomerID)+txn.PointsDelta < 0 {
		return nil, store.ErrInsufficientPoints
	}
	if txn.ID == "" {
		txn.ID = xid.New("ptxn")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	s.pointLedger = append(s.pointLedger, txn)
	created := txn
	return &created, nil
}

func (s *Store) PointBalance(_ context.Context, storeID string, customerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pointBalanceLocked(storeID, customerID), nil
}

func (s *Store) PointHistory(_ context.Context, storeID string, customerID string, limit int) ([]domain.PointTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PointTransaction, 0, 32)
	for _, txn := range s.pointLedger {
		if txn.StoreID != storeID || txn.CustomerID != customerID {
			continue
		}
		result = append(result, txn)
	}
	slices.SortFunc(result, func(a, b domain.PointTransaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) FindEarnByVisit(_ context.Context, storeID string, visitID string) (*domain.PointTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, txn := range s.pointLedger {
		if txn.StoreID == storeID && txn.VisitID == visitID && txn.TxnType == domain.PointTxnEarn {
			copyTxn := txn
			return &copyTxn, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) AppendInventoryEvent(_ context.Context, event domain.InventoryEvent) (*domain.InventoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.StoreID == "" || event.ProductID == "" || event.QtyDelta == 0 {
		return nil, store.ErrValidation
	}
	switch event.EventType {
	case domain.InventoryEventPurchase, domain.InventoryEventSale, domain.InventoryEventConsume, domain.InventoryEventAdjust, domain.InventoryEventWaste:
	default:
		return nil, store.ErrValidation
	}
	product, exists := s.productsByID[event.ProductID]
	if !exists || product.StoreID != event.StoreID {
		return nil, store.ErrNotFound
	}
	if !product.ForInventory() {
		return nil, store.ErrValidation
	}
	if event.ID == "" {
		event.ID = xid.New("inv")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	// Negative resulting stock is allowed; it flags an unreconciled gap
	// rather than blocking the write.
	s.inventoryEvents = append(s.inventoryEvents, event)
	created := event
	return &created, nil
}

func (s *Store) CurrentStock(_ context.Context, storeID string, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.productsByID[productID]
	if !exists || product.StoreID != storeID {
		return 0, store.ErrNotFound
	}
	return s.currentStockLocked(storeID, productID), nil
}

func (s *Store) StockSummary(_ context.Context, storeID string) ([]domain.StockSummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockSummaryRow, 0, len(s.productsByID))
	for _, product := range s.productsByID {
		if product.StoreID != storeID || !product.ForInventory() {
			continue
		}
		row := domain.StockSummaryRow{
			ProductID:    product.ID,
			Name:         product.Name,
			Kind:         product.Kind,
			CurrentStock: s.currentStockLocked(storeID, product.ID),
		}
		for _, event := range s.inventoryEvents {
			if event.StoreID != storeID || event.ProductID != product.ID || event.EventType != domain.InventoryEventPurchase {
				continue
			}
			if row.LastPurchaseAt == nil || event.OccurredAt.After(*row.LastPurchaseAt) {
				at := event.OccurredAt
				row.LastPurchaseAt = &at
			}
		}
		result = append(result, row)
	}
	slices.SortFunc(result, func(a, b domain.StockSummaryRow) int {
		return cmpString(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) ListInventoryEvents(_ context.Context, storeID string, productID string, limit int) ([]domain.InventoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryEvent, 0, 32)
	for _, event := range s.inventoryEvents {
		if event.StoreID != storeID {
			continue
		}
		if productID != "" && event.ProductID != productID {
			continue
		}
		result = append(result, event)
	}
	slices.SortFunc(result, func(a, b domain.InventoryEvent) int {
		if a.OccurredAt.Equal(b.OccurredAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.OccurredAt.After(b.OccurredAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrValidation
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// customerAccountsLocked returns the customer's prepaid accounts oldest
// first. Caller must hold at least the read lock.
func (s *Store) customerAccountsLocked(storeID string, customerID string) []domain.PrepaidSale {
	accounts := make([]domain.PrepaidSale, 0, 4)
	for _, sale := range s.prepaidSalesByID {
		if sale.StoreID == storeID && sale.CustomerID == customerID {
			accounts = append(accounts, sale)
		}
	}
	slices.SortFunc(accounts, func(a, b domain.PrepaidSale) int {
		if a.SoldAt.Equal(b.SoldAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.SoldAt.Before(b.SoldAt) {
			return -1
		}
		return 1
	})
	return accounts
}

func (s *Store) saleRemainingLocked(sale domain.PrepaidSale) int64 {
	remaining := sale.ValueAmount
	for _, usage := range s.prepaidUsages {
		if usage.PrepaidSaleID == sale.ID {
			remaining -= usage.AmountUsed
		}
	}
	return remaining
}

func (s *Store) pointBalanceLocked(storeID string, customerID string) int64 {
	balance := int64(0)
	for _, txn := range s.pointLedger {
		if txn.StoreID == storeID && txn.CustomerID == customerID {
			balance += txn.PointsDelta
		}
	}
	return balance
}

func (s *Store) currentStockLocked(storeID string, productID string) int {
	stock := 0
	for _, event := range s.inventoryEvents {
		if event.StoreID == storeID && event.ProductID == productID {
			stock += event.QtyDelta
		}
	}
	return stock
}

func validateDiscountRule(rule domain.DiscountRule) error {
	if rule.StoreID == "" || strings.TrimSpace(rule.Name) == "" {
		return store.ErrValidation
	}
	switch rule.RuleType {
	case domain.RuleTypePercent:
		if rule.Value < 1 || rule.Value > 100 {
			return store.ErrValidation
		}
	case domain.RuleTypeAmount:
		if rule.Value < 1 {
			return store.ErrValidation
		}
	default:
		return store.ErrValidation
	}
	switch rule.Applies {
	case domain.AppliesAllServices, domain.AppliesAllProducts:
		if rule.TargetID != "" {
			return store.ErrValidation
		}
	case domain.AppliesServiceCategory, domain.AppliesSpecificService, domain.AppliesSpecificProduct:
		if rule.TargetID == "" {
			return store.ErrValidation
		}
	default:
		return store.ErrValidation
	}
	if rule.StartsAt != nil && rule.EndsAt != nil && rule.EndsAt.Before(*rule.StartsAt) {
		return store.ErrValidation
	}
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneVisit(src *domain.Visit) *domain.Visit {
	if src == nil {
		return nil
	}
	dup := *src
	if src.VoidedAt != nil {
		at := *src.VoidedAt
		dup.VoidedAt = &at
	}
	lines := make([]domain.SaleLineItem, len(src.LineItems))
	copy(lines, src.LineItems)
	dup.LineItems = lines
	payments := make([]domain.Payment, len(src.Payments))
	copy(payments, src.Payments)
	dup.Payments = payments
	return &dup
}
