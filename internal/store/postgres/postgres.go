package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
	"salonkita/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return nil, store.ErrValidation
	}
	if st.ID == "" {
		st.ID = xid.New("store")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, created_at)
		VALUES ($1,$2,$3)
	`, st.ID, st.Name, st.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrValidation
		}
		return nil, err
	}
	created := st
	return &created, nil
}

func (s *Store) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	var st domain.Store
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM stores
		WHERE id = $1
	`, storeID).Scan(&st.ID, &st.Name, &st.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	return &st, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	if customer.StoreID == "" || customer.Name == "" {
		return nil, store.ErrValidation
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, store_id, name, phone, memo, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, customer.ID, customer.StoreID, customer.Name, customer.Phone, customer.Memo, customer.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, storeID string, customerID string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, phone, memo, created_at
		FROM customers
		WHERE id = $1 AND store_id = $2
	`, customerID, storeID).Scan(&customer.ID, &customer.StoreID, &customer.Name, &customer.Phone, &customer.Memo, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context, storeID string, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}
	query = strings.TrimSpace(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, phone, memo, created_at
		FROM customers
		WHERE store_id = $1
			AND ($2 = '' OR name ILIKE '%' || $2 || '%' OR phone LIKE '%' || $2 || '%')
		ORDER BY name
		LIMIT $3
	`, storeID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		var customer domain.Customer
		if err := rows.Scan(&customer.ID, &customer.StoreID, &customer.Name, &customer.Phone, &customer.Memo, &customer.CreatedAt); err != nil {
			return nil, err
		}
		customer.CreatedAt = customer.CreatedAt.UTC()
		customers = append(customers, customer)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.StoreID == "" || svc.Name == "" || svc.ListPrice < 0 {
		return nil, store.ErrValidation
	}
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	svc.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, store_id, name, category_id, list_price, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, svc.ID, svc.StoreID, svc.Name, svc.CategoryID, svc.ListPrice, svc.Active, svc.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := svc
	return &created, nil
}

func (s *Store) ListServices(ctx context.Context, storeID string, activeOnly bool) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, category_id, list_price, active, created_at
		FROM services
		WHERE store_id = $1 AND ($2 = false OR active = true)
		ORDER BY category_id, name
	`, storeID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := make([]domain.Service, 0, 32)
	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.StoreID, &svc.Name, &svc.CategoryID, &svc.ListPrice, &svc.Active, &svc.CreatedAt); err != nil {
			return nil, err
		}
		svc.CreatedAt = svc.CreatedAt.UTC()
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) GetServicesByIDs(ctx context.Context, storeID string, ids []string) (map[string]domain.Service, error) {
	result := make(map[string]domain.Service, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, category_id, list_price, active, created_at
		FROM services
		WHERE store_id = $1 AND active = true AND id = ANY($2)
	`, storeID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var svc domain.Service
		if err := rows.Scan(&svc.ID, &svc.StoreID, &svc.Name, &svc.CategoryID, &svc.ListPrice, &svc.Active, &svc.CreatedAt); err != nil {
			return nil, err
		}
		result[svc.ID] = svc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if product.StoreID == "" || product.Name == "" || product.DefaultRetailUnitPrice < 0 {
		return nil, store.ErrValidation
	}
	switch product.Kind {
	case domain.ProductKindRetail, domain.ProductKindConsumable, domain.ProductKindBoth:
	default:
		return nil, store.ErrValidation
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, store_id, name, kind, default_retail_unit_price, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, product.ID, product.StoreID, product.Name, product.Kind, product.DefaultRetailUnitPrice, product.Active, product.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, kind, default_retail_unit_price, active, created_at
		FROM products
		WHERE store_id = $1 AND ($2 = false OR active = true)
		ORDER BY kind, name
	`, storeID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.StoreID, &product.Name, &product.Kind, &product.DefaultRetailUnitPrice, &product.Active, &product.CreatedAt); err != nil {
			return nil, err
		}
		product.CreatedAt = product.CreatedAt.UTC()
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, storeID string, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, kind, default_retail_unit_price, active, created_at
		FROM products
		WHERE store_id = $1 AND active = true AND id = ANY($2)
	`, storeID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var product domain.Product
		if err := rows.Scan(&product.ID, &product.StoreID, &product.Name, &product.Kind, &product.DefaultRetailUnitPrice, &product.Active, &product.CreatedAt); err != nil {
			return nil, err
		}
		result[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateDiscountRule assigns the rule's precedence seq from a per-store
// counter inside the insert transaction, so two concurrent creates cannot
// claim the same slot.
func (s *Store) CreateDiscountRule(ctx context.Context, rule domain.DiscountRule) (*domain.DiscountRule, error) {
	if err := validateDiscountRule(rule); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = xid.New("drule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq),0) + 1
		FROM discount_rules
		WHERE store_id = $1
	`, rule.StoreID).Scan(&rule.Seq)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO discount_rules (
			id, store_id, name, rule_type, value, applies_to, target_id,
			starts_at, ends_at, seq, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, rule.ID, rule.StoreID, rule.Name, rule.RuleType, rule.Value, rule.Applies, rule.TargetID,
		nullTime(rule.StartsAt), nullTime(rule.EndsAt), rule.Seq, rule.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := rule
	return &created, nil
}

func (s *Store) ListDiscountRules(ctx context.Context, storeID string) ([]domain.DiscountRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, rule_type, value, applies_to, target_id,
			starts_at, ends_at, seq, created_at
		FROM discount_rules
		WHERE store_id = $1
		ORDER BY seq ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.DiscountRule, 0, 16)
	for rows.Next() {
		var rule domain.DiscountRule
		var startsAt, endsAt sql.NullTime
		if err := rows.Scan(&rule.ID, &rule.StoreID, &rule.Name, &rule.RuleType, &rule.Value, &rule.Applies, &rule.TargetID, &startsAt, &endsAt, &rule.Seq, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rule.StartsAt = timePtr(startsAt)
		rule.EndsAt = timePtr(endsAt)
		rule.CreatedAt = rule.CreatedAt.UTC()
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Store) CreatePointRule(ctx context.Context, rule domain.PointRule) (*domain.PointRule, error) {
	if rule.StoreID == "" || strings.TrimSpace(rule.Name) == "" || rule.Value < 0 {
		return nil, store.ErrValidation
	}
	if rule.RuleType != domain.PointRulePercentOfNet && rule.RuleType != domain.PointRuleFixed {
		return nil, store.ErrValidation
	}
	if rule.ID == "" {
		rule.ID = xid.New("prule")
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq),0) + 1
		FROM point_rules
		WHERE store_id = $1
	`, rule.StoreID).Scan(&rule.Seq)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO point_rules (id, store_id, name, rule_type, value, starts_at, ends_at, seq, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rule.ID, rule.StoreID, rule.Name, rule.RuleType, rule.Value,
		nullTime(rule.StartsAt), nullTime(rule.EndsAt), rule.Seq, rule.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := rule
	return &created, nil
}

func (s *Store) ListPointRules(ctx context.Context, storeID string) ([]domain.PointRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, rule_type, value, starts_at, ends_at, seq, created_at
		FROM point_rules
		WHERE store_id = $1
		ORDER BY seq ASC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.PointRule, 0, 8)
	for rows.Next() {
		var rule domain.PointRule
		var startsAt, endsAt sql.NullTime
		if err := rows.Scan(&rule.ID, &rule.StoreID, &rule.Name, &rule.RuleType, &rule.Value, &startsAt, &endsAt, &rule.Seq, &rule.CreatedAt); err != nil {
			return nil, err
		}
		rule.StartsAt = timePtr(startsAt)
		rule.EndsAt = timePtr(endsAt)
		rule.CreatedAt = rule.CreatedAt.UTC()
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateVisit persists the visit with its children in one serializable
// transaction. Totals are re-derived from the line items before insert.
func (s *Store) CreateVisit(ctx context.Context, visit domain.Visit) (*domain.Visit, error) {
	if visit.StoreID == "" || visit.CustomerID == "" || len(visit.LineItems) == 0 {
		return nil, store.ErrValidation
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
	visit.RecomputeTotals()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerStore string
	err = tx.QueryRowContext(ctx, `
		SELECT store_id FROM customers WHERE id = $1
	`, visit.CustomerID).Scan(&customerStore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerStore != visit.StoreID {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO visits (
			id, store_id, customer_id, status, visited_at, voided_at,
			subtotal_amount, total_amount, created_at
		)
		VALUES ($1,$2,$3,$4,$5,NULL,$6,$7,$8)
	`, visit.ID, visit.StoreID, visit.CustomerID, visit.Status, visit.VisitedAt, visit.Subtotal, visit.Total, visit.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, line := range visit.LineItems {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO visit_line_items (
				id, visit_id, item_type, item_id, staff_id, qty, list_unit_price,
				discount_rate, discount_amount, net_unit_price, prepaid_used,
				net_total, applied_rule_id
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, line.ID, line.VisitID, line.Item.Type, line.Item.ID, nullIfEmpty(line.StaffID), line.Qty,
			line.ListUnitPrice, line.DiscountRate, line.DiscountAmount, line.NetUnitPrice,
			line.PrepaidUsed, line.NetTotal, nullIfEmpty(line.AppliedRuleID))
		if err != nil {
			return nil, err
		}
	}
	for _, payment := range visit.Payments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO visit_payments (id, visit_id, method, amount)
			VALUES ($1,$2,$3,$4)
		`, payment.ID, payment.VisitID, payment.Method, payment.Amount)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &visit, nil
}

func (s *Store) GetVisit(ctx context.Context, storeID string, visitID string) (*domain.Visit, error) {
	visit, err := s.scanVisit(ctx, s.db, storeID, visitID)
	if err != nil {
		return nil, err
	}
	return visit, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) scanVisit(ctx context.Context, q queryer, storeID string, visitID string) (*domain.Visit, error) {
	var visit domain.Visit
	var voidedAt sql.NullTime
	err := q.QueryRowContext(ctx, `
		SELECT id, store_id, customer_id, status, visited_at, voided_at,
			subtotal_amount, total_amount, created_at
		FROM visits
		WHERE id = $1 AND store_id = $2
	`, visitID, storeID).Scan(&visit.ID, &visit.StoreID, &visit.CustomerID, &visit.Status, &visit.VisitedAt, &voidedAt, &visit.Subtotal, &visit.Total, &visit.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	visit.VoidedAt = timePtr(voidedAt)
	visit.VisitedAt = visit.VisitedAt.UTC()
	visit.CreatedAt = visit.CreatedAt.UTC()

	lineRows, err := q.QueryContext(ctx, `
		SELECT id, visit_id, item_type, item_id, COALESCE(staff_id,''), qty, list_unit_price,
			discount_rate, discount_amount, net_unit_price, prepaid_used, net_total,
			COALESCE(applied_rule_id,'')
		FROM visit_line_items
		WHERE visit_id = $1
		ORDER BY id ASC
	`, visit.ID)
	if err != nil {
		return nil, err
	}
	lines := make([]domain.SaleLineItem, 0, 4)
	for lineRows.Next() {
		var line domain.SaleLineItem
		if err := lineRows.Scan(&line.ID, &line.VisitID, &line.Item.Type, &line.Item.ID, &line.StaffID, &line.Qty, &line.ListUnitPrice, &line.DiscountRate, &line.DiscountAmount, &line.NetUnitPrice, &line.PrepaidUsed, &line.NetTotal, &line.AppliedRuleID); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := lineRows.Err(); err != nil {
		_ = lineRows.Close()
		return nil, err
	}
	_ = lineRows.Close()
	visit.LineItems = lines

	paymentRows, err := q.QueryContext(ctx, `
		SELECT id, visit_id, method, amount
		FROM visit_payments
		WHERE visit_id = $1
		ORDER BY id ASC
	`, visit.ID)
	if err != nil {
		return nil, err
	}
	payments := make([]domain.Payment, 0, 2)
	for paymentRows.Next() {
		var payment domain.Payment
		if err := paymentRows.Scan(&payment.ID, &payment.VisitID, &payment.Method, &payment.Amount); err != nil {
			_ = paymentRows.Close()
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return nil, err
	}
	_ = paymentRows.Close()
	visit.Payments = payments

	return &visit, nil
}

func (s *Store) ListVisits(ctx context.Context, storeID string, customerID string, from time.Time, to time.Time, limit int) ([]domain.Visit, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id
		FROM visits
		WHERE store_id = $1
			AND ($2 = '' OR customer_id = $2)
			AND ($3::timestamptz IS NULL OR visited_at >= $3)
			AND ($4::timestamptz IS NULL OR visited_at < $4)
		ORDER BY visited_at DESC, id DESC
		LIMIT $5
	`, storeID, customerID, nullZeroTime(from), nullZeroTime(to), limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	visits := make([]domain.Visit, 0, len(ids))
	for _, id := range ids {
		visit, err := s.scanVisit(ctx, s.db, storeID, id)
		if err != nil {
			return nil, err
		}
		visits = append(visits, *visit)
	}
	return visits, nil
}

func (s *Store) FinalizeVisit(ctx context.Context, storeID string, visitID string, _ time.Time) (*domain.Visit, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	var voidedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT status, voided_at
		FROM visits
		WHERE id = $1 AND store_id = $2
		FOR UPDATE
	`, visitID, storeID).Scan(&status, &voidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if voidedAt.Valid || status != domain.VisitStatusDraft {
		return nil, store.ErrValidation
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE visits SET status = $3 WHERE id = $1 AND store_id = $2
	`, visitID, storeID, domain.VisitStatusFinalized)
	if err != nil {
		return nil, err
	}

	visit, err := s.scanVisit(ctx, tx, storeID, visitID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return visit, nil
}

func (s *Store) VoidVisit(ctx context.Context, storeID string, visitID string, at time.Time) (*domain.Visit, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var voidedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT voided_at
		FROM visits
		WHERE id = $1 AND store_id = $2
		FOR UPDATE
	`, visitID, storeID).Scan(&voidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if voidedAt.Valid {
		return nil, store.ErrValidation
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE visits SET voided_at = $3 WHERE id = $1 AND store_id = $2
	`, visitID, storeID, at)
	if err != nil {
		return nil, err
	}

	visit, err := s.scanVisit(ctx, tx, storeID, visitID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return visit, nil
}

func (s *Store) CreatePrepaidPlan(ctx context.Context, plan domain.PrepaidPlan) (*domain.PrepaidPlan, error) {
	plan.Name = strings.TrimSpace(plan.Name)
	if plan.StoreID == "" || plan.Name == "" || plan.PricePaid < 1 || plan.ValueAmount < 1 {
		return nil, store.ErrValidation
	}
	if plan.ID == "" {
		plan.ID = xid.New("plan")
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	plan.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prepaid_plans (id, store_id, name, price_paid, value_amount, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, plan.ID, plan.StoreID, plan.Name, plan.PricePaid, plan.ValueAmount, plan.Active, plan.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := plan
	return &created, nil
}

func (s *Store) ListPrepaidPlans(ctx context.Context, storeID string, activeOnly bool) ([]domain.PrepaidPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, price_paid, value_amount, active, created_at
		FROM prepaid_plans
		WHERE store_id = $1 AND ($2 = false OR active = true)
		ORDER BY value_amount ASC, id ASC
	`, storeID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := make([]domain.PrepaidPlan, 0, 8)
	for rows.Next() {
		var plan domain.PrepaidPlan
		if err := rows.Scan(&plan.ID, &plan.StoreID, &plan.Name, &plan.PricePaid, &plan.ValueAmount, &plan.Active, &plan.CreatedAt); err != nil {
			return nil, err
		}
		plan.CreatedAt = plan.CreatedAt.UTC()
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Store) CreatePrepaidSale(ctx context.Context, sale domain.PrepaidSale) (*domain.PrepaidSale, error) {
	if sale.StoreID == "" || sale.CustomerID == "" || sale.AmountPaid < 1 || sale.ValueAmount < 1 {
		return nil, store.ErrValidation
	}
	if sale.ID == "" {
		sale.ID = xid.New("psale")
	}
	if sale.SoldAt.IsZero() {
		sale.SoldAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prepaid_sales (id, store_id, customer_id, plan_id, staff_id, amount_paid, value_amount, sold_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.StoreID, sale.CustomerID, nullIfEmpty(sale.PlanID), nullIfEmpty(sale.StaffID), sale.AmountPaid, sale.ValueAmount, sale.SoldAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := sale
	return &created, nil
}

// UsePrepaid draws the full amount from one account: an earmarked account
// as-is, otherwise the earliest-sold account whose remaining balance covers
// the amount (first fit, never split). The candidate rows are locked and
// each remaining balance is recomputed from the usage ledger in the same
// transaction as the append, so concurrent draws serialize on the row locks
// and the balance check cannot be stale.
func (s *Store) UsePrepaid(ctx context.Context, storeID string, customerID string, amount int64, visitID string, lineItemID string, accountID string) (*domain.PrepaidUsage, error) {
	if amount < 1 {
		return nil, store.ErrValidation
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerStore string
	err = tx.QueryRowContext(ctx, `
		SELECT store_id FROM customers WHERE id = $1
	`, customerID).Scan(&customerStore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerStore != storeID {
		return nil, store.ErrNotFound
	}

	saleRows, err := tx.QueryContext(ctx, `
		SELECT id, value_amount
		FROM prepaid_sales
		WHERE store_id = $1 AND customer_id = $2
			AND ($3 = '' OR id = $3)
		ORDER BY sold_at ASC, id ASC
		FOR UPDATE
	`, storeID, customerID, accountID)
	if err != nil {
		return nil, err
	}
	type accountState struct {
		id        string
		value     int64
		remaining int64
	}
	accounts := make([]accountState, 0, 4)
	for saleRows.Next() {
		var acc accountState
		if err := saleRows.Scan(&acc.id, &acc.value); err != nil {
			_ = saleRows.Close()
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := saleRows.Err(); err != nil {
		_ = saleRows.Close()
		return nil, err
	}
	_ = saleRows.Close()

	if len(accounts) == 0 {
		if accountID != "" {
			return nil, store.ErrNotFound
		}
		return nil, store.ErrNoAccountAvailable
	}

	var selected *accountState
	for i := range accounts {
		var used int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(amount_used),0)::bigint
			FROM prepaid_usages
			WHERE prepaid_sale_id = $1
		`, accounts[i].id).Scan(&used)
		if err != nil {
			return nil, err
		}
		accounts[i].remaining = accounts[i].value - used
		if accounts[i].remaining >= amount {
			selected = &accounts[i]
			break
		}
	}
	if selected == nil {
		if accountID != "" {
			return nil, store.ErrInsufficientBalance
		}
		return nil, store.ErrNoAccountAvailable
	}

	usage := domain.PrepaidUsage{
		ID:            xid.New("puse"),
		PrepaidSaleID: selected.id,
		CustomerID:    customerID,
		VisitID:       visitID,
		LineItemID:    lineItemID,
		AmountUsed:    amount,
		UsedAt:        time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO prepaid_usages (id, prepaid_sale_id, customer_id, visit_id, line_item_id, amount_used, used_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, usage.ID, usage.PrepaidSaleID, usage.CustomerID, nullIfEmpty(usage.VisitID), nullIfEmpty(usage.LineItemID), usage.AmountUsed, usage.UsedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &usage, nil
}

func (s *Store) PrepaidBalance(ctx context.Context, storeID string, customerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ps.value_amount),0)::bigint - COALESCE((
			SELECT SUM(pu.amount_used)
			FROM prepaid_usages pu
			JOIN prepaid_sales s2 ON s2.id = pu.prepaid_sale_id
			WHERE s2.store_id = $1 AND s2.customer_id = $2
		),0)::bigint
		FROM prepaid_sales ps
		WHERE ps.store_id = $1 AND ps.customer_id = $2
	`, storeID, customerID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) PrepaidAccounts(ctx context.Context, storeID string, customerID string) ([]domain.PrepaidAccountDetail, error) {
	saleRows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, customer_id, COALESCE(plan_id,''), COALESCE(staff_id,''), amount_paid, value_amount, sold_at
		FROM prepaid_sales
		WHERE store_id = $1 AND customer_id = $2
		ORDER BY sold_at ASC, id ASC
	`, storeID, customerID)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.PrepaidSale, 0, 4)
	for saleRows.Next() {
		var sale domain.PrepaidSale
		if err := saleRows.Scan(&sale.ID, &sale.StoreID, &sale.CustomerID, &sale.PlanID, &sale.StaffID, &sale.AmountPaid, &sale.ValueAmount, &sale.SoldAt); err != nil {
			_ = saleRows.Close()
			return nil, err
		}
		sale.SoldAt = sale.SoldAt.UTC()
		sales = append(sales, sale)
	}
	if err := saleRows.Err(); err != nil {
		_ = saleRows.Close()
		return nil, err
	}
	_ = saleRows.Close()

	result := make([]domain.PrepaidAccountDetail, 0, len(sales))
	for _, sale := range sales {
		usageRows, err := s.db.QueryContext(ctx, `
			SELECT id, prepaid_sale_id, customer_id, COALESCE(visit_id,''), COALESCE(line_item_id,''), amount_used, used_at
			FROM prepaid_usages
			WHERE prepaid_sale_id = $1
			ORDER BY used_at ASC, id ASC
		`, sale.ID)
		if err != nil {
			return nil, err
		}
		usages := make([]domain.PrepaidUsage, 0, 4)
		remaining := sale.ValueAmount
		for usageRows.Next() {
			var usage domain.PrepaidUsage
			if err := usageRows.Scan(&usage.ID, &usage.PrepaidSaleID, &usage.CustomerID, &usage.VisitID, &usage.LineItemID, &usage.AmountUsed, &usage.UsedAt); err != nil {
				_ = usageRows.Close()
				return nil, err
			}
			usage.UsedAt = usage.UsedAt.UTC()
			remaining -= usage.AmountUsed
			usages = append(usages, usage)
		}
		if err := usageRows.Err(); err != nil {
			_ = usageRows.Close()
			return nil, err
		}
		_ = usageRows.Close()

		result = append(result, domain.PrepaidAccountDetail{
			Sale:             sale,
			RemainingBalance: remaining,
			Usages:           usages,
		})
	}
	return result, nil
}

// AppendPointTransaction locks the customer row, recomputes the balance
// from the ledger, and appends, so the non-negative guard and the write
// land in one transaction.
func (s *Store) AppendPointTransaction(ctx context.Context, txn domain.PointTransaction) (*domain.PointTransaction, error) {
	if txn.StoreID == "" || txn.CustomerID == "" || txn.PointsDelta == 0 {
		return nil, store.ErrValidation
	}
	switch txn.TxnType {
	case domain.PointTxnEarn, domain.PointTxnRedeem, domain.PointTxnAdjust, domain.PointTxnExpire:
	default:
		return nil, store.ErrValidation
	}
	if txn.ID == "" {
		txn.ID = xid.New("ptxn")
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var customerStore string
	err = tx.QueryRowContext(ctx, `
		SELECT store_id FROM customers WHERE id = $1 FOR UPDATE
	`, txn.CustomerID).Scan(&customerStore)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if customerStore != txn.StoreID {
		return nil, store.ErrNotFound
	}

	if txn.PointsDelta < 0 {
		var balance int64
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(points_delta),0)::bigint
			FROM point_transactions
			WHERE store_id = $1 AND customer_id = $2
		`, txn.StoreID, txn.CustomerID).Scan(&balance)
		if err != nil {
			return nil, err
		}
		if balance+txn.PointsDelta < 0 {
			return nil, store.ErrInsufficientPoints
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO point_transactions (
			id, store_id, customer_id, txn_type, points_delta, visit_id, payment_id, rule_id, memo, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, txn.ID, txn.StoreID, txn.CustomerID, txn.TxnType, txn.PointsDelta,
		nullIfEmpty(txn.VisitID), nullIfEmpty(txn.PaymentID), nullIfEmpty(txn.RuleID), txn.Memo, txn.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := txn
	return &created, nil
}

func (s *Store) PointBalance(ctx context.Context, storeID string, customerID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points_delta),0)::bigint
		FROM point_transactions
		WHERE store_id = $1 AND customer_id = $2
	`, storeID, customerID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) PointHistory(ctx context.Context, storeID string, customerID string, limit int) ([]domain.PointTransaction, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, customer_id, txn_type, points_delta,
			COALESCE(visit_id,''), COALESCE(payment_id,''), COALESCE(rule_id,''), memo, created_at
		FROM point_transactions
		WHERE store_id = $1 AND customer_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, storeID, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]domain.PointTransaction, 0, limit)
	for rows.Next() {
		var txn domain.PointTransaction
		if err := rows.Scan(&txn.ID, &txn.StoreID, &txn.CustomerID, &txn.TxnType, &txn.PointsDelta, &txn.VisitID, &txn.PaymentID, &txn.RuleID, &txn.Memo, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.CreatedAt = txn.CreatedAt.UTC()
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}

func (s *Store) FindEarnByVisit(ctx context.Context, storeID string, visitID string) (*domain.PointTransaction, error) {
	var txn domain.PointTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, customer_id, txn_type, points_delta,
			COALESCE(visit_id,''), COALESCE(payment_id,''), COALESCE(rule_id,''), memo, created_at
		FROM point_transactions
		WHERE store_id = $1 AND visit_id = $2 AND txn_type = $3
		ORDER BY created_at ASC
		LIMIT 1
	`, storeID, visitID, domain.PointTxnEarn).Scan(&txn.ID, &txn.StoreID, &txn.CustomerID, &txn.TxnType, &txn.PointsDelta, &txn.VisitID, &txn.PaymentID, &txn.RuleID, &txn.Memo, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	txn.CreatedAt = txn.CreatedAt.UTC()
	return &txn, nil
}

func (s *Store) AppendInventoryEvent(ctx context.Context, event domain.InventoryEvent) (*domain.InventoryEvent, error) {
	if event.StoreID == "" || event.ProductID == "" || event.QtyDelta == 0 {
		return nil, store.ErrValidation
	}
	switch event.EventType {
	case domain.InventoryEventPurchase, domain.InventoryEventSale, domain.InventoryEventConsume, domain.InventoryEventAdjust, domain.InventoryEventWaste:
	default:
		return nil, store.ErrValidation
	}
	if event.ID == "" {
		event.ID = xid.New("inv")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT kind FROM products WHERE id = $1 AND store_id = $2
	`, event.ProductID, event.StoreID).Scan(&kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if kind != domain.ProductKindConsumable && kind != domain.ProductKindBoth {
		return nil, store.ErrValidation
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inventory_events (
			id, store_id, product_id, event_type, qty_delta, visit_id, line_item_id, memo, occurred_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, event.ID, event.StoreID, event.ProductID, event.EventType, event.QtyDelta,
		nullIfEmpty(event.VisitID), nullIfEmpty(event.LineItemID), event.Memo, event.OccurredAt)
	if err != nil {
		return nil, err
	}
	created := event
	return &created, nil
}

func (s *Store) CurrentStock(ctx context.Context, storeID string, productID string) (int, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM products WHERE id = $1 AND store_id = $2)
	`, productID, storeID).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	var stock int
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(qty_delta),0)::int
		FROM inventory_events
		WHERE store_id = $1 AND product_id = $2
	`, storeID, productID).Scan(&stock)
	if err != nil {
		return 0, err
	}
	return stock, nil
}

func (s *Store) StockSummary(ctx context.Context, storeID string) ([]domain.StockSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.kind,
			COALESCE(SUM(e.qty_delta),0)::int,
			MAX(CASE WHEN e.event_type = 'purchase' THEN e.occurred_at END)
		FROM products p
		LEFT JOIN inventory_events e ON e.product_id = p.id AND e.store_id = p.store_id
		WHERE p.store_id = $1 AND p.kind IN ('consumable','both')
		GROUP BY p.id, p.name, p.kind
		ORDER BY p.name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StockSummaryRow, 0, 32)
	for rows.Next() {
		var row domain.StockSummaryRow
		var lastPurchase sql.NullTime
		if err := rows.Scan(&row.ProductID, &row.Name, &row.Kind, &row.CurrentStock, &lastPurchase); err != nil {
			return nil, err
		}
		row.LastPurchaseAt = timePtr(lastPurchase)
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListInventoryEvents(ctx context.Context, storeID string, productID string, limit int) ([]domain.InventoryEvent, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, product_id, event_type, qty_delta,
			COALESCE(visit_id,''), COALESCE(line_item_id,''), memo, occurred_at
		FROM inventory_events
		WHERE store_id = $1 AND ($2 = '' OR product_id = $2)
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3
	`, storeID, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.InventoryEvent, 0, limit)
	for rows.Next() {
		var event domain.InventoryEvent
		if err := rows.Scan(&event.ID, &event.StoreID, &event.ProductID, &event.EventType, &event.QtyDelta, &event.VisitID, &event.LineItemID, &event.Memo, &event.OccurredAt); err != nil {
			return nil, err
		}
		event.OccurredAt = event.OccurredAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1)
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrValidation
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	at := t.Time.UTC()
	return &at
}
