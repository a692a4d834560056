package store

import (
	"context"
	"errors"
	"time"

	"salonkita/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrInsufficientBalance = errors.New("insufficient prepaid balance")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrNoAccountAvailable  = errors.New("no prepaid account available")
)

type Repository interface {
	CreateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, storeID string, customerID string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, storeID string, query string, limit int) ([]domain.Customer, error)

	CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	ListServices(ctx context.Context, storeID string, activeOnly bool) ([]domain.Service, error)
	GetServicesByIDs(ctx context.Context, storeID string, ids []string) (map[string]domain.Service, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, storeID string, activeOnly bool) ([]domain.Product, error)
	GetProductsByIDs(ctx context.Context, storeID string, ids []string) (map[string]domain.Product, error)

	CreateDiscountRule(ctx context.Context, rule domain.DiscountRule) (*domain.DiscountRule, error)
	ListDiscountRules(ctx context.Context, storeID string) ([]domain.DiscountRule, error)
	CreatePointRule(ctx context.Context, rule domain.PointRule) (*domain.PointRule, error)
	ListPointRules(ctx context.Context, storeID string) ([]domain.PointRule, error)

	CreateVisit(ctx context.Context, visit domain.Visit) (*domain.Visit, error)
	GetVisit(ctx context.Context, storeID string, visitID string) (*domain.Visit, error)
	ListVisits(ctx context.Context, storeID string, customerID string, from time.Time, to time.Time, limit int) ([]domain.Visit, error)
	FinalizeVisit(ctx context.Context, storeID string, visitID string, at time.Time) (*domain.Visit, error)
	VoidVisit(ctx context.Context, storeID string, visitID string, at time.Time) (*domain.Visit, error)

	CreatePrepaidPlan(ctx context.Context, plan domain.PrepaidPlan) (*domain.PrepaidPlan, error)
	ListPrepaidPlans(ctx context.Context, storeID string, activeOnly bool) ([]domain.PrepaidPlan, error)
	CreatePrepaidSale(ctx context.Context, sale domain.PrepaidSale) (*domain.PrepaidSale, error)
	UsePrepaid(ctx context.Context, storeID string, customerID string, amount int64, visitID string, lineItemID string, accountID string) (*domain.PrepaidUsage, error)
	PrepaidBalance(ctx context.Context, storeID string, customerID string) (int64, error)
	PrepaidAccounts(ctx context.Context, storeID string, customerID string) ([]domain.PrepaidAccountDetail, error)

	AppendPointTransaction(ctx context.Context, txn domain.PointTransaction) (*domain.PointTransaction, error)
	PointBalance(ctx context.Context, storeID string, customerID string) (int64, error)
	PointHistory(ctx context.Context, storeID string, customerID string, limit int) ([]domain.PointTransaction, error)
	FindEarnByVisit(ctx context.Context, storeID string, visitID string) (*domain.PointTransaction, error)

	AppendInventoryEvent(ctx context.Context, event domain.InventoryEvent) (*domain.InventoryEvent, error)
	CurrentStock(ctx context.Context, storeID string, productID string) (int, error)
	StockSummary(ctx context.Context, storeID string) ([]domain.StockSummaryRow, error)
	ListInventoryEvents(ctx context.Context, storeID string, productID string, limit int) ([]domain.InventoryEvent, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
