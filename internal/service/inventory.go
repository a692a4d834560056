package service

import (
	"context"
	"fmt"
	"strings"

	"salonkita/backend/internal/domain"
	"salonkita/backend/internal/store"
)

// RecordPurchase books incoming stock. Qty is the received unit count.
func (s *Service) RecordPurchase(ctx context.Context, req domain.InventoryEventRequest) (domain.InventoryEvent, error) {
	if req.Qty < 1 {
		return domain.InventoryEvent{}, fmt.Errorf("%w: qty must be positive", store.ErrValidation)
	}
	return s.appendInventory(ctx, req, domain.InventoryEventPurchase, req.Qty)
}

// RecordSale books stock leaving through a retail line item.
func (s *Service) RecordSale(ctx context.Context, req domain.InventoryEventRequest) (domain.InventoryEvent, error) {
	if req.Qty < 1 {
		return domain.InventoryEvent{}, fmt.Errorf("%w: qty must be positive", store.ErrValidation)
	}
	return s.appendInventory(ctx, req, domain.InventoryEventSale, -req.Qty)
}

// RecordConsume books stock used up while performing a service.
func (s *Service) RecordConsume(ctx context.Context, req domain.InventoryEventRequest) (domain.InventoryEvent, error) {
	if req.Qty < 1 {
		return domain.InventoryEvent{}, fmt.Errorf("%w: qty must be positive", store.ErrValidation)
	}
	return s.appendInventory(ctx, req, domain.InventoryEventConsume, -req.Qty)
}

// RecordWaste books spoiled or damaged stock.
func (s *Service) RecordWaste(ctx context.Context, req domain.InventoryEventRequest) (domain.InventoryEvent, error) {
	if req.Qty < 1 {
		return domain.InventoryEvent{}, fmt.Errorf("%w: qty must be positive", store.ErrValidation)
	}
	return s.appendInventory(ctx, req, domain.InventoryEventWaste, -req.Qty)
}

// AdjustStock reconciles the ledger against a physical count. The delta may
// go either way and a memo explaining the correction is mandatory.
func (s *Service) AdjustStock(ctx context.Context, req domain.InventoryEventRequest) (domain.InventoryEvent, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.InventoryEvent{}, err
	}
	if req.Qty == 0 {
		return domain.InventoryEvent{}, fmt.Errorf("%w: qty must not be zero", store.ErrValidation)
	}
	if strings.TrimSpace(req.Memo) == "" {
		return domain.InventoryEvent{}, fmt.Errorf("%w: adjustment memo is required", store.ErrValidation)
	}
	return s.appendInventory(ctx, req, domain.InventoryEventAdjust, req.Qty)
}

func (s *Service) appendInventory(ctx context.Context, req domain.InventoryEventRequest, eventType string, qtyDelta int) (domain.InventoryEvent, error) {
	storeID := s.storeID(req.StoreID)
	if req.ProductID == "" {
		return domain.InventoryEvent{}, fmt.Errorf("%w: product_id is required", store.ErrValidation)
	}

	created, err := s.repo.AppendInventoryEvent(ctx, domain.InventoryEvent{
		StoreID:    storeID,
		ProductID:  req.ProductID,
		EventType:  eventType,
		QtyDelta:   qtyDelta,
		VisitID:    req.VisitID,
		LineItemID: req.LineItemID,
		Memo:       strings.TrimSpace(req.Memo),
	})
	if err != nil {
		return domain.InventoryEvent{}, err
	}

	s.logAudit(ctx, storeID, "inventory_"+eventType, "product", req.ProductID, fmt.Sprintf("delta=%d,visit=%s", created.QtyDelta, created.VisitID))
	return *created, nil
}

func (s *Service) CurrentStock(ctx context.Context, storeID string, productID string) (int, error) {
	return s.repo.CurrentStock(ctx, s.storeID(storeID), productID)
}

func (s *Service) StockSummary(ctx context.Context, storeID string) ([]domain.StockSummaryRow, error) {
	return s.repo.StockSummary(ctx, s.storeID(storeID))
}

func (s *Service) ListInventoryEvents(ctx context.Context, storeID string, productID string, limit int) ([]domain.InventoryEvent, error) {
	return s.repo.ListInventoryEvents(ctx, s.storeID(storeID), productID, limit)
}
