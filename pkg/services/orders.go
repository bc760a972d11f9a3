package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sqlcron/sqlcron/pkg/models"
	"github.com/sqlcron/sqlcron/pkg/persistence"
)

// ListOrdersRequest contains options for listing orders.
type ListOrdersRequest struct {
	Status   string
	Kind     string
	GroupID  string
	Engineer string
	Search   string
	Limit    int
	Offset   int
}

// OrderDetail is an order together with its content payload.
type OrderDetail struct {
	Order   *models.WorkflowOrder   `json:"order"`
	Content *models.WorkflowContent `json:"content"`
}

// Orders serves the read side: listings and per-order detail.
type Orders struct {
	persistence persistence.Persistence
	logger      *slog.Logger
}

// NewOrders creates the order read service.
func NewOrders(logger *slog.Logger, store persistence.Persistence) *Orders {
	return &Orders{persistence: store, logger: logger.With("module", "orders")}
}

// List returns a filtered page of orders, newest first.
func (o *Orders) List(ctx context.Context, req ListOrdersRequest) (*persistence.OrderPage, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != "" && !models.OrderStatus(req.Status).Valid() {
		return nil, NewValidationError("List", "INVALID_STATUS",
			fmt.Sprintf("unknown order status %q", req.Status), ErrInvalidRequest)
	}

	opts := persistence.ListOrdersOptions{
		Status:   models.OrderStatus(req.Status),
		Kind:     models.OrderKind(req.Kind),
		GroupID:  req.GroupID,
		Engineer: req.Engineer,
		Search:   req.Search,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}

	page, err := o.persistence.Orders(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return page, nil
}

// Detail returns one order with its SQL, review payload and execute result.
func (o *Orders) Detail(ctx context.Context, orderID string) (*OrderDetail, error) {
	order, err := o.persistence.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	content, err := o.persistence.ContentByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &OrderDetail{Order: order, Content: content}, nil
}
