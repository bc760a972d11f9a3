// Package web provides the REST API endpoints for order management.
package web

import (
	"context"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/sqlcron/sqlcron/pkg/services"
)

type APIHandlers struct {
	submissionService *services.Submission
	controlService    *services.Control
	ordersService     *services.Orders
	auditService      *services.AuditTrail
	validator         *validator.Validate
}

func NewAPIHandlers(
	submissionService *services.Submission,
	controlService *services.Control,
	ordersService *services.Orders,
	auditService *services.AuditTrail,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		submissionService: submissionService,
		controlService:    controlService,
		ordersService:     ordersService,
		auditService:      auditService,
		validator:         validator,
	}
}

func (h *APIHandlers) CreateChangeOrder(c fiber.Ctx) error {
	var req services.SubmitRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	order, err := h.submissionService.SubmitChange(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *APIHandlers) CreateQueryOrder(c fiber.Ctx) error {
	var req services.SubmitRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	order, err := h.submissionService.SubmitQuery(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

func (h *APIHandlers) GetOrders(c fiber.Ctx) error {
	req, err := h.parseListOrdersRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	page, err := h.ordersService.List(c.Context(), *req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"orders": page.Orders,
		"total":  page.Total,
		"pagination": fiber.Map{
			"limit":  req.Limit,
			"offset": req.Offset,
		},
	})
}

// parseListOrdersRequest parses and validates query parameters for listing orders.
func (h *APIHandlers) parseListOrdersRequest(c fiber.Ctx) (*services.ListOrdersRequest, error) {
	req := &services.ListOrdersRequest{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		req.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		req.Offset = offset
	}

	req.Status = c.Query("status")
	req.Kind = c.Query("kind")
	req.GroupID = c.Query("group_id")
	req.Engineer = c.Query("engineer")
	req.Search = c.Query("search")

	return req, nil
}

func (h *APIHandlers) GetOrder(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Order ID is required")
	}

	detail, err := h.ordersService.Detail(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(detail)
}

func (h *APIHandlers) GetOrderAudit(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Order ID is required")
	}

	history, err := h.auditService.History(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(history)
}

// ControlRequest carries the operator identity of a control operation.
type ControlRequest struct {
	Operator string `json:"operator" validate:"required"`
}

func (h *APIHandlers) ApproveOrder(c fiber.Ctx) error {
	return h.control(c, h.controlService.Approve)
}

func (h *APIHandlers) PauseOrder(c fiber.Ctx) error {
	return h.control(c, h.controlService.Pause)
}

func (h *APIHandlers) ResumeOrder(c fiber.Ctx) error {
	return h.control(c, h.controlService.Resume)
}

func (h *APIHandlers) StopOrder(c fiber.Ctx) error {
	return h.control(c, h.controlService.Stop)
}

func (h *APIHandlers) control(c fiber.Ctx, op func(ctx context.Context, orderID, caller string) (*services.ControlResult, error)) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Order ID is required")
	}

	var req ControlRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Operator is required")
	}

	result, err := op(c.Context(), id, req.Operator)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}
