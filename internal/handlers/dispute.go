package handlers

import (
	"context"
	"errors"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/dispute"
	"disputedesk/internal/utils"
	"disputedesk/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DisputeHandler struct {
	disputeService *dispute.Service
}

func NewDisputeHandler(disputeService *dispute.Service) *DisputeHandler {
	return &DisputeHandler{disputeService: disputeService}
}

type fileDisputeRequest struct {
	TransactionID uuid.UUID `json:"transaction_id" validate:"required"`
	UserID        uuid.UUID `json:"user_id" validate:"required"`
	Reason        string    `json:"reason" validate:"required,max=1000"`
}

func (h *DisputeHandler) FileDispute(c *fiber.Ctx) error {
	var input fileDisputeRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}

	d, err := h.disputeService.FileDispute(c.UserContext(), input.TransactionID, input.UserID, input.Reason)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Created(c, d)
}

func (h *DisputeHandler) ListDisputes(c *fiber.Ctx) error {
	p := utils.ParsePage(c)
	filter := repositories.DisputeFilter{Offset: p.Offset(), Limit: p.Limit}
	if v := c.Query("status"); v != "" {
		filter.Statuses = []models.DisputeStatus{models.DisputeStatus(v)}
	}
	if v := c.Query("transaction_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return utils.BadRequest(c, "invalid transaction_id")
		}
		filter.TransactionID = &id
	}

	disputes, total, err := h.disputeService.ListDisputes(c.UserContext(), filter)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, utils.Paged(disputes, p, total))
}

func (h *DisputeHandler) GetDispute(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	d, err := h.disputeService.GetDispute(c.UserContext(), id)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, d)
}

func (h *DisputeHandler) StartReview(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	d, err := h.disputeService.StartReview(c.UserContext(), id, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, d)
}

func (h *DisputeHandler) StartInvestigation(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	d, err := h.disputeService.StartInvestigation(c.UserContext(), id, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, d)
}

type closeRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

func (h *DisputeHandler) Resolve(c *fiber.Ctx) error {
	return h.close(c, h.disputeService.Resolve)
}

func (h *DisputeHandler) Reject(c *fiber.Ctx) error {
	return h.close(c, h.disputeService.Reject)
}

type closeFunc func(ctx context.Context, id uuid.UUID, operatorID, notes string) (*models.DisputeCase, error)

func (h *DisputeHandler) close(c *fiber.Ctx, fn closeFunc) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	var input closeRequest
	if len(c.Body()) > 0 {
		if err := validation.Bind(c, &input); err != nil {
			return utils.HandleError(c, err)
		}
	}
	d, err := fn(c.UserContext(), id, utils.ActorID(c), input.Notes)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, d)
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// ProcessRefund answers 200 when the refund committed and 202 when it is
// staged but waiting for reconciliation. It never reports a staged refund as failed.
func (h *DisputeHandler) ProcessRefund(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	var input refundRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}

	result, err := h.disputeService.ProcessRefund(c.UserContext(), id, input.Amount, utils.ActorID(c))
	if errors.Is(err, apperrors.ErrPartialFailure) && result != nil {
		return utils.Respond(c, fiber.StatusAccepted, fiber.Map{
			"status":                result.Status,
			"refund_state":          result.RefundState,
			"refund_transaction_id": result.RefundTransactionID,
			"code":                  apperrors.ErrPartialFailure.Code,
			"message":               "refund accepted, pending reconciliation",
		})
	}
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, result)
}
