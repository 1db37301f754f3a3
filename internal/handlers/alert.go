package handlers

import (
	"time"

	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/resolution"
	"disputedesk/internal/utils"
	"disputedesk/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AlertHandler struct {
	engine *resolution.Engine
}

func NewAlertHandler(engine *resolution.Engine) *AlertHandler {
	return &AlertHandler{engine: engine}
}

type fraudAlertRequest struct {
	TransactionID uuid.UUID       `json:"transaction_id" validate:"required"`
	UserID        uuid.UUID       `json:"user_id" validate:"required"`
	RiskScore     int             `json:"risk_score" validate:"gte=0,lte=100"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message" validate:"max=1000"`
}

func (h *AlertHandler) IngestFraudAlert(c *fiber.Ctx) error {
	var input fraudAlertRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}

	alert, err := h.engine.IngestFraudAlert(c.UserContext(), resolution.FraudAlertInput{
		TransactionID: input.TransactionID,
		UserID:        input.UserID,
		RiskScore:     input.RiskScore,
		Amount:        input.Amount,
		Message:       input.Message,
	}, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Created(c, alert)
}

func (h *AlertHandler) ListFraudAlerts(c *fiber.Ctx) error {
	p := utils.ParsePage(c)
	filter := repositories.FraudAlertFilter{Offset: p.Offset(), Limit: p.Limit}
	if v := c.Query("acknowledged"); v != "" {
		ack := v == "true"
		filter.Acknowledged = &ack
	}

	alerts, total, err := h.engine.ListFraudAlerts(c.UserContext(), filter)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, utils.Paged(alerts, p, total))
}

func (h *AlertHandler) GetFraudAlert(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	alert, err := h.engine.GetFraudAlert(c.UserContext(), id)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, alert)
}

func (h *AlertHandler) AcknowledgeFraudAlert(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	result, err := h.engine.AcknowledgeAlert(c.UserContext(), id, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, result)
}

func (h *AlertHandler) DeferFraudAlert(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	result, err := h.engine.DeferAlert(c.UserContext(), id, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, result)
}

type quickActionRequest struct {
	Action string `json:"action" validate:"required"`
}

func (h *AlertHandler) QuickAction(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	var input quickActionRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}

	result, err := h.engine.QuickAction(c.UserContext(), id, input.Action, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, result)
}

type preDisputeAlertRequest struct {
	TransactionID     uuid.UUID                 `json:"transaction_id" validate:"required"`
	UserID            uuid.UUID                 `json:"user_id" validate:"required"`
	AlertType         string                    `json:"alert_type" validate:"required,max=64"`
	Message           string                    `json:"message" validate:"max=1000"`
	Amount            decimal.Decimal           `json:"amount"`
	Currency          string                    `json:"currency" validate:"omitempty,len=3"`
	ResolutionOptions []models.ResolutionOption `json:"resolution_options" validate:"required,min=1,dive"`
	ExpiresAt         *time.Time                `json:"expires_at"`
}

func (h *AlertHandler) IngestPreDisputeAlert(c *fiber.Ctx) error {
	var input preDisputeAlertRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}

	alert, err := h.engine.IngestPreDisputeAlert(c.UserContext(), resolution.PreDisputeAlertInput{
		TransactionID:     input.TransactionID,
		UserID:            input.UserID,
		AlertType:         input.AlertType,
		Message:           input.Message,
		Amount:            input.Amount,
		Currency:          input.Currency,
		ResolutionOptions: input.ResolutionOptions,
		ExpiresAt:         input.ExpiresAt,
	}, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Created(c, alert)
}

func (h *AlertHandler) ListPreDisputeAlerts(c *fiber.Ctx) error {
	p := utils.ParsePage(c)
	filter := repositories.PreDisputeAlertFilter{Offset: p.Offset(), Limit: p.Limit}
	if v := c.Query("status"); v != "" {
		filter.Statuses = []models.PreDisputeStatus{models.PreDisputeStatus(v)}
	}

	alerts, total, err := h.engine.ListPreDisputeAlerts(c.UserContext(), filter)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, utils.Paged(alerts, p, total))
}

func (h *AlertHandler) GetPreDisputeAlert(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	alert, err := h.engine.GetPreDisputeAlert(c.UserContext(), id)
	if err != nil {
		return utils.HandleError(c, err)
	}

	body := fiber.Map{"alert": alert}
	if alert.Status == models.PreDisputeStatusResolved {
		if res, err := h.engine.GetResolution(c.UserContext(), id); err == nil {
			body["resolution"] = res
		}
	}
	return utils.Success(c, body)
}

func (h *AlertHandler) ViewPreDisputeAlert(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	alert, err := h.engine.ViewAlert(c.UserContext(), id, utils.ActorID(c))
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, alert)
}

type resolveRequest struct {
	ResolutionType string `json:"resolution_type" validate:"required"`
	Feedback       string `json:"feedback" validate:"max=2000"`
}

func (h *AlertHandler) ResolvePreDisputeAlert(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	var input resolveRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}

	result, err := h.engine.SubmitResolution(c.UserContext(), resolution.ResolutionRequest{
		AlertID:        id,
		ResolutionType: input.ResolutionType,
		OperatorID:     utils.ActorID(c),
		Feedback:       input.Feedback,
	})
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, result)
}

type escalateRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

func (h *AlertHandler) EscalatePreDisputeAlert(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	var input escalateRequest
	if len(c.Body()) > 0 {
		if err := validation.Bind(c, &input); err != nil {
			return utils.HandleError(c, err)
		}
	}

	result, err := h.engine.EscalateAlert(c.UserContext(), id, utils.ActorID(c), input.Reason)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, result)
}
