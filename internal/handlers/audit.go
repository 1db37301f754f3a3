package handlers

import (
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/audit"
	"disputedesk/internal/utils"

	"github.com/gofiber/fiber/v2"
)

var auditResources = map[string]bool{
	models.ResourceFraudAlert:        true,
	models.ResourcePreDisputeAlert:   true,
	models.ResourceInstantResolution: true,
	models.ResourceDisputeCase:       true,
	models.ResourceTransaction:       true,
	models.ResourceWallet:            true,
}

type AuditHandler struct {
	store repositories.Store
}

func NewAuditHandler(store repositories.Store) *AuditHandler {
	return &AuditHandler{store: store}
}

func (h *AuditHandler) resource(c *fiber.Ctx) (string, string, bool) {
	rt, rid := c.Params("resourceType"), c.Params("resourceId")
	return rt, rid, auditResources[rt] && rid != ""
}

// ListEntries returns a resource's audit trail in append order.
func (h *AuditHandler) ListEntries(c *fiber.Ctx) error {
	rt, rid, ok := h.resource(c)
	if !ok {
		return utils.BadRequest(c, "unknown resource type")
	}
	entries, err := audit.List(c.UserContext(), h.store, rt, rid)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, fiber.Map{"entries": entries})
}

func (h *AuditHandler) Verify(c *fiber.Ctx) error {
	rt, rid, ok := h.resource(c)
	if !ok {
		return utils.BadRequest(c, "unknown resource type")
	}
	result, err := audit.Verify(c.UserContext(), h.store, rt, rid)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, result)
}
