package handlers

import (
	"disputedesk/internal/services/ledger"
	"disputedesk/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type WalletHandler struct {
	ledger ledger.Service
}

func NewWalletHandler(ledgerSvc ledger.Service) *WalletHandler {
	return &WalletHandler{ledger: ledgerSvc}
}

// GetWallet returns the balance together with the fold of its deltas.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	userID, ok, err := uuidParam(c, "userId")
	if !ok {
		return err
	}
	report, err := h.ledger.CheckWallet(c.UserContext(), userID)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Success(c, report)
}
