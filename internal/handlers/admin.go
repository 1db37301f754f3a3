package handlers

import (
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/auth"
	"disputedesk/internal/utils"
	"disputedesk/internal/utils/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// AdminHandler manages operator accounts.
type AdminHandler struct {
	users       repositories.UserRepository
	authService auth.Service
	log         *logrus.Logger
}

func NewAdminHandler(users repositories.UserRepository, authService auth.Service, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{users: users, authService: authService, log: log}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	p := utils.ParsePage(c)
	users, total, err := h.users.List(c.UserContext(), p.Offset(), p.Limit)
	if err != nil {
		h.log.WithError(err).Error("error fetching users")
		return utils.InternalError(c, "failed to fetch users")
	}
	return utils.Success(c, utils.Paged(users, p, total))
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=128"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=admin operator scorer"`
}

func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var input createUserRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}
	user, err := h.authService.CreateUser(c.UserContext(), input.Email, input.Name, input.Password, input.Role)
	if err != nil {
		return utils.HandleError(c, err)
	}
	return utils.Created(c, user)
}

type userStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

// UpdateUserStatus enables or disables an account. Disabling also revokes
// its tokens.
func (h *AdminHandler) UpdateUserStatus(c *fiber.Ctx) error {
	id, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}
	var input userStatusRequest
	if err := validation.Bind(c, &input); err != nil {
		return utils.HandleError(c, err)
	}

	if err := h.users.UpdateStatus(c.UserContext(), id, input.Status); err != nil {
		if err == repositories.ErrUserNotFound {
			return utils.Respond(c, fiber.StatusNotFound, fiber.Map{"error": "user not found"})
		}
		return utils.InternalError(c, "failed to update user")
	}
	if input.Status == models.UserStatusDisabled {
		if err := h.authService.Logout(c.UserContext(), id); err != nil {
			return utils.HandleError(c, err)
		}
	}
	return utils.Success(c, fiber.Map{"id": id, "status": input.Status})
}
