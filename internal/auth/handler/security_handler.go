package handler

import (
	"errors"

	"github.com/alexizher/onboarding-back-sub000/config"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/dto"
	"github.com/alexizher/onboarding-back-sub000/internal/auth/service"
	autherror "github.com/alexizher/onboarding-back-sub000/internal/errors"
	"github.com/gofiber/fiber/v2"
)

// SecurityHandler serves the authenticated security surface: logout, session
// management, password change and the reset flow.
type SecurityHandler struct {
	userService *service.UserService
	cfg         *config.Config
}

func NewSecurityHandler(userService *service.UserService, cfg *config.Config) *SecurityHandler {
	return &SecurityHandler{userService: userService, cfg: cfg}
}

func (h *SecurityHandler) Logout(c *fiber.Ctx) error {
	rawToken, _ := c.Locals("token").(string)

	err := h.userService.Logout(c.UserContext(), rawToken, c.IP(),
		string(c.Request().Header.UserAgent()))
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

func (h *SecurityHandler) Sessions(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)

	sessions, err := h.userService.Sessions(c.UserContext(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"sessions": sessions})
}

func (h *SecurityHandler) CloseOtherSessions(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	rawToken, _ := c.Locals("token").(string)

	closed, err := h.userService.CloseOtherSessions(c.UserContext(), userID, rawToken)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"closed": closed})
}

func (h *SecurityHandler) ChangePassword(c *fiber.Ctx) error {
	var input dto.ChangePasswordInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	userID, _ := c.Locals("userID").(string)
	rawToken, _ := c.Locals("token").(string)

	if err := h.userService.ChangePassword(c.UserContext(), userID, rawToken, input); err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// RequestPasswordReset always answers 202 with the same body whether or not
// the email exists, so the endpoint cannot be used for account enumeration.
// Outside production the raw token is echoed for test harnesses; real
// deployments deliver it out of band.
func (h *SecurityHandler) RequestPasswordReset(c *fiber.Ctx) error {
	var input dto.ResetRequestInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	token, err := h.userService.RequestPasswordReset(c.UserContext(), input)
	if err != nil {
		// The issue rate limit only trips for accounts that exist, so it must
		// not change the response shape; the audit trail still records it.
		if !errors.Is(err, autherror.ErrResetRateLimited) {
			return writeError(c, err)
		}
		token = ""
	}

	body := fiber.Map{"message": "if the account exists, a reset token has been issued"}
	if token != "" && !h.cfg.Production() {
		body["reset_token"] = token
	}

	return c.Status(fiber.StatusAccepted).JSON(body)
}

func (h *SecurityHandler) ConfirmPasswordReset(c *fiber.Ctx) error {
	var input dto.ResetConfirmInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	input.IPAddress = c.IP()
	input.UserAgent = string(c.Request().Header.UserAgent())

	if err := h.userService.ConfirmPasswordReset(c.UserContext(), input); err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

// UnlockAccount is the administrative lockout reset.
func (h *SecurityHandler) UnlockAccount(c *fiber.Ctx) error {
	var input dto.UnlockInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}

	operatorID, _ := c.Locals("userID").(string)

	err := h.userService.UnlockAccount(c.UserContext(), c.Params("id"), operatorID, input.Reason)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

func (h *SecurityHandler) ForceLogout(c *fiber.Ctx) error {
	operatorID, _ := c.Locals("userID").(string)

	if err := h.userService.ForceLogout(c.UserContext(), c.Params("id"), operatorID); err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"success": true})
}

func (h *SecurityHandler) UserSessions(c *fiber.Ctx) error {
	sessions, err := h.userService.Sessions(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"sessions": sessions})
}
