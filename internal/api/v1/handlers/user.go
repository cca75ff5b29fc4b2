package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/userpipe/userpipe/internal/db/models"
	"github.com/userpipe/userpipe/internal/services"
)

// UserHandler exposes read access to the users the pipeline has persisted
type UserHandler struct {
	userService *services.User
}

// NewUserHandler creates a new user handler instance
func NewUserHandler(userService *services.User) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// ListUsers returns persisted users paginated with limit/offset
func (h *UserHandler) ListUsers(c *fiber.Ctx) error {
	opts := &models.ListOptions{
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}

	users, err := h.userService.List(c.Context(), opts)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(fmt.Sprintf("failed to list users: %v", err)))
	}

	return c.JSON(success(users))
}

// CountUsers returns the total number of persisted users
func (h *UserHandler) CountUsers(c *fiber.Ctx) error {
	count, err := h.userService.Count(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errServer(fmt.Sprintf("failed to count users: %v", err)))
	}

	return c.JSON(success(fiber.Map{"count": count}))
}
