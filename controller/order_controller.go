package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/EliteSamurai/M4KTABA-sub001/model"
	"github.com/EliteSamurai/M4KTABA-sub001/repository"
)

type OrderController struct {
	store *repository.Store
}

func NewOrderController(store *repository.Store) *OrderController {
	return &OrderController{store: store}
}

func (oc *OrderController) List(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	orders, err := oc.store.ListOrders(ctx, 100)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return c.JSON(orders)
}

func (oc *OrderController) Get(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := oc.store.GetOrder(ctx, c.Params("id"))
	if errors.Is(err, repository.ErrOrderNotFound) {
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(order)
}

// UpdateStatus applies a manual order status action, e.g. marking
// shipped or delivered from the seller dashboard.
func (oc *OrderController) UpdateStatus(c *fiber.Ctx) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order, err := oc.store.TransitionOrderStatus(ctx, c.Params("id"), model.OrderStatus(body.Status))
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, repository.ErrInvalidTransition):
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(order)
}
