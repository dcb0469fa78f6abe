package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/EliteSamurai/M4KTABA-sub001/repository"
	"github.com/EliteSamurai/M4KTABA-sub001/service"
)

type OfferController struct {
	offers *service.Offers
}

func NewOfferController(offers *service.Offers) *OfferController {
	return &OfferController{offers: offers}
}

// Create places a buyer offer on a book.
func (oc *OfferController) Create(c *fiber.Ctx) error {
	buyerID, _ := c.Locals("user_id").(string)
	buyerEmail, _ := c.Locals("user_email").(string)

	var body struct {
		BookID      string `json:"bookId"`
		BookTitle   string `json:"bookTitle"`
		SellerID    string `json:"sellerId"`
		SellerEmail string `json:"sellerEmail"`
		AmountCents int64  `json:"amountCents"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.BookID == "" || body.SellerID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "bookId and sellerId required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	offer, err := oc.offers.Create(ctx, service.CreateOfferInput{
		BookID:      body.BookID,
		BookTitle:   body.BookTitle,
		BuyerID:     buyerID,
		BuyerEmail:  buyerEmail,
		SellerID:    body.SellerID,
		SellerEmail: body.SellerEmail,
		AmountCents: body.AmountCents,
	})
	if errors.Is(err, service.ErrOfferCap) {
		return c.Status(409).JSON(fiber.Map{"error": "offer limit reached for this book"})
	}
	if errors.Is(err, service.ErrBadAmount) {
		return c.Status(400).JSON(fiber.Map{"error": "amount must be positive"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(201).JSON(offer)
}

// Respond lets the offer's seller accept, decline, or counter.
func (oc *OfferController) Respond(c *fiber.Ctx) error {
	actorID, _ := c.Locals("user_id").(string)
	offerID := c.Params("id")

	var body struct {
		Action        string  `json:"action"`
		CounterAmount float64 `json:"counterAmount"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	counterCents := int64(body.CounterAmount*100 + 0.5)
	result, err := oc.offers.Respond(ctx, offerID, actorID, body.Action, counterCents)
	switch {
	case errors.Is(err, repository.ErrOfferNotFound):
		return c.Status(404).JSON(fiber.Map{"error": "offer not found"})
	case errors.Is(err, service.ErrNotSeller):
		return c.Status(403).JSON(fiber.Map{"error": "not the seller"})
	case errors.Is(err, service.ErrOfferNotPending):
		return c.Status(400).JSON(fiber.Map{"error": "offer is not pending"})
	case errors.Is(err, service.ErrBadAmount):
		return c.Status(400).JSON(fiber.Map{"error": "counterAmount must be positive"})
	case err != nil:
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(result)
}
