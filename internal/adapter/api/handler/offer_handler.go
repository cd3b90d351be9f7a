package handler

import (
	"github.com/labstack/echo/v4"

	"otopasar/internal/usecase"
	"otopasar/pkg/response"
	"otopasar/pkg/utils"
)

type OfferHandler struct {
	offerUseCase *usecase.OfferUseCase
}

func NewOfferHandler(offerUseCase *usecase.OfferUseCase) *OfferHandler {
	return &OfferHandler{
		offerUseCase: offerUseCase,
	}
}

type submitOfferRequest struct {
	ListingID string  `json:"listing_id" validate:"required"`
	Amount    float64 `json:"amount" validate:"required"`
	Message   string  `json:"message"`
}

// SubmitOffer creates a pending offer on a listing
func (h *OfferHandler) SubmitOffer(c echo.Context) error {
	var req submitOfferRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	buyerID := c.Get("uid").(string)

	offer, err := h.offerUseCase.SubmitOffer(c.Request().Context(), buyerID, usecase.SubmitOfferInput{
		ListingID: req.ListingID,
		Amount:    req.Amount,
		Message:   req.Message,
	})

	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, offer)
}

// AcceptOffer resolves the offer to accepted and unlocks the chat
func (h *OfferHandler) AcceptOffer(c echo.Context) error {
	return h.respond(c, usecase.DecisionAccept)
}

// RejectOffer resolves the offer to rejected
func (h *OfferHandler) RejectOffer(c echo.Context) error {
	return h.respond(c, usecase.DecisionReject)
}

func (h *OfferHandler) respond(c echo.Context, decision string) error {
	sellerID := c.Get("uid").(string)
	offerID := c.Param("id")

	offer, err := h.offerUseCase.RespondToOffer(c.Request().Context(), sellerID, offerID, decision)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, offer)
}

// WithdrawOffer lets the buyer retract a pending offer
func (h *OfferHandler) WithdrawOffer(c echo.Context) error {
	buyerID := c.Get("uid").(string)
	offerID := c.Param("id")

	offer, err := h.offerUseCase.WithdrawOffer(c.Request().Context(), buyerID, offerID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, offer)
}

// GetOffer returns a single offer visible to its participants
func (h *OfferHandler) GetOffer(c echo.Context) error {
	userID := c.Get("uid").(string)
	offerID := c.Param("id")

	offer, err := h.offerUseCase.GetOffer(c.Request().Context(), userID, offerID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, offer)
}

// ListOffers lists the authenticated user's offers as buyer or seller
func (h *OfferHandler) ListOffers(c echo.Context) error {
	userID := c.Get("uid").(string)

	role := c.QueryParam("role")
	if role == "" {
		role = "buyer"
	}

	pagination := utils.GetPaginationParams(c)

	offers, total, err := h.offerUseCase.ListOffers(c.Request().Context(), userID, role, pagination.PageSize, pagination.Offset)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, offers, total, pagination.PageSize, pagination.Offset)
}

// GetChatGate reports whether the caller's chat on the listing is unlocked
func (h *OfferHandler) GetChatGate(c echo.Context) error {
	buyerID := c.Get("uid").(string)
	listingID := c.Param("id")

	enabled, err := h.offerUseCase.ChatGate(c.Request().Context(), listingID, buyerID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]interface{}{
		"listing_id":   listingID,
		"send_enabled": enabled,
	})
}
