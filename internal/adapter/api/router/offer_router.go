package router

import (
	"github.com/labstack/echo/v4"

	"otopasar/internal/adapter/api/handler"
	"otopasar/internal/adapter/api/middleware"
)

// SetupOfferRouter sets up all offer-related routes
func SetupOfferRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	offerHandler := handler.GetOfferHandler()

	offerGroup := e.Group("/v1/offers")
	offerGroup.Use(authMiddleware.Authenticate)

	offerGroup.POST("", offerHandler.SubmitOffer)              // POST /v1/offers - Submit offer on a listing
	offerGroup.GET("", offerHandler.ListOffers)                // GET /v1/offers?role=buyer|seller
	offerGroup.GET("/:id", offerHandler.GetOffer)              // GET /v1/offers/:id
	offerGroup.POST("/:id/accept", offerHandler.AcceptOffer)   // POST /v1/offers/:id/accept - Seller accepts
	offerGroup.POST("/:id/reject", offerHandler.RejectOffer)   // POST /v1/offers/:id/reject - Seller rejects
	offerGroup.POST("/:id/withdraw", offerHandler.WithdrawOffer) // POST /v1/offers/:id/withdraw - Buyer retracts

	// Chat gate for a listing from the buyer's point of view
	e.GET("/v1/listings/:id/gate", offerHandler.GetChatGate, authMiddleware.Authenticate)
}
