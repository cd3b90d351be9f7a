package handler

import (
	"otopasar/internal/usecase"
)

var (
	offerHandler *OfferHandler
	chatHandler  *ChatHandler
)

func Setup(
	offerUseCase *usecase.OfferUseCase,
	chatUseCase *usecase.ChatUseCase,
) {
	offerHandler = NewOfferHandler(offerUseCase)
	chatHandler = NewChatHandler(chatUseCase)
}

func GetOfferHandler() *OfferHandler {
	return offerHandler
}

func GetChatHandler() *ChatHandler {
	return chatHandler
}
