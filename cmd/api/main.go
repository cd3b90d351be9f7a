package main

import (
	"context"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"otopasar/internal/adapter/api"
	"otopasar/internal/adapter/api/handler"
	apimiddleware "otopasar/internal/adapter/api/middleware"
	"otopasar/internal/adapter/api/router"
	"otopasar/internal/adapter/repository"
	"otopasar/internal/delivery"
	"otopasar/internal/infrastructure/changestream"
	"otopasar/internal/infrastructure/firebase"
	"otopasar/internal/infrastructure/websocket"
	"otopasar/internal/notify"
	"otopasar/internal/usecase"
	"otopasar/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption

	// Try to get service account from environment variable (for production)
	serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON")
	if serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		// Fallback to file path (for local development)
		serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if serviceAccountPath == "" {
			serviceAccountPath = "./service-account.json"
		}

		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}

		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	listingRepo := repository.NewFirestoreListingRepository(firestoreClient)
	offerRepo := repository.NewFirestoreOfferRepository(firestoreClient)
	chatRepo := repository.NewFirestoreChatRepository(firestoreClient)

	firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient, cfg.FirebaseApiKey)

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	pipeline := delivery.NewPipeline(chatRepo, cfg.DeliveryMaxRetries, cfg.DeliveryRetryBackoff, nil)

	streamFactory := changestream.NewFirestoreFactory(firestoreClient)
	bridge := notify.NewBridge(streamFactory, cfg.NotifyDebounce, cfg.NotifyPollInterval)
	defer bridge.Close()

	offerUseCase := usecase.NewOfferUseCase(offerRepo, chatRepo, listingRepo, userRepo, wsManager, cfg.OfferCeiling)
	chatUseCase := usecase.NewChatUseCase(chatRepo, offerRepo, listingRepo, userRepo, pipeline, wsManager)
	notificationUseCase := usecase.NewNotificationUseCase(chatRepo, bridge, wsManager)

	// The pipeline reports every entry transition back through the chat use
	// case; the manager feeds inbound frames into it.
	pipeline.SetSink(chatUseCase.HandleDeliveryUpdate)
	pipeline.Start(ctx)
	defer pipeline.Stop()
	wsManager.SetSink(chatUseCase)

	handler.Setup(offerUseCase, chatUseCase)
	handler.SetupHealthHandler(firebaseAuthClient)
	handler.SetupDevTokenHandler(firebaseAuthClient, userRepo)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	wsHandler := handler.NewWebSocketHandler(wsManager, authClient, notificationUseCase)

	router.Setup(e, authMiddleware)
	router.SetupDevRouter(e, cfg.Environment)
	router.SetupWebSocketRouter(e, wsHandler)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
