// @title           PhotoPrint Backend API
// @version         1.0.0
// @description     Back-office core for the photo-product ordering service: AI task orchestration, order lifecycle, franchisee credit, photo selection and print dispatch.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"log"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"photoprint-backend/docs"
	"photoprint-backend/internal/artifact"
	"photoprint-backend/internal/config"
	"photoprint-backend/internal/database"
	"photoprint-backend/internal/handlers"
	"photoprint-backend/internal/ledger"
	"photoprint-backend/internal/middleware"
	"photoprint-backend/internal/miniapp"
	"photoprint-backend/internal/orders"
	"photoprint-backend/internal/printer"
	"photoprint-backend/internal/selection"
	"photoprint-backend/internal/tasks"
	"photoprint-backend/internal/uploader"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.BaseURL != "" {
		if baseURL, err := url.Parse(cfg.BaseURL); err == nil {
			docs.SwaggerInfo.Host = baseURL.Host
			if baseURL.Scheme == "https" {
				docs.SwaggerInfo.Schemes = []string{"https", "http"}
			} else {
				docs.SwaggerInfo.Schemes = []string{"http", "https"}
			}
		}
	}

	dbClient, err := database.NewClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbClient.Close()

	if err := database.NewMigrator(dbClient.DB()).Run(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed successfully")

	settings := config.NewRuntimeStore(dbClient.DB())
	snap, err := settings.Snapshot()
	if err != nil {
		log.Fatalf("Failed to load app settings: %v", err)
	}

	store, err := artifact.NewStore(cfg.HDFolder, cfg.FinalFolder)
	if err != nil {
		log.Fatalf("Failed to initialize artifact store: %v", err)
	}

	var up uploader.Uploader
	if snap.ImageUploadStrategy == "grsai" && cfg.StorageURL != "" {
		up, err = uploader.NewObjectStore(cfg.StorageURL, cfg.StorageKey, cfg.StorageBucket)
		if err != nil {
			log.Fatalf("Failed to initialize object storage uploader: %v", err)
		}
	} else {
		up = uploader.NewDirect(cfg.BaseURL)
	}

	var tokenStore selection.TokenStore
	if cfg.TokenBackend == "redis" {
		tokenStore = selection.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	} else {
		tokenStore = selection.NewMemoryStore()
	}

	var qr selection.CodeGenerator
	if cfg.WechatAppID != "" {
		qr = miniapp.NewClient(cfg.WechatAppID, cfg.WechatSecret)
	}

	bus := orders.NewBus()
	ledgerService := ledger.NewService(dbClient)
	orderService := orders.NewService(dbClient, ledgerService, bus)

	manager, err := tasks.NewManager(dbClient, store, up, orderService, settings, cfg.BaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize task manager: %v", err)
	}
	manager.Subscribe(bus)
	if err := manager.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start task manager: %v", err)
	}

	dispatcher := printer.NewDispatcher(dbClient, store, orderService, settings)
	dispatcher.Subscribe(bus)

	selectionService := selection.NewService(dbClient, store, tokenStore, orderService, qr)

	ordersHandler := handlers.NewOrdersHandler(dbClient, store, orderService)
	effectHandler := handlers.NewEffectImagesHandler(dbClient, store, orderService)
	tasksHandler := handlers.NewTasksHandler(dbClient, manager)
	selectionHandler := handlers.NewSelectionHandler(selectionService)
	printerHandler := handlers.NewPrinterHandler(dispatcher, orderService)
	meituHandler := handlers.NewMeituHandler(manager)
	creditHandler := handlers.NewCreditHandler(ledgerService)
	filesHandler := handlers.NewFilesHandler(store)

	router := gin.Default()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check and public file serving (no auth)
	router.GET("/health", handlers.HealthHandler)
	router.GET("/public/hd/:filename", filesHandler.ServeHD)

	// Mini-app endpoints: authenticated by selection token, not JWT
	router.POST("/api/v1/photo-selection/verify-token", selectionHandler.VerifyToken)
	router.POST("/api/v1/photo-selection/search", selectionHandler.SearchOrders)
	router.POST("/api/v1/photo-selection/:order_id/submit", selectionHandler.Submit)

	// Provider callback (no auth, matched by msg_id)
	router.POST("/api/v1/meitu/callback", meituHandler.Callback)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	api.POST("/orders", ordersHandler.CreateOrder)
	api.GET("/orders/:id", ordersHandler.GetOrder)
	api.POST("/orders/:id/status", ordersHandler.UpdateStatus)
	api.POST("/orders/:id/cancel", ordersHandler.CancelOrder)
	api.GET("/orders/:id/tasks", ordersHandler.ListTasks)
	api.POST("/orders/:id/tasks", tasksHandler.Submit)
	api.POST("/orders/:id/effect-images", middleware.RequireRole(middleware.RoleAdmin), effectHandler.Upload)
	api.DELETE("/orders/:id/effect-images/:ref", middleware.RequireRole(middleware.RoleAdmin), effectHandler.Delete)
	api.POST("/orders/:id/send-to-printer", printerHandler.SendToPrinter)
	api.POST("/orders/:id/logistics", printerHandler.SetLogistics)

	api.POST("/tasks/:id/cancel", tasksHandler.Cancel)
	api.POST("/tasks/:id/poll", tasksHandler.Poll)
	api.POST("/meitu/tasks/:id/recheck", meituHandler.Recheck)

	api.POST("/photo-selection/qrcode", selectionHandler.IssueQRCode)

	api.POST("/credit/:franchisee_id/recharge", middleware.RequireRole(middleware.RoleAdmin), creditHandler.Recharge)
	api.GET("/credit/:franchisee_id/entries", creditHandler.ListEntries)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	log.Printf("Server starting on port %s", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
