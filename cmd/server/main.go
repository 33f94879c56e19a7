package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fireway-backend/internal/broadcast"
	"fireway-backend/internal/config"
	"fireway-backend/internal/dispatch"
	"fireway-backend/internal/handlers"
	"fireway-backend/internal/middleware"
	"fireway-backend/internal/models"
	"fireway-backend/internal/services"
	"fireway-backend/internal/store"
	"fireway-backend/internal/store/memory"
	"fireway-backend/internal/store/postgres"
	"fireway-backend/internal/tracking"
	"fireway-backend/internal/websocket"
)

func main() {
	log.Println("fireway backend starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	var ledger store.Ledger
	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("database migrations failed: %v", err)
		}
		ledger = postgres.New(db)
		log.Println("using PostgreSQL ledger")
	} else {
		ledger = memory.New()
		log.Println("DATABASE_URL not set, using in-memory ledger")
	}

	if err := store.Seed(ledger); err != nil {
		log.Fatalf("seeding failed: %v", err)
	}

	var notifier dispatch.Notifier
	if cfg.FirebaseCredentialsBase64 != "" {
		fcm, err := services.NewFCMServiceFromBase64(cfg.FirebaseCredentialsBase64)
		if err != nil {
			log.Printf("FCM disabled: %v", err)
		} else {
			notifier = fcm
			log.Println("Firebase Cloud Messaging initialized from base64 credentials")
		}
	} else if cfg.FirebaseCredentialsFile != "" {
		fcm, err := services.NewFCMService(cfg.FirebaseCredentialsFile)
		if err != nil {
			log.Printf("FCM disabled: %v", err)
		} else {
			notifier = fcm
			log.Println("Firebase Cloud Messaging initialized from file")
		}
	} else {
		log.Println("FCM credentials not configured, push notifications disabled")
	}

	router := broadcast.NewRouter()
	engine := dispatch.New(ledger, router, cfg.StoreFence(), cfg.NearThresholdMeters, notifier)
	projector := tracking.NewProjector(ledger)

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Authentication (no auth required)
	r.Post("/api/auth/login", handlers.Login(ledger, cfg.JWTSecret))

	// WebSocket endpoint (token via query param, anonymous allowed for tracking)
	r.Get("/ws", websocket.Handle(router, engine, cfg.JWTSecret))

	r.Route("/api", func(r chi.Router) {
		// Public customer tracking
		r.Get("/track/{token}", handlers.TrackDelivery(projector))

		// Driver endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireRole(models.RoleDriver))

			r.Post("/driver/shift/clock-in", handlers.ClockIn(engine))
			r.Post("/driver/shift/clock-out", handlers.ClockOut(engine))
			r.Get("/driver/shift/current", handlers.CurrentShift(engine))
			r.Get("/driver/shifts", handlers.ShiftHistory(engine))
			r.Get("/driver/shifts/{shiftID}/summary", handlers.ShiftSummary(engine))

			r.Get("/driver/orders/feed", handlers.OrderFeed(engine))
			r.Post("/driver/orders/{orderID}/claim", handlers.ClaimOrder(engine))
			r.Get("/driver/orders", handlers.MyOrders(engine))
			r.Patch("/driver/orders/sequence", handlers.UpdateSequence(engine))

			r.Post("/driver/deliveries/{deliveryID}/start", handlers.StartDelivery(engine))
			r.Post("/driver/deliveries/{deliveryID}/location", handlers.RecordLocation(engine))
			r.Post("/driver/deliveries/{deliveryID}/complete", handlers.CompleteDelivery(engine))

			r.Post("/driver/fcm-token", handlers.UpdateFCMToken(ledger))
		})

		// Shared authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))

			r.Get("/deliveries/{deliveryID}", handlers.DeliveryDetail(engine))
			r.Get("/deliveries/{deliveryID}/tracking-link", handlers.TrackingLink(ledger, cfg.TrackingBaseURL))
		})

		// Store staff endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireRole(models.RoleStoreStaff, models.RoleAdmin))

			r.Post("/orders", handlers.CreateOrder(engine))
			r.Get("/orders", handlers.AllOrders(engine))
			r.Post("/orders/{orderID}/assign", handlers.AssignOrder(engine))
			r.Get("/drivers", handlers.ListDrivers(ledger))
			r.Get("/deliveries", handlers.DeliveryLog(engine))

			r.Get("/dashboard/drivers", handlers.DashboardDrivers(engine))
			r.Get("/dashboard/stats", handlers.DashboardStats(engine))
			r.Get("/dashboard/alerts", handlers.DashboardAlerts(engine))
			r.Get("/dashboard/analytics", handlers.DashboardAnalytics(engine))
		})

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Post("/auth/register", handlers.Register(ledger))
		})
	})

	log.Printf("server listening on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal(err)
	}
}
