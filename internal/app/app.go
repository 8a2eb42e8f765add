package app

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-server/internal/db"
	"chat-server/internal/handlers"
	"chat-server/internal/models"
	"chat-server/internal/services"
	"chat-server/internal/store"
	"chat-server/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func Run() {
	if err := utils.LoadEnv(); err != nil {
		log.Println("Warning: .env file not found")
	}

	connString := utils.GetEnv("DATABASE_URL", "")
	if connString == "" {
		// Fallback to individual vars
		connString = "postgres://" + utils.GetEnv("POSTGRES_USER", "postgres") + ":" +
			utils.GetEnv("POSTGRES_PASSWORD", "postgres") + "@" +
			utils.GetEnv("POSTGRES_HOST", "localhost") + ":" +
			utils.GetEnv("POSTGRES_PORT", "5432") + "/" +
			utils.GetEnv("POSTGRES_DB", "chatdb") + "?sslmode=disable"
	}

	pool, err := db.Connect(context.Background(), connString)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	st := store.NewPostgres(pool)
	userService := services.NewUserService(st)

	// The hub and call manager hold all process-wide coordination state;
	// created here, injected below, torn down with the process.
	hub := handlers.NewHub()
	calls := handlers.NewCallManager(hub, utils.GetEnvDuration("CALL_RING_TIMEOUT", 45*time.Second))
	events := handlers.NewEventHandler(hub, calls, st)

	app := fiber.New()

	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")

	// Public routes
	api.Post("/register", func(c *fiber.Ctx) error {
		var req models.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		user, err := userService.Register(c.Context(), req)
		if err != nil {
			if errors.Is(err, store.ErrUserExists) {
				return c.Status(400).JSON(fiber.Map{"error": "username already exists"})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(user)
	})

	api.Post("/login", func(c *fiber.Ctx) error {
		var req models.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
		}
		res, err := userService.Login(c.Context(), req)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(res)
	})

	// Protected routes
	protected := api.Group("/")
	protected.Use(handlers.AuthMiddleware)

	protected.Get("/users", func(c *fiber.Ctx) error {
		authUserID := c.Locals("user_id").(int)

		users, err := st.Users(c.Context())
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to fetch users"})
		}

		var resp []fiber.Map
		for _, u := range users {
			if u.ID == authUserID {
				continue
			}
			status := "offline"
			if hub.IsOnline(u.ID) {
				status = "online"
			}
			resp = append(resp, fiber.Map{
				"id":         u.ID,
				"username":   u.Username,
				"avatar":     u.Avatar,
				"created_at": u.CreatedAt,
				"status":     status,
			})
		}
		return c.JSON(resp)
	})

	// Friends
	protected.Post("/friends/request", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		var body struct {
			ToID int `json:"to_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.ToID == 0 {
			return c.Status(400).JSON(fiber.Map{"error": "to_id required"})
		}
		if err := st.CreateFriendRequest(c.Context(), userID, body.ToID); err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(201).JSON(fiber.Map{"status": models.FriendPending})
	})

	protected.Put("/friends/accept", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		var body struct {
			FromID int `json:"from_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.FromID == 0 {
			return c.Status(400).JSON(fiber.Map{"error": "from_id required"})
		}
		if err := st.AcceptFriendRequest(c.Context(), userID, body.FromID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return c.Status(404).JSON(fiber.Map{"error": "no pending request"})
			}
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": models.FriendAccepted})
	})

	protected.Get("/friends", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(int)
		friends, err := st.Friends(c.Context(), userID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if friends == nil {
			friends = []models.User{}
		}
		return c.JSON(friends)
	})

	// Conversations
	protected.Get("/conversations/recent", handlers.RecentConversationsHandler(st, hub))
	protected.Post("/conversations/private", handlers.CreatePrivateHandler(st, hub))
	protected.Post("/conversations/group", handlers.CreateGroupHandler(st, hub))
	protected.Put("/conversations/:id/leave", handlers.LeaveGroupHandler(st, hub))
	protected.Put("/conversations/:id/icon", handlers.UpdateIconHandler(st, hub))
	protected.Get("/conversations/:id/messages", handlers.MessagesHandler(st))

	// Messages
	protected.Post("/messages", handlers.SendMessageHTTPHandler(events))
	protected.Put("/messages/:id/status", handlers.UpdateStatusHandler(st, hub))
	protected.Put("/messages/:id/delete", handlers.DeleteMessageHandler(st, hub))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket route. Middleware order matters: AuthMiddleware resolves
	// identity, then the handler registers and subscribes before reading.
	app.Use("/ws", handlers.WSUpgradeMiddleware)
	app.Use("/ws", handlers.AuthMiddleware)
	app.Get("/ws", handlers.WebSocketHandler(events))

	port := utils.GetEnv("PORT", "3001")
	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Panic(err)
		}
	}()

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	log.Println("Gracefully shutting down...")
	_ = app.Shutdown()
	log.Println("Server shutdown complete")
}
