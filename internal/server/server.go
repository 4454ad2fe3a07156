package server

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/pete-rs/tinyroom-api-sub000/internal/auth"
	"github.com/pete-rs/tinyroom-api-sub000/internal/config"
	"github.com/pete-rs/tinyroom-api-sub000/internal/handler"
	"github.com/pete-rs/tinyroom-api-sub000/internal/presence"
	"github.com/pete-rs/tinyroom-api-sub000/internal/service"
)

// Server wires configuration, storage, the realtime hubs, and the HTTP
// surface together.
type Server struct {
	app *fiber.App
	cfg *config.Config
	db  *gorm.DB

	jwtManager *auth.JWTManager
	googleAuth *auth.GoogleAuthenticator

	canvas   *service.CanvasService
	roomHub  *handler.RoomHub
	notifHub *handler.NotificationHub
	presence *presence.Manager // nil when redis is not configured
}

func New(cfg *config.Config, db *gorm.DB, pres *presence.Manager) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	s := &Server{
		app:        app,
		cfg:        cfg,
		db:         db,
		jwtManager: auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry),
		googleAuth: auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID),
		canvas:     service.NewCanvasService(db),
		roomHub:    handler.NewRoomHub(cfg.WebSocket.WriteTimeout),
		notifHub:   handler.NewNotificationHub(cfg.WebSocket.WriteTimeout),
		presence:   pres,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET,POST,PATCH,PUT,DELETE,OPTIONS",
		AllowCredentials: s.cfg.CORS.AllowOrigins != "*",
	}))
}

func (s *Server) setupRoutes() {
	notifier := handler.NewNotifier(s.db, s.notifHub)

	authHandler := handler.NewAuthHandler(s.db, s.jwtManager, s.googleAuth, s.cfg.Auth.SecureCookie)
	userHandler := handler.NewUserHandler(s.db)
	roomHandler := handler.NewRoomHandler(s.db, s.canvas, s.roomHub, notifier, s.presence)
	elementHandler := handler.NewElementHandler(s.db, s.canvas, s.roomHub)
	commentHandler := handler.NewCommentHandler(s.db, s.canvas, notifier)
	reactionHandler := handler.NewReactionHandler(s.db, s.canvas, notifier)
	followHandler := handler.NewFollowHandler(s.db, notifier)
	notificationHandler := handler.NewNotificationHandler(s.db)
	healthHandler := handler.NewHealthHandler(s.presence)
	canvasWS := handler.NewCanvasWSHandler(s.db, s.canvas, s.roomHub, s.presence)

	s.app.Get("/health", healthHandler.Health)

	// Auth endpoints take untrusted tokens; rate limit them.
	authGroup := s.app.Group("/api/auth", limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
	}))
	authGroup.Post("/google", authHandler.GoogleLogin)
	authGroup.Post("/refresh", authHandler.RefreshToken)
	authGroup.Post("/logout", authHandler.Logout)

	api := s.app.Group("/api", auth.AuthMiddleware(s.jwtManager))

	api.Get("/me", authHandler.GetMe)
	api.Patch("/me", userHandler.UpdateMe)

	users := api.Group("/users")
	users.Get("/search", userHandler.SearchUsers)
	users.Get("/:id", userHandler.GetUser)
	users.Get("/:id/followers", followHandler.ListFollowers)
	users.Get("/:id/following", followHandler.ListFollowing)
	users.Post("/:id/follow", followHandler.FollowUser)
	users.Delete("/:id/follow", followHandler.UnfollowUser)

	rooms := api.Group("/rooms")
	rooms.Post("/", roomHandler.CreateRoom)
	rooms.Get("/", roomHandler.ListMyRooms)
	rooms.Get("/:id", roomHandler.GetRoom)
	rooms.Patch("/:id", roomHandler.UpdateRoom)
	rooms.Delete("/:id", roomHandler.DeleteRoom)
	rooms.Post("/:id/invite", roomHandler.InviteUser)
	rooms.Post("/:id/leave", roomHandler.LeaveRoom)
	rooms.Get("/:id/messages", roomHandler.ListMessages)

	elements := api.Group("/rooms/:roomId/elements")
	elements.Get("/", elementHandler.ListElements)
	elements.Post("/", elementHandler.CreateElement)
	elements.Get("/:id", elementHandler.GetElement)
	elements.Patch("/:id", elementHandler.UpdateElement)
	elements.Delete("/:id", elementHandler.DeleteElement)

	api.Post("/elements/:elementId/comments", commentHandler.CreateComment)
	api.Get("/elements/:elementId/comments", commentHandler.ListComments)
	api.Delete("/comments/:id", commentHandler.DeleteComment)

	api.Post("/elements/:elementId/reactions", reactionHandler.AddReaction)
	api.Delete("/elements/:elementId/reactions", reactionHandler.RemoveReaction)
	api.Get("/elements/:elementId/reactions", reactionHandler.ListReactions)

	api.Get("/notifications", notificationHandler.ListNotifications)
	api.Patch("/notifications/:id/read", notificationHandler.MarkRead)
	api.Patch("/notifications/read-all", notificationHandler.MarkAllRead)

	wsConfig := websocket.Config{
		ReadBufferSize:   s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize:  s.cfg.WebSocket.WriteBufferSize,
		HandshakeTimeout: s.cfg.WebSocket.HandshakeTimeout,
	}

	ws := s.app.Group("/ws", s.wsUpgradeMiddleware)
	ws.Get("/canvas", websocket.New(canvasWS.HandleWebSocket, wsConfig))
	ws.Get("/notifications", websocket.New(s.notifHub.HandleWebSocket, wsConfig))
}

// wsUpgradeMiddleware authenticates the upgrade request. Browsers cannot set
// headers on WebSocket handshakes, so the token may also arrive as a query
// parameter or the access_token cookie.
func (s *Server) wsUpgradeMiddleware(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Query("token")
	if token == "" {
		token = c.Cookies("access_token")
	}
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing token"})
	}

	claims, err := s.jwtManager.ValidateAccessToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}

	c.Locals("userId", claims.UserID)
	return c.Next()
}

// Start runs the listener until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("[Server] Listening on %s", s.cfg.Server.Port)
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown drains connections gracefully.
func (s *Server) Shutdown() error {
	log.Println("[Server] Shutting down")
	return s.app.ShutdownWithTimeout(10 * time.Second)
}
