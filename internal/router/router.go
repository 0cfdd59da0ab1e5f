package router

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/ridehub/backend/internal/chat"
	"github.com/anonto42/ridehub/backend/internal/handlers"
	"github.com/anonto42/ridehub/backend/internal/metrics"
	"github.com/anonto42/ridehub/backend/internal/middleware"
	"github.com/anonto42/ridehub/backend/internal/models"
	"github.com/anonto42/ridehub/backend/internal/notifications"
	"github.com/anonto42/ridehub/backend/internal/realtime"
	"github.com/anonto42/ridehub/backend/internal/repositories"
	"github.com/anonto42/ridehub/backend/pkg/config"
	"github.com/anonto42/ridehub/backend/pkg/push"
	"github.com/anonto42/ridehub/backend/pkg/worker"
	"github.com/anonto42/ridehub/backend/validators"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dependencies are the process-wide resources the routes are built from.
type Dependencies struct {
	Config       *config.Config
	Postgres     *gorm.DB
	Mongo        *mongo.Database
	FirebaseAuth *auth.Client // nil disables Firebase credentials
	Broker       *realtime.Broker
	Push         push.Gateway
	Pool         *worker.Pool
	Validator    *validators.CustomValidator
	Log          *zap.Logger
}

// SetupRoutes migrates the schema, builds every repository and handler and
// mounts the routes on e.
func SetupRoutes(e *echo.Echo, deps Dependencies) error {
	log := deps.Log

	err := deps.Postgres.AutoMigrate(
		&models.User{},
		&models.FriendRequest{},
		&models.Comment{},
		&models.Like{},
		&models.Follow{},
		&models.Notification{},
		&models.NotificationPreferences{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("PostgreSQL auto-migrations completed")

	e.Use(metrics.Middleware())
	e.GET("/health", handlers.HealthCheck)

	// --- Repositories ---
	userRepo := repositories.NewPostgresUserRepository(deps.Postgres)
	postRepo := repositories.NewMongoPostRepository(deps.Mongo)
	commentRepo := repositories.NewPostgresCommentRepository(deps.Postgres)
	likeRepo := repositories.NewPostgresLikeRepository(deps.Postgres)
	friendshipRepo := repositories.NewPostgresFriendshipRepository(deps.Postgres)
	followRepo := repositories.NewPostgresFollowRepository(deps.Postgres)
	notificationRepo := repositories.NewPostgresNotificationRepository(deps.Postgres)
	preferenceRepo := repositories.NewPostgresPreferenceRepository(deps.Postgres)
	chatRepo := repositories.NewMongoChatMessageRepository(deps.Mongo)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chatRepo.EnsureIndexes(ctx); err != nil {
		log.Warn("failed to ensure chat message indexes", zap.Error(err))
	}

	// --- Notification core ---
	dispatcher := notifications.NewDispatcher(
		preferenceRepo,
		notificationRepo,
		deps.Broker,
		deps.Push,
		log.Named("dispatcher"),
		notifications.WithDedupWindow(deps.Config.DedupWindow),
	)
	notifier := handlers.NewBackgroundNotifier(deps.Pool, dispatcher, log.Named("notifier"))
	related := relatedObjects(userRepo, postRepo, commentRepo)
	chatService := chat.NewService(chatRepo, deps.Broker, notifier.Deferred(), deps.Validator.Engine(), log.Named("chat"))

	// --- Credentials ---
	jwtVerifier := middleware.NewJWTVerifier(deps.Config.JWTSecret)
	var idTokens middleware.IDTokenVerifier
	verifiers := middleware.Verifiers{jwtVerifier}
	if deps.FirebaseAuth != nil {
		idTokens = deps.FirebaseAuth
		verifiers = append(verifiers, middleware.NewFirebaseVerifier(deps.FirebaseAuth, userRepo))
	}

	// --- Unprotected routes for authentication ---
	authGroup := e.Group("/api/v1/auth")
	handlers.NewAuthHandler(userRepo, idTokens, jwtVerifier).RegisterAuthRoutes(authGroup)

	// --- Websockets authenticate from the query string ---
	ws := e.Group("/ws")
	handlers.NewRealtimeHandler(deps.Broker.Hub(), verifiers, notificationRepo, userRepo, chatService, log.Named("realtime")).
		RegisterRealtimeRoutes(ws)

	// --- Protected routes ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(verifiers))

	handlers.NewUserHandler(userRepo, followRepo).RegisterProfileRoutes(api)
	handlers.NewPostHandler(postRepo, userRepo, followRepo, notifier, log.Named("posts")).RegisterPostRoutes(api)
	handlers.NewFollowHandler(followRepo, userRepo, notifier).RegisterFollowRoutes(api)
	handlers.NewFriendshipHandler(friendshipRepo, userRepo, notifier).RegisterFriendshipRoutes(api)
	handlers.NewCommentHandler(commentRepo, postRepo, userRepo, notifier).RegisterCommentRoutes(api)
	handlers.NewLikeHandler(likeRepo, postRepo, userRepo, notifier).RegisterLikeRoutes(api)
	handlers.NewNotificationHandler(notificationRepo, preferenceRepo, userRepo, related).RegisterNotificationRoutes(api)
	handlers.NewChatHandler(chatRepo, userRepo, chatService).RegisterChatRoutes(api)

	log.Info("All routes configured")
	return nil
}

// relatedObjects wires the lookups used to expand a notification's target.
func relatedObjects(users repositories.UserRepository, posts repositories.PostRepository, comments repositories.CommentRepository) *notifications.RelatedObjectRegistry {
	reg := notifications.NewRelatedObjectRegistry()

	reg.Register(notifications.KindPost, func(ctx context.Context, id string) (any, error) {
		return posts.GetPostByID(ctx, id)
	})
	reg.Register(notifications.KindUser, func(ctx context.Context, id string) (any, error) {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q: %w", id, err)
		}
		user, err := users.GetUserByID(ctx, uint(n))
		if err != nil {
			return nil, err
		}
		return user.ToCompact(), nil
	})
	reg.Register(notifications.KindComment, func(ctx context.Context, id string) (any, error) {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid comment id %q: %w", id, err)
		}
		return comments.GetCommentByID(ctx, uint(n))
	})

	return reg
}
