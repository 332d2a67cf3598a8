package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/yungbote/mindpath-backend/internal/board"
	redisclient "github.com/yungbote/mindpath-backend/internal/clients/redis"
	"github.com/yungbote/mindpath-backend/internal/db"
	"github.com/yungbote/mindpath-backend/internal/logger"
	"github.com/yungbote/mindpath-backend/internal/observability"
	"github.com/yungbote/mindpath-backend/internal/repos"
	"github.com/yungbote/mindpath-backend/internal/server"
	"github.com/yungbote/mindpath-backend/internal/services"
	"github.com/yungbote/mindpath-backend/internal/sessionlock"
	"github.com/yungbote/mindpath-backend/internal/utils"
	"github.com/yungbote/mindpath-backend/internal/ws"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	shutdownTracing := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "mindpath-backend",
		Environment: utils.GetEnv("ENVIRONMENT", "development", log),
		Version:     utils.GetEnv("SERVICE_VERSION", "dev", log),
	})
	if shutdownTracing != nil {
		defer shutdownTracing(ctx)
	}

	// Env
	log.Info("Loading environment variables from main...")
	port := utils.GetEnv("PORT", "8080", log)
	jwtSecretKey := utils.GetEnv("SOCKET_JWT_SECRET", "defaultsecret", log)
	redisNamespace := utils.GetEnv("REDIS_NAMESPACE", "mindpath", log)
	sessionTTL := utils.GetEnvAsDuration("SESSION_TTL_SECONDS", 60*time.Second, log)
	heartbeat := utils.GetEnvAsDuration("SESSION_HEARTBEAT_SECONDS", 15*time.Second, log)
	actionCooldown := time.Duration(utils.GetEnvAsInt("ACTION_COOLDOWN_MS", 300, log)) * time.Millisecond
	scanInterval := utils.GetEnvAsDuration("INTERVENTION_SCAN_SECONDS", 30*time.Second, log)
	maxContentChars := utils.GetEnvAsInt("INTERVENTION_MAX_CHARS", 600, log)
	quotaTTL := utils.GetEnvAsDuration("QUOTA_CACHE_TTL_SECONDS", 60*time.Second, log)
	allowedOrigins := strings.Split(utils.GetEnv("ALLOWED_ORIGINS", "", log), ",")
	if len(allowedOrigins) == 1 && allowedOrigins[0] == "" {
		allowedOrigins = nil
	}

	planDefaults := services.PlanQuota{
		InterventionQuota: utils.GetEnvAsInt("INTERVENTION_QUOTA_DEFAULT", 10, log),
		TipQuota:          utils.GetEnvAsInt("TIP_QUOTA_DEFAULT", 10, log),
	}
	trialDefaults := services.PlanQuota{
		InterventionQuota: utils.GetEnvAsInt("TRIAL_INTERVENTION_QUOTA", 3, log),
		TipQuota:          utils.GetEnvAsInt("TRIAL_TIP_QUOTA", 3, log),
		TrialMoveLimit:    utils.GetEnvAsInt("TRIAL_MOVE_LIMIT", 20, log),
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	// Redis
	rdb, err := redisclient.New(log)
	if err != nil {
		log.Fatal("Redis init failed", "error", err)
	}

	// Board
	gameBoard, err := board.Default()
	if err != nil {
		log.Fatal("Board load failed", "error", err)
	}

	// Repos
	log.Info("Setting up Repos from main...")
	roomRepo := repos.NewRoomRepo(thePG, log)
	participantRepo := repos.NewParticipantRepo(thePG, log)
	playerStateRepo := repos.NewPlayerStateRepo(thePG, log)
	moveRepo := repos.NewMoveRepo(thePG, log)
	therapyEntryRepo := repos.NewTherapyEntryRepo(thePG, log)
	cardDrawRepo := repos.NewCardDrawRepo(thePG, log)
	interventionConfigRepo := repos.NewInterventionConfigRepo(thePG, log)
	interventionRepo := repos.NewInterventionRepo(thePG, log)
	interventionFeedbackRepo := repos.NewInterventionFeedbackRepo(thePG, log)
	planLimitsRepo := repos.NewPlanLimitsRepo(thePG, log)

	// Services
	log.Info("Setting up Services from main...")
	instanceID := uuid.NewString()
	lock := sessionlock.New(log, rdb, redisNamespace, instanceID, sessionTTL)
	authService := services.NewAuthService(log, rdb, redisNamespace, jwtSecretKey)
	quotaCache := services.NewQuotaCache(log, planLimitsRepo, quotaTTL, planDefaults, trialDefaults)
	aiClient, err := services.NewAIClient(log)
	if err != nil {
		log.Fatal("AI client init failed", "error", err)
	}

	snapshotService := services.NewSnapshotService(thePG, log, gameBoard,
		roomRepo, participantRepo, playerStateRepo, moveRepo, cardDrawRepo, interventionRepo, quotaCache)
	hub := ws.NewHub(log, snapshotService)

	roomService := services.NewRoomService(thePG, log, roomRepo, participantRepo, lock, authService)
	gameService := services.NewGameService(thePG, log, gameBoard,
		roomRepo, participantRepo, playerStateRepo, moveRepo, quotaCache)
	therapyService := services.NewTherapyService(thePG, log, participantRepo, moveRepo, therapyEntryRepo)
	deckService := services.NewDeckService(thePG, log, participantRepo, moveRepo, cardDrawRepo)
	interventionService := services.NewInterventionService(thePG, log,
		roomRepo, participantRepo, playerStateRepo, moveRepo, therapyEntryRepo,
		interventionConfigRepo, interventionRepo, interventionFeedbackRepo,
		quotaCache, aiClient, hub, services.InterventionOptions{
			MaxContentChars: maxContentChars,
		})
	aiService := services.NewAIService(thePG, log,
		roomRepo, participantRepo, playerStateRepo, moveRepo, therapyEntryRepo,
		quotaCache, aiClient, hub)

	// Sweeper
	sweeper := services.NewSweeper(log, scanInterval, hub, interventionService, hub)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// Websocket router + HTTP shell
	wsRouter := ws.NewRouter(log, hub, authService, lock, ws.HandlerDeps{
		Room:         roomService,
		Game:         gameService,
		Therapy:      therapyService,
		Deck:         deckService,
		Intervention: interventionService,
		AI:           aiService,
	}, ws.RouterOptions{
		ActionCooldown: actionCooldown,
		Heartbeat:      heartbeat,
	})

	router := server.NewRouter(server.RouterConfig{
		ServiceName:    "mindpath-backend",
		AllowedOrigins: allowedOrigins,
		WSRouter:       wsRouter,
	})

	log.Info("Starting server", "port", port, "instance_id", instanceID)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Server exited", "error", err)
	}
}
