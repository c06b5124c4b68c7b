package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"duel-arena/internal/auth"
	"duel-arena/internal/blockchain"
	"duel-arena/internal/config"
	"duel-arena/internal/database"
	"duel-arena/internal/handlers"
	"duel-arena/internal/jobs"
	"duel-arena/internal/repository"
	"duel-arena/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("[Main] Failed to connect to database: %v", err)
	}
	repo := repository.NewRepository(db)

	solanaClient := blockchain.NewSolanaClient(cfg.Solana.Network)
	anchorClient, err := blockchain.NewAnchorClient(
		solanaClient,
		cfg.Solana.ProgramID,
		cfg.Solana.AuthorityKey,
		cfg.Solana.FeeCollector,
	)
	if err != nil {
		log.Fatalf("[Main] Failed to initialize duels program client: %v", err)
	}

	balanceCtx, cancelBalance := context.WithTimeout(context.Background(), 10*time.Second)
	if balance, err := solanaClient.GetSOLBalance(balanceCtx, cfg.Solana.FeeCollector); err != nil {
		log.Printf("[Main] Fee collector balance check failed: %v", err)
	} else {
		log.Printf("[Main] Fee collector %s balance: %s SOL", cfg.Solana.FeeCollector, balance)
	}
	cancelBalance()

	priceService := services.NewPriceService()
	duelService := services.NewDuelService(
		repo,
		solanaClient,
		blockchain.NewProgramGateway(anchorClient),
		priceService,
		services.DuelServiceConfig{
			FeePercent:       cfg.Duel.FeePercent,
			MinConfirmations: cfg.Solana.MinConfirmations,
			DuelDuration:     cfg.Duel.Duration,
			CountdownDelay:   cfg.Duel.CountdownDelay,
			PendingTTL:       cfg.Duel.PendingTTL,
			QueueSize:        cfg.Duel.QueueSize,
			WorkerCount:      cfg.Duel.WorkerCount,
			DefaultSymbol:    cfg.Duel.DefaultSymbol,
		},
	)

	duelService.StartMatching(context.Background())

	resolver := jobs.NewDuelResolver(duelService, cfg.Duel.ResolverInterval)
	resolver.Start()
	expiry := jobs.NewDuelExpiry(duelService, cfg.Duel.ExpiryInterval)
	expiry.Start()

	gin.SetMode(cfg.Server.GinMode)
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	duelHandler := handlers.NewDuelHandler(duelService)

	api := router.Group("/api")
	{
		// Public duel views
		api.GET("/duels", duelHandler.GetRunningDuels)
		api.GET("/duels/available", duelHandler.GetAvailableDuels)
		api.GET("/duels/config", duelHandler.GetConfig)
		api.GET("/duels/user/:userId", duelHandler.GetUserDuels)
		api.GET("/duels/:id", duelHandler.GetDuel)
		api.GET("/duels/:id/result", duelHandler.GetDuelResult)

		// Player actions
		authed := api.Group("")
		authed.Use(auth.AuthMiddleware(cfg.JWT.Secret))
		{
			authed.POST("/duels", duelHandler.CreateDuel)
			authed.POST("/duels/:id/join", duelHandler.JoinDuel)
			authed.POST("/duels/:id/cancel", duelHandler.CancelDuel)
			authed.POST("/duels/:id/claim", duelHandler.ClaimWinnings)
			authed.GET("/duels/stats", duelHandler.GetStatistics)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Printf("[Main] Server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Main] Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("[Main] Shutting down...")

	resolver.Stop()
	expiry.Stop()
	duelService.StopMatching()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Main] Forced shutdown: %v", err)
	}
	log.Printf("[Main] Server stopped")
}
