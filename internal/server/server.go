package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"trailsbuddy/internal/auth"
	"trailsbuddy/internal/config"
	"trailsbuddy/internal/contest"
	"trailsbuddy/internal/play"
	"trailsbuddy/internal/settlement"
	"trailsbuddy/internal/wallet"
)

type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *sqlx.DB
	config *config.Config
}

func New(db *sqlx.DB, cfg *config.Config, walletService *wallet.Service, playService *play.Service, contests *contest.Repository, settler *settlement.Settler) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(RequestLoggingMiddleware())
	router.Use(MetricsMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))

	walletHandler := wallet.NewHandler(walletService)
	contestHandler := contest.NewHandler(contests)
	playHandler := play.NewHandler(playService)
	settlementHandler := settlement.NewHandler(settler)

	authMiddleware := auth.AuthMiddleware(cfg.JWTSecret)
	protected := router.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/wallet", walletHandler.GetBalance)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.POST("/wallet/topup", walletHandler.TopUp)
		protected.POST("/wallet/withdrawals", walletHandler.Withdraw)

		protected.GET("/contests", contestHandler.ListOpen)
		protected.GET("/contests/:contestID", contestHandler.Get)

		protected.POST("/contests/:contestID/pay", playHandler.Pay)
		protected.POST("/contests/:contestID/start", playHandler.Start)
		protected.POST("/contests/:contestID/resume", playHandler.Resume)
		protected.GET("/contests/:contestID/next-question", playHandler.NextQuestion)
		protected.POST("/contests/:contestID/answer", playHandler.Answer)
		protected.POST("/contests/:contestID/finish", playHandler.Finish)
		protected.GET("/contests/:contestID/tracker", playHandler.GetTracker)
	}

	adminMiddleware := auth.RequireRole("admin")
	admin := router.Group("/admin")
	admin.Use(authMiddleware, adminMiddleware)
	{
		admin.POST("/contests/:contestID/cancel", settlementHandler.Cancel)
		admin.POST("/withdrawals/:transactionID/complete", walletHandler.CompleteWithdrawal)
		admin.POST("/withdrawals/:transactionID/fail", walletHandler.FailWithdrawal)
		admin.POST("/referrals", walletHandler.GrantReferral)
	}

	router.GET("/health", Health)
	router.GET("/metrics", Metrics())

	return &Server{
		router: router,
		db:     db,
		config: cfg,
	}
}

func (s *Server) Start(port string) error {
	s.http = &http.Server{
		Addr:    ":" + port,
		Handler: s.router,
	}
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
