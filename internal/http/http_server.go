package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/axiomenetwork/coinflip-relayer/internal/ledger"
	"github.com/axiomenetwork/coinflip-relayer/internal/sweep"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// HTTPServer exposes the ops surface: balance reads and sweep controls.
// The user-facing API lives in a separate service.
type HTTPServer struct {
	ledger  *ledger.VaultLedger
	sweeper *sweep.Sweeper
}

func NewHTTPServer(vl *ledger.VaultLedger, sweeper *sweep.Sweeper) *HTTPServer {
	return &HTTPServer{ledger: vl, sweeper: sweeper}
}

func (hs *HTTPServer) Start(ctx context.Context) {
	r := gin.Default()

	r.GET("/api/v1/health", hs.handleHealth)
	r.GET("/api/v1/balance/:user", hs.handleBalance)
	r.GET("/api/v1/sweep/preview", hs.handleSweepPreview)
	r.POST("/api/v1/sweep/run", hs.handleSweepRun)
	r.POST("/api/v1/sweep/single", hs.handleSweepSingle)

	addr := ":" + config.AppConfig.HTTPPort
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Infof("HTTP server is running on port %s", config.AppConfig.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown: %v", err)
	}
}

func (hs *HTTPServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (hs *HTTPServer) handleBalance(c *gin.Context) {
	view, err := hs.ledger.ViewOf(c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if view == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (hs *HTTPServer) handleSweepPreview(c *gin.Context) {
	candidates, err := hs.sweeper.Preview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candidates": candidates})
}

type sweepRunRequest struct {
	MaxUsers int `json:"max_users"`
}

func (hs *HTTPServer) handleSweepRun(c *gin.Context) {
	var req sweepRunRequest
	_ = c.ShouldBindJSON(&req)

	summary, err := hs.sweeper.Run(c.Request.Context(), req.MaxUsers)
	if errors.Is(err, sweep.ErrSweepInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

type sweepSingleRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Address string `json:"address" binding:"required"`
	Debt    string `json:"debt" binding:"required"`
}

func (hs *HTTPServer) handleSweepSingle(c *gin.Context) {
	var req sweepSingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	debt, ok := math.NewIntFromString(req.Debt)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid debt amount"})
		return
	}

	outcome, err := hs.sweeper.Single(c.Request.Context(), req.UserID, req.Address, debt)
	if errors.Is(err, sweep.ErrSweepInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, outcome)
}
