package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skyrelay/skyrelay/internal/bluesky"
	"github.com/skyrelay/skyrelay/internal/cache"
	"github.com/skyrelay/skyrelay/internal/db"
	"github.com/skyrelay/skyrelay/internal/models"
	"github.com/skyrelay/skyrelay/internal/relay"
	"github.com/skyrelay/skyrelay/pkg/logging"
)

// Router sets up the admin API routes
type Router struct {
	db         *db.DB
	cache      *cache.Cache
	store      *db.RelayStore
	scheduler  *relay.Scheduler
	defaultPDS string
	logger     *zap.Logger
}

// NewRouter creates a new admin API router
func NewRouter(database *db.DB, redisCache *cache.Cache, store *db.RelayStore, scheduler *relay.Scheduler, defaultPDS string) *Router {
	return &Router{
		db:         database,
		cache:      redisCache,
		store:      store,
		scheduler:  scheduler,
		defaultPDS: defaultPDS,
		logger:     logging.WithComponent("api-router"),
	}
}

// SetupRoutes sets up all admin API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	engine.GET("/accounts", r.listAccounts)
	engine.POST("/accounts/:id/run", r.runAccount)
	engine.POST("/accounts/:id/destination", r.linkDestination)
	engine.GET("/instances", r.listInstances)
}

// healthHandler reports service, database and cache health
func (r *Router) healthHandler(c *gin.Context) {
	ctx := c.Request.Context()

	if err := r.db.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "FAIL",
			"service": "skyrelay",
			"error":   "database unavailable",
		})
		return
	}

	cacheStatus := "OK"
	if err := r.cache.Health(ctx); err != nil {
		if err == cache.ErrCacheDisabled {
			cacheStatus = "disabled"
		} else {
			cacheStatus = "FAIL"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "OK",
		"service": "skyrelay",
		"cache":   cacheStatus,
	})
}

// accountView is the credential-free projection returned by the API.
type accountView struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Instance        string   `json:"instance"`
	LastPostTime    string   `json:"last_post_time"`
	HasDestination  bool     `json:"has_destination"`
	BskyHandle      string   `json:"bsky_handle,omitempty"`
	RelayCriteria   string   `json:"relay_criteria"`
	RelayVisibility []string `json:"relay_visibility"`
}

func (r *Router) listAccounts(c *gin.Context) {
	accounts, err := r.store.FindLinked(c.Request.Context())
	if err != nil {
		r.logger.Error("Could not list accounts", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list accounts"})
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, toAccountView(account))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": views})
}

func toAccountView(account *models.Account) accountView {
	return accountView{
		ID:              account.ID,
		Name:            account.Name,
		Instance:        account.InstanceURL(),
		LastPostTime:    account.LastPostTime.UTC().Format("2006-01-02T15:04:05Z"),
		HasDestination:  account.HasDestination(),
		BskyHandle:      account.BskyHandle.String,
		RelayCriteria:   string(account.RelayCriteria),
		RelayVisibility: account.RelayVisibility,
	}
}

// runAccount triggers an immediate relay run for one account
func (r *Router) runAccount(c *gin.Context) {
	accountID := c.Param("id")

	err := r.scheduler.RunNow(c.Request.Context(), accountID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	case errors.Is(err, relay.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
	case errors.Is(err, relay.ErrAccountBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "relay run already in progress"})
	default:
		r.logger.Error("Manual relay run failed",
			zap.String("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "relay run failed"})
	}
}

// linkDestination validates and stores Bluesky credentials for an account.
// Format checks run first so obviously bad input never reaches the PDS.
func (r *Router) linkDestination(c *gin.Context) {
	accountID := c.Param("id")

	var req struct {
		Handle      string `json:"handle"`
		AppPassword string `json:"app_password"`
		PDS         string `json:"pds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !bluesky.ValidateHandle(req.Handle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid handle"})
		return
	}
	if !bluesky.ValidateAppPassword(req.AppPassword) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app password format"})
		return
	}

	account, err := r.store.GetByID(c.Request.Context(), accountID)
	if err != nil {
		r.logger.Error("Could not load account", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load account"})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	pds := req.PDS
	if pds == "" {
		pds = r.defaultPDS
	}

	if !bluesky.ValidateCredentials(c.Request.Context(), pds, req.Handle, req.AppPassword) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "credentials rejected by the PDS"})
		return
	}

	if err := r.store.PutDestination(c.Request.Context(), accountID, req.Handle, req.AppPassword, pds); err != nil {
		r.logger.Error("Could not store destination credentials",
			zap.String("account_id", accountID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (r *Router) listInstances(c *gin.Context) {
	usage, err := r.store.InstanceUsage(c.Request.Context())
	if err != nil {
		r.logger.Error("Could not list instances", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list instances"})
		return
	}

	type instanceView struct {
		URL   string `json:"url"`
		Users int64  `json:"users"`
	}
	views := make([]instanceView, 0, len(usage))
	for _, row := range usage {
		views = append(views, instanceView{URL: row.URL, Users: row.Count})
	}
	c.JSON(http.StatusOK, gin.H{"instances": views})
}
