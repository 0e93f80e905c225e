// Package devserver is a small backend simulator with the REST and
// socket.io surface the client core talks to. It backs the end-to-end
// tests and local development; the production backend is external.
package devserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"storefront-core/internal/auth"
	"storefront-core/internal/config"
)

type Deps struct {
	Store       *Store
	TokenConfig auth.TokenConfig
}

// NewRouter builds the REST router and its socket server.
func NewRouter(deps Deps) (*gin.Engine, *SocketServer) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	socket := NewSocketServer(deps.TokenConfig)
	r.GET("/socket.io/", gin.WrapH(socket))

	loginLimiter := newRateLimiter(10, time.Minute)
	h := &handlers{store: deps.Store, tokenConfig: deps.TokenConfig, socket: socket}

	r.POST("/v1/auth/login", rateLimit(loginLimiter), h.login)

	protected := r.Group("/v1")
	protected.Use(requireAuth(deps.TokenConfig))
	protected.GET("/profile", h.profile)
	protected.POST("/push-tokens", h.registerPushToken)
	protected.GET("/tickets/:id/comments", h.listComments)
	protected.POST("/tickets/:id/comments", h.createComment)

	return r, socket
}

type handlers struct {
	store       *Store
	tokenConfig auth.TokenConfig
	socket      *SocketServer
}

func (h *handlers) login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, ok := h.store.Authenticate(body.Email, body.Password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := auth.CreateToken(user.ID, h.tokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int(h.tokenConfig.Expiry / time.Second),
		"profile":   user.Profile,
	})
}

func (h *handlers) profile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	user, ok := h.store.GetUser(userID)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}
	c.JSON(http.StatusOK, user.Profile)
}

func (h *handlers) registerPushToken(c *gin.Context) {
	userID, _ := userIDFromContext(c)

	var body struct {
		Token    string `json:"token"`
		DeviceID string `json:"deviceId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.store.RegisterDeviceToken(userID, body.DeviceID, body.Token, time.Now().UnixMilli()); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *handlers) listComments(c *gin.Context) {
	ticketID := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"comments": h.store.ListComments(ticketID)})
}

func (h *handlers) createComment(c *gin.Context) {
	userID, _ := userIDFromContext(c)
	ticketID := c.Param("id")

	var body struct {
		Body     string `json:"body"`
		Internal bool   `json:"internal"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	comment, err := h.store.AppendComment(ticketID, userID, body.Body, body.Internal, time.Now().UnixMilli())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.socket.BroadcastComment(comment)
	c.JSON(http.StatusOK, gin.H{"comment": comment})
}

func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func Run(cfg config.ServerConfig, handler http.Handler) error {
	srv := NewHTTPServer(cfg, handler)
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		return srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	}
	return srv.ListenAndServe()
}
