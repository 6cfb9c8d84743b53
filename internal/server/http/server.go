// Package httpapi is the browser gateway: a JSON API and a websocket endpoint
// for live delivery, served with gin.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/goph-talk/internal/api"
	"github.com/and161185/goph-talk/internal/auth"
	"github.com/and161185/goph-talk/internal/convert"
	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/model"
	"github.com/and161185/goph-talk/internal/presence"
	"github.com/and161185/goph-talk/internal/service"
	"github.com/and161185/goph-talk/internal/session"
)

const identityKey = "gt.identity"

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config carries the gateway's dependencies.
type Config struct {
	Auth         service.AuthService
	Users        service.UserService
	Verification service.VerificationService
	Chat         service.ChatService
	Tokens       session.Verifier
	Stats        func() presence.Stats
	DB           Pinger // optional
	Log          *zap.Logger
	SendQueue    int

	// Per-IP cap on /api requests; zero values take DefaultAPIRequests per DefaultAPIWindow.
	APIRequests int
	APIWindow   time.Duration
}

// Server holds the gin engine and handler dependencies.
type Server struct {
	cfg    Config
	log    *zap.Logger
	engine *gin.Engine

	closing   chan struct{}
	closeOnce sync.Once
}

// New builds the router.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	s := &Server{cfg: cfg, log: cfg.Log, closing: make(chan struct{})}

	r := gin.New()
	// cors runs for unmatched routes too, so OPTIONS preflight never reaches the router's 404.
	r.Use(gin.Recovery(), accessLog(cfg.Log), cors())

	r.GET("/healthz", s.health)
	r.GET("/ws", s.handleWS)

	lim := newIPLimiter(cfg.APIRequests, cfg.APIWindow)
	a := r.Group("/api", lim.rateLimit)
	a.POST("/register", s.register)
	a.POST("/login", s.login)
	a.POST("/send_verification", s.sendVerification)

	p := a.Group("", s.requireAuth)
	p.POST("/verify_phone", s.verifyPhone)
	p.GET("/me", s.me)
	p.GET("/contacts", s.contacts)
	p.GET("/messages/:otherId", s.history)

	s.engine = r
	return s
}

// Handler exposes the router for http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

// Shutdown closes every live websocket with a going-away frame. http.Server.Shutdown
// does not track hijacked connections, so register this with RegisterOnShutdown.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// accessLog logs one line per request. The query string is left out since it may carry a token.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

func (s *Server) requireAuth(c *gin.Context) {
	tok, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Missing token"})
		return
	}
	id, err := s.cfg.Tokens.Verify(tok)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "Invalid token"})
		return
	}
	c.Set(identityKey, id)
	c.Next()
}

func identity(c *gin.Context) model.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(model.Identity)
	return id
}

// fail writes the error body with the status matching err.
func fail(c *gin.Context, err error) {
	code, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		code, msg = http.StatusUnauthorized, "Invalid credentials"
	case errors.Is(err, errs.ErrInvalidArgument):
		code, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrCodeInvalid):
		code, msg = http.StatusBadRequest, "Invalid code"
	case errors.Is(err, errs.ErrCodeExpired):
		code, msg = http.StatusBadRequest, "Code expired"
	case errors.Is(err, errs.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	case errors.Is(err, errs.ErrAlreadyExists):
		code, msg = http.StatusConflict, "User exists"
	case errors.Is(err, errs.ErrRateLimited):
		code, msg = http.StatusTooManyRequests, "too many attempts"
	case errors.Is(err, errs.ErrStorage):
		msg = "DB error"
	}
	c.JSON(code, api.ErrorResponse{Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: msg})
}

// --- handlers ---

func (s *Server) register(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed body")
		return
	}
	u, tok, err := s.cfg.Auth.Register(c.Request.Context(), convert.FromAPIRegister(req))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIAuth(u, tok))
}

func (s *Server) login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		badRequest(c, "Missing fields")
		return
	}
	tok, u, err := s.cfg.Auth.LoginWithIP(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToAPIAuth(u, tok))
}

func (s *Server) sendVerification(c *gin.Context) {
	var req api.SendVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "malformed body")
		return
	}
	if err := s.cfg.Verification.SendCode(c.Request.Context(), req.Phone); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) verifyPhone(c *gin.Context) {
	var req api.VerifyPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Phone == "" || req.Code == "" {
		badRequest(c, "Missing fields")
		return
	}
	if err := s.cfg.Verification.VerifyPhone(c.Request.Context(), identity(c).UserID, req.Phone, req.Code); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.OKResponse{OK: true})
}

func (s *Server) me(c *gin.Context) {
	u, err := s.cfg.Users.Me(c.Request.Context(), identity(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.MeResponse{User: convert.ToAPIUser(u)})
}

func (s *Server) contacts(c *gin.Context) {
	us, err := s.cfg.Users.Contacts(c.Request.Context(), identity(c).UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ContactsResponse{Contacts: convert.ToAPIContacts(us)})
}

func (s *Server) history(c *gin.Context) {
	other, err := strconv.ParseInt(c.Param("otherId"), 10, 64)
	if err != nil || other <= 0 {
		badRequest(c, "bad user id")
		return
	}
	msgs, err := s.cfg.Chat.History(c.Request.Context(), identity(c).UserID, other)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.HistoryResponse{Messages: convert.ToAPIMessages(msgs)})
}

func (s *Server) health(c *gin.Context) {
	out := gin.H{"status": "ok"}
	if s.cfg.Stats != nil {
		st := s.cfg.Stats()
		out["users"] = st.Users
		out["connections"] = st.Connections
	}
	code := http.StatusOK
	if s.cfg.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.DB.Ping(ctx); err != nil {
			s.log.Warn("db ping failed", zap.Error(err))
			out["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, out)
}
