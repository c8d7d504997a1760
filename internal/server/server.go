package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"trip-provider/internal/config"
	"trip-provider/internal/domain"
	"trip-provider/internal/usecase"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg     config.Config
	booking *usecase.BookingService
	store   Pinger
	log     *zap.Logger
	engine  *gin.Engine
}

func New(cfg config.Config, booking *usecase.BookingService, store Pinger, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:     cfg,
		booking: booking,
		store:   store,
		log:     log,
		engine:  gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.Use(requestID(), recovery(s.log), accessLog(s.log))
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.engine.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Idempotency-Key", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")
	if s.cfg.RateLimitPerMin > 0 {
		api.Use(newRateLimiter(s.cfg.RateLimitPerMin).middleware(s.log))
	}
	api.POST("/quotes", s.handleQuote)
	api.POST("/itineraries/quotes", s.handleItineraryQuote)
	api.POST("/orders/confirm", s.handleConfirm)
	api.GET("/orders", s.handleListOrders)
	api.GET("/orders/:id", s.handleGetOrder)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleQuote(c *gin.Context) {
	var req domain.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, string(domain.KindValidation), "invalid json")
		return
	}
	req.ProductType = domain.ParseProductType(string(req.ProductType))
	resp, err := s.booking.Quote(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleItineraryQuote(c *gin.Context) {
	var req domain.ItineraryQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, string(domain.KindValidation), "invalid json")
		return
	}
	for i := range req.Items {
		req.Items[i].ProductType = domain.ParseProductType(string(req.Items[i].ProductType))
	}
	resp, err := s.booking.QuoteItinerary(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleConfirm(c *gin.Context) {
	var req domain.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.err(c, http.StatusBadRequest, string(domain.KindValidation), "invalid json")
		return
	}
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	resp, err := s.booking.Confirm(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetOrder(c *gin.Context) {
	o, err := s.booking.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type orderPage struct {
	Items    []domain.Order `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

func (s *Server) handleListOrders(c *gin.Context) {
	page, err1 := queryInt(c, "page", 1)
	pageSize, err2 := queryInt(c, "pageSize", 20)
	if err1 != nil || err2 != nil {
		s.err(c, http.StatusBadRequest, string(domain.KindValidation), "page and pageSize must be integers")
		return
	}
	orders, total, err := s.booking.ListOrders(c.Request.Context(), page, pageSize)
	if err != nil {
		s.fail(c, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	c.JSON(http.StatusOK, orderPage{Items: orders, Total: total, Page: page, PageSize: pageSize})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// statusOf maps core error kinds onto HTTP statuses.
func statusOf(err error) (int, string) {
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindUnsupportedProduct, domain.KindTokenInvalid, domain.KindPaymentCredential:
		return http.StatusBadRequest, string(domain.KindOf(err))
	case domain.KindQuoteExpired:
		return http.StatusGone, string(domain.KindQuoteExpired)
	case domain.KindPaymentDeclined:
		return http.StatusPaymentRequired, string(domain.KindPaymentDeclined)
	case domain.KindIdempotencyConflict:
		return http.StatusConflict, string(domain.KindIdempotencyConflict)
	case domain.KindNotFound:
		return http.StatusNotFound, string(domain.KindNotFound)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.FullPath()), zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
		msg = "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "order store unavailable"
		}
	}
	s.err(c, status, code, msg)
}

func (s *Server) err(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":      code,
			"message":   msg,
			"requestId": c.GetString(requestIDKey),
		},
	})
}
