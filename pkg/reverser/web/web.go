// Package web assembles the HTTP surface of the reverser: the page at "/",
// a health check, and the WebSocket endpoint.
package web

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultWSPath is where the WebSocket endpoint is mounted unless configured otherwise.
const DefaultWSPath = "/ws"

//go:embed page.html
var pageSource string

var pageTemplate = template.Must(template.New("page").Parse(pageSource))

type pageData struct {
	Title  string
	WSPath string
}

// ConnectionCounter reports live WebSocket connections for /health.
type ConnectionCounter interface {
	ConnectionCount() int
}

// WebSocketHandler is the endpoint mounted at the WebSocket path.
// *server.Listener satisfies it.
type WebSocketHandler interface {
	http.Handler
	ConnectionCounter
}

// HandlerConfig configures the HTTP handler. Use NewHandlerConfig() and
// chain methods, then call Build().
type HandlerConfig struct {
	websocket      WebSocketHandler
	logger         *zap.Logger
	wsPath         string
	title          string
	allowedOrigins []string
}

// NewHandlerConfig creates a HandlerConfig with default values.
func NewHandlerConfig() *HandlerConfig {
	return &HandlerConfig{
		wsPath: DefaultWSPath,
		title:  "Reverse String",
	}
}

// WithWebSocket sets the WebSocket endpoint. Required.
func (c *HandlerConfig) WithWebSocket(handler WebSocketHandler) *HandlerConfig {
	c.websocket = handler
	return c
}

// WithLogger sets the logger used for request logging. Required.
func (c *HandlerConfig) WithLogger(logger *zap.Logger) *HandlerConfig {
	c.logger = logger
	return c
}

// WithWSPath sets the path the WebSocket endpoint is mounted at. The page
// connects to the same path.
func (c *HandlerConfig) WithWSPath(path string) *HandlerConfig {
	if path != "" {
		c.wsPath = path
	}
	return c
}

// WithTitle sets the page title.
func (c *HandlerConfig) WithTitle(title string) *HandlerConfig {
	c.title = title
	return c
}

// WithAllowedOrigins sets the CORS policy for the plain HTTP routes. "*"
// allows any origin; no origins means no CORS headers at all.
func (c *HandlerConfig) WithAllowedOrigins(origins ...string) *HandlerConfig {
	c.allowedOrigins = append([]string(nil), origins...)
	return c
}

// IsValid checks if the configuration has all required parameters set.
func (c *HandlerConfig) IsValid() error {
	var missing []string
	if c.websocket == nil {
		missing = append(missing, "WebSocket")
	}
	if c.logger == nil {
		missing = append(missing, "Logger")
	}
	if len(missing) > 0 {
		return fmt.Errorf("invalid handler configuration, missing: %v", missing)
	}

	if !strings.HasPrefix(c.wsPath, "/") || c.wsPath == "/" || c.wsPath == "/health" ||
		strings.ContainsAny(c.wsPath, "{} ") {
		return fmt.Errorf("invalid websocket path %q", c.wsPath)
	}

	if len(c.allowedOrigins) > 0 {
		config := corsConfig(c.allowedOrigins)
		if err := config.Validate(); err != nil {
			return fmt.Errorf("invalid allowed origins: %w", err)
		}
	}

	return nil
}

// Build creates the handler serving the page, /health and the WebSocket path.
// The WebSocket path is routed ahead of gin: gin's writer refuses to hijack
// once the 101 response has been written, which is how the upgrade works.
// The endpoint checks origins during the handshake, so CORS only applies to
// the gin routes.
func (c *HandlerConfig) Build() (http.Handler, error) {
	if err := c.IsValid(); err != nil {
		return nil, err
	}

	engine, err := c.buildEngine()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(c.wsPath, c.websocket)
	mux.Handle("/", engine)

	return mux, nil
}

func (c *HandlerConfig) buildEngine() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(c.logger), recovery(c.logger))

	pages := router.Group("/")
	if len(c.allowedOrigins) > 0 {
		pages.Use(cors.New(corsConfig(c.allowedOrigins)))
		// Preflight requests are answered by the cors middleware.
		pages.OPTIONS("/*path", func(*gin.Context) {})
	}

	var page bytes.Buffer
	if err := pageTemplate.Execute(&page, pageData{Title: c.title, WSPath: c.wsPath}); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	pages.GET("/", func(ctx *gin.Context) {
		ctx.Data(http.StatusOK, "text/html; charset=utf-8", page.Bytes())
	})

	counter := c.websocket
	pages.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": counter.ConnectionCount(),
		})
	})

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		AllowWildcard: true,
		MaxAge:        12 * time.Hour,
	}

	for _, origin := range origins {
		if strings.TrimSpace(origin) == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	// Bare hosts are accepted by the WebSocket endpoint; CORS needs a scheme.
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if strings.Contains(origin, "://") || strings.Contains(origin, "*") {
			config.AllowOrigins = append(config.AllowOrigins, origin)
			continue
		}
		config.AllowOrigins = append(config.AllowOrigins, "http://"+origin, "https://"+origin)
	}

	return config
}

// requestLogger logs each request once it has been handled.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("Request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("Request", fields...)
		default:
			logger.Debug("Request", fields...)
		}
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic while handling request",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
