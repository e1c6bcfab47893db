// Package httpapi wires every inbound surface of the receptionist: carrier
// webhooks, the media-stream socket, and the administrative poll endpoint.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentplexus/frontdesk"
	"github.com/agentplexus/frontdesk/internal/admission"
	"github.com/agentplexus/frontdesk/internal/config"
	"github.com/agentplexus/frontdesk/internal/finalize"
	"github.com/agentplexus/frontdesk/internal/flow"
	"github.com/agentplexus/frontdesk/internal/issue"
	"github.com/agentplexus/frontdesk/internal/model"
	"github.com/agentplexus/frontdesk/internal/relay"
	"github.com/agentplexus/frontdesk/internal/session"
)

// ModelDialer opens a backend socket for one call. Swappable in tests.
type ModelDialer func(ctx context.Context) (relay.ModelSocket, error)

// Server holds the handler dependencies.
type Server struct {
	cfg       *config.Config
	log       *zap.Logger
	gate      *admission.Gate
	registry  *session.Registry
	machine   *flow.Machine
	finalizer *finalize.Finalizer
	queue     *issue.Queue
	dialModel ModelDialer
	transfer  relay.TransferFunc
}

// Option overrides a Server dependency.
type Option func(*Server)

// WithModelDialer replaces the backend dialer. Used by tests.
func WithModelDialer(d ModelDialer) Option {
	return func(s *Server) {
		s.dialModel = d
	}
}

// WithTransfer replaces the call-transfer side effect.
func WithTransfer(t relay.TransferFunc) Option {
	return func(s *Server) {
		s.transfer = t
	}
}

// New creates a Server. The default backend dialer connects to the
// realtime API with the configured model settings.
func New(cfg *config.Config, log *zap.Logger, gate *admission.Gate, registry *session.Registry, machine *flow.Machine, finalizer *finalize.Finalizer, queue *issue.Queue, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		log:       log,
		gate:      gate,
		registry:  registry,
		machine:   machine,
		finalizer: finalizer,
		queue:     queue,
	}
	s.dialModel = func(ctx context.Context) (relay.ModelSocket, error) {
		return model.Dial(ctx, model.Config{
			APIKey:       cfg.Model.APIKey,
			Model:        cfg.Model.RealtimeModel,
			Voice:        cfg.Model.Voice,
			Instructions: cfg.Model.Instructions,
			Greeting:     cfg.Greeting,
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.handleHealth)
	r.POST("/voice", s.handleVoice)
	r.GET("/media-stream/:callSid", s.handleMediaStream)
	r.POST("/step", s.handleStep)
	r.POST("/transcription", s.handleTranscription)
	r.POST("/status", s.handleStatus)
	r.GET("/poll", s.requirePollKey(), s.handlePoll)

	return r
}

// requestLog logs one line per completed request, skipping the media
// socket route whose lifetime is the whole call.
func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.IsWebsocket() {
			return
		}
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// requirePollKey enforces the poll endpoint's API key header. An empty
// configured key disables the endpoint entirely.
func (s *Server) requirePollKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.PollAPIKey == "" || c.GetHeader("X-API-Key") != s.cfg.PollAPIKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"version":       frontdesk.Version,
		"active_calls":  s.registry.Len(),
		"queued_issues": s.queue.Len(),
	})
}
