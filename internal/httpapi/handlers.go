package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentplexus/frontdesk"
	"github.com/agentplexus/frontdesk/internal/audio"
	"github.com/agentplexus/frontdesk/internal/flow"
	"github.com/agentplexus/frontdesk/internal/issue"
	"github.com/agentplexus/frontdesk/internal/relay"
	"github.com/agentplexus/frontdesk/internal/session"
	"github.com/agentplexus/frontdesk/internal/twiml"
)

const (
	rejectApology = "We are sorry, we cannot take your call right now. Goodbye."
	askNamePrompt = "Thank you for calling. May I have your name, please?"
	askIssueReply = "Thanks. Please describe the issue you are calling about."
	goodbyeReply  = "Thank you. Your issue has been recorded. Goodbye."
)

func respondXML(c *gin.Context, doc string) {
	c.Data(http.StatusOK, "text/xml", []byte(doc))
}

// handleVoice is the carrier's inbound-call webhook. It runs admission and
// answers with either a media-stream connect document or a rejection.
func (s *Server) handleVoice(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	from := c.PostForm("From")
	log := s.log.With(zap.String("call_sid", callSID), zap.String("from", from))

	decision := s.gate.Admit(from)
	if !decision.Allowed {
		log.Info("call rejected", zap.String("reason", string(decision.Reason)))
		respondXML(c, twiml.RejectCall(rejectApology))
		return
	}

	if _, err := s.registry.Create(callSID, from); err != nil {
		if errors.Is(err, session.ErrAlreadyExists) {
			log.Warn("duplicate inbound webhook for live call")
		} else {
			log.Error("session create failed", zap.Error(err))
		}
		respondXML(c, twiml.RejectCall(rejectApology))
		return
	}

	log.Info("call admitted")
	streamURL := "wss://" + s.cfg.PublicHost + "/media-stream/" + callSID
	respondXML(c, twiml.ConnectStream(streamURL))
}

// handleMediaStream upgrades the carrier socket and runs the duplex relay
// until the call ends, then finalizes the session.
func (s *Server) handleMediaStream(c *gin.Context) {
	callSID := c.Param("callSid")
	log := s.log.With(zap.String("call_sid", callSID))

	sess := s.registry.Get(callSID)
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	}

	carrier, err := relay.UpgradeCarrier(c.Writer, c.Request)
	if err != nil {
		log.Error("carrier upgrade failed", zap.Error(err))
		return
	}

	backend, err := s.dialModel(c.Request.Context())
	if err != nil {
		log.Error("backend dial failed", zap.Error(err))
		_ = carrier.Close()
		s.finalizer.Finalize(context.Background(), callSID)
		return
	}

	transcoder := audio.NewTranscoder(frontdesk.CarrierSampleRate, frontdesk.ModelSampleRate)
	r := relay.New(sess, carrier, backend, transcoder, s.transfer, s.log)
	r.Run(c.Request.Context())

	// Teardown must complete even though the socket request is gone.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Model.SummarizeTimeout+5*time.Second)
	defer cancel()
	s.finalizer.Finalize(ctx, callSID)
}

// handleStep is the turn-based dialog webhook.
func (s *Server) handleStep(c *gin.Context) {
	in := flow.Input{
		CallID: c.PostForm("CallSid"),
		From:   c.PostForm("From"),
		Speech: c.PostForm("SpeechResult"),
		Digit:  c.PostForm("Digits"),
	}
	log := s.log.With(zap.String("call_sid", in.CallID))

	// Admission applies to the first step only; later steps already
	// carry a live session.
	if s.registry.Get(in.CallID) == nil {
		if decision := s.gate.Admit(in.From); !decision.Allowed {
			log.Info("step rejected", zap.String("reason", string(decision.Reason)))
			respondXML(c, twiml.RejectCall(rejectApology))
			return
		}
	}

	action, err := s.machine.Step(in)
	if err != nil {
		log.Warn("dialog step failed", zap.Error(err))
		respondXML(c, twiml.SayHangup(goodbyeReply))
		return
	}

	switch action {
	case flow.ActionAskName:
		respondXML(c, twiml.GatherSpeech(askNamePrompt, "/step", 5))
	case flow.ActionAskIssue:
		respondXML(c, twiml.GatherSpeech(askIssueReply, "/step", 10))
	case flow.ActionTransfer:
		log.Info("dialog escalated to operator")
		respondXML(c, twiml.ForwardCall(s.cfg.OperatorNumber))
	default:
		respondXML(c, twiml.SayHangup(goodbyeReply))
		go s.finalizeAsync(in.CallID)
	}
}

// handleTranscription receives the carrier's recorded-message transcription
// and files it directly, no summarization involved.
func (s *Server) handleTranscription(c *gin.Context) {
	from := c.PostForm("From")
	text := c.PostForm("TranscriptionText")
	log := s.log.With(zap.String("call_sid", c.PostForm("CallSid")))

	if text == "" {
		log.Info("empty transcription discarded")
		c.Status(http.StatusNoContent)
		return
	}

	s.queue.Enqueue(&issue.Record{
		Name:             from,
		Number:           from,
		Title:            "Inbound Phone Call",
		Description:      text,
		Priority:         issue.PriorityMedium,
		RawTranscription: []string{text},
	})
	log.Info("recorded message filed")
	c.Status(http.StatusOK)
}

// handleStatus is the carrier's call-status callback. Terminal statuses
// converge on the same idempotent finalize path as relay teardown.
func (s *Server) handleStatus(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	status := c.PostForm("CallStatus")

	switch status {
	case frontdesk.CallStatusCompleted, frontdesk.CallStatusFailed,
		frontdesk.CallStatusBusy, frontdesk.CallStatusNoAnswer,
		frontdesk.CallStatusCanceled:
		s.log.Info("terminal call status",
			zap.String("call_sid", callSID), zap.String("status", status))
		go s.finalizeAsync(callSID)
	}
	c.Status(http.StatusNoContent)
}

// handlePoll returns every queued issue and marks it visited.
func (s *Server) handlePoll(c *gin.Context) {
	records := s.queue.Poll()
	if records == nil {
		records = []issue.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"issues": records})
}

func (s *Server) finalizeAsync(callSID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Model.SummarizeTimeout+5*time.Second)
	defer cancel()
	s.finalizer.Finalize(ctx, callSID)
	s.machine.Forget(callSID)
}
