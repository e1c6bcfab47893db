// Package finalize turns an ended call session into a durable issue
// record exactly once.
package finalize

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentplexus/frontdesk/internal/issue"
	"github.com/agentplexus/frontdesk/internal/session"
	"github.com/agentplexus/frontdesk/internal/summary"
)

// defaultTimeout bounds the summarizer call when no timeout is configured.
const defaultTimeout = 20 * time.Second

// Finalizer drains ended sessions into the issue queue. Concurrent
// finalize attempts for the same call converge on a single record; the
// losers return without side effects.
type Finalizer struct {
	registry   *session.Registry
	summarizer summary.Summarizer
	queue      *issue.Queue
	timeout    time.Duration
	log        *zap.Logger
}

// Option configures a Finalizer.
type Option func(*Finalizer)

// WithTimeout bounds each summarizer call. The timeout is absolute:
// when it expires the fallback record is enqueued regardless of what the
// summarizer eventually returns.
func WithTimeout(d time.Duration) Option {
	return func(f *Finalizer) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// New creates a Finalizer.
func New(registry *session.Registry, summarizer summary.Summarizer, queue *issue.Queue, log *zap.Logger, opts ...Option) *Finalizer {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Finalizer{
		registry:   registry,
		summarizer: summarizer,
		queue:      queue,
		timeout:    defaultTimeout,
		log:        log,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Finalize summarizes and records the named call's session, then closes
// and removes it. Unknown call ids and repeat invocations are no-ops.
func (f *Finalizer) Finalize(ctx context.Context, callID string) {
	sess := f.registry.Get(callID)
	if sess == nil {
		return
	}
	if !sess.BeginFinalize() {
		return
	}
	log := f.log.With(zap.String("call_sid", callID))

	transcript := sess.Transcript()
	rec := f.buildRecord(ctx, sess, transcript, log)
	f.queue.Enqueue(rec)

	sess.Close()
	f.registry.Remove(callID)
	log.Info("call finalized",
		zap.Int("transcript_entries", len(transcript)),
		zap.String("priority", rec.Priority))
}

// buildRecord produces the issue record for a finished session, falling
// back to the fixed placeholder fields when summarization fails or the
// deadline passes.
func (f *Finalizer) buildRecord(ctx context.Context, sess *session.Session, transcript []session.TranscriptEntry, log *zap.Logger) *issue.Record {
	rec := &issue.Record{
		Number:           sess.From,
		RawTranscription: renderLines(transcript),
	}

	res := f.summarize(ctx, renderText(transcript), log)
	rec.Title = res.Title
	rec.Description = res.Description
	rec.Priority = res.Priority
	rec.Name = res.Name
	rec.Company = res.Company
	rec.SystemInfo = res.SystemInfo
	return rec
}

// summarize runs the summarizer under the hard timeout. A late result is
// discarded in favor of the fallback.
func (f *Finalizer) summarize(ctx context.Context, transcript string, log *zap.Logger) *summary.Result {
	if f.summarizer == nil || strings.TrimSpace(transcript) == "" {
		return summary.FallbackResult()
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	type outcome struct {
		res *summary.Result
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := f.summarizer.Summarize(ctx, transcript)
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil || out.res == nil {
			log.Warn("summarization failed", zap.Error(out.err))
			return summary.FallbackResult()
		}
		return out.res
	case <-ctx.Done():
		log.Warn("summarization timed out", zap.Error(ctx.Err()))
		return summary.FallbackResult()
	}
}

// renderLines flattens the transcript into "role: message" lines for the
// record's raw transcription field.
func renderLines(transcript []session.TranscriptEntry) []string {
	lines := make([]string, 0, len(transcript))
	for _, entry := range transcript {
		lines = append(lines, string(entry.Role)+": "+entry.Message)
	}
	return lines
}

// renderText joins the transcript into the summarizer input. Length
// capping is the summarizer's concern.
func renderText(transcript []session.TranscriptEntry) string {
	return strings.Join(renderLines(transcript), "\n")
}
