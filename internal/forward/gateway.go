// Package forward relays HTTP submitted text and files to the messaging platform.
package forward

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"telegramd/internal/domain"
	"telegramd/internal/metrics"
)

// Config wires a Gateway. Recorder is optional.
type Config struct {
	Platform domain.Platform
	Recorder domain.DeliveryRecorder
	Logger   *slog.Logger
}

// Gateway forwards requests to the platform. It keeps no state between calls.
type Gateway struct {
	platform domain.Platform
	recorder domain.DeliveryRecorder
	logger   *slog.Logger
}

func New(cfg Config) *Gateway {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		platform: cfg.Platform,
		recorder: cfg.Recorder,
		logger:   logger.With("component", "forward"),
	}
}

// SendMessage delivers req.Message as an HTML formatted text message.
func (g *Gateway) SendMessage(ctx context.Context, req domain.ForwardRequest) error {
	text := ""
	if req.Message != nil {
		text = *req.Message
	}
	g.logger.Info("sending message", "chat_id", req.ChatID, "text_len", len(text))
	return g.sendText(ctx, uuid.NewString(), req.ChatID, text)
}

// Forward sends the optional message and then every file of batch as a
// document. A failed text send aborts before any file is attempted; failed
// document sends are collected and the remaining files are still sent.
func (g *Gateway) Forward(ctx context.Context, chatID string, message *string, batch domain.UploadBatch) domain.ForwardOutcome {
	out := domain.ForwardOutcome{BatchID: uuid.NewString()}
	g.logger.Info("forwarding batch",
		"batch_id", out.BatchID,
		"chat_id", chatID,
		"has_message", message != nil,
		"files", len(batch),
	)

	if message != nil {
		if err := g.sendText(ctx, out.BatchID, chatID, *message); err != nil {
			out.TextErr = err
			return out
		}
	}

	for _, sf := range batch {
		start := time.Now()
		err := g.platform.SendDocument(ctx, chatID, sf.Path)
		metrics.SendLatency.Observe(time.Since(start).Seconds())
		g.record(ctx, out.BatchID, domain.DeliveryDocument, chatID, sf.Name, sf.Size, err)
		if err != nil {
			g.logger.Warn("document send failed", "batch_id", out.BatchID, "file", sf.Name, "err", err)
			out.FileErrs = append(out.FileErrs, &domain.FileError{File: sf, Err: err})
			continue
		}
		out.Sent++
	}
	return out
}

func (g *Gateway) sendText(ctx context.Context, batchID, chatID, text string) error {
	start := time.Now()
	err := g.platform.SendText(ctx, chatID, text, domain.ParseHTML)
	metrics.SendLatency.Observe(time.Since(start).Seconds())
	g.record(ctx, batchID, domain.DeliveryText, chatID, "", int64(len(text)), err)
	if err != nil {
		g.logger.Warn("message send failed", "batch_id", batchID, "chat_id", chatID, "err", err)
	}
	return err
}

func (g *Gateway) record(ctx context.Context, batchID string, kind domain.DeliveryKind, chatID, target string, size int64, sendErr error) {
	rec := domain.DeliveryRecord{
		BatchID:   batchID,
		Kind:      kind,
		ChatID:    chatID,
		Target:    target,
		Bytes:     size,
		Status:    domain.DeliverySuccess,
		CreatedAt: time.Now(),
	}
	switch {
	case sendErr != nil:
		metrics.SendFailures.Inc()
		rec.Status = domain.DeliveryFailed
		rec.Error = sendErr.Error()
	case kind == domain.DeliveryText:
		metrics.MessagesSent.Inc()
	default:
		metrics.DocumentsSent.Inc()
	}

	if g.recorder == nil {
		return
	}
	// The send already happened; record it even if the request was cancelled.
	if err := g.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		g.logger.Error("record delivery", "batch_id", batchID, "err", err)
	}
}
