package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"telegramd/internal/domain"
	"telegramd/internal/metrics"
	"telegramd/internal/payload"
)

const messageSent = "Message sent!"

// MaxMessageBody caps a JSON body on POST /send-message.
const MaxMessageBody = "1M"

type MessageHandler struct {
	forwarder Forwarder
	logger    *slog.Logger
}

func NewMessageHandler(f Forwarder, log *slog.Logger) *MessageHandler {
	return &MessageHandler{forwarder: f, logger: log.With(slog.String("handler", "message"))}
}

func (h *MessageHandler) Register(e *echo.Echo) {
	e.GET("/send-message", h.SendQuery)
	e.POST("/send-message", h.SendJSON, middleware.BodyLimit(MaxMessageBody))
}

// SendQuery handles GET /send-message?chatid=&message=.
func (h *MessageHandler) SendQuery(c echo.Context) error {
	req, err := payload.BindQuery(c)
	if err != nil {
		return h.decodeFailed(c, err)
	}
	return h.send(c, req)
}

// SendJSON handles POST /send-message with a {"chatid", "message"} body.
func (h *MessageHandler) SendJSON(c echo.Context) error {
	req, err := payload.BindJSON(c)
	if err != nil {
		return h.decodeFailed(c, err)
	}
	return h.send(c, req)
}

func (h *MessageHandler) send(c echo.Context, req domain.ForwardRequest) error {
	if err := h.forwarder.SendMessage(c.Request().Context(), req); err != nil {
		return c.String(http.StatusInternalServerError, "Failed to send message to Telegram: "+err.Error())
	}
	return c.String(http.StatusOK, messageSent)
}

func (h *MessageHandler) decodeFailed(c echo.Context, err error) error {
	h.logger.Info("rejecting request", slog.Any("error", err))
	return c.String(http.StatusInternalServerError, err.Error())
}

type FileHandler struct {
	ingestor  Ingestor
	forwarder Forwarder
	logger    *slog.Logger
}

func NewFileHandler(in Ingestor, f Forwarder, log *slog.Logger) *FileHandler {
	return &FileHandler{ingestor: in, forwarder: f, logger: log.With(slog.String("handler", "file"))}
}

func (h *FileHandler) Register(e *echo.Echo) {
	e.PUT("/send-file", h.SendFiles)
}

// SendFiles handles PUT /send-file?chatid=&message= with a multipart body.
// Every part is stored before anything is sent.
func (h *FileHandler) SendFiles(c echo.Context) error {
	req, err := payload.BindUpload(c)
	if err != nil {
		h.logger.Info("rejecting upload", slog.Any("error", err))
		return c.String(http.StatusInternalServerError, err.Error())
	}
	h.logger.Info("sending files", slog.String("chat_id", req.ChatID), slog.Bool("has_message", req.Message != nil))

	ctx := c.Request().Context()
	batch := domain.UploadBatch{}
	// No multipart body (or none at all) is a message-only request.
	if mr, err := c.Request().MultipartReader(); err != nil {
		h.logger.Debug("no multipart body", slog.Any("reason", err))
	} else {
		batch, err = h.ingestor.Ingest(ctx, mr)
		if err != nil {
			h.logger.Info("error uploading files", slog.Any("error", err))
			return c.String(http.StatusInternalServerError, err.Error())
		}
	}
	metrics.FilesIngested.Add(int64(len(batch)))

	out := h.forwarder.Forward(ctx, req.ChatID, req.Message, batch)
	if !out.OK() {
		return c.String(http.StatusInternalServerError, out.Summary())
	}
	return c.NoContent(http.StatusAccepted)
}

// HealthHandler serves liveness and metrics.
type HealthHandler struct {
	metrics http.Handler
}

func NewHealthHandler(m http.Handler) *HealthHandler {
	return &HealthHandler{metrics: m}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}
}

func (h *HealthHandler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
