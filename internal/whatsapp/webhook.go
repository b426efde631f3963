package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Oniqq60/civic_report_system/internal/intake"
	"github.com/Oniqq60/civic_report_system/internal/session"
	"github.com/Oniqq60/civic_report_system/internal/storage"
	"github.com/Oniqq60/civic_report_system/internal/task"
)

const (
	maxWebhookBody = 1 << 20
	mediaPrefix    = "reports"

	HelpMessage        = "Hi! To report a civic issue, send a photo of the problem and then share its location."
	AskLocationMessage = "Photo received. Please share the location of the issue (tap the attachment icon and choose Location) or type the address."
	FailureMessage     = "Sorry, we could not process your report right now. Please try again later."
	ImageTypeMessage   = "Please send the photo as a JPEG, PNG or WEBP image."
)

// Messenger - часть клиента Cloud API, нужная вебхуку
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

type Submitter interface {
	Submit(ctx context.Context, sub intake.Submission) (intake.Result, error)
}

type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
	// ProcessTimeout ограничивает обработку одного входящего сообщения
	ProcessTimeout time.Duration
}

type Webhook struct {
	messenger Messenger
	objects   storage.ObjectStore
	sessions  session.PendingStore
	intake    Submitter
	logger    *zap.Logger
	conf      WebhookConfig
}

func NewWebhook(messenger Messenger, objects storage.ObjectStore, sessions session.PendingStore, submitter Submitter, logger *zap.Logger, conf WebhookConfig) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conf.ProcessTimeout <= 0 {
		conf.ProcessTimeout = 45 * time.Second
	}
	return &Webhook{
		messenger: messenger,
		objects:   objects,
		sessions:  sessions,
		intake:    submitter,
		logger:    logger,
		conf:      conf,
	}
}

// Verify отвечает на проверку подписки
func (h *Webhook) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || h.conf.VerifyToken == "" ||
		!hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(h.conf.VerifyToken)) {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

type webhookPayload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []Message `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type Message struct {
	From     string          `json:"from"`
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Text     *TextBody       `json:"text,omitempty"`
	Image    *Media          `json:"image,omitempty"`
	Location *SharedLocation `json:"location,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type Media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type SharedLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

// Receive принимает входящие сообщения. Ответ 200 отдаётся после обработки,
// ошибки обработки только логируются, чтобы платформа не ретраила доставку.
func (h *Webhook) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if h.conf.AppSecret != "" && !validSignature(body, r.Header.Get("X-Hub-Signature-256"), h.conf.AppSecret) {
		h.logger.Warn("whatsapp webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.conf.ProcessTimeout)
				h.HandleMessage(ctx, msg, names[msg.From])
				cancel()
			}
		}
	}
	w.WriteHeader(http.StatusOK)
}

// HandleMessage ведёт диалог: снимок, затем геолокация или адрес
func (h *Webhook) HandleMessage(ctx context.Context, msg Message, name string) {
	reporter := task.Reporter{ID: "whatsapp:" + msg.From, Name: name, Phone: "+" + strings.TrimPrefix(msg.From, "+")}
	log := h.logger.With(zap.String("conversation", msg.From), zap.String("message_id", msg.ID), zap.String("type", msg.Type))

	switch {
	case msg.Type == "image" && msg.Image != nil:
		h.reply(ctx, log, msg.From, h.stageImage(ctx, log, msg, reporter))

	case msg.Type == "location" && msg.Location != nil:
		location := map[string]any{
			"latitude":  msg.Location.Latitude,
			"longitude": msg.Location.Longitude,
			"address":   msg.Location.Address,
			"name":      msg.Location.Name,
		}
		h.reply(ctx, log, msg.From, h.completeReport(ctx, log, msg.From, location))

	case msg.Type == "text" && msg.Text != nil:
		if _, err := h.sessions.Get(ctx, msg.From); err == nil {
			h.reply(ctx, log, msg.From, h.completeReport(ctx, log, msg.From, strings.TrimSpace(msg.Text.Body)))
			return
		}
		h.reply(ctx, log, msg.From, HelpMessage)

	default:
		h.reply(ctx, log, msg.From, HelpMessage)
	}
}

func (h *Webhook) stageImage(ctx context.Context, log *zap.Logger, msg Message, reporter task.Reporter) string {
	data, contentType, err := h.messenger.DownloadMedia(ctx, msg.Image.ID)
	if err != nil {
		log.Error("media download failed", zap.Error(err))
		return FailureMessage
	}
	if contentType == "" {
		contentType = msg.Image.MimeType
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !storage.AllowedImageType(contentType) {
		return ImageTypeMessage
	}

	key := storage.ContentKey(mediaPrefix, data, contentType)
	exists, err := h.objects.Exists(ctx, key)
	if err != nil {
		log.Warn("object existence check failed", zap.String("key", key), zap.Error(err))
	}
	if !exists {
		if err := h.objects.Put(ctx, key, data, contentType); err != nil {
			log.Error("staging image upload failed", zap.String("key", key), zap.Error(err))
			return FailureMessage
		}
	}

	pending := session.PendingReport{
		ImageKey:    key,
		ContentType: contentType,
		Reporter:    reporter,
		Description: strings.TrimSpace(msg.Image.Caption),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.sessions.Save(ctx, msg.From, pending); err != nil {
		log.Error("pending report save failed", zap.Error(err))
		return FailureMessage
	}
	return AskLocationMessage
}

func (h *Webhook) completeReport(ctx context.Context, log *zap.Logger, conversationID string, location any) string {
	pending, err := h.sessions.Get(ctx, conversationID)
	if errors.Is(err, session.ErrNotFound) {
		return HelpMessage
	}
	if err != nil {
		log.Error("pending report lookup failed", zap.Error(err))
		return FailureMessage
	}

	image, err := h.objects.Get(ctx, pending.ImageKey)
	if err != nil {
		log.Error("staged image fetch failed", zap.String("key", pending.ImageKey), zap.Error(err))
		_ = h.sessions.Delete(ctx, conversationID)
		return FailureMessage
	}

	res, err := h.intake.Submit(ctx, intake.Submission{
		Image:       image,
		ContentType: pending.ContentType,
		Location:    location,
		Reporter:    pending.Reporter,
		Description: pending.Description,
	})
	if err != nil {
		log.Error("report intake failed", zap.Error(err))
		return FailureMessage
	}
	if err := h.sessions.Delete(ctx, conversationID); err != nil {
		log.Warn("pending report cleanup failed", zap.Error(err))
	}

	if res.NoIssueDetected || res.Task == nil {
		return "We could not detect a civic issue in your photo. Please send a clearer photo of the problem."
	}
	ref := res.Task.TaskID
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return fmt.Sprintf("Thank you! Your report #%s (%s) has been registered. We will keep you updated.", ref, res.Task.Title)
}

func (h *Webhook) reply(ctx context.Context, log *zap.Logger, to, body string) {
	if err := h.messenger.SendText(ctx, to, body); err != nil {
		log.Warn("whatsapp reply failed", zap.Error(err))
	}
}

func validSignature(body []byte, header, secret string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
