package bot

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/edgeix/peerbot/pkg/metrics"
)

const processedEventsMaxAge = 1 * time.Hour

// EventHandler handles Slack events in socket mode or HTTP events mode.
type EventHandler struct {
	slackClient   *Client
	processor     *Processor
	log           *slog.Logger
	signingSecret string // HTTP events mode only

	// Track processed events by envelope/event ID to avoid answering
	// Slack redeliveries twice.
	processedEvents   map[string]time.Time
	processedEventsMu sync.RWMutex

	// Graceful shutdown coordination.
	inFlightOps  sync.WaitGroup
	shuttingDown sync.RWMutex
	acceptingNew bool
}

// NewEventHandler creates a new event handler.
func NewEventHandler(slackClient *Client, processor *Processor, log *slog.Logger) *EventHandler {
	return &EventHandler{
		slackClient:     slackClient,
		processor:       processor,
		log:             log,
		processedEvents: make(map[string]time.Time),
		acceptingNew:    true,
	}
}

// SetSigningSecret sets the signing secret for HTTP events mode.
func (h *EventHandler) SetSigningSecret(secret string) {
	h.signingSecret = secret
}

// StartCleanup starts a background goroutine that drops aged event IDs.
func (h *EventHandler) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.cleanup()
			}
		}
	}()
}

// StopAcceptingNew stops accepting new events and returns a function
// that waits for in-flight lookups to finish.
func (h *EventHandler) StopAcceptingNew() func() {
	h.shuttingDown.Lock()
	h.acceptingNew = false
	h.shuttingDown.Unlock()
	h.log.Info("bot: stopped accepting new events, draining in-flight lookups")
	return h.inFlightOps.Wait
}

func (h *EventHandler) isAcceptingNew() bool {
	h.shuttingDown.RLock()
	defer h.shuttingDown.RUnlock()
	return h.acceptingNew
}

func (h *EventHandler) cleanup() {
	now := time.Now()
	h.processedEventsMu.Lock()
	for id, ts := range h.processedEvents {
		if now.Sub(ts) > processedEventsMaxAge {
			delete(h.processedEvents, id)
		}
	}
	h.processedEventsMu.Unlock()
}

// markProcessed records the event ID, returning false if it was already
// seen.
func (h *EventHandler) markProcessed(eventID string) bool {
	if eventID == "" {
		return true
	}
	h.processedEventsMu.Lock()
	defer h.processedEventsMu.Unlock()
	if _, seen := h.processedEvents[eventID]; seen {
		return false
	}
	h.processedEvents[eventID] = time.Now()
	return true
}

// HandleEvent handles a Slack Events API event.
func (h *EventHandler) HandleEvent(ctx context.Context, e slackevents.EventsAPIEvent, eventID string) {
	h.log.Debug("bot: event received", "type", e.Type, "inner_event_type", e.InnerEvent.Type, "event_id", eventID)

	if e.Type != slackevents.CallbackEvent {
		return
	}

	switch ev := e.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		h.handleAppMention(ctx, ev)
	case *slackevents.MessageEvent:
		h.handleMessageEvent(ctx, ev)
	}
}

// handleAppMention handles channel mentions of the bot.
func (h *EventHandler) handleAppMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	h.log.Info("bot: app_mention received", "user", ev.User, "channel", ev.Channel, "ts", ev.TimeStamp)

	msgEv := &slackevents.MessageEvent{
		Type:            "message",
		User:            ev.User,
		Text:            ev.Text,
		TimeStamp:       ev.TimeStamp,
		ThreadTimeStamp: ev.ThreadTimeStamp,
		Channel:         ev.Channel,
		ChannelType:     "channel",
	}
	h.dispatch(msgEv)
}

// handleMessageEvent handles direct messages to the bot. Channel
// mentions arrive as app_mention events and are skipped here so a single
// message never gets two replies.
func (h *EventHandler) handleMessageEvent(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.SubType != "" {
		metrics.MessagesIgnoredTotal.WithLabelValues("subtype").Inc()
		return // ignore edits/joins/etc
	}
	if ev.BotID != "" {
		metrics.MessagesIgnoredTotal.WithLabelValues("bot_message").Inc()
		return // avoid loops
	}
	if strings.TrimSpace(ev.Text) == "" {
		metrics.MessagesIgnoredTotal.WithLabelValues("empty").Inc()
		return
	}
	if ev.ChannelType != "im" {
		metrics.MessagesIgnoredTotal.WithLabelValues("not_dm").Inc()
		return
	}

	h.log.Info("bot: dm received", "user", ev.User, "channel", ev.Channel, "ts", ev.TimeStamp)
	h.dispatch(ev)
}

// dispatch runs the lookup in the background, tracking it for graceful
// shutdown and deduplicating by (channel, timestamp).
func (h *EventHandler) dispatch(ev *slackevents.MessageEvent) {
	messageKey := fmt.Sprintf("%s:%s", ev.Channel, ev.TimeStamp)
	if h.processor.HasResponded(messageKey) {
		h.log.Info("bot: skipping already answered message", "message_key", messageKey)
		metrics.MessagesIgnoredTotal.WithLabelValues("already_responded").Inc()
		return
	}
	h.processor.MarkResponded(messageKey)

	channelType := ev.ChannelType
	if channelType == "" {
		channelType = "unknown"
	}
	metrics.MessagesProcessedTotal.WithLabelValues(channelType).Inc()

	h.inFlightOps.Add(1)
	go func() {
		defer h.inFlightOps.Done()
		// Background context so shutdown cancellation does not cut off a
		// lookup that already started; the WaitGroup handles draining.
		h.processor.ProcessMessage(context.Background(), h.slackClient, ev, messageKey)
	}()
}

// HandleSocketMode consumes events from a socket mode client until the
// context is cancelled.
func (h *EventHandler) HandleSocketMode(ctx context.Context, client *socketmode.Client) error {
	h.log.Info("bot: running in socket mode")

	for {
		select {
		case <-ctx.Done():
			h.log.Info("bot: shutting down socket mode handler", "error", ctx.Err())
			return ctx.Err()
		case evt, ok := <-client.Events:
			if !ok {
				h.log.Info("bot: socket mode events channel closed")
				return nil
			}
			if !h.isAcceptingNew() {
				return ctx.Err()
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				h.log.Info("bot: socketmode connecting")
			case socketmode.EventTypeConnected:
				h.log.Info("bot: socketmode connected")
			case socketmode.EventTypeConnectionError:
				h.log.Error("bot: socketmode connection error", "error", evt.Data)
			case socketmode.EventTypeEventsAPI:
				e, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					h.log.Warn("bot: unexpected EventsAPI payload", "data_type", fmt.Sprintf("%T", evt.Data))
					continue
				}

				envelopeID := evt.Request.EnvelopeID
				if !h.markProcessed(envelopeID) {
					h.log.Info("bot: skipping duplicate event", "envelope_id", envelopeID, "retry_attempt", evt.Request.RetryAttempt)
					metrics.EventsDuplicateTotal.Inc()
					client.Ack(*evt.Request)
					continue
				}

				client.Ack(*evt.Request)
				h.HandleEvent(context.Background(), e, envelopeID)
			}
		}
	}
}

// HandleHTTP handles a request from the Slack Events API.
func (h *EventHandler) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Error("bot: failed to read request body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r, body) {
		h.log.Warn("bot: invalid Slack signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// URL verification challenge during app setup.
	var challenge struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &challenge); err == nil && challenge.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge.Challenge))
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		h.log.Error("bot: failed to parse event", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var eventID string
	if msgEv, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok && event.Type == slackevents.CallbackEvent {
		eventID = fmt.Sprintf("%s:%s", msgEv.Channel, msgEv.TimeStamp)
	} else {
		eventData, _ := json.Marshal(event.InnerEvent.Data)
		eventID = fmt.Sprintf("%x", sha256.Sum256(eventData))
	}

	if !h.markProcessed(eventID) {
		h.log.Info("bot: skipping duplicate event", "event_id", eventID)
		metrics.EventsDuplicateTotal.Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if !h.isAcceptingNew() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("shutting down"))
		return
	}

	// Slack expects an ack within 3 seconds; process asynchronously.
	w.WriteHeader(http.StatusOK)
	go h.HandleEvent(context.Background(), event, eventID)
}

func (h *EventHandler) verifySignature(r *http.Request, body []byte) bool {
	verifier, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		return false
	}
	if _, err := verifier.Write(body); err != nil {
		return false
	}
	return verifier.Ensure() == nil
}
