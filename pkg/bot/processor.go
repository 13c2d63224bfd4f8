package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"

	"github.com/edgeix/peerbot/pkg/directory"
	"github.com/edgeix/peerbot/pkg/render"
)

const respondedMaxAge = 1 * time.Hour

// Telstra gets a canned reply, no lookup.
const specialCaseASN = 1221

// Processor turns incoming Slack messages into route server lookups and
// posts the responses.
type Processor struct {
	dir *directory.Directory
	log *slog.Logger

	respondedMu sync.RWMutex
	responded   map[string]time.Time
}

// NewProcessor creates a message processor backed by the directory.
func NewProcessor(dir *directory.Directory, log *slog.Logger) *Processor {
	return &Processor{
		dir:       dir,
		log:       log,
		responded: make(map[string]time.Time),
	}
}

// HasResponded reports whether the message key was already answered.
func (p *Processor) HasResponded(messageKey string) bool {
	p.respondedMu.RLock()
	defer p.respondedMu.RUnlock()
	_, ok := p.responded[messageKey]
	return ok
}

// MarkResponded records the message key before processing starts, so a
// redelivered event never produces a second reply.
func (p *Processor) MarkResponded(messageKey string) {
	p.respondedMu.Lock()
	p.responded[messageKey] = time.Now()
	p.respondedMu.Unlock()
}

// StartCleanup starts a background goroutine that drops aged message keys.
func (p *Processor) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				p.respondedMu.Lock()
				for key, ts := range p.responded {
					if now.Sub(ts) > respondedMaxAge {
						delete(p.responded, key)
					}
				}
				p.respondedMu.Unlock()
			}
		}
	}()
}

// OnMessage answers a single query. It returns the response body and a
// caption: a plain advisory for invalid input, the special-case ASN, or
// an ASN absent from every route server; otherwise a code-fenced table
// captioned with the peer's description.
func (p *Processor) OnMessage(ctx context.Context, query string) (string, string) {
	asn, err := directory.ParseASN(query)
	if err != nil {
		return "Please enter a valid ASN!", "Response"
	}

	if asn == specialCaseASN {
		return fmt.Sprintf("AS%d on the route servers? The day that happens is the day Joe shaves his beard..", asn), "No Chance"
	}

	result := p.dir.LookupASN(ctx, asn)
	if result.Kind == directory.ResultNotFound {
		return fmt.Sprintf("AS%d is not present on any Route Servers.. perhaps they should email peering@edgeix.net?", asn), "Response"
	}

	tbl, name := render.Table(result)
	return fmt.Sprintf("```%s```", tbl), name
}

// ProcessMessage handles one Slack message event end to end: extract the
// query, run the lookup, and post the reply in the message's thread.
func (p *Processor) ProcessMessage(ctx context.Context, client *Client, ev *slackevents.MessageEvent, messageKey string) {
	requestID := uuid.New().String()
	query := client.StripMention(ev.Text)

	// "asn 64500" and bare "64500" are both accepted.
	if fields := strings.Fields(query); len(fields) > 1 && strings.EqualFold(fields[0], "asn") {
		query = fields[1]
	}

	p.log.Info("bot: processing lookup",
		"request_id", requestID,
		"message_key", messageKey,
		"channel", ev.Channel,
		"user", ev.User,
		"query", query,
	)

	body, caption := p.OnMessage(ctx, query)

	text := fmt.Sprintf("*%s*\n%s", caption, body)
	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	if err := client.PostMessage(ctx, ev.Channel, threadTS, text); err != nil {
		p.log.Error("bot: failed to post response", "request_id", requestID, "channel", ev.Channel, "error", err)
		return
	}

	p.log.Info("bot: lookup answered", "request_id", requestID, "channel", ev.Channel, "caption", caption)
}
