package bot

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarkProcessed(t *testing.T) {
	h := NewEventHandler(nil, nil, slog.Default())

	assert.True(t, h.markProcessed("env-1"))
	assert.False(t, h.markProcessed("env-1"), "second delivery is a duplicate")
	assert.True(t, h.markProcessed("env-2"))

	// Events without an ID are never deduplicated.
	assert.True(t, h.markProcessed(""))
	assert.True(t, h.markProcessed(""))
}

func TestCleanupDropsAgedEvents(t *testing.T) {
	h := NewEventHandler(nil, nil, slog.Default())

	h.processedEvents["old"] = time.Now().Add(-2 * processedEventsMaxAge)
	h.processedEvents["fresh"] = time.Now()

	h.cleanup()

	assert.NotContains(t, h.processedEvents, "old")
	assert.Contains(t, h.processedEvents, "fresh")
}

func TestStopAcceptingNew(t *testing.T) {
	h := NewEventHandler(nil, nil, slog.Default())

	assert.True(t, h.isAcceptingNew())
	wait := h.StopAcceptingNew()
	assert.False(t, h.isAcceptingNew())

	// No in-flight work: wait returns immediately.
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return with no in-flight operations")
	}
}

func TestMentionHelpers(t *testing.T) {
	c := NewClient("xoxb-test", "", slog.Default())
	c.botUserID = "U0BOT"

	assert.True(t, c.IsBotMentioned("<@U0BOT> asn 64500"))
	assert.False(t, c.IsBotMentioned("asn 64500"))
	assert.Equal(t, "asn 64500", c.StripMention("<@U0BOT> asn 64500"))
	assert.Equal(t, "64500", c.StripMention("64500"))
}
