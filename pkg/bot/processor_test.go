package bot_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeix/peerbot/pkg/bird"
	"github.com/edgeix/peerbot/pkg/bot"
	"github.com/edgeix/peerbot/pkg/directory"
)

type fakeFetcher struct {
	mu     sync.Mutex
	tables map[string]bird.SessionTable
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (bird.SessionTable, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if table, ok := f.tables[url]; ok {
		return table, nil
	}
	return nil, fmt.Errorf("no endpoint at %s", url)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ptrInt64(v int64) *int64    { return &v }
func ptrString(v string) *string { return &v }

func newTestProcessor(t *testing.T) (*bot.Processor, *fakeFetcher) {
	t.Helper()
	fetcher := &fakeFetcher{
		tables: map[string]bird.SessionTable{
			"http://syd-rs1": {
				"s1": {
					NeighborAS:      ptrInt64(64500),
					Description:     ptrString("ExampleNet"),
					State:           ptrString("Established"),
					NeighborAddress: ptrString("203.0.113.1"),
				},
			},
		},
	}
	dir, err := directory.New(directory.Config{
		Logger:  slog.Default(),
		Fetcher: fetcher,
		Endpoints: []directory.Endpoint{
			{Location: "SYD", RouteServer: "rs1", URL: "http://syd-rs1"},
			{Location: "SYD", RouteServer: "rs2", URL: "http://syd-rs2"},
		},
	})
	require.NoError(t, err)
	return bot.NewProcessor(dir, slog.Default()), fetcher
}

func TestOnMessage(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		body, caption := p.OnMessage(context.Background(), "64500")
		assert.Equal(t, "ExampleNet", caption)
		assert.Contains(t, body, "```")
		assert.Contains(t, body, "Established")
		assert.Contains(t, body, "SYD")
	})

	t.Run("invalid input", func(t *testing.T) {
		p, fetcher := newTestProcessor(t)
		body, caption := p.OnMessage(context.Background(), "abc")
		assert.Equal(t, "Please enter a valid ASN!", body)
		assert.Equal(t, "Response", caption)
		assert.Zero(t, fetcher.callCount())
	})

	t.Run("not found", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		body, caption := p.OnMessage(context.Background(), "9999")
		assert.Contains(t, body, "AS9999 is not present on any Route Servers")
		assert.Contains(t, body, "peering@edgeix.net")
		assert.Equal(t, "Response", caption)
	})

	t.Run("special case skips the lookup", func(t *testing.T) {
		p, fetcher := newTestProcessor(t)
		body, caption := p.OnMessage(context.Background(), "1221")
		assert.Contains(t, body, "AS1221")
		assert.Equal(t, "No Chance", caption)
		assert.Zero(t, fetcher.callCount())
	})
}

func TestRespondedTracking(t *testing.T) {
	p, _ := newTestProcessor(t)

	key := "C123:1700000000.000100"
	assert.False(t, p.HasResponded(key))
	p.MarkResponded(key)
	assert.True(t, p.HasResponded(key))
	assert.False(t, p.HasResponded("C123:other"))
}
