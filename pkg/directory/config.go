package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgeix/peerbot/pkg/bird"
)

const defaultMaxConcurrency = 8

// Config configures a Directory.
type Config struct {
	Logger  *slog.Logger
	Clock   clockwork.Clock
	Fetcher bird.Fetcher

	// Endpoints in configuration order. Scan and row order everywhere
	// follows this order.
	Endpoints []Endpoint

	// MaxConcurrency bounds the refresh fan-out.
	MaxConcurrency int

	// CacheTTL enables serving the previous snapshot when it is younger
	// than the TTL. Zero disables caching: every lookup refreshes.
	CacheTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Fetcher == nil {
		return errors.New("fetcher is required")
	}
	if len(cfg.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}
	seen := make(map[string]struct{}, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		if ep.Location == "" || ep.RouteServer == "" {
			return fmt.Errorf("endpoint %q/%q: location and route server are required", ep.Location, ep.RouteServer)
		}
		key := ep.Location + "/" + ep.RouteServer
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate endpoint %s", key)
		}
		seen[key] = struct{}{}
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.CacheTTL < 0 {
		return errors.New("cache TTL must not be negative")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// endpointEnvKeys is the fixed endpoint set, in configuration order. Each
// entry maps to an environment variable holding the status endpoint URL.
var endpointEnvKeys = []struct {
	location    string
	routeServer string
	envVar      string
}{
	{"SYD", "rs1", "SYD_RS1"},
	{"SYD", "rs2", "SYD_RS2"},
	{"MEL", "rs1", "MEL_RS1"},
	{"MEL", "rs2", "MEL_RS2"},
	{"ADL", "rs1", "ADL_RS1"},
	{"ADL", "rs2", "ADL_RS2"},
	{"BNE", "rs1", "BNE_RS1"},
	{"BNE", "rs2", "BNE_RS2"},
	{"PER", "rs1", "PER_RS1"},
	{"PER", "rs2", "PER_RS2"},
	{"DRW", "rs1", "DRW_RS1"},
	{"HBA", "rs1", "HBA_RS1"},
}

// EndpointsFromEnv builds the endpoint list from the environment. An
// unset URL leaves the endpoint configured but unreachable; its fetch
// fails and the endpoint shows up errored in every snapshot.
func EndpointsFromEnv() []Endpoint {
	endpoints := make([]Endpoint, 0, len(endpointEnvKeys))
	for _, e := range endpointEnvKeys {
		endpoints = append(endpoints, Endpoint{
			Location:    e.location,
			RouteServer: e.routeServer,
			URL:         os.Getenv(e.envVar),
		})
	}
	return endpoints
}
