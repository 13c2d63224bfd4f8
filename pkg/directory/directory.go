package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgeix/peerbot/pkg/metrics"
)

// Directory holds the configured route server endpoints and answers
// peering state queries. Every query triggers a full refresh of all
// endpoints unless the opt-in cache TTL is set and still warm.
type Directory struct {
	log *slog.Logger
	cfg Config

	mu   sync.Mutex // guards last
	last *Snapshot
}

// New creates a Directory from the given config.
func New(cfg Config) (*Directory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Directory{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Refresh fetches every configured endpoint and returns the complete new
// snapshot. A failure on one endpoint marks only that endpoint errored;
// the others are still fetched. The returned snapshot is never mutated
// afterwards.
func (d *Directory) Refresh(ctx context.Context) *Snapshot {
	start := time.Now()
	defer func() {
		duration := time.Since(start)
		d.log.Debug("directory: refresh completed", "duration", duration.String())
		metrics.RefreshDuration.Observe(duration.Seconds())
	}()

	results := make([]EndpointResult, len(d.cfg.Endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxConcurrency)
	for i, ep := range d.cfg.Endpoints {
		i, ep := i, ep
		g.Go(func() error {
			table, err := d.cfg.Fetcher.Fetch(gctx, ep.URL)
			if err != nil {
				d.log.Warn("directory: endpoint fetch failed",
					"location", ep.Location,
					"route_server", ep.RouteServer,
					"error", err,
				)
				metrics.RefreshTotal.WithLabelValues(ep.Location, ep.RouteServer, "error").Inc()
				results[i] = EndpointResult{Endpoint: ep, Err: err}
				return nil
			}
			metrics.RefreshTotal.WithLabelValues(ep.Location, ep.RouteServer, "success").Inc()
			results[i] = EndpointResult{Endpoint: ep, Table: table}
			return nil
		})
	}
	// Fetch errors are recorded per endpoint, never returned.
	_ = g.Wait()

	snap := &Snapshot{
		Results:   results,
		FetchedAt: d.cfg.Clock.Now(),
	}

	d.mu.Lock()
	d.last = snap
	d.mu.Unlock()

	return snap
}

// snapshot returns the cached snapshot if caching is enabled and the
// last one is still inside the TTL, otherwise refreshes.
func (d *Directory) snapshot(ctx context.Context) *Snapshot {
	if d.cfg.CacheTTL > 0 {
		d.mu.Lock()
		last := d.last
		d.mu.Unlock()
		if last != nil && d.cfg.Clock.Since(last.FetchedAt) < d.cfg.CacheTTL {
			d.log.Debug("directory: serving cached snapshot", "fetched_at", last.FetchedAt)
			return last
		}
	}
	return d.Refresh(ctx)
}

// ParseASN converts textual input to an ASN.
func ParseASN(input string) (int64, error) {
	asn, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ASN %q", input)
	}
	return asn, nil
}

// Lookup parses textual input and looks the ASN up. Unparseable input
// yields ResultInvalidInput without any network activity.
func (d *Directory) Lookup(ctx context.Context, input string) Result {
	asn, err := ParseASN(input)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues(ResultInvalidInput.String()).Inc()
		return Result{Kind: ResultInvalidInput}
	}
	return d.LookupASN(ctx, asn)
}

// LookupASN refreshes the snapshot and scans it for the given ASN. One
// row is kept per (location, route server) pair; if a single table
// carries multiple sessions for the ASN, only the first encountered
// counts. The result name is the description of the last matching row
// in configuration order.
func (d *Directory) LookupASN(ctx context.Context, asn int64) Result {
	snap := d.snapshot(ctx)

	result := Result{Kind: ResultNotFound, ASN: asn}
	for _, er := range snap.Results {
		if !er.Populated() {
			continue
		}
		for _, session := range er.Table {
			if session.NeighborAS == nil || *session.NeighborAS != asn {
				continue
			}
			result.Rows = append(result.Rows, PeeringRow{
				Location:    er.Endpoint.Location,
				RouteServer: er.Endpoint.RouteServer,
				State:       stringValue(session.State),
			})
			result.Name = stringValue(session.Description)
			break
		}
	}

	if len(result.Rows) > 0 {
		result.Kind = ResultFound
	}
	metrics.LookupsTotal.WithLabelValues(result.Kind.String()).Inc()
	return result
}

// ASNIndex refreshes the snapshot and builds the ASN index: for every
// session carrying a neighbor AS, the description (last encounter wins)
// and the accumulated list of "LOC - rsN" labels, in configuration order.
func (d *Directory) ASNIndex(ctx context.Context) map[int64]ASNEntry {
	snap := d.snapshot(ctx)

	index := make(map[int64]ASNEntry)
	for _, er := range snap.Results {
		if !er.Populated() {
			continue
		}
		for _, session := range er.Table {
			if session.NeighborAS == nil {
				continue
			}
			asn := *session.NeighborAS
			entry := index[asn]
			entry.Description = stringValue(session.Description)
			entry.Locations = append(entry.Locations,
				fmt.Sprintf("%s - %s", er.Endpoint.Location, er.Endpoint.RouteServer))
			index[asn] = entry
		}
	}
	return index
}

// IPIndex refreshes the snapshot and builds the neighbor IP index. Later
// encounters of the same address replace the entry entirely.
func (d *Directory) IPIndex(ctx context.Context) map[string]IPEntry {
	snap := d.snapshot(ctx)

	index := make(map[string]IPEntry)
	for _, er := range snap.Results {
		if !er.Populated() {
			continue
		}
		for _, session := range er.Table {
			if session.NeighborAddress == nil {
				continue
			}
			index[*session.NeighborAddress] = IPEntry{
				Description: stringValue(session.Description),
				Location:    er.Endpoint.Location,
			}
		}
	}
	return index
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
