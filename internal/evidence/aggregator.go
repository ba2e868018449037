package evidence

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/verdict"
	"github.com/consensusnet/consensusnet/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// Policy is a specialization hook: it reorders and reweights evidence before
// scoring. Specialized agents supply their own; the zero value applies the
// default domain ordering.
type Policy struct {
	// PreferTiers are queried first and get a credibility-weight boost.
	PreferTiers []SourceTier
	// PenalizeTiers get their relevance damped.
	PenalizeTiers []SourceTier
	// Transform, when set, is applied to each normalized item before the
	// bundle is scored. Used e.g. for news recency weighting.
	Transform func(*Item)
}

// AggregatorConfig bounds the fan-out.
type AggregatorConfig struct {
	// SourceTimeout caps each individual source query. Default 2s.
	SourceTimeout time.Duration
	// TotalTimeout caps the whole gather. Default 8s.
	TotalTimeout time.Duration
	// MaxConcurrent bounds parallel source queries. Default 4.
	MaxConcurrent int
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	if c.SourceTimeout <= 0 || c.SourceTimeout > 2*time.Second {
		c.SourceTimeout = 2 * time.Second
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = 8 * time.Second
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	return c
}

// Aggregator fans a claim out to the configured sources and folds the
// results into a scored bundle.
type Aggregator struct {
	sources []Source
	creds   *Credibility
	cfg     AggregatorConfig
	logger  *slog.Logger
}

// NewAggregator creates an aggregator over the given sources. Sources are
// registered with the credibility table if they are not already known.
func NewAggregator(sources []Source, creds *Credibility, cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if creds == nil {
		creds = NewCredibility(0)
	}
	for _, s := range sources {
		creds.Register(s.ID(), s.Tier(), defaultInitialCredibility(s.Tier()))
	}
	return &Aggregator{
		sources: sources,
		creds:   creds,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "evidence"),
	}
}

// Credibility exposes the adaptive table for feedback updates.
func (a *Aggregator) Credibility() *Credibility { return a.creds }

func defaultInitialCredibility(tier SourceTier) float64 {
	switch tier {
	case TierAcademic:
		return 0.9
	case TierEncyclopedic:
		return 0.8
	case TierDocumentation:
		return 0.8
	case TierNews:
		return 0.6
	default:
		return 0.4
	}
}

// Gather queries the prioritized sources concurrently, each under its own
// timeout, normalizes and deduplicates the results, and returns the scored
// bundle. Failing sources degrade the bundle, never the request.
func (a *Aggregator) Gather(ctx context.Context, c *claim.Claim, policy Policy) (*Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.TotalTimeout)
	defer cancel()

	ordered := a.prioritize(c.Domain, policy)

	var mu sync.Mutex
	var items []Item

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrent)
	for _, src := range ordered {
		src := src
		g.Go(func() error {
			qctx, qcancel := context.WithTimeout(gctx, a.cfg.SourceTimeout)
			defer qcancel()

			raw, err := src.Query(qctx, c.Normalized, c.Domain)
			if err != nil {
				observability.EvidenceQueriesTotal.WithLabelValues(src.ID(), "error").Inc()
				a.logger.Debug("evidence source failed",
					slog.String("source", src.ID()),
					slog.String("error", err.Error()))
				// Individual source failures are absorbed.
				return nil
			}
			observability.EvidenceQueriesTotal.WithLabelValues(src.ID(), "ok").Inc()

			cred := a.creds.Get(src.ID())
			mu.Lock()
			for _, r := range raw {
				items = append(items, a.normalize(c, src, r, cred, policy))
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil && len(items) == 0 {
		// Deadline with nothing gathered still yields an empty bundle; the
		// caller decides how to degrade.
		a.logger.Warn("evidence gather deadline with no items", slog.String("claim", c.ID))
	}

	items = dedupe(items)
	if policy.Transform != nil {
		for i := range items {
			policy.Transform(&items[i])
			items[i].Relevance = verdict.Clamp01(items[i].Relevance)
		}
	}
	return newBundle(items, c.Domain), nil
}

// prioritize orders sources by tier preference for the domain, then policy.
func (a *Aggregator) prioritize(domain claim.Domain, policy Policy) []Source {
	prefer := make(map[SourceTier]int)
	for i, t := range policy.PreferTiers {
		prefer[t] = len(policy.PreferTiers) - i
	}
	if len(prefer) == 0 {
		for i, t := range defaultTierOrder(domain) {
			prefer[t] = 8 - i
		}
	}

	ordered := make([]Source, len(a.sources))
	copy(ordered, a.sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return prefer[ordered[i].Tier()] > prefer[ordered[j].Tier()]
	})
	return ordered
}

func defaultTierOrder(domain claim.Domain) []SourceTier {
	switch domain {
	case claim.DomainScience, claim.DomainHealth:
		return []SourceTier{TierAcademic, TierEncyclopedic, TierNews, TierWeb}
	case claim.DomainNews:
		return []SourceTier{TierNews, TierEncyclopedic, TierWeb}
	case claim.DomainTech:
		return []SourceTier{TierDocumentation, TierEncyclopedic, TierWeb}
	default:
		return []SourceTier{TierEncyclopedic, TierNews, TierWeb}
	}
}

func (a *Aggregator) normalize(c *claim.Claim, src Source, r RawItem, cred float64, policy Policy) Item {
	relevance := verdict.Clamp01(r.Relevance)
	for _, t := range policy.PenalizeTiers {
		if src.Tier() == t {
			relevance *= 0.5
		}
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return Item{
		Content:     r.Content,
		SourceID:    src.ID(),
		Tier:        src.Tier(),
		Credibility: cred,
		Relevance:   relevance,
		Timestamp:   ts,
		Stance:      classifyStance(c.Normalized, r.Content),
	}
}

// dedupe collapses items with identical normalized content, keeping the
// highest-credibility copy.
func dedupe(items []Item) []Item {
	best := make(map[string]int)
	out := items[:0]
	for _, it := range items {
		h := it.contentHash()
		if i, ok := best[h]; ok {
			if it.Credibility > out[i].Credibility {
				out[i] = it
			}
			continue
		}
		best[h] = len(out)
		out = append(out, it)
	}
	return out
}

var contradictCues = []string{
	"no evidence", "debunked", "false", "myth", "refuted", "disproven",
	"contradicts", "denies", "incorrect", "not true", "hoax", "retracted",
}

var supportCues = []string{
	"confirms", "consistent with", "supports", "demonstrated", "verified",
	"shown that", "evidence that", "established", "true", "accurate",
	"peer-reviewed studies confirm",
}

// classifyStance is a lightweight textual heuristic. Contradiction cues weigh
// double: sources rarely phrase refutation ambiguously.
func classifyStance(claimNormalized, content string) Stance {
	lowered := strings.ToLower(content)
	score := 0
	for _, cue := range contradictCues {
		if strings.Contains(lowered, cue) {
			score -= 2
		}
	}
	for _, cue := range supportCues {
		if strings.Contains(lowered, cue) {
			score++
		}
	}
	switch {
	case score < 0:
		return StanceContradicts
	case score > 0:
		return StanceSupports
	default:
		return StanceNeutral
	}
}
