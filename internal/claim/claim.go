// Package claim defines the immutable claim value that flows through a
// verification request, plus the heuristics that tag it with a domain and a
// complexity class. The tags are best-effort routing hints, not ground truth.
package claim

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Domain is the inferred topical domain of a claim.
type Domain string

const (
	DomainScience Domain = "science"
	DomainHealth  Domain = "health"
	DomainNews    Domain = "news"
	DomainTech    Domain = "tech"
	DomainGeneral Domain = "general"
)

// Domains lists every recognized domain.
func Domains() []Domain {
	return []Domain{DomainScience, DomainHealth, DomainNews, DomainTech, DomainGeneral}
}

// Valid reports whether d is one of the closed set of domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainScience, DomainHealth, DomainNews, DomainTech, DomainGeneral:
		return true
	}
	return false
}

// Complexity classifies how much reasoning a claim is expected to need.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Urgency of a verification request, carried as a hint.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
)

// Hints carries optional caller-supplied overrides and flags.
type Hints struct {
	Language       string
	DomainOverride Domain
	Privacy        bool
	Urgency        Urgency
}

// MaxLength is the hard cap on claim text; longer input is rejected.
const MaxLength = 2000

var (
	ErrEmpty   = errors.New("claim text is empty")
	ErrTooLong = errors.New("claim text exceeds length cap")
	ErrBadHint = errors.New("unsupported hint value")
)

// Claim is an immutable assertion under verification.
type Claim struct {
	ID         string
	Text       string
	Normalized string
	Domain     Domain
	Complexity Complexity
	Hints      Hints
	CreatedAt  time.Time
}

// New validates the raw text, normalizes it, infers domain and complexity,
// and returns the claim. The domain override hint, when set, wins over the
// inference.
func New(text string, hints Hints) (*Claim, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmpty
	}
	if len(text) > MaxLength {
		return nil, ErrTooLong
	}
	if hints.DomainOverride != "" && !hints.DomainOverride.Valid() {
		return nil, ErrBadHint
	}
	if hints.Urgency == "" {
		hints.Urgency = UrgencyNormal
	}

	normalized := Normalize(text)
	domain := hints.DomainOverride
	if domain == "" {
		domain = inferDomain(normalized)
	}

	return &Claim{
		ID:         uuid.New().String(),
		Text:       text,
		Normalized: normalized,
		Domain:     domain,
		Complexity: inferComplexity(normalized),
		Hints:      hints,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Normalize lowercases, trims, and collapses whitespace so that identical
// claims compare equal regardless of formatting.
func Normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	return strings.Join(strings.Fields(lowered), " ")
}

var domainCues = map[Domain][]string{
	DomainScience: {"study", "research", "experiment", "theory", "hypothesis",
		"physics", "chemistry", "biology", "species", "climate", "quantum",
		"proved", "proof", "peer-reviewed", "boils", "evolution", "universe"},
	DomainHealth: {"vaccine", "vaccines", "disease", "cancer", "virus", "drug",
		"medicine", "medical", "symptom", "treatment", "autism", "diet",
		"patients", "clinical", "health"},
	DomainNews: {"breaking", "today", "yesterday", "announced", "reported",
		"election", "president", "minister", "died", "killed", "happened",
		"just in"},
	DomainTech: {"software", "api", "cpu", "gpu", "programming", "algorithm",
		"release", "version", "framework", "database", "encryption", "kernel",
		"open source", "browser"},
}

// inferDomain counts cue-word hits per domain and returns the best match,
// defaulting to general when nothing scores.
func inferDomain(normalized string) Domain {
	best := DomainGeneral
	bestHits := 0
	// Fixed iteration order keeps inference deterministic.
	for _, d := range []Domain{DomainHealth, DomainScience, DomainNews, DomainTech} {
		hits := 0
		for _, cue := range domainCues[d] {
			if strings.Contains(normalized, cue) {
				hits++
			}
		}
		if hits > bestHits {
			bestHits = hits
			best = d
		}
	}
	return best
}

var complexCues = []string{
	"because", "therefore", "implies", "if and only if", "correlat",
	"caused by", "leads to", "hypothesis", "unless", "whereas",
}

// inferComplexity is a coarse length-and-structure heuristic. Specialized
// agents may substitute their own.
func inferComplexity(normalized string) Complexity {
	words := len(strings.Fields(normalized))
	clauses := strings.Count(normalized, ",") + strings.Count(normalized, ";")
	cueHits := 0
	for _, cue := range complexCues {
		if strings.Contains(normalized, cue) {
			cueHits++
		}
	}
	digits := 0
	for _, r := range normalized {
		if unicode.IsDigit(r) {
			digits++
		}
	}

	score := 0
	if words > 25 {
		score += 2
	} else if words > 12 {
		score++
	}
	if clauses >= 2 {
		score++
	}
	if cueHits > 0 {
		score += cueHits
	}
	if digits > 6 {
		score++
	}

	switch {
	case score >= 3:
		return ComplexityComplex
	case score >= 1:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}
