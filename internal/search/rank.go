package search

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// FusionWeights configures the linear combination in RankFusion, per
// spec.md §4.5: "a weighted sum over features normalized to [0,1]".
type FusionWeights struct {
	VectorSimilarity float64
	KeywordScore     float64
	RecencyDecay     float64
	Confidence       float64
}

// DefaultFusionWeights mirrors the teacher's sparse.go tiering: semantic
// similarity dominates, with keyword/recency/confidence as tie-breakers.
var DefaultFusionWeights = FusionWeights{
	VectorSimilarity: 0.5,
	KeywordScore:     0.25,
	RecencyDecay:     0.15,
	Confidence:       0.10,
}

// Candidate is one item competing for a rank-fused score.
type Candidate struct {
	ID               int64
	VectorSimilarity float64 // already normalized to [0,1], 1 = closest
	KeywordScore     float64 // normalized [0,1]
	LastRecalled     *time.Time
	Confidence       float64 // [0,1]
}

// Scored pairs a Candidate with its fused score.
type Scored struct {
	Candidate Candidate
	Score     float64
}

// RankFusion scores and sorts candidates by the weighted sum of their
// normalized features, with a stable tie-break on id (spec.md §4.5).
func RankFusion(candidates []Candidate, w FusionWeights, now time.Time) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		recency := recencyDecay(c.LastRecalled, now)
		score := w.VectorSimilarity*c.VectorSimilarity +
			w.KeywordScore*c.KeywordScore +
			w.RecencyDecay*recency +
			w.Confidence*c.Confidence
		out[i] = Scored{Candidate: c, Score: score}
	}
	sortScored(out)
	return out
}

// recencyDecay maps "how long since last_recalled" to [0,1], 1 = just
// recalled, decaying over a 30-day half-life. A nil LastRecalled (never
// recalled) scores 0.
func recencyDecay(last *time.Time, now time.Time) float64 {
	if last == nil {
		return 0
	}
	days := now.Sub(*last).Hours() / 24
	if days <= 0 {
		return 1
	}
	const halfLifeDays = 30.0
	return math.Pow(0.5, days/halfLifeDays)
}

func sortScored(s []Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0; j-- {
			a, b := s[j], s[j-1]
			if a.Score > b.Score || (a.Score == b.Score && a.Candidate.ID < b.Candidate.ID) {
				s[j], s[j-1] = s[j-1], s[j]
			} else {
				break
			}
		}
	}
}

// Intent is a detected query-pattern routing hint.
type Intent int

const (
	IntentSemantic Intent = iota
	IntentCallers
	IntentCallees
)

var (
	callersPattern = regexp.MustCompile(`(?i)^(who calls|callers? of)\s+(.+)$`)
	calleesPattern = regexp.MustCompile(`(?i)^(what does|functions? called by)\s+(.+?)\s*(call)?$`)
)

// DetectIntent implements spec.md §4.5's query-pattern detection: a
// lightweight string matcher identifying caller/callee intent so recall
// can route directly to cross-reference mode instead of semantic search.
func DetectIntent(query string) (intent Intent, symbolName string) {
	q := strings.TrimSpace(query)
	if m := callersPattern.FindStringSubmatch(q); m != nil {
		return IntentCallers, strings.TrimSuffix(strings.TrimSpace(m[2]), "?")
	}
	if m := calleesPattern.FindStringSubmatch(q); m != nil {
		return IntentCallees, strings.TrimSuffix(strings.TrimSpace(m[2]), "?")
	}
	return IntentSemantic, ""
}
