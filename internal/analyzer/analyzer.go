// Package analyzer classifies tasks and assigns capability tiers.
package analyzer

import (
	"strings"

	"github.com/ShayCichocki/warden/pkg/models"
)

// Complexity is the analyzer's classification of a task.
type Complexity string

const (
	// ComplexityTrivial is for small, low-risk tasks.
	ComplexityTrivial Complexity = "trivial"
	// ComplexityMedium is the default classification.
	ComplexityMedium Complexity = "medium"
	// ComplexityComplex is for large, risky, or domain-sensitive tasks.
	ComplexityComplex Complexity = "complex"
)

// Signals are historical outcome signals for tasks similar to the one being
// classified, supplied by an external performance-tracking collaborator.
type Signals struct {
	// FailureRate is the fraction of similar tasks that failed (0.0-1.0).
	FailureRate float64
	// SampleCount is how many historical outcomes back the rate.
	SampleCount int
}

// HistoryProvider supplies historical outcome signals. Implementations live
// outside this core; a nil provider means no signals are available.
type HistoryProvider interface {
	// OutcomeSignals returns signals for tasks similar to the given task.
	// A nil result means no history exists.
	OutcomeSignals(task *models.Task) (*Signals, error)
}

// Assessment is the analyzer's output for one task.
type Assessment struct {
	// Complexity is the classified complexity tier.
	Complexity Complexity
	// Tier is the recommended capability tier.
	Tier models.Tier
	// Score is the weighted score the thresholds were applied to.
	Score float64
	// LowConfidence is set when signals were missing or inconclusive.
	// A low-confidence task combined with any non-PASS verdict later
	// forces escalation regardless of remaining iteration budget.
	LowConfidence bool
	// Reason explains the classification.
	Reason string
	// MatchedKeyword is the keyword that drove the decision, if any.
	MatchedKeyword string
}

// Score weights. Change-size and history dominate; keyword nudges break ties.
const (
	weightChangeSize  = 0.4
	weightFailureRate = 0.4
	weightKeyword     = 0.2

	thresholdTrivial = 0.25
	thresholdComplex = 0.60
)

// Analyzer classifies tasks by a weighted score over estimated change size,
// keyword signals, and historical failure rate.
type Analyzer struct {
	history HistoryProvider
}

// New creates an Analyzer. history may be nil; classification then runs on
// task text alone and flags low confidence.
func New(history HistoryProvider) *Analyzer {
	return &Analyzer{history: history}
}

// Analyze classifies the task and recommends a capability tier.
//
// A domain-sensitive keyword match forces at least the complex tier no
// matter what the score says. Missing historical signals default the task
// to medium and set LowConfidence.
func (a *Analyzer) Analyze(task *models.Task) Assessment {
	text := strings.ToLower(task.Title + " " + task.Description)
	signals, lowConfidence := a.lookupSignals(task)

	// Policy override: sensitive keywords cannot be scored away. The
	// confidence flag still tracks the signals, since it later decides
	// whether a non-passing verdict may retry at all.
	if kw := matchKeyword(text, sensitiveKeywords); kw != "" {
		return Assessment{
			Complexity:     ComplexityComplex,
			Tier:           models.TierArchitect,
			Score:          1.0,
			LowConfidence:  lowConfidence,
			Reason:         "domain-sensitive keyword forces complex tier",
			MatchedKeyword: kw,
		}
	}

	score := weightChangeSize * changeSizeScore(task)
	if signals != nil {
		score += weightFailureRate * clamp01(signals.FailureRate)
	}
	score += weightKeyword * keywordScore(text)

	assessment := Assessment{Score: score, LowConfidence: lowConfidence}

	switch {
	case lowConfidence:
		// Without signals the score is not trustworthy either way.
		assessment.Complexity = ComplexityMedium
		assessment.Reason = "missing historical signals, defaulting to medium"
	case score < thresholdTrivial:
		assessment.Complexity = ComplexityTrivial
		assessment.Reason = "score below trivial threshold"
	case score >= thresholdComplex:
		assessment.Complexity = ComplexityComplex
		assessment.Reason = "score above complex threshold"
	default:
		assessment.Complexity = ComplexityMedium
		assessment.Reason = "score in medium band"
	}

	assessment.Tier = tierFor(assessment.Complexity)
	return assessment
}

// lookupSignals fetches history, reporting low confidence when the provider
// is absent, errors, or has no samples.
func (a *Analyzer) lookupSignals(task *models.Task) (*Signals, bool) {
	if a.history == nil {
		return nil, true
	}
	signals, err := a.history.OutcomeSignals(task)
	if err != nil || signals == nil || signals.SampleCount == 0 {
		return nil, true
	}
	return signals, false
}

// changeSizeScore estimates relative change size from the task's file
// pattern hints and description length.
func changeSizeScore(task *models.Task) float64 {
	patterns := float64(len(task.FilePatterns)) / 8.0
	desc := float64(len(task.Description)) / 2000.0
	return clamp01(patterns + desc)
}

// keywordScore nudges the score down for trivial keywords and up for
// structurally heavy ones.
func keywordScore(text string) float64 {
	if matchKeyword(text, complexKeywords) != "" {
		return 1.0
	}
	if matchKeyword(text, trivialKeywords) != "" {
		return 0.0
	}
	return 0.5
}

func matchKeyword(text string, keywords []string) string {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return kw
		}
	}
	return ""
}

func tierFor(c Complexity) models.Tier {
	switch c {
	case ComplexityTrivial:
		return models.TierScout
	case ComplexityComplex:
		return models.TierArchitect
	default:
		return models.TierBuilder
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
