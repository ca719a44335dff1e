package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"signalzero/internal/messaging"
)

// maxKeyFindings caps the combined findings list so the summary stays short.
const maxKeyFindings = 6

// agentLabel is the human-readable name used inside evidence text.
var agentLabel = map[messaging.AgentType]string{
	messaging.AgentBotDetector:     "Bot Detection",
	messaging.AgentTrendAnalyzer:   "Trend Analysis",
	messaging.AgentReviewValidator: "Review Validation",
	messaging.AgentPaidPromotion:   "Paid Promotion Detection",
}

// buildEvidence assembles the aggregate evidence bundle: the breakdown of how
// each agent contributed, cross-agent patterns, and a plain-language summary.
func (s *ScoreAggregator) buildEvidence(query string, outcome Outcome, results map[messaging.AgentType]messaging.AgentResponse) map[string]any {
	agentScores := make(map[string]any, len(outcome.AgentScores))
	breakdown := make(map[string]any, len(outcome.AgentScores))
	for _, t := range messaging.SignalAgents {
		score := outcome.AgentScores[t]
		weight := s.weightFor(t)
		agentScores[string(t)] = score
		breakdown[string(t)] = map[string]any{
			"score":                 score,
			"weight":                weight,
			"weighted_contribution": round2(score * weight),
			"interpretation":        interpretScore(score),
		}
	}

	return map[string]any{
		"reality_score":        outcome.RealityScore,
		"manipulation_level":   string(outcome.ManipulationLevel),
		"agents_responded":     len(outcome.Responded),
		"agent_scores":         agentScores,
		"score_breakdown":      breakdown,
		"cross_agent_patterns": crossAgentPatterns(results),
		"analysis_summary":     analysisSummary(query, outcome),
		"key_findings":         keyFindings(results),
		"confidence_factors":   confidenceFactors(outcome),
	}
}

// interpretScore maps a sub-score to its qualitative band.
func interpretScore(score float64) string {
	switch {
	case score >= 80:
		return "Excellent"
	case score >= 60:
		return "Good"
	case score >= 40:
		return "Moderate"
	case score >= 20:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// patternThemes maps a reportable theme to the evidence-text fragments that
// signal it. A theme counts as cross-agent when two or more agents mention it.
var patternThemes = map[string][]string{
	"coordination":        {"coordinated", "synchronized", "talking points"},
	"artificial_activity": {"bot", "artificial", "automated", "fake"},
	"suspicious_spikes":   {"spike", "surge", "burst"},
}

// crossAgentPatterns counts how many agents independently reported each
// manipulation theme, surfacing themes confirmed by at least two.
func crossAgentPatterns(results map[messaging.AgentType]messaging.AgentResponse) map[string]any {
	counts := make(map[string]int, len(patternThemes))
	for _, t := range messaging.SignalAgents {
		resp, ok := results[t]
		if !ok || !resp.Complete() {
			continue
		}
		text := strings.ToLower(evidenceText(resp.Evidence))
		for theme, fragments := range patternThemes {
			for _, f := range fragments {
				if strings.Contains(text, f) {
					counts[theme]++
					break
				}
			}
		}
	}

	confirmed := make([]string, 0, len(counts))
	for theme, n := range counts {
		if n >= 2 {
			confirmed = append(confirmed, theme)
		}
	}
	sort.Strings(confirmed)

	return map[string]any{
		"theme_counts":     counts,
		"confirmed_themes": confirmed,
	}
}

// evidenceText flattens an evidence map's string content for theme matching.
func evidenceText(evidence map[string]any) string {
	var b strings.Builder
	keys := make([]string, 0, len(evidence))
	for k := range evidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(' ')
		writeValue(&b, evidence[k])
	}
	return b.String()
}

func writeValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case string:
		b.WriteString(val)
		b.WriteByte(' ')
	case []string:
		for _, s := range val {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	case []any:
		for _, item := range val {
			writeValue(b, item)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte(' ')
			writeValue(b, val[k])
		}
	}
}

func analysisSummary(query string, outcome Outcome) string {
	subject := query
	if subject == "" {
		subject = "the analyzed subject"
	}
	var verdict string
	switch outcome.ManipulationLevel {
	case messaging.LevelGreen:
		verdict = "appears largely authentic"
	case messaging.LevelYellow:
		verdict = "shows mixed signals of manipulation"
	default:
		verdict = "shows strong signs of coordinated manipulation"
	}
	return fmt.Sprintf("Reality Score %.2f/100: %q %s based on %d of %d agent signals.",
		outcome.RealityScore, subject, verdict, len(outcome.Responded), len(messaging.SignalAgents))
}

// keyFindings pulls each responding agent's top findings into one capped,
// deterministically ordered list.
func keyFindings(results map[messaging.AgentType]messaging.AgentResponse) []string {
	findings := make([]string, 0, maxKeyFindings)
	for _, t := range messaging.SignalAgents {
		resp, ok := results[t]
		if !ok || !resp.Complete() {
			continue
		}
		raw, ok := resp.Evidence["key_findings"]
		if !ok {
			continue
		}
		for _, f := range stringList(raw) {
			if len(findings) == maxKeyFindings {
				return findings
			}
			findings = append(findings, fmt.Sprintf("[%s] %s", agentLabel[t], f))
		}
	}
	return findings
}

func stringList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func confidenceFactors(outcome Outcome) []string {
	factors := []string{
		fmt.Sprintf("%d of %d signal agents responded", len(outcome.Responded), len(messaging.SignalAgents)),
	}
	if len(outcome.Responded) == len(messaging.SignalAgents) {
		factors = append(factors, "Full agent coverage")
	}
	if len(outcome.Responded) >= 2 {
		factors = append(factors, "Cross-agent score consistency weighted into confidence")
	}
	if missing := len(messaging.SignalAgents) - len(outcome.Responded); missing > 0 {
		factors = append(factors, fmt.Sprintf("%d agent(s) substituted with neutral score", missing))
	}
	return factors
}

// combinedDataSources merges every responding agent's data sources with the
// aggregator's own markers, deduplicated and sorted.
func combinedDataSources(results map[messaging.AgentType]messaging.AgentResponse) []string {
	seen := map[string]bool{
		"multi_agent_aggregation":    true,
		"weighted_scoring_algorithm": true,
	}
	for _, resp := range results {
		if !resp.Complete() {
			continue
		}
		for _, src := range resp.DataSources {
			seen[src] = true
		}
	}
	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// DemoEvidence mirrors the aggregate bundle shape with the canonical demo
// numbers.
func (s *ScoreAggregator) DemoEvidence(query string, botPercentage, realityScore int) map[string]any {
	level := messaging.LevelForScore(float64(realityScore))
	return map[string]any{
		"reality_score":      realityScore,
		"manipulation_level": string(level),
		"agent_scores": map[string]any{
			string(messaging.AgentBotDetector):     100 - botPercentage,
			string(messaging.AgentTrendAnalyzer):   realityScore,
			string(messaging.AgentReviewValidator): realityScore,
			string(messaging.AgentPaidPromotion):   realityScore,
		},
		"key_findings": []string{
			fmt.Sprintf("%d%% of amplifying accounts show bot-like behavior", botPercentage),
			fmt.Sprintf("Weighted Reality Score of %d places %q in the %s zone", realityScore, query, level),
			"Signals consistent across all four detection agents",
		},
		"confidence_factors": []string{
			"Full agent coverage",
			"Cross-agent score consistency",
		},
	}
}
