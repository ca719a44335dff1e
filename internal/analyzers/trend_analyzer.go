package analyzers

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"signalzero/internal/agent"
	"signalzero/internal/messaging"
)

// spikeThreshold flags an hour as a spike when its volume exceeds this
// multiple of the window average.
const spikeThreshold = 3.0

// TrendAnalyzer judges whether a query's growth curve looks organic. Score
// is organic-growth likelihood.
type TrendAnalyzer struct {
	rng         *lockedRand
	windowHours int
}

// NewTrendAnalyzer creates the agent with a seedable random source and a
// 168-hour (7-day) analysis window.
func NewTrendAnalyzer(rng *rand.Rand) *TrendAnalyzer {
	return &TrendAnalyzer{rng: newLockedRand(rng), windowHours: 168}
}

func (t *TrendAnalyzer) Type() messaging.AgentType {
	return messaging.AgentTrendAnalyzer
}

func (t *TrendAnalyzer) ProcessAnalysisRequest(_ context.Context, req *agent.Request) (*agent.Result, error) {
	volumes := t.generateVolumes(req.Query)

	velocity := analyzeVelocity(volumes)
	spikes := detectSpikes(volumes)
	platforms := t.analyzeCrossPlatform(req.Platform)

	organicScore := t.organicScore(velocity, spikes, platforms)
	confidence := t.confidence(len(volumes), velocity)

	evidence := map[string]any{
		"trend_data_points":       len(volumes),
		"time_window_analyzed":    fmt.Sprintf("%d hours", t.windowHours),
		"velocity_analysis":       velocity.evidence(),
		"spike_analysis":          spikes.evidence(),
		"platform_analysis":       platforms,
		"organic_indicators":      organicIndicators(velocity, spikes),
		"manipulation_indicators": trendManipulationIndicators(velocity, spikes),
	}

	return &agent.Result{
		Score:       organicScore,
		Confidence:  confidence,
		Evidence:    evidence,
		DataSources: t.dataSources(req.Platform),
	}, nil
}

// generateVolumes synthesizes an hourly mention-volume series whose shape
// depends on the query category.
func (t *TrendAnalyzer) generateVolumes(query string) []float64 {
	pattern := t.pickPattern(query)
	base := float64(t.rng.IntBetween(100, 1000))

	volumes := make([]float64, t.windowHours)
	for hour := range volumes {
		var mult float64
		switch pattern {
		case "artificial_spike":
			switch {
			case hour >= 48 && hour <= 72:
				mult = t.rng.Uniform(5, 15)
			case hour > 72 && hour <= 96:
				mult = t.rng.Uniform(2, 4)
			default:
				mult = t.rng.Uniform(0.5, 1.5)
			}
		case "organic_growth":
			growth := 1 + float64(hour)/float64(t.windowHours)*2
			mult = growth * t.rng.Uniform(0.8, 1.2)
		case "coordinated_campaign":
			switch hour % 24 {
			case 9, 13, 17, 21: // peak posting times
				mult = t.rng.Uniform(3, 6)
			default:
				mult = t.rng.Uniform(0.8, 1.5)
			}
		default: // natural daily cycle
			cycle := 1 + 0.3*math.Abs(12-float64(hour%24))/12
			mult = cycle * t.rng.Uniform(0.7, 1.3)
		}
		volumes[hour] = math.Floor(base * mult)
	}
	return volumes
}

func (t *TrendAnalyzer) pickPattern(query string) string {
	switch {
	case containsAny(query, "stock", "crypto", "investment"):
		return "artificial_spike"
	case containsAny(query, "viral", "challenge", "trending", "meme"):
		return t.rng.Pick("artificial_spike", "coordinated_campaign")
	case containsAny(query, "product", "launch", "brand", "company"):
		return t.rng.Pick("coordinated_campaign", "organic_growth")
	default:
		return t.rng.Pick("organic_growth", "natural")
	}
}

type velocityAnalysis struct {
	maxGrowthRate float64
	avgGrowthRate float64
	peakVolume    float64
	timeToPeak    int
	velocityScore float64
	growthPattern string
	volatility    float64
}

func analyzeVelocity(volumes []float64) velocityAnalysis {
	if len(volumes) < 2 {
		return velocityAnalysis{growthPattern: "insufficient_data"}
	}

	var growthRates []float64
	for i := 1; i < len(volumes); i++ {
		if volumes[i-1] > 0 {
			growthRates = append(growthRates, (volumes[i]-volumes[i-1])/volumes[i-1]*100)
		}
	}

	var maxGrowth, sum float64
	for i, r := range growthRates {
		if i == 0 || r > maxGrowth {
			maxGrowth = r
		}
		sum += r
	}
	avgGrowth := 0.0
	if len(growthRates) > 0 {
		avgGrowth = sum / float64(len(growthRates))
	}

	peak, peakIdx := 0.0, 0
	for i, v := range volumes {
		if v > peak {
			peak, peakIdx = v, i
		}
	}

	return velocityAnalysis{
		maxGrowthRate: round2(maxGrowth),
		avgGrowthRate: round2(avgGrowth),
		peakVolume:    peak,
		timeToPeak:    peakIdx,
		velocityScore: round2(math.Min(maxGrowth/10, 100)),
		growthPattern: classifyGrowthPattern(maxGrowth, avgGrowth, len(growthRates)),
		volatility:    round2(volatility(volumes)),
	}
}

func classifyGrowthPattern(maxGrowth, avgGrowth float64, samples int) string {
	switch {
	case samples == 0:
		return "insufficient_data"
	case maxGrowth > 500:
		return "explosive_spike"
	case maxGrowth > 200:
		return "rapid_growth"
	case avgGrowth > 50:
		return "sustained_growth"
	case avgGrowth > 0:
		return "gradual_growth"
	default:
		return "declining"
	}
}

// volatility is the coefficient of variation of the series, in percent.
func volatility(volumes []float64) float64 {
	m := mean(volumes)
	if m == 0 {
		return 0
	}
	return math.Sqrt(variance(volumes)) / m * 100
}

func (v velocityAnalysis) evidence() map[string]any {
	return map[string]any{
		"max_growth_rate_percent": v.maxGrowthRate,
		"avg_growth_rate_percent": v.avgGrowthRate,
		"peak_volume":             v.peakVolume,
		"time_to_peak_hours":      v.timeToPeak,
		"velocity_score":          v.velocityScore,
		"growth_pattern":          v.growthPattern,
		"volatility":              v.volatility,
	}
}

type spikeAnalysis struct {
	spikes        []map[string]any
	avgVolume     float64
	artificialPct float64
}

func detectSpikes(volumes []float64) spikeAnalysis {
	avg := mean(volumes)

	var spikes []map[string]any
	var maxMultiplier float64
	for i, v := range volumes {
		if avg > 0 && v > avg*spikeThreshold {
			mult := round2(v / avg)
			if mult > maxMultiplier {
				maxMultiplier = mult
			}
			spikes = append(spikes, map[string]any{
				"hour":       i,
				"volume":     v,
				"multiplier": mult,
			})
		}
	}

	return spikeAnalysis{
		spikes:        spikes,
		avgVolume:     round2(avg),
		artificialPct: artificialProbability(spikes, maxMultiplier, volumes),
	}
}

// artificialProbability scores how unlikely the detected spikes are to be
// organic: many spikes, extreme multipliers and a sharp post-spike collapse
// all push it up.
func artificialProbability(spikes []map[string]any, maxMultiplier float64, volumes []float64) float64 {
	if len(spikes) == 0 {
		return 0
	}

	var probability float64
	if len(spikes) > 2 {
		probability += 30
	}
	switch {
	case maxMultiplier > 10:
		probability += 40
	case maxMultiplier > 5:
		probability += 25
	}
	for _, s := range spikes {
		hour := s["hour"].(int)
		if hour < len(volumes)-2 && volumes[hour] > 0 {
			decline := (volumes[hour] - volumes[hour+2]) / volumes[hour]
			if decline > 0.7 {
				probability += 20
				break
			}
		}
	}
	return math.Min(probability, 95)
}

func (s spikeAnalysis) evidence() map[string]any {
	return map[string]any{
		"spikes_detected":        len(s.spikes),
		"spike_details":          s.spikes,
		"avg_volume":             s.avgVolume,
		"threshold_used":         spikeThreshold,
		"artificial_probability": s.artificialPct,
	}
}

// analyzeCrossPlatform correlates activity across platforms; only the "all"
// platform scope has multiple series to compare.
func (t *TrendAnalyzer) analyzeCrossPlatform(platform messaging.Platform) map[string]any {
	if platform != messaging.PlatformAll {
		return map[string]any{
			"platforms_analyzed":    []string{string(platform)},
			"synchronized_activity": false,
			"correlation_score":     0.0,
		}
	}

	platforms := []string{"twitter", "reddit", "instagram", "youtube"}
	metrics := make(map[string]any, len(platforms))
	var correlations []float64
	for _, p := range platforms {
		corr := t.rng.Uniform(0.3, 0.95)
		correlations = append(correlations, corr)
		metrics[p] = map[string]any{
			"volume":             t.rng.IntBetween(100, 2000),
			"growth_rate":        round2(t.rng.Uniform(-20, 300)),
			"engagement_rate":    round2(t.rng.Uniform(0.01, 0.20)),
			"timing_correlation": round2(corr),
		}
	}
	score := round2(mean(correlations))

	return map[string]any{
		"platforms_analyzed":    platforms,
		"platform_metrics":      metrics,
		"correlation_score":     score,
		"synchronized_activity": score > 0.8,
	}
}

func (t *TrendAnalyzer) organicScore(v velocityAnalysis, s spikeAnalysis, platforms map[string]any) float64 {
	score := 70.0

	switch {
	case v.maxGrowthRate > 1000:
		score -= 30
	case v.maxGrowthRate > 500:
		score -= 20
	case v.maxGrowthRate > 200:
		score -= 10
	}

	score -= s.artificialPct * 0.5

	if sync, _ := platforms["synchronized_activity"].(bool); sync {
		score -= 15
	}
	if corr, _ := platforms["correlation_score"].(float64); corr > 0.9 {
		score -= 20
	} else if corr > 0.8 {
		score -= 10
	}

	return clampFloat(score, 5, 95)
}

func (t *TrendAnalyzer) confidence(dataPoints int, v velocityAnalysis) float64 {
	confidence := 75.0
	switch {
	case dataPoints > 100:
		confidence += 15
	case dataPoints > 50:
		confidence += 10
	case dataPoints < 20:
		confidence -= 10
	}
	switch v.growthPattern {
	case "explosive_spike", "sustained_growth":
		confidence += 10
	case "insufficient_data":
		confidence -= 20
	}
	confidence += t.rng.Uniform(-5, 5)
	return clampFloat(confidence, 60, 98)
}

func organicIndicators(v velocityAnalysis, s spikeAnalysis) []string {
	var indicators []string
	if v.growthPattern == "gradual_growth" {
		indicators = append(indicators, "Gradual, sustained growth pattern")
	}
	if v.maxGrowthRate < 200 {
		indicators = append(indicators, "Moderate growth velocity")
	}
	if s.artificialPct < 30 {
		indicators = append(indicators, "Low artificial spike probability")
	}
	if v.volatility < 50 {
		indicators = append(indicators, "Low volatility in trend data")
	}
	if len(indicators) == 0 {
		return []string{"Limited organic indicators detected"}
	}
	return indicators
}

func trendManipulationIndicators(v velocityAnalysis, s spikeAnalysis) []string {
	var indicators []string
	if v.growthPattern == "explosive_spike" {
		indicators = append(indicators, "Explosive growth spike detected")
	}
	if v.maxGrowthRate > 500 {
		indicators = append(indicators, "Abnormally high growth rate")
	}
	if s.artificialPct > 60 {
		indicators = append(indicators, "High artificial spike probability")
	}
	if v.volatility > 100 {
		indicators = append(indicators, "Extreme volatility in trend data")
	}
	if n := len(s.spikes); n > 3 {
		indicators = append(indicators, fmt.Sprintf("Multiple suspicious spikes (%d detected)", n))
	}
	if len(indicators) == 0 {
		return []string{"No clear manipulation indicators"}
	}
	return indicators
}

func (t *TrendAnalyzer) dataSources(platform messaging.Platform) []string {
	sources := []string{"trend_velocity_data", "volume_analysis"}
	if platform == messaging.PlatformTwitter || platform == messaging.PlatformAll {
		sources = append(sources, "twitter_trending_api")
	}
	if platform == messaging.PlatformReddit || platform == messaging.PlatformAll {
		sources = append(sources, "reddit_trending_data")
	}
	if platform == messaging.PlatformYouTube || platform == messaging.PlatformAll {
		sources = append(sources, "youtube_trending_data")
	}
	sources = append(sources, "google_trends")
	return sources
}

// DemoEvidence mirrors the synthetic shape with the canonical demo numbers.
func (t *TrendAnalyzer) DemoEvidence(query string, botPercentage, realityScore int) map[string]any {
	spikeMultiplier := round1(t.rng.Uniform(8, 25))
	return map[string]any{
		"organic_score":         realityScore,
		"peak_spike_multiplier": spikeMultiplier,
		"time_to_peak_hours":    t.rng.IntBetween(2, 8),
		"key_findings": []string{
			fmt.Sprintf("Volume spiked %.1fx above baseline within hours", spikeMultiplier),
			"Growth curve inconsistent with organic spread",
			fmt.Sprintf("%d%% of amplification traced to automated accounts", botPercentage),
			"Rapid post-spike collapse in engagement",
		},
		"manipulation_indicators": []string{
			"Explosive growth spike detected",
			"Coordinated posting time clusters",
			"High artificial spike probability",
		},
		"analysis_window": fmt.Sprintf("%d hours", t.windowHours),
	}
}
