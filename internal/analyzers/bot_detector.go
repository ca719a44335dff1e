package analyzers

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"signalzero/internal/agent"
	"signalzero/internal/messaging"
)

// BotDetector estimates what share of the accounts pushing a query behave
// like automation. Score is authenticity: 100 minus the bot percentage.
type BotDetector struct {
	rng *lockedRand
}

// NewBotDetector creates the agent with a seedable random source.
func NewBotDetector(rng *rand.Rand) *BotDetector {
	return &BotDetector{rng: newLockedRand(rng)}
}

func (b *BotDetector) Type() messaging.AgentType {
	return messaging.AgentBotDetector
}

// indicator weights, capped per group to keep any single signal from
// dominating.
const (
	ageWeight      = 0.30
	profileWeight  = 0.25
	usernameWeight = 0.20
	postingWeight  = 0.15
	networkWeight  = 0.10
)

func (b *BotDetector) ProcessAnalysisRequest(_ context.Context, req *agent.Request) (*agent.Result, error) {
	totalAccounts := b.rng.IntBetween(500, 5000)

	ind := b.botIndicators(req.Query, totalAccounts)
	botPct := b.botPercentage(ind)
	confidence := b.confidence(ind, totalAccounts)

	evidence := map[string]any{
		"total_accounts_analyzed": totalAccounts,
		"bot_percentage":          round1(botPct),
		"bot_indicators":          ind.evidence(),
		"suspicious_accounts":     int(float64(totalAccounts) * botPct / 100),
		"platform_analysis":       string(req.Platform),
		"detection_methods": []string{
			"account_age_analysis",
			"profile_completeness_check",
			"username_pattern_analysis",
			"posting_behavior_analysis",
			"network_cluster_detection",
		},
	}

	return &agent.Result{
		Score:       100 - botPct,
		Confidence:  confidence,
		Evidence:    evidence,
		DataSources: b.dataSources(req.Platform),
	}, nil
}

// botIndicators is the synthesized raw signal set for one query.
type botIndicators struct {
	newAccounts        int
	veryNewAccounts    int
	percentageNew      float64
	incompleteProfiles int
	defaultAvatars     int
	missingBios        int
	genericUsernames   int
	numberHeavy        int
	similarUsernames   int
	burstPosting       int
	identicalContent   int
	frequencyAnomalies int
	clusterDetected    bool
	coordinatedTiming  bool
	followerOverlap    bool
}

func (b *BotDetector) botIndicators(query string, totalAccounts int) botIndicators {
	total := float64(totalAccounts)
	newAccounts := int(total * b.baseBotRate(query))
	return botIndicators{
		newAccounts:        newAccounts,
		veryNewAccounts:    int(float64(newAccounts) * b.rng.Uniform(0.6, 0.9)),
		percentageNew:      round1(float64(newAccounts) / total * 100),
		incompleteProfiles: int(total * b.rng.Uniform(0.25, 0.55)),
		defaultAvatars:     int(total * b.rng.Uniform(0.30, 0.60)),
		missingBios:        int(total * b.rng.Uniform(0.40, 0.70)),
		genericUsernames:   int(total * b.rng.Uniform(0.20, 0.50)),
		numberHeavy:        int(total * b.rng.Uniform(0.35, 0.65)),
		similarUsernames:   b.rng.IntBetween(50, 200),
		burstPosting:       int(total * b.rng.Uniform(0.10, 0.30)),
		identicalContent:   int(total * b.rng.Uniform(0.05, 0.25)),
		frequencyAnomalies: b.rng.IntBetween(20, 100),
		clusterDetected:    b.rng.Bool(),
		coordinatedTiming:  b.rng.Bool(),
		followerOverlap:    b.rng.Bool(),
	}
}

func (ind botIndicators) evidence() map[string]any {
	return map[string]any{
		"account_age": map[string]any{
			"accounts_under_30_days": ind.newAccounts,
			"accounts_under_7_days":  ind.veryNewAccounts,
			"percentage_new":         ind.percentageNew,
		},
		"profile_analysis": map[string]any{
			"incomplete_profiles": ind.incompleteProfiles,
			"default_avatars":     ind.defaultAvatars,
			"bio_missing":         ind.missingBios,
		},
		"username_patterns": map[string]any{
			"generic_patterns":      ind.genericUsernames,
			"number_heavy":          ind.numberHeavy,
			"suspicious_similarity": ind.similarUsernames,
		},
		"posting_behavior": map[string]any{
			"burst_posting_detected":      ind.burstPosting,
			"identical_content_count":     ind.identicalContent,
			"posting_frequency_anomalies": ind.frequencyAnomalies,
		},
		"network_analysis": map[string]any{
			"cluster_detected":      ind.clusterDetected,
			"coordinated_timing":    ind.coordinatedTiming,
			"follower_overlap_high": ind.followerOverlap,
		},
	}
}

// baseBotRate tiers the expected bot share by query category; financial
// hype queries attract the most automation.
func (b *BotDetector) baseBotRate(query string) float64 {
	switch {
	case containsAny(query, "crypto", "nft", "stock", "investment", "trading"):
		return b.rng.Uniform(0.45, 0.75)
	case containsAny(query, "viral", "trending", "challenge", "meme"):
		return b.rng.Uniform(0.35, 0.65)
	case containsAny(query, "product", "review", "buy", "sale"):
		return b.rng.Uniform(0.25, 0.55)
	default:
		return b.rng.Uniform(0.15, 0.35)
	}
}

// botPercentage reduces the indicator set to one weighted percentage,
// capped at 95 to keep the output plausible.
func (b *BotDetector) botPercentage(ind botIndicators) float64 {
	ageScore := math.Min(ind.percentageNew, 80)
	profileScore := math.Min(float64(ind.incompleteProfiles)/1000*100, 70)
	usernameScore := math.Min(float64(ind.genericUsernames)/1000*100, 60)
	postingScore := math.Min(float64(ind.burstPosting)/1000*100, 50)

	var networkScore float64
	if ind.clusterDetected {
		networkScore += 30
	}
	if ind.coordinatedTiming {
		networkScore += 20
	}

	total := ageScore*ageWeight +
		profileScore*profileWeight +
		usernameScore*usernameWeight +
		postingScore*postingWeight +
		networkScore*networkWeight
	return math.Min(total, 95)
}

func (b *BotDetector) confidence(ind botIndicators, totalAccounts int) float64 {
	confidence := 70.0
	if totalAccounts > 1000 {
		confidence += 10
	}

	strong := 0
	if ind.percentageNew > 40 {
		strong++
	}
	if ind.clusterDetected {
		strong++
	}
	if ind.burstPosting > 100 {
		strong++
	}
	confidence += float64(strong) * 5

	confidence += b.rng.Uniform(-5, 5)
	return clampFloat(confidence, 60, 98)
}

func (b *BotDetector) dataSources(platform messaging.Platform) []string {
	sources := []string{"account_metadata", "posting_patterns"}
	if platform == messaging.PlatformTwitter || platform == messaging.PlatformAll {
		sources = append(sources, "twitter_api", "follower_analysis")
	}
	if platform == messaging.PlatformReddit || platform == messaging.PlatformAll {
		sources = append(sources, "reddit_api", "karma_analysis")
	}
	if platform == messaging.PlatformInstagram || platform == messaging.PlatformAll {
		sources = append(sources, "instagram_basic_display", "engagement_metrics")
	}
	return sources
}

// DemoEvidence mirrors the synthetic shape with the canonical demo numbers.
func (b *BotDetector) DemoEvidence(query string, botPercentage, realityScore int) map[string]any {
	totalAccounts := b.rng.IntBetween(2000, 8000)
	suspicious := totalAccounts * botPercentage / 100
	return map[string]any{
		"total_accounts_analyzed":   totalAccounts,
		"suspicious_accounts_found": suspicious,
		"bot_percentage":            botPercentage,
		"key_findings": []string{
			fmt.Sprintf("%d%% of accounts show bot-like behavior", botPercentage),
			fmt.Sprintf("%d accounts created in last 30 days", suspicious),
			"Detected coordinated posting patterns",
			"High similarity in username structures",
		},
		"detection_methods": []string{
			"Account age analysis",
			"Profile completeness check",
			"Username pattern recognition",
			"Posting behavior analysis",
			"Network cluster detection",
		},
		"sample_suspicious_accounts": []string{
			fmt.Sprintf("@user%d", b.rng.IntBetween(10000, 99999)),
			fmt.Sprintf("@account%d", b.rng.IntBetween(10000, 99999)),
			fmt.Sprintf("@bot%d", b.rng.IntBetween(1000, 9999)),
		},
		"confidence_factors": []string{
			"Large sample size",
			"Multiple detection methods",
			"Consistent patterns across accounts",
			"Cross-platform verification",
		},
	}
}
