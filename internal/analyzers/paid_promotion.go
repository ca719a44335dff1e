package analyzers

import (
	"context"
	"fmt"
	"math/rand"

	"signalzero/internal/agent"
	"signalzero/internal/messaging"
)

// PaidPromotionDetector estimates how much of a query's visibility was
// bought rather than earned. Score is promotional transparency.
type PaidPromotionDetector struct {
	rng *lockedRand
}

// NewPaidPromotionDetector creates the agent with a seedable random source.
func NewPaidPromotionDetector(rng *rand.Rand) *PaidPromotionDetector {
	return &PaidPromotionDetector{rng: newLockedRand(rng)}
}

func (p *PaidPromotionDetector) Type() messaging.AgentType {
	return messaging.AgentPaidPromotion
}

// component weights for the transparency reduction.
const (
	disclosureWeight   = 0.40
	coordinationWeight = 0.25
	timingWeight       = 0.20
	engagementWeight   = 0.15
)

func (p *PaidPromotionDetector) ProcessAnalysisRequest(_ context.Context, req *agent.Request) (*agent.Result, error) {
	pattern := p.pickPattern(req.Query)
	posts := p.rng.IntBetween(200, 2500)

	disclosure := p.analyzeDisclosure(pattern, posts)
	coordination := p.analyzeCoordination(pattern, posts)
	timing := p.analyzeTiming(pattern)
	engagement := p.analyzeEngagement(pattern)

	transparency := p.transparencyScore(disclosure, coordination, timing, engagement)
	confidence := p.confidence(posts, pattern)

	evidence := map[string]any{
		"promotional_posts_analyzed": posts,
		"campaign_pattern":           pattern,
		"disclosure_analysis":        disclosure.evidence(),
		"coordination_analysis":      coordination.evidence(),
		"timing_analysis":            timing.evidence(),
		"engagement_analysis":        engagement.evidence(),
		"transparency_indicators":    p.transparencyIndicators(disclosure, coordination, timing, engagement),
	}

	return &agent.Result{
		Score:       transparency,
		Confidence:  confidence,
		Evidence:    evidence,
		DataSources: p.dataSources(req.Platform),
	}, nil
}

func (p *PaidPromotionDetector) pickPattern(query string) string {
	switch {
	case containsAny(query, "crypto", "nft", "stock", "token"):
		return p.rng.Pick("undisclosed_campaign", "astroturfing")
	case containsAny(query, "product", "brand", "launch", "sale"):
		return p.rng.Pick("undisclosed_campaign", "coordinated_influencer", "organic")
	case containsAny(query, "viral", "trending", "challenge"):
		return p.rng.Pick("coordinated_influencer", "astroturfing", "organic")
	default:
		return p.rng.Pick("organic", "coordinated_influencer")
	}
}

type disclosureAnalysis struct {
	sponsoredPosts    int
	disclosedPosts    int
	compliancePct     float64
	hiddenSponsorship bool
}

// analyzeDisclosure measures #ad / sponsorship labeling compliance among
// posts that look sponsored.
func (p *PaidPromotionDetector) analyzeDisclosure(pattern string, posts int) disclosureAnalysis {
	var sponsoredShare, complianceRate float64
	switch pattern {
	case "undisclosed_campaign":
		sponsoredShare = p.rng.Uniform(0.4, 0.7)
		complianceRate = p.rng.Uniform(0.05, 0.25)
	case "coordinated_influencer":
		sponsoredShare = p.rng.Uniform(0.3, 0.6)
		complianceRate = p.rng.Uniform(0.3, 0.6)
	case "astroturfing":
		sponsoredShare = p.rng.Uniform(0.5, 0.8)
		complianceRate = p.rng.Uniform(0.0, 0.15)
	default:
		sponsoredShare = p.rng.Uniform(0.05, 0.2)
		complianceRate = p.rng.Uniform(0.7, 0.95)
	}

	sponsored := int(float64(posts) * sponsoredShare)
	disclosed := int(float64(sponsored) * complianceRate)
	compliance := 0.0
	if sponsored > 0 {
		compliance = round1(float64(disclosed) / float64(sponsored) * 100)
	}

	return disclosureAnalysis{
		sponsoredPosts:    sponsored,
		disclosedPosts:    disclosed,
		compliancePct:     compliance,
		hiddenSponsorship: compliance < 30 && sponsored > 50,
	}
}

func (d disclosureAnalysis) evidence() map[string]any {
	return map[string]any{
		"sponsored_posts_detected": d.sponsoredPosts,
		"properly_disclosed":       d.disclosedPosts,
		"compliance_percent":       d.compliancePct,
		"hidden_sponsorship":       d.hiddenSponsorship,
	}
}

type coordinationAnalysis struct {
	influencersInvolved int
	identicalTalking    int
	sharedAssets        bool
	score               float64
}

// analyzeCoordination looks for the fingerprints of a managed campaign:
// many accounts repeating the same talking points and creative assets.
func (p *PaidPromotionDetector) analyzeCoordination(pattern string, posts int) coordinationAnalysis {
	var influencers, identical int
	var shared bool
	switch pattern {
	case "coordinated_influencer":
		influencers = p.rng.IntBetween(20, 120)
		identical = int(float64(posts) * p.rng.Uniform(0.3, 0.6))
		shared = true
	case "astroturfing":
		influencers = p.rng.IntBetween(50, 300)
		identical = int(float64(posts) * p.rng.Uniform(0.5, 0.8))
		shared = p.rng.Float64() < 0.8
	case "undisclosed_campaign":
		influencers = p.rng.IntBetween(10, 60)
		identical = int(float64(posts) * p.rng.Uniform(0.2, 0.4))
		shared = p.rng.Float64() < 0.6
	default:
		influencers = p.rng.IntBetween(0, 10)
		identical = int(float64(posts) * p.rng.Uniform(0.0, 0.1))
		shared = false
	}

	score := clampFloat(float64(identical)/float64(posts)*100, 0, 70)
	if shared {
		score += 20
	}
	if influencers > 50 {
		score += 10
	}

	return coordinationAnalysis{
		influencersInvolved: influencers,
		identicalTalking:    identical,
		sharedAssets:        shared,
		score:               round2(clampFloat(score, 0, 100)),
	}
}

func (c coordinationAnalysis) evidence() map[string]any {
	return map[string]any{
		"influencer_accounts_involved": c.influencersInvolved,
		"identical_talking_points":     c.identicalTalking,
		"shared_creative_assets":       c.sharedAssets,
		"coordination_score":           c.score,
	}
}

type timingAnalysis struct {
	postingClusters  int
	clusterWindowMin int
	synchronized     bool
	score            float64
}

// analyzeTiming flags posts landing in tight synchronized windows, the usual
// signature of a scheduled campaign drop.
func (p *PaidPromotionDetector) analyzeTiming(pattern string) timingAnalysis {
	var clusters int
	switch pattern {
	case "coordinated_influencer", "astroturfing":
		clusters = p.rng.IntBetween(3, 10)
	case "undisclosed_campaign":
		clusters = p.rng.IntBetween(1, 5)
	default:
		clusters = p.rng.IntBetween(0, 2)
	}
	window := p.rng.IntBetween(5, 60)
	synchronized := clusters >= 3 && window <= 30

	score := clampFloat(float64(clusters)*12, 0, 80)
	if synchronized {
		score += 20
	}

	return timingAnalysis{
		postingClusters:  clusters,
		clusterWindowMin: window,
		synchronized:     synchronized,
		score:            clampFloat(score, 0, 100),
	}
}

func (t timingAnalysis) evidence() map[string]any {
	return map[string]any{
		"posting_clusters_detected": t.postingClusters,
		"cluster_window_minutes":    t.clusterWindowMin,
		"synchronized_posting":      t.synchronized,
		"timing_suspicion_score":    t.score,
	}
}

type engagementAnalysis struct {
	boostDetected bool
	boostFactor   float64
	paidReachPct  float64
	score         float64
}

// analyzeEngagement compares observed engagement against the follower-implied
// baseline; paid amplification shows up as an unexplained multiple.
func (p *PaidPromotionDetector) analyzeEngagement(pattern string) engagementAnalysis {
	var factor float64
	switch pattern {
	case "astroturfing":
		factor = p.rng.Uniform(4, 12)
	case "coordinated_influencer", "undisclosed_campaign":
		factor = p.rng.Uniform(2, 6)
	default:
		factor = p.rng.Uniform(0.8, 1.8)
	}
	boost := factor > 2
	paidReach := 0.0
	if boost {
		paidReach = round1(clampFloat((factor-1)/factor*100, 0, 95))
	}

	score := 0.0
	switch {
	case factor > 8:
		score = 90
	case factor > 4:
		score = 65
	case factor > 2:
		score = 40
	}

	return engagementAnalysis{
		boostDetected: boost,
		boostFactor:   round1(factor),
		paidReachPct:  paidReach,
		score:         score,
	}
}

func (e engagementAnalysis) evidence() map[string]any {
	return map[string]any{
		"engagement_boost_detected":  e.boostDetected,
		"boost_factor":               e.boostFactor,
		"estimated_paid_reach_pct":   e.paidReachPct,
		"engagement_suspicion_score": e.score,
	}
}

func (p *PaidPromotionDetector) transparencyScore(d disclosureAnalysis, c coordinationAnalysis, t timingAnalysis, e engagementAnalysis) float64 {
	suspicion := (100-d.compliancePct)*disclosureWeight +
		c.score*coordinationWeight +
		t.score*timingWeight +
		e.score*engagementWeight
	return clampFloat(70-suspicion, 5, 95)
}

func (p *PaidPromotionDetector) confidence(posts int, pattern string) float64 {
	confidence := 75.0
	switch {
	case posts > 1500:
		confidence += 15
	case posts > 800:
		confidence += 10
	case posts < 400:
		confidence -= 10
	}
	if pattern == "astroturfing" || pattern == "undisclosed_campaign" {
		confidence += 5
	}
	confidence += p.rng.Uniform(-5, 5)
	return clampFloat(confidence, 60, 98)
}

func (p *PaidPromotionDetector) transparencyIndicators(d disclosureAnalysis, c coordinationAnalysis, t timingAnalysis, e engagementAnalysis) []string {
	var indicators []string
	if d.hiddenSponsorship {
		indicators = append(indicators, "Sponsored content without required disclosure")
	}
	if d.compliancePct < 50 && d.sponsoredPosts > 0 {
		indicators = append(indicators, fmt.Sprintf("Only %.1f%% of sponsored posts disclosed", d.compliancePct))
	}
	if c.score > 50 {
		indicators = append(indicators, "Coordinated talking points across accounts")
	}
	if c.sharedAssets {
		indicators = append(indicators, "Shared creative assets between accounts")
	}
	if t.synchronized {
		indicators = append(indicators, "Synchronized posting windows detected")
	}
	if e.boostDetected {
		indicators = append(indicators, fmt.Sprintf("Engagement %.1fx above organic baseline", e.boostFactor))
	}
	if len(indicators) == 0 {
		return []string{"Promotion patterns consistent with organic or disclosed activity"}
	}
	return indicators
}

func (p *PaidPromotionDetector) dataSources(platform messaging.Platform) []string {
	sources := []string{"sponsorship_disclosures", "influencer_post_index", "engagement_baselines"}
	if platform == messaging.PlatformInstagram || platform == messaging.PlatformAll {
		sources = append(sources, "instagram_branded_content")
	}
	if platform == messaging.PlatformYouTube || platform == messaging.PlatformAll {
		sources = append(sources, "youtube_paid_promotion_flags")
	}
	return sources
}

// DemoEvidence mirrors the synthetic shape with the canonical demo numbers.
func (p *PaidPromotionDetector) DemoEvidence(query string, botPercentage, realityScore int) map[string]any {
	undisclosedPct := clampInt(100-realityScore, 0, 95)
	influencers := p.rng.IntBetween(15, 150)
	return map[string]any{
		"undisclosed_promotion_percentage": undisclosedPct,
		"influencer_accounts_involved":     influencers,
		"transparency_score":               realityScore,
		"key_findings": []string{
			fmt.Sprintf("%d%% of promotional posts lack required disclosure", undisclosedPct),
			fmt.Sprintf("%d influencer accounts posted within the same window", influencers),
			"Identical talking points across campaign posts",
			"Engagement spikes aligned with campaign drops",
		},
		"detection_methods": []string{
			"Disclosure compliance scanning",
			"Cross-account talking point matching",
			"Posting window cluster analysis",
			"Engagement baseline comparison",
		},
		"confidence_factors": []string{
			"Multiple independent signals",
			"Clear timing correlation",
			"Verified asset reuse",
		},
	}
}
