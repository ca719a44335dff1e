package messaging

import "fmt"

// Topic layout. Agent request/response pairs are exact-match topics; the
// cross-cutting analysis and updates topics carry pipeline entry/exit and
// live progress pushes.
const (
	topicPrefix = "signalzero"

	AnalysisRequestTopic  = topicPrefix + "/analysis/request"
	AnalysisResponseTopic = topicPrefix + "/analysis/response"
	ScoreUpdatesTopic     = topicPrefix + "/updates/score"
	StatusUpdatesTopic    = topicPrefix + "/updates/status"
)

// RequestTopic returns the request topic for an agent type.
func RequestTopic(t AgentType) string {
	return fmt.Sprintf("%s/agent/%s/request", topicPrefix, t)
}

// ResponseTopic returns the response topic for an agent type.
func ResponseTopic(t AgentType) string {
	return fmt.Sprintf("%s/agent/%s/response", topicPrefix, t)
}
