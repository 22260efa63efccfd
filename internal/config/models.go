package config

import (
	"os"
	"strings"
)

// fastAgents are lightweight classification/extraction agents that run on
// the fast-tier model when one is configured. Heavier synthesis agents stay
// on the default model.
var fastAgents = map[string]bool{
	"intent_classifier":          true,
	"input_rewriter":             true,
	"equipment_extraction":       true,
	"query_classifier":           true,
	"generic_prep":               true,
	"generic_device_structuring": true,
}

// ModelResolver resolves the model an agent should use. Environment
// variables are consulted at resolution time so per-agent overrides can be
// changed without a config reload.
type ModelResolver struct {
	// FastModel serves agents in the fast set.
	FastModel string

	// Default is the provider's configured model.
	Default string
}

// NewModelResolver builds a resolver from the provider config.
func NewModelResolver(pc ProviderConfig) *ModelResolver {
	return &ModelResolver{FastModel: pc.FastModel, Default: pc.Model}
}

// Resolve returns the model for the named agent. Resolution order:
//  1. AGENT_<NAME>_MODEL environment override (name upper-cased)
//  2. fast-tier model if the agent is in the fast set
//  3. LLM_MODEL environment global
//  4. provider default
func (r *ModelResolver) Resolve(agent string) string {
	envKey := "AGENT_" + strings.ToUpper(agent) + "_MODEL"
	if m := os.Getenv(envKey); m != "" {
		return m
	}
	if fastAgents[agent] && r.FastModel != "" {
		return r.FastModel
	}
	if m := os.Getenv("LLM_MODEL"); m != "" {
		return m
	}
	return r.Default
}

// IsFastAgent reports whether the named agent runs on the fast tier.
func IsFastAgent(agent string) bool {
	return fastAgents[agent]
}
