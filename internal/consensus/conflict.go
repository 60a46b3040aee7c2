package consensus

import (
	"encoding/json"

	"github.com/compliancefabric/coordinator/internal/db"
)

// Conflict describes one point of disagreement surfaced from a round's
// opinions, either a weakly-supported decision or a cluster of agents
// raising overlapping concerns.
type Conflict struct {
	Kind        string   `json:"kind"`
	Decision    string   `json:"decision,omitempty"`
	Support     float64  `json:"support,omitempty"`
	Concerns    []string `json:"concerns,omitempty"`
	Description string   `json:"description"`
}

const (
	conflictKindWeakSupport    = "WEAK_SUPPORT"
	conflictKindConcernCluster = "CONCERN_CLUSTER"

	weakSupportThreshold = 0.30
	concernClusterSize   = 2
)

// identifyConflicts flags decisions with under 30% support and concern
// clusters spanning more than two distinct concerns across all opinions.
func identifyConflicts(opinions []*db.AgentOpinion) []Conflict {
	var conflicts []Conflict

	total := len(opinions)
	if total > 0 {
		counts := map[string]int{}
		for _, o := range opinions {
			counts[o.Choice]++
		}
		for decision, n := range counts {
			support := float64(n) / float64(total)
			if support < weakSupportThreshold {
				conflicts = append(conflicts, Conflict{
					Kind:        conflictKindWeakSupport,
					Decision:    decision,
					Support:     support,
					Description: "decision \"" + decision + "\" drew under 30% support",
				})
			}
		}
	}

	concernSet := map[string]struct{}{}
	for _, o := range opinions {
		if len(o.Concerns) == 0 {
			continue
		}
		var concerns []string
		if err := json.Unmarshal(o.Concerns, &concerns); err != nil {
			continue
		}
		for _, c := range concerns {
			concernSet[c] = struct{}{}
		}
	}
	if len(concernSet) > concernClusterSize {
		all := make([]string, 0, len(concernSet))
		for c := range concernSet {
			all = append(all, c)
		}
		conflicts = append(conflicts, Conflict{
			Kind:        conflictKindConcernCluster,
			Concerns:    all,
			Description: "participants raised more than two distinct concerns",
		})
	}

	return conflicts
}

// suggestResolutionStrategies maps each conflict to a recommended next
// action: running another round, escalating to a human arbiter, or doing
// nothing when the disagreement does not warrant intervention.
func suggestResolutionStrategies(conflicts []Conflict) map[string]string {
	strategies := make(map[string]string, len(conflicts))
	for _, c := range conflicts {
		key := c.Kind
		if c.Decision != "" {
			key = c.Kind + ":" + c.Decision
		}
		switch {
		case c.Kind == conflictKindWeakSupport && c.Support > 0:
			strategies[key] = "additional_round"
		case c.Kind == conflictKindConcernCluster:
			strategies[key] = "expert_arbitration"
		default:
			strategies[key] = "no_action_needed"
		}
	}
	if len(strategies) == 0 {
		strategies["none"] = "no_action_needed"
	}
	return strategies
}
