package consensus

import (
	"sort"

	"github.com/compliancefabric/coordinator/internal/db"
)

// outcome is the result of running one voting algorithm over a set of
// opinions: the winning decision, the fraction of support it drew, whether
// that support cleared the algorithm's threshold, and a failure reason when
// it did not.
type outcome struct {
	decision  string
	agreement float64
	success   bool
	reason    string
}

// tally counts raw (unweighted) votes per decision and returns the decision
// with the most votes, its share of the total, and the total vote count.
func tally(opinions []*db.AgentOpinion) (leader string, share float64, total int) {
	counts := map[string]int{}
	for _, o := range opinions {
		counts[o.Choice]++
	}
	total = len(opinions)
	if total == 0 {
		return "", 0, 0
	}
	leader = argmaxString(counts)
	share = float64(counts[leader]) / float64(total)
	return leader, share, total
}

// argmaxString returns the key with the highest value, breaking ties
// alphabetically so the result is deterministic.
func argmaxString(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return best
}

func runUnanimous(opinions []*db.AgentOpinion) outcome {
	leader, share, total := tally(opinions)
	if total == 0 {
		return outcome{reason: "no opinions submitted"}
	}
	if share == 1.0 {
		return outcome{decision: leader, agreement: 1.0, success: true}
	}
	return outcome{decision: leader, agreement: share, success: false, reason: "not unanimous"}
}

func runMajority(opinions []*db.AgentOpinion, threshold float64) outcome {
	leader, share, total := tally(opinions)
	if total == 0 {
		return outcome{reason: "no opinions submitted"}
	}
	if share > threshold {
		return outcome{decision: leader, agreement: share, success: true}
	}
	return outcome{decision: leader, agreement: share, success: false, reason: "no decision cleared the required threshold"}
}

// runWeightedMajority scores each candidate decision by the sum of
// weight(agent) * confidence across every opinion favoring it, then picks
// the highest-scoring decision. weights defaults an unknown agent to 1.0.
func runWeightedMajority(opinions []*db.AgentOpinion, weights map[string]float64, threshold float64) outcome {
	if len(opinions) == 0 {
		return outcome{reason: "no opinions submitted"}
	}
	scores := map[string]float64{}
	var total float64
	for _, o := range opinions {
		w, ok := weights[o.AgentID]
		if !ok {
			w = 1.0
		}
		s := w * o.Confidence
		scores[o.Choice] += s
		total += s
	}
	if total == 0 {
		return outcome{reason: "no weighted support accumulated"}
	}
	leader := argmaxFloat(scores)
	agreement := scores[leader] / total
	if agreement > threshold {
		return outcome{decision: leader, agreement: agreement, success: true}
	}
	return outcome{decision: leader, agreement: agreement, success: false, reason: "no decision cleared the required threshold"}
}

func argmaxFloat(scores map[string]float64) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if scores[k] > scores[best] {
			best = k
		}
	}
	return best
}

// runQuorum requires a minimum number of participants to have voted before
// falling through to a plain majority count over the votes actually cast.
func runQuorum(opinions []*db.AgentOpinion, participantCount int, threshold float64) outcome {
	required := participantCount/2 + 1
	if len(opinions) < required {
		return outcome{reason: "quorum not met"}
	}
	return runMajority(opinions, threshold)
}

// confidenceBandsMajority mirrors the plain-majority confidence tiering:
// very high agreement maps to very high confidence, and so on down.
func confidenceBandsMajority(agreement float64) Confidence {
	switch {
	case agreement >= 0.9:
		return ConfidenceVeryHigh
	case agreement >= 0.7:
		return ConfidenceHigh
	case agreement >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// confidenceBandsWeighted uses lower cutoffs than the plain-majority bands
// since weighted scores are naturally more diffuse across candidates.
func confidenceBandsWeighted(agreement float64) Confidence {
	switch {
	case agreement >= 0.8:
		return ConfidenceVeryHigh
	case agreement >= 0.6:
		return ConfidenceHigh
	case agreement >= 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// runAlgorithm dispatches to the algorithm-specific decision rule. weights
// and participantCount are only consulted by the algorithms that need them.
func runAlgorithm(algo db.VotingAlgorithm, opinions []*db.AgentOpinion, weights map[string]float64, participantCount int, threshold float64) (outcome, Confidence) {
	switch algo {
	case db.AlgorithmUnanimous:
		o := runUnanimous(opinions)
		if o.success {
			return o, ConfidenceVeryHigh
		}
		return o, ConfidenceLow

	case db.AlgorithmWeightedMajority:
		o := runWeightedMajority(opinions, weights, threshold)
		return o, confidenceBandsWeighted(clamp01(o.agreement))

	case db.AlgorithmQuorum:
		o := runQuorum(opinions, participantCount, threshold)
		return o, confidenceBandsMajority(clamp01(o.agreement))

	case db.AlgorithmSuperMajority:
		t := threshold
		if t < 2.0/3.0 {
			t = 2.0 / 3.0
		}
		o := runMajority(opinions, t)
		return o, confidenceBandsMajority(clamp01(o.agreement))

	case db.AlgorithmConsensus:
		t := threshold
		if t < 0.9 {
			t = 0.9
		}
		o := runMajority(opinions, t)
		return o, confidenceBandsMajority(clamp01(o.agreement))

	case db.AlgorithmPlurality:
		leader, share, total := tally(opinions)
		if total == 0 {
			return outcome{reason: "no opinions submitted"}, ConfidenceLow
		}
		return outcome{decision: leader, agreement: share, success: true}, confidenceBandsMajority(clamp01(share))

	case db.AlgorithmRankedChoice:
		// Ranked-choice ballots are accepted but not interpreted; the
		// declared first-choice decision is tallied as a plain majority.
		o := runMajority(opinions, threshold)
		return o, confidenceBandsMajority(clamp01(o.agreement))

	case db.AlgorithmMajority:
		fallthrough
	default:
		o := runMajority(opinions, threshold)
		return o, confidenceBandsMajority(clamp01(o.agreement))
	}
}
