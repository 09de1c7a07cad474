package actionable

import (
	"fmt"

	"call-insights-go/internal/types"
)

// Threshold is the unresolved rate at which a complaint type is flagged.
const Threshold = 0.35

var playbooks = map[types.ComplaintType]string{
	types.ComplaintRecharge: "Audit recharge failures with the billing platform; push a self-serve retry link after failed top-ups",
	types.ComplaintPayment:  "Reconcile failed payments daily; give agents a refund-status lookup script",
	types.ComplaintNetwork:  "Route repeated network complaints to the NOC with location details; send outage SMS proactively",
	types.ComplaintOthers:   "Review unclassified calls and extend the complaint taxonomy",
}

// Generate flags the complaint type with the highest unresolved rate.
func Generate(ins types.Insight) types.ActionCard {
	var worst types.ComplaintType
	highest := 0.0
	// Fixed iteration order keeps ties deterministic.
	for _, c := range types.ComplaintTypes {
		if v, ok := ins.UnresolvedByType[c]; ok && v > highest {
			highest = v
			worst = c
		}
	}
	if highest >= Threshold && worst != "" {
		return types.ActionCard{
			Insight: fmt.Sprintf("High unresolved rate for %s (%.0f%% of %d calls)", worst, highest*100, ins.ComplaintCounts[worst]),
			Action:  playbooks[worst],
			Impact:  "Reduce repeat calls and escalations",
		}
	}
	return types.ActionCard{
		Insight: "No strong unresolved pattern detected",
		Action:  "Monitor and collect more data",
		Impact:  "Low immediate intervention",
	}
}
