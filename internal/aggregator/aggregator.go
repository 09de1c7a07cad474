package aggregator

import "call-insights-go/internal/types"

// Summarize counts complaints and sentiments across records and computes
// resolution rates overall and per complaint type.
func Summarize(records []types.CallRecord) types.Insight {
	ins := types.Insight{
		Records:          len(records),
		ComplaintCounts:  map[types.ComplaintType]int{},
		SentimentCounts:  map[types.Sentiment]int{},
		UnresolvedByType: map[types.ComplaintType]float64{},
	}
	if len(records) == 0 {
		return ins
	}

	unresolved := map[types.ComplaintType]int{}
	resolved, phones := 0, 0
	for _, r := range records {
		ins.ComplaintCounts[r.ComplaintType]++
		ins.SentimentCounts[r.CustomerSentiment]++
		if r.Resolved {
			resolved++
		} else {
			unresolved[r.ComplaintType]++
		}
		if r.PhoneNumber != nil {
			phones++
		}
	}

	for k, total := range ins.ComplaintCounts {
		ins.UnresolvedByType[k] = float64(unresolved[k]) / float64(total)
	}
	ins.ResolvedRate = float64(resolved) / float64(len(records))
	ins.PhoneCaptureRate = float64(phones) / float64(len(records))
	return ins
}
