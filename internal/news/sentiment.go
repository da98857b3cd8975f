package news

import (
	"strings"
)

var positiveKeywords = []string{
	"surge", "rally", "bull", "gain", "rise", "breakthrough", "adoption",
	"institutional", "etf", "approval", "launch", "partnership", "growth",
	"record", "high", "milestone", "success", "innovation",
}

var negativeKeywords = []string{
	"crash", "fall", "bear", "drop", "decline", "hack", "fraud", "regulation",
	"ban", "crackdown", "warning", "risk", "concern", "investigation", "lawsuit",
	"scam", "exploit", "vulnerability", "loss", "plunge", "collapse",
}

// AnalyzeSentiment tags a headline by counting charged keywords. It is a
// coarse signal, not a model.
func AnalyzeSentiment(title string) string {
	lower := strings.ToLower(title)

	var positive, negative int
	for _, kw := range positiveKeywords {
		if strings.Contains(lower, kw) {
			positive++
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(lower, kw) {
			negative++
		}
	}

	switch {
	case positive > negative:
		return "bullish"
	case negative > positive:
		return "bearish"
	default:
		return "neutral"
	}
}
