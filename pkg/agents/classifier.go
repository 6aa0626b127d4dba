package agents

import "strings"

// Keyword sets for the three non-custom categories. Scoring counts how many
// of a set's keywords occur as substrings of the lower-cased input; each
// keyword contributes at most 1 regardless of repeats.
var (
	biddingKeywords = []string{
		"bid", "budget", "rate", "quote", "estimate", "margin",
		"markup", "pricing", "cost", "invoice", "payment terms",
	}

	talentKeywords = []string{
		"talent", "director", "roster", "reel", "crew", "photographer",
		"editor", "availability", "portfolio", "casting",
	}

	salesKeywords = []string{
		"client", "contact", "lead", "pitch", "outreach", "brand",
		"campaign", "crm", "follow-up", "relationship",
	}
)

// Classify maps free text to an agent category. Pure and deterministic:
// identical input always yields identical output.
//
// Tie-break order is intentional and preserved as-is: bidding wins only when
// strictly greater than both others, talent then only needs to beat sales,
// and sales is the default.
func Classify(text string) Category {
	lower := strings.ToLower(text)

	bidding := scoreKeywords(lower, biddingKeywords)
	talent := scoreKeywords(lower, talentKeywords)
	sales := scoreKeywords(lower, salesKeywords)

	switch {
	case bidding > talent && bidding > sales:
		return CategoryBidding
	case talent > sales:
		return CategoryTalent
	case sales > 0:
		return CategorySales
	default:
		return CategorySales
	}
}

func scoreKeywords(lower string, keywords []string) int {
	score := 0
	for _, keyword := range keywords {
		if strings.Contains(lower, keyword) {
			score++
		}
	}
	return score
}
