package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		expected Category
	}{
		{
			name:     "should route bid financials to bidding",
			message:  "What's the budget and current rate on the Meridian bid?",
			expected: CategoryBidding,
		},
		{
			name:     "should route roster questions to talent",
			message:  "Is the director on our roster available next month? Send me her reel.",
			expected: CategoryTalent,
		},
		{
			name:     "should route client outreach to sales",
			message:  "Draft outreach for the new client lead at the brand.",
			expected: CategorySales,
		},
		{
			name:     "should default to sales when nothing matches",
			message:  "hello there",
			expected: CategorySales,
		},
		{
			name:     "should default to sales on empty input",
			message:  "",
			expected: CategorySales,
		},
		{
			name:     "should pick sales when bidding only ties it",
			message:  "cost for the client",
			expected: CategorySales,
		},
		{
			name:     "should pick talent when bidding only ties it",
			message:  "crew rates",
			expected: CategoryTalent,
		},
		{
			name:     "should pick bidding when strictly ahead of both",
			message:  "quote the markup and margin for the client",
			expected: CategoryBidding,
		},
		{
			name:     "should count repeated keywords once",
			message:  "bid bid bid bid versus talent director",
			expected: CategoryTalent,
		},
		{
			name:     "should match multi-word keywords",
			message:  "what payment terms did we agree on",
			expected: CategoryBidding,
		},
		{
			name:     "should be case insensitive",
			message:  "BUDGET and RATE for the BID",
			expected: CategoryBidding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.message))
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	message := "director availability against the bid budget"
	first := Classify(message)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(message))
	}
}

func TestParseCategory(t *testing.T) {
	for _, valid := range []string{"sales", "talent", "bidding", "custom"} {
		category, ok := ParseCategory(valid)
		assert.True(t, ok)
		assert.Equal(t, Category(valid), category)
	}

	_, ok := ParseCategory("finance")
	assert.False(t, ok)
	_, ok = ParseCategory("")
	assert.False(t, ok)
}

func TestStripModelNamespace(t *testing.T) {
	assert.Equal(t, "claude-sonnet-4-20250514", StripModelNamespace("anthropic/claude-sonnet-4-20250514"))
	assert.Equal(t, "gpt-4o", StripModelNamespace("openai/gpt-4o"))
	assert.Equal(t, "gpt-4o", StripModelNamespace("gpt-4o"))
	assert.Equal(t, "", StripModelNamespace(""))
}
