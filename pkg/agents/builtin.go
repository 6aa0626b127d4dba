package agents

import "github.com/calloway/backlot/pkg/tools"

// Builtin system prompts for the three desks
const (
	salesPrompt = `You are the sales desk assistant for a production agency.
You help account staff with client relationships, contacts, outreach and
project pipelines. Use the available tools to look up contacts, groups and
projects before answering. Be concise and concrete; cite the records you
found.`

	talentPrompt = `You are the talent desk assistant for a production agency.
You help producers find and evaluate roster talent: directors, photographers,
editors and crew. Use the available tools to search the roster and pull
profiles with recent credits. Summarize options with their strengths.`

	biddingPrompt = `You are the bidding desk assistant for a production agency.
You help producers and finance staff with bids, budgets, rates and margins.
Use the available tools to pull bid financials and project records before
answering. Show figures exactly as returned; never invent numbers.`

	customPrompt = `You are an assistant for a production agency. Answer using
the available tools where they help, and say so when you cannot find the
requested data.`
)

// builtinToolNames maps each desk to its tool subset
var builtinToolNames = map[Category][]string{
	CategoryBidding: {"get_bid_financials", "search_projects", "search_contacts"},
	CategoryTalent:  {"search_talent", "get_talent_profile", "search_projects"},
	CategorySales:   {"search_contacts", "get_contact", "list_contact_groups", "search_projects"},
}

// builtinPrompts maps each category to its system prompt
var builtinPrompts = map[Category]string{
	CategorySales:   salesPrompt,
	CategoryTalent:  talentPrompt,
	CategoryBidding: biddingPrompt,
	CategoryCustom:  customPrompt,
}

// BuiltinConfig builds the built-in configuration for a category against
// the process tool registry. A fresh value is built on every call.
func BuiltinConfig(category Category, registry *tools.Registry) Config {
	prompt, ok := builtinPrompts[category]
	if !ok {
		category = CategorySales
		prompt = builtinPrompts[CategorySales]
	}

	var toolSet []tools.Tool
	if names, ok := builtinToolNames[category]; ok {
		toolSet = registry.ResolveByNames(names)
	} else {
		// Custom without a stored definition gets the full inventory
		toolSet = registry.All()
	}

	return Config{
		Category:     category,
		SystemPrompt: prompt,
		Tools:        toolSet,
	}
}
