package datatools

import (
	"context"
	"fmt"

	"github.com/calloway/backlot/pkg/store"
	"github.com/calloway/backlot/pkg/tools"
)

// BidFinancialsTool pulls line items, rates and margin for one bid
type BidFinancialsTool struct {
	graph store.GraphStore
}

func (t *BidFinancialsTool) Name() string  { return "get_bid_financials" }
func (t *BidFinancialsTool) Label() string { return "Bid Financials" }

func (t *BidFinancialsTool) Description() string {
	return "Get the financial breakdown of a bid: line items with roles, rates and quantities, the bid total and the margin."
}

func (t *BidFinancialsTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"bid_id": map[string]any{
			"type":        "string",
			"description": "Identifier of the bid",
		},
	}, "bid_id")
}

func (t *BidFinancialsTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	bidID := stringArg(args, "bid_id")
	if bidID == "" {
		return tools.Result{}, fmt.Errorf("bid_id is required")
	}

	records, err := t.graph.Read(ctx, `
		MATCH (b:Bid {id: $bid_id})
		OPTIONAL MATCH (b)-[:HAS_LINE_ITEM]->(li:LineItem)
		RETURN b.id AS bid_id, b.title AS title, b.status AS status,
		       b.currency AS currency, b.total AS total, b.margin AS margin,
		       collect({role: li.role, description: li.description,
		                rate: li.rate, quantity: li.quantity,
		                amount: li.amount}) AS line_items`,
		map[string]any{"bid_id": bidID})
	if err != nil {
		return tools.Result{}, err
	}

	text, err := recordsToText(records)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(text), nil
}

// ProjectSearchTool searches projects and bids by title, client or status
type ProjectSearchTool struct {
	graph store.GraphStore
}

func (t *ProjectSearchTool) Name() string  { return "search_projects" }
func (t *ProjectSearchTool) Label() string { return "Project Search" }

func (t *ProjectSearchTool) Description() string {
	return "Search projects by title or client name, optionally filtered by status (active, bidding, wrapped)."
}

func (t *ProjectSearchTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Text matched against project title and client name",
		},
		"status": map[string]any{
			"type":        "string",
			"description": "Optional status filter",
			"enum":        []string{"active", "bidding", "wrapped"},
		},
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum results, default 10",
		},
	}, "query")
}

func (t *ProjectSearchTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		return tools.Result{}, fmt.Errorf("query is required")
	}

	records, err := t.graph.Read(ctx, `
		MATCH (p:Project)
		WHERE (toLower(p.title) CONTAINS toLower($query)
		       OR toLower(p.client) CONTAINS toLower($query))
		  AND ($status = '' OR p.status = $status)
		RETURN p.id AS id, p.title AS title, p.client AS client,
		       p.status AS status, p.budget AS budget
		ORDER BY p.title
		LIMIT $limit`,
		map[string]any{
			"query":  query,
			"status": stringArg(args, "status"),
			"limit":  intArg(args, "limit", 10),
		})
	if err != nil {
		return tools.Result{}, err
	}

	text, err := recordsToText(records)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(text), nil
}

// TalentSearchTool searches the roster by discipline and name
type TalentSearchTool struct {
	graph store.GraphStore
}

func (t *TalentSearchTool) Name() string  { return "search_talent" }
func (t *TalentSearchTool) Label() string { return "Talent Search" }

func (t *TalentSearchTool) Description() string {
	return "Search roster talent by discipline (director, photographer, editor, crew) and optional name text."
}

func (t *TalentSearchTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"discipline": map[string]any{
			"type":        "string",
			"description": "Discipline to filter by",
		},
		"query": map[string]any{
			"type":        "string",
			"description": "Optional text matched against the talent name",
		},
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum results, default 10",
		},
	})
}

func (t *TalentSearchTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	records, err := t.graph.Read(ctx, `
		MATCH (t:Talent)
		WHERE ($discipline = '' OR toLower(t.discipline) = toLower($discipline))
		  AND ($query = '' OR toLower(t.name) CONTAINS toLower($query))
		RETURN t.id AS id, t.name AS name, t.discipline AS discipline,
		       t.location AS location, t.available AS available
		ORDER BY t.name
		LIMIT $limit`,
		map[string]any{
			"discipline": stringArg(args, "discipline"),
			"query":      stringArg(args, "query"),
			"limit":      intArg(args, "limit", 10),
		})
	if err != nil {
		return tools.Result{}, err
	}

	text, err := recordsToText(records)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(text), nil
}

// TalentProfileTool fetches one roster member with recent credits
type TalentProfileTool struct {
	graph store.GraphStore
}

func (t *TalentProfileTool) Name() string  { return "get_talent_profile" }
func (t *TalentProfileTool) Label() string { return "Talent Profile" }

func (t *TalentProfileTool) Description() string {
	return "Get one roster member's profile with their most recent project credits."
}

func (t *TalentProfileTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"talent_id": map[string]any{
			"type":        "string",
			"description": "Identifier of the roster member",
		},
	}, "talent_id")
}

func (t *TalentProfileTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	talentID := stringArg(args, "talent_id")
	if talentID == "" {
		return tools.Result{}, fmt.Errorf("talent_id is required")
	}

	records, err := t.graph.Read(ctx, `
		MATCH (t:Talent {id: $talent_id})
		OPTIONAL MATCH (t)-[c:CREDITED_ON]->(p:Project)
		WITH t, p, c ORDER BY p.wrapped_at DESC
		RETURN t.id AS id, t.name AS name, t.discipline AS discipline,
		       t.location AS location, t.bio AS bio, t.reel_url AS reel_url,
		       collect({project: p.title, client: p.client, role: c.role})[..10] AS credits`,
		map[string]any{"talent_id": talentID})
	if err != nil {
		return tools.Result{}, err
	}

	text, err := recordsToText(records)
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(text), nil
}
