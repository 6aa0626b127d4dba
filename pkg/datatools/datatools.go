// Package datatools provides the concrete tool inventory: graph-backed
// project, bid and roster lookups plus cached CRM contact tools.
package datatools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/calloway/backlot/pkg/crm"
	"github.com/calloway/backlot/pkg/store"
	"github.com/calloway/backlot/pkg/tools"
	"github.com/rs/zerolog"
)

// Options configures tool construction
type Options struct {
	Graph    store.GraphStore
	CRM      *crm.Client
	Cache    store.KeyValueCache
	CacheTTL time.Duration
	Logger   zerolog.Logger
}

// All builds the full tool inventory. CRM tools are included only when a
// CRM client is configured.
func All(opts Options) ([]tools.Tool, error) {
	if opts.Graph == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	inventory := []tools.Tool{
		&BidFinancialsTool{graph: opts.Graph},
		&ProjectSearchTool{graph: opts.Graph},
		&TalentSearchTool{graph: opts.Graph},
		&TalentProfileTool{graph: opts.Graph},
	}

	if opts.CRM != nil {
		inventory = append(inventory,
			&ContactSearchTool{crm: opts.CRM, cache: opts.Cache, ttl: opts.CacheTTL, logger: opts.Logger},
			&ContactDetailTool{crm: opts.CRM, cache: opts.Cache, ttl: opts.CacheTTL, logger: opts.Logger},
			&ContactGroupsTool{crm: opts.CRM},
		)
	}

	return inventory, nil
}

// recordsToText renders graph records as a JSON text segment
func recordsToText(records []map[string]any) (string, error) {
	if len(records) == 0 {
		return "No matching records found.", nil
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render records: %w", err)
	}
	return string(data), nil
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}
