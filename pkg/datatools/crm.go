package datatools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calloway/backlot/pkg/crm"
	"github.com/calloway/backlot/pkg/store"
	"github.com/calloway/backlot/pkg/tools"
	"github.com/rs/zerolog"
)

// cachedLookup runs fetch with a read-through cache. Cache failures degrade
// to a direct fetch and are only logged.
func cachedLookup(ctx context.Context, cache store.KeyValueCache, ttl time.Duration, logger zerolog.Logger, key string, fetch func() (any, error)) (string, error) {
	if cache != nil {
		if cached, ok, err := cache.Get(ctx, key); err != nil {
			logger.Warn().Str("key", key).Err(err).Msg("Cache read failed")
		} else if ok {
			return cached, nil
		}
	}

	value, err := fetch()
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render crm result: %w", err)
	}
	text := string(data)

	if cache != nil {
		if err := cache.Set(ctx, key, text, ttl); err != nil {
			logger.Warn().Str("key", key).Err(err).Msg("Cache write failed")
		}
	}

	return text, nil
}

// ContactSearchTool searches CRM contacts, read-through cached
type ContactSearchTool struct {
	crm    *crm.Client
	cache  store.KeyValueCache
	ttl    time.Duration
	logger zerolog.Logger
}

func (t *ContactSearchTool) Name() string  { return "search_contacts" }
func (t *ContactSearchTool) Label() string { return "Contact Search" }

func (t *ContactSearchTool) Description() string {
	return "Search CRM contacts by name, company or email text."
}

func (t *ContactSearchTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"query": map[string]any{
			"type":        "string",
			"description": "Text matched against contact name, company and email",
		},
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum results, default 10",
		},
	}, "query")
}

func (t *ContactSearchTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	query := stringArg(args, "query")
	if query == "" {
		return tools.Result{}, fmt.Errorf("query is required")
	}
	limit := intArg(args, "limit", 10)

	key := fmt.Sprintf("crm:contacts:search:%s:%d", query, limit)
	text, err := cachedLookup(ctx, t.cache, t.ttl, t.logger, key, func() (any, error) {
		return t.crm.SearchContacts(ctx, query, limit)
	})
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(text), nil
}

// ContactDetailTool fetches one CRM contact by id, read-through cached
type ContactDetailTool struct {
	crm    *crm.Client
	cache  store.KeyValueCache
	ttl    time.Duration
	logger zerolog.Logger
}

func (t *ContactDetailTool) Name() string  { return "get_contact" }
func (t *ContactDetailTool) Label() string { return "Contact Detail" }

func (t *ContactDetailTool) Description() string {
	return "Get one CRM contact's full record by id."
}

func (t *ContactDetailTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"contact_id": map[string]any{
			"type":        "string",
			"description": "Identifier of the contact",
		},
	}, "contact_id")
}

func (t *ContactDetailTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	contactID := stringArg(args, "contact_id")
	if contactID == "" {
		return tools.Result{}, fmt.Errorf("contact_id is required")
	}

	key := "crm:contacts:detail:" + contactID
	text, err := cachedLookup(ctx, t.cache, t.ttl, t.logger, key, func() (any, error) {
		return t.crm.GetContact(ctx, contactID)
	})
	if err != nil {
		return tools.Result{}, err
	}
	return tools.TextResult(text), nil
}

// ContactGroupsTool lists CRM contact groups
type ContactGroupsTool struct {
	crm *crm.Client
}

func (t *ContactGroupsTool) Name() string  { return "list_contact_groups" }
func (t *ContactGroupsTool) Label() string { return "Contact Groups" }

func (t *ContactGroupsTool) Description() string {
	return "List the CRM contact groups with their member counts."
}

func (t *ContactGroupsTool) InputSchema() map[string]any {
	return tools.ObjectSchema(map[string]any{})
}

func (t *ContactGroupsTool) Execute(ctx context.Context, callID string, args map[string]any) (tools.Result, error) {
	groups, err := t.crm.ListGroups(ctx)
	if err != nil {
		return tools.Result{}, err
	}

	data, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		return tools.Result{}, fmt.Errorf("failed to render groups: %w", err)
	}
	return tools.TextResult(string(data)), nil
}
