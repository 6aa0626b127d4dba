package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, credentials ...Credential) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	if len(credentials) == 0 {
		credentials = []Credential{{Label: "primary", APIKey: "key-1"}}
	}
	client, err := NewClient(Options{
		BaseURL:     server.URL,
		Credentials: credentials,
	}, zerolog.Nop())
	require.NoError(t, err)
	return client, server
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewClient(Options{BaseURL: "http://crm.local"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credential")
}

func TestClient_SearchContacts(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts", r.URL.Path)
		assert.Equal(t, "meridian", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"contacts":[{"id":"c-1","name":"Ada Mercer","company":"Meridian Films"}]}`))
	})

	contacts, err := client.SearchContacts(context.Background(), "meridian", 5)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "c-1", contacts[0].ID)
	assert.Equal(t, "Ada Mercer", contacts[0].Name)
}

func TestClient_SearchContacts_DefaultLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"contacts":[]}`))
	})

	contacts, err := client.SearchContacts(context.Background(), "x", 0)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestClient_GetContact(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts/c-9", r.URL.Path)
		w.Write([]byte(`{"id":"c-9","name":"Ray Holt","title":"Head of Production"}`))
	})

	contact, err := client.GetContact(context.Background(), "c-9")
	require.NoError(t, err)
	assert.Equal(t, "Ray Holt", contact.Name)
	assert.Equal(t, "Head of Production", contact.Title)

	_, err = client.GetContact(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_ListGroups(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/groups", r.URL.Path)
		w.Write([]byte(`{"groups":[{"id":"g-1","name":"Agency Leads","member_count":42}]}`))
	})

	groups, err := client.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, 42, groups[0].MemberCount)
}

func TestClient_CredentialFailover(t *testing.T) {
	t.Run("should fall back to the next credential on auth failure", func(t *testing.T) {
		var requests int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requests, 1)
			if r.Header.Get("Authorization") == "Bearer bad-key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"groups":[{"id":"g-1","name":"Agency Leads"}]}`))
		},
			Credential{Label: "primary", APIKey: "bad-key"},
			Credential{Label: "secondary", APIKey: "good-key"},
		)

		groups, err := client.ListGroups(context.Background())
		require.NoError(t, err)
		assert.Len(t, groups, 1)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	})

	t.Run("should fall back on server errors too", func(t *testing.T) {
		var requests int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requests, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"groups":[]}`))
		},
			Credential{Label: "primary", APIKey: "key-1"},
			Credential{Label: "secondary", APIKey: "key-2"},
		)

		_, err := client.ListGroups(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	})

	t.Run("should not rotate credentials on a 404", func(t *testing.T) {
		var requests int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requests, 1)
			w.WriteHeader(http.StatusNotFound)
		},
			Credential{Label: "primary", APIKey: "key-1"},
			Credential{Label: "secondary", APIKey: "key-2"},
		)

		_, err := client.GetContact(context.Background(), "no-such-contact")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crm returned status 404")
		assert.NotContains(t, err.Error(), "all crm credentials failed")
		assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	})

	t.Run("should report the last error after exhausting all credentials", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		},
			Credential{Label: "primary", APIKey: "key-1"},
			Credential{Label: "secondary", APIKey: "key-2"},
		)

		_, err := client.ListGroups(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "all crm credentials failed")
		assert.Contains(t, err.Error(), "403")
	})
}

func TestClient_MalformedResponse(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})

	_, err := client.ListGroups(context.Background())
	require.Error(t, err)
	// Parse failures are terminal, not a credential problem
	assert.Contains(t, err.Error(), "failed to parse crm response")
}
