package gitea

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"repo-migrator/internal/pkg/git/api"
)

func TestProvider_ListRepositoriesFallsBackToOrg(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/team/repos", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/api/v1/orgs/team/repos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "token tok", r.Header.Get("Authorization"))
		require.Equal(t, "50", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"name": "svc", "default_branch": "master", "archived": true, "owner": map[string]string{"login": "team"}},
			{"name": "web", "default_branch": "main", "empty": true, "owner": map[string]string{"login": "team"}},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	provider, err := NewProvider(&api.ProviderConfig{BaseURL: server.URL, Token: "tok", Attempts: 1})
	require.NoError(t, err)

	repos, err := provider.ListRepositories(context.Background(), "team")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	require.Equal(t, "master", repos[0].DefaultBranch)
	require.True(t, repos[0].Archived)
	require.True(t, repos[1].Empty)
}

func TestProvider_IsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/repos/team/web", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"web","empty":false}`))
	}))
	t.Cleanup(server.Close)

	provider, err := NewProvider(&api.ProviderConfig{BaseURL: server.URL, Attempts: 1})
	require.NoError(t, err)

	empty, err := provider.IsEmpty(context.Background(), "team", "web")
	require.NoError(t, err)
	require.False(t, empty)
}
