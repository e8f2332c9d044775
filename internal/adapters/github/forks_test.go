package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

type mockLogger struct {
	warnings int
}

func (m *mockLogger) Debug(context.Context, string, map[string]interface{}) {}

func (m *mockLogger) Warn(context.Context, string, map[string]interface{}) {
	m.warnings++
}

func repoJSON(id int, owner string, forks int) string {
	return fmt.Sprintf(
		`{"id":%d,"name":"proj","full_name":"%s/proj","owner":{"login":"%s"},`+
			`"clone_url":"https://github.com/%s/proj.git","forks_count":%d}`,
		id, owner, owner, owner, forks)
}

// newNetworkServer serves org/proj with forks alice, bob (page 1) and carol
// (page 2); alice has one fork of her own, dave.
func newNetworkServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var server *httptest.Server

	mux.HandleFunc("/repos/alice/proj", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"id":2,"name":"proj","full_name":"alice/proj","owner":{"login":"alice"},`+
			`"clone_url":"https://github.com/alice/proj.git","forks_count":1,"source":%s}`, repoJSON(1, "org", 3))
	})
	mux.HandleFunc("/repos/org/proj", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, repoJSON(1, "org", 3))
	})
	mux.HandleFunc("/repos/org/proj/forks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprintf(w, "[%s]", repoJSON(4, "carol", 0))
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/org/proj/forks?page=2>; rel="next"`, server.URL))
		fmt.Fprintf(w, "[%s,%s]", repoJSON(2, "alice", 1), repoJSON(3, "bob", 0))
	})
	mux.HandleFunc("/repos/alice/proj/forks", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "[%s]", repoJSON(5, "dave", 0))
	})
	mux.HandleFunc("/repos/bob/proj/forks", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("repositories without forks must not be listed")
	})

	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(server *httptest.Server, log Logger) *Client {
	return NewClient(server.Client(), "token", log, WithBaseURL(server.URL), WithRateLimit(1000))
}

func TestForkNetwork(t *testing.T) {
	tests := []struct {
		name     string
		seed     string
		maxForks int
		want     []string
	}{
		{
			name:     "all forks from the source",
			seed:     "org/proj",
			maxForks: -1,
			want: []string{
				"https://github.com/org/proj.git",
				"https://github.com/alice/proj.git",
				"https://github.com/bob/proj.git",
				"https://github.com/carol/proj.git",
				"https://github.com/dave/proj.git",
			},
		},
		{
			name:     "seed fork resolves to its source",
			seed:     "alice/proj",
			maxForks: -1,
			want: []string{
				"https://github.com/org/proj.git",
				"https://github.com/alice/proj.git",
				"https://github.com/bob/proj.git",
				"https://github.com/carol/proj.git",
				"https://github.com/dave/proj.git",
			},
		},
		{
			name:     "capped",
			seed:     "org/proj",
			maxForks: 2,
			want: []string{
				"https://github.com/org/proj.git",
				"https://github.com/alice/proj.git",
				"https://github.com/bob/proj.git",
			},
		},
		{
			name:     "source only",
			seed:     "org/proj",
			maxForks: 0,
			want:     []string{"https://github.com/org/proj.git"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			client := newTestClient(newNetworkServer(t), &mockLogger{})

			// Act
			got, err := client.ForkNetwork(context.Background(), tt.seed, tt.maxForks)

			// Assert
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestForkNetwork_InvalidName(t *testing.T) {
	client := newTestClient(newNetworkServer(t), &mockLogger{})

	for _, name := range []string{"", "proj", "a/b/c", "/proj"} {
		_, err := client.ForkNetwork(context.Background(), name, -1)
		assert.ErrorIs(t, err, domain.ErrInvalidRepositoryName, name)
	}
}

func TestForkNetwork_SeedNotFound(t *testing.T) {
	client := newTestClient(newNetworkServer(t), &mockLogger{})

	_, err := client.ForkNetwork(context.Background(), "nobody/missing", -1)

	assert.ErrorIs(t, err, ErrRepositoryLookup)
}

func TestForkNetwork_ListFailureShrinksNetwork(t *testing.T) {
	// Arrange
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/org/proj", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, repoJSON(1, "org", 3))
	})
	mux.HandleFunc("/repos/org/proj/forks", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	log := &mockLogger{}
	client := newTestClient(server, log)

	// Act
	got, err := client.ForkNetwork(context.Background(), "org/proj", -1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/org/proj.git"}, got)
	assert.Equal(t, 1, log.warnings)
}

func TestForkNetwork_Canceled(t *testing.T) {
	client := newTestClient(newNetworkServer(t), &mockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ForkNetwork(ctx, "org/proj", -1)

	assert.Error(t, err)
}
