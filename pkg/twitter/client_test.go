package twitter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/affiliate-scout/internal/resilience"
)

func TestSearchRecent_DistinctAuthors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "trail running -is:retweet", q.Get("query"))
		assert.Equal(t, "10", q.Get("max_results"))
		assert.Equal(t, "author_id", q.Get("expansions"))

		_, _ = w.Write([]byte(`{
			"data": [
				{"id": "t1", "author_id": "u1"},
				{"id": "t2", "author_id": "u2"},
				{"id": "t3", "author_id": "u1"},
				{"id": "t4", "author_id": "u3"}
			],
			"includes": {"users": [
				{"id": "u1", "username": "runfast", "name": "Run Fast", "public_metrics": {"followers_count": 12000}},
				{"id": "u2", "username": "hills", "name": "Hills"}
			]}
		}`))
	}))
	defer srv.Close()

	users, err := NewClient("tok", WithBaseURL(srv.URL)).SearchRecent(context.Background(), "trail running", 3)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "runfast", users[0].Username)
	assert.Equal(t, int64(12000), users[0].PublicMetrics.FollowersCount)
	assert.Equal(t, "hills", users[1].Username)
	assert.Equal(t, "u3", users[2].ID)
	assert.Empty(t, users[2].Username)
}

func TestSearchRecent_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient("tok", WithBaseURL(srv.URL)).SearchRecent(context.Background(), "x", 500)
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/u1", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("user.fields"), "public_metrics")
		_, _ = w.Write([]byte(`{"data": {"id": "u1", "username": "runfast", "name": "Run Fast",
			"description": "ultra runner", "verified": true,
			"public_metrics": {"followers_count": 12000, "tweet_count": 3400}}}`))
	}))
	defer srv.Close()

	u, err := NewClient("tok", WithBaseURL(srv.URL)).GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ultra runner", u.Description)
	assert.True(t, u.Verified)
	assert.Equal(t, int64(3400), u.PublicMetrics.TweetCount)
	assert.Equal(t, "https://x.com/runfast", u.URL())
}

func TestGetUser_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors": [{"title": "Not Found Error", "detail": "Could not find user"}]}`))
	}))
	defer srv.Close()

	_, err := NewClient("tok", WithBaseURL(srv.URL)).GetUser(context.Background(), "ghost")
	assert.True(t, eris.Is(err, ErrUserNotFound))
}

func TestGetUser_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"title": "Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).GetUser(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "401")
}
