package main

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func postIDs(posts []Post) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestFeed_FetchPosts(t *testing.T) {
	env := setupTestEnv(t,
		samplePost("3", "C", "a@x.com"),
		samplePost("1", "A", "a@x.com"),
		samplePost("2", "B", "b@x.com"),
	)

	require.NoError(t, env.feed.FetchPosts(t.Context()))

	if diff := cmp.Diff([]string{"3", "1", "2"}, postIDs(env.feed.Posts())); diff != "" {
		t.Errorf("server order not preserved (-want +got):\n%s", diff)
	}
}

func TestFeed_FetchFailureEmptiesList(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", "a@x.com"))
	require.NoError(t, env.feed.FetchPosts(t.Context()))
	require.Len(t, env.feed.Posts(), 1)

	env.api.respond(http.MethodGet, "/posts/all", http.StatusInternalServerError, `{}`)

	assert.Error(t, env.feed.FetchPosts(t.Context()))
	assert.Empty(t, env.feed.Posts())
	assert.NotNil(t, env.feed.Posts())
	assert.Equal(t, msgFetchFailed, env.feed.Message.Text())
}

func TestFeed_FetchAbandonedKeepsList(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", "a@x.com"))
	require.NoError(t, env.feed.FetchPosts(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.ErrorIs(t, env.feed.FetchPosts(ctx), context.Canceled)
	assert.Equal(t, []string{"1"}, postIDs(env.feed.Posts()))
	assert.Empty(t, env.feed.Message.Text())
}

func TestFeed_Mount(t *testing.T) {
	env := setupTestEnv(t)

	require.NoError(t, env.feed.Mount(t.Context()))
	assert.False(t, env.feed.View().LoggedIn)

	env.login(t)
	v := env.feed.View()
	assert.True(t, v.LoggedIn)
	require.NotNil(t, v.User)
	assert.Equal(t, defaultPlaceholder, v.User.Email)
	assert.Equal(t, 2, env.api.count(http.MethodGet, "/posts/all"))
}

func TestFeed_CreatePost_RequiresLogin(t *testing.T) {
	env := setupTestEnv(t)
	require.NoError(t, env.feed.Mount(t.Context()))
	before := len(env.api.Requests())

	state := env.feed.CreatePost(t.Context(), "T", "C")

	assert.Equal(t, MutationSkipped, state)
	assert.Len(t, env.api.Requests(), before, "no request may be sent")
	assert.Equal(t, msgLoginToPost, env.feed.Message.Text())
}

func TestFeed_CreatePost_Success(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", "a@x.com"))
	env.login(t)

	state := env.feed.CreatePost(t.Context(), "T", "C")

	assert.Equal(t, MutationConfirmed, state)
	assert.Equal(t, msgPostCreated, env.feed.Message.Text())
	assert.Equal(t, Draft{}, env.feed.View().Draft)

	posts := env.feed.Posts()
	require.Len(t, posts, 2, "list is refetched after create")
	assert.Equal(t, "T", posts[0].Title)
	assert.False(t, posts[0].Unconfirmed)

	var create recordedRequest
	for _, r := range env.api.Requests() {
		if r.Method == http.MethodPost && r.Path == "/posts" {
			create = r
		}
	}
	assert.Equal(t, "Bearer test-token", create.Auth)
	assert.JSONEq(t, `{"title":"T","content":"C"}`, create.Body)
}

func TestFeed_CreatePost_HTTPFailure(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", "a@x.com"))
	env.login(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"server message", `{"message":"Unauthorized"}`, "Unauthorized"},
		{"missing message", `{}`, msgPostFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.api.respond(http.MethodPost, "/posts", http.StatusUnauthorized, tt.body)

			state := env.feed.CreatePost(t.Context(), "T", "C")

			assert.Equal(t, MutationFailed, state)
			assert.Equal(t, tt.want, env.feed.Message.Text())
			assert.Equal(t, []string{"1"}, postIDs(env.feed.Posts()), "no local change on HTTP failure")
			assert.Equal(t, Draft{Title: "T", Content: "C"}, env.feed.View().Draft)
		})
	}
}

func TestFeed_CreatePost_TransportFailure(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", "a@x.com"))
	env.feed.placeholder = "u@x.com"
	env.login(t)
	env.feed.now = func() time.Time { return time.UnixMilli(1700000000000) }
	env.api.drop(http.MethodPost, "/posts")

	state := env.feed.CreatePost(t.Context(), "T", "C")

	assert.Equal(t, MutationFailed, state, "a local-only post is never reported as confirmed")
	assert.Equal(t, msgPostNetwork, env.feed.Message.Text())

	posts := env.feed.Posts()
	require.Len(t, posts, 2)
	first := posts[0]
	assert.Equal(t, "1700000000000", first.ID)
	assert.Equal(t, "u@x.com", first.Author.Email)
	assert.Equal(t, "T", first.Title)
	assert.Equal(t, "C", first.Content)
	assert.Empty(t, first.Comments)
	assert.True(t, first.Unconfirmed)
	assert.Equal(t, "1", posts[1].ID)
}

func TestFeed_CreatePost_LocalEntryDroppedOnNextFetch(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", "a@x.com"))
	env.login(t)
	env.api.drop(http.MethodPost, "/posts")
	env.feed.CreatePost(t.Context(), "T", "C")
	require.Len(t, env.feed.Posts(), 2)

	require.NoError(t, env.feed.FetchPosts(t.Context()))
	assert.Equal(t, []string{"1"}, postIDs(env.feed.Posts()))
}

type confirmRecorder struct {
	answer  bool
	prompts []string
}

func (c *confirmRecorder) Confirm(prompt string) bool {
	c.prompts = append(c.prompts, prompt)
	return c.answer
}

func TestFeed_DeletePost_LoggedOut(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", defaultPlaceholder))
	require.NoError(t, env.feed.Mount(t.Context()))
	before := len(env.api.Requests())
	confirm := &confirmRecorder{answer: true}

	state := env.feed.DeletePost(t.Context(), "1", confirm)

	assert.Equal(t, MutationSkipped, state)
	assert.Empty(t, confirm.prompts, "no confirmation is asked")
	assert.Len(t, env.api.Requests(), before, "no request may be sent")
	assert.Equal(t, msgLoginToDelete, env.feed.Message.Text())
}

func TestFeed_DeletePost_Declined(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", defaultPlaceholder))
	env.login(t)
	confirm := &confirmRecorder{answer: false}

	state := env.feed.DeletePost(t.Context(), "1", confirm)

	assert.Equal(t, MutationSkipped, state)
	assert.Equal(t, []string{msgConfirmDelete}, confirm.prompts)
	assert.Zero(t, env.api.count(http.MethodDelete, "/posts/1"))
	assert.Len(t, env.feed.Posts(), 1)
}

func TestFeed_DeletePost_Success(t *testing.T) {
	env := setupTestEnv(t,
		samplePost("1", "A", defaultPlaceholder),
		samplePost("2", "B", defaultPlaceholder),
	)
	env.login(t)
	fetches := env.api.count(http.MethodGet, "/posts/all")

	state := env.feed.DeletePost(t.Context(), "1", &confirmRecorder{answer: true})

	assert.Equal(t, MutationConfirmed, state)
	assert.Equal(t, msgPostDeleted, env.feed.Message.Text())
	assert.Equal(t, fetches+1, env.api.count(http.MethodGet, "/posts/all"), "delete triggers a refetch")
	assert.Equal(t, []string{"2"}, postIDs(env.feed.Posts()))

	for _, r := range env.api.Requests() {
		if r.Method == http.MethodDelete {
			assert.Equal(t, "Bearer test-token", r.Auth)
		}
	}
}

func TestFeed_DeletePost_HTTPFailure(t *testing.T) {
	env := setupTestEnv(t, samplePost("1", "A", defaultPlaceholder))
	env.login(t)
	env.api.respond(http.MethodDelete, "/posts/1", http.StatusForbidden, `{}`)

	state := env.feed.DeletePost(t.Context(), "1", &confirmRecorder{answer: true})

	assert.Equal(t, MutationFailed, state)
	assert.Equal(t, msgDeleteFailed, env.feed.Message.Text())
	posts := env.feed.Posts()
	require.Len(t, posts, 1)
	assert.False(t, posts[0].Unconfirmed)
}

func TestFeed_DeletePost_TransportFailure(t *testing.T) {
	env := setupTestEnv(t,
		samplePost("1", "A", defaultPlaceholder),
		samplePost("2", "B", defaultPlaceholder),
	)
	env.login(t)
	env.api.drop(http.MethodDelete, "/posts/1")

	state := env.feed.DeletePost(t.Context(), "1", &confirmRecorder{answer: true})

	assert.Equal(t, MutationFailed, state)
	assert.Equal(t, msgDeleteNetwork, env.feed.Message.Text(), "failure is reported, not masked as success")
	assert.Equal(t, []string{"2"}, postIDs(env.feed.Posts()), "the post is removed locally")

	removed := env.feed.Removed()
	require.Len(t, removed, 1)
	assert.Equal(t, "1", removed[0].ID)
	assert.True(t, removed[0].Unconfirmed)

	// The next successful fetch is the backend's truth again.
	env.api.reset(http.MethodDelete, "/posts/1")
	require.NoError(t, env.feed.FetchPosts(t.Context()))
	assert.Equal(t, []string{"1", "2"}, postIDs(env.feed.Posts()))
	assert.Empty(t, env.feed.Removed())
}

func TestFeed_CanDelete(t *testing.T) {
	env := setupTestEnv(t)
	mine := samplePost("1", "A", defaultPlaceholder)
	theirs := samplePost("2", "B", "other@x.com")
	anonymousPost := samplePost("3", "C", "")

	assert.False(t, env.feed.CanDelete(mine), "logged out users see no delete control")

	env.login(t)
	assert.True(t, env.feed.CanDelete(mine))
	assert.False(t, env.feed.CanDelete(theirs))
	assert.False(t, env.feed.CanDelete(anonymousPost))
}

func TestFeed_Logout(t *testing.T) {
	env := setupTestEnv(t)
	env.login(t)

	require.NoError(t, env.feed.Logout(t.Context()))

	v := env.feed.View()
	assert.False(t, v.LoggedIn)
	assert.Nil(t, v.User)
	assert.Equal(t, msgLoggedOut, v.Message)
	assert.Empty(t, env.session.Token())
}

// blockingAPI serves ListPosts responses in the order the test releases them.
type blockingAPI struct {
	PostAPI
	mu      sync.Mutex
	calls   int
	release []chan []Post
	started chan int
}

func (b *blockingAPI) ListPosts(ctx context.Context) ([]Post, error) {
	b.mu.Lock()
	n := b.calls
	b.calls++
	b.mu.Unlock()

	b.started <- n
	return <-b.release[n], nil
}

func TestFeed_StaleFetchIsDropped(t *testing.T) {
	api := &blockingAPI{
		release: []chan []Post{make(chan []Post), make(chan []Post)},
		started: make(chan int, 2),
	}
	feed := NewFeed(api, setupTestSession(t), NewBus(), zap.NewNop(), "")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		feed.FetchPosts(context.Background())
	}()
	<-api.started
	go func() {
		defer wg.Done()
		feed.FetchPosts(context.Background())
	}()
	<-api.started

	api.release[1] <- []Post{samplePost("new", "Fresh", "a@x.com")}
	api.release[0] <- []Post{samplePost("old", "Stale", "a@x.com")}
	wg.Wait()

	assert.Equal(t, []string{"new"}, postIDs(feed.Posts()))
}

func TestFeed_ScenarioSinglePost(t *testing.T) {
	env := setupTestEnv(t)
	env.api.respond(http.MethodGet, "/posts/all", http.StatusOK,
		`[{"id":"1","title":"A","content":"x","author":{"email":"a@x.com"},"createdAt":"2024-01-01T00:00:00Z","comments":[]}]`)

	require.NoError(t, env.feed.Mount(t.Context()))

	v := env.feed.View()
	require.Len(t, v.Posts, 1)
	assert.Equal(t, "A", v.Posts[0].Title)
	assert.Empty(t, v.Posts[0].Comments)
	assert.Equal(t, "a@x.com", v.Posts[0].Author.Email)
}
