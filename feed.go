package main

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	msgFetchFailed     = "Không thể tải bài viết"
	msgLoginToPost     = "❌ Vui lòng đăng nhập để đăng bài"
	msgPostCreated     = "✅ Đăng bài thành công"
	msgPostFailed      = "❌ Lỗi khi đăng bài"
	msgPostNetwork     = "❌ Lỗi mạng khi đăng bài"
	msgLoginToDelete   = "❌ Bạn cần đăng nhập để xoá bài viết."
	msgConfirmDelete   = "Bạn có chắc muốn xoá bài viết này?"
	msgPostDeleted     = "✅ Xoá bài viết thành công"
	msgDeleteFailed    = "❌ Không thể xoá bài viết"
	msgDeleteNetwork   = "❌ Lỗi khi xoá bài viết"
	msgLoggedIn        = "✅ Đăng nhập thành công!"
	msgLoggedOut       = "👋 Đã đăng xuất"
	defaultPlaceholder = "user@example.com"
)

// PostAPI is the part of the backend the feed and its comment panels use.
type PostAPI interface {
	ListPosts(ctx context.Context) ([]Post, error)
	CreatePost(ctx context.Context, token, title, content string) error
	DeletePost(ctx context.Context, token, id string) error
	CreateComment(ctx context.Context, token, postID, content string) error
}

// MutationState is the outcome of a create, delete or comment action.
type MutationState int

const (
	// MutationSkipped means no request was sent.
	MutationSkipped MutationState = iota
	MutationConfirmed
	MutationFailed
)

func (s MutationState) String() string {
	switch s {
	case MutationSkipped:
		return "skipped"
	case MutationConfirmed:
		return "confirmed"
	case MutationFailed:
		return "failed"
	}
	return "unknown"
}

// Confirmer asks the user to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

type Draft struct {
	Title   string
	Content string
}

// Feed owns the post list shown on the home view.
type Feed struct {
	api         PostAPI
	session     *Session
	bus         *Bus
	logger      *zap.Logger
	placeholder string
	now         func() time.Time

	Message *Flash

	mu         sync.Mutex
	posts      []Post
	loggedIn   bool
	user       *User
	submitting bool
	draft      Draft
	fetchGen   uint64
	panels     map[string]*CommentPanel

	// removed holds posts dropped locally after a delete that never
	// reached the backend. Cleared by the next successful fetch.
	removed []Post
}

func NewFeed(api PostAPI, session *Session, bus *Bus, logger *zap.Logger, placeholder string) *Feed {
	if placeholder == "" {
		placeholder = defaultPlaceholder
	}
	f := &Feed{
		api:         api,
		session:     session,
		bus:         bus,
		logger:      logger,
		placeholder: placeholder,
		now:         time.Now,
		Message:     NewFlash(messageTTL),
		posts:       []Post{},
		panels:      make(map[string]*CommentPanel),
	}
	bus.Subscribe(f.handleEvent)
	return f
}

// handleEvent is the single place the refresh policy lives: every
// confirmed mutation triggers a full refetch.
func (f *Feed) handleEvent(ctx context.Context, e Event) {
	switch e {
	case EventLoggedIn:
		f.mu.Lock()
		f.loggedIn = true
		f.user = &User{Email: f.placeholder}
		f.mu.Unlock()
		f.Message.Show(msgLoggedIn)
		f.FetchPosts(ctx)
	case EventLoggedOut:
		f.mu.Lock()
		f.loggedIn = false
		f.user = nil
		f.mu.Unlock()
		f.Message.Show(msgLoggedOut)
	case EventPostCreated, EventPostDeleted, EventCommentCreated:
		f.FetchPosts(ctx)
	}
}

// Mount derives the login state from the session and loads the posts.
func (f *Feed) Mount(ctx context.Context) error {
	_, ok, err := f.session.Get()
	if err != nil {
		f.logger.Error("checking token", zap.Error(err))
	}

	f.mu.Lock()
	f.loggedIn = ok
	if ok {
		f.user = &User{Email: f.placeholder}
	} else {
		f.user = nil
	}
	f.mu.Unlock()

	return f.FetchPosts(ctx)
}

// FetchPosts replaces the list with the backend's. On failure the list
// is emptied. A response older than the latest started fetch is dropped,
// and so is a failure caused by the caller giving up on ctx.
func (f *Feed) FetchPosts(ctx context.Context) error {
	f.mu.Lock()
	f.fetchGen++
	gen := f.fetchGen
	f.mu.Unlock()

	posts, err := f.api.ListPosts(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.fetchGen {
		f.logger.Debug("dropping stale post list", zap.Uint64("generation", gen))
		return nil
	}
	if err != nil && ctx.Err() != nil {
		f.logger.Debug("post fetch abandoned", zap.Error(err))
		return err
	}
	if err != nil {
		f.logger.Warn("fetching posts", zap.Error(err))
		f.posts = []Post{}
		f.prunePanels()
		f.Message.Show(msgFetchFailed)
		return err
	}

	f.posts = posts
	f.removed = nil
	f.prunePanels()
	return nil
}

func (f *Feed) CreatePost(ctx context.Context, title, content string) MutationState {
	f.mu.Lock()
	if !f.loggedIn {
		f.mu.Unlock()
		f.Message.Show(msgLoginToPost)
		return MutationSkipped
	}
	if f.submitting {
		f.mu.Unlock()
		return MutationSkipped
	}
	f.submitting = true
	f.draft = Draft{Title: title, Content: content}
	f.mu.Unlock()
	f.Message.Clear()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	err := f.api.CreatePost(ctx, f.session.Token(), title, content)
	if err == nil {
		f.mu.Lock()
		f.draft = Draft{}
		f.mu.Unlock()
		f.Message.Show(msgPostCreated)
		f.bus.Publish(ctx, EventPostCreated)
		return MutationConfirmed
	}

	f.logger.Warn("creating post", zap.Error(err))
	if !errors.Is(err, ErrTransport) {
		f.Message.Show(errorMessage(err, msgPostFailed, msgPostNetwork))
		return MutationFailed
	}

	f.mu.Lock()
	if f.user != nil {
		now := f.now()
		local := Post{
			ID:          strconv.FormatInt(now.UnixMilli(), 10),
			Title:       title,
			Content:     content,
			Author:      Author{Email: f.user.Email},
			CreatedAt:   now,
			Comments:    []Comment{},
			Unconfirmed: true,
		}
		f.posts = append([]Post{local}, f.posts...)
		f.draft = Draft{}
	}
	f.mu.Unlock()
	f.Message.Show(msgPostNetwork)
	return MutationFailed
}

func (f *Feed) DeletePost(ctx context.Context, postID string, confirm Confirmer) MutationState {
	token := f.session.Token()
	if token == "" {
		f.Message.Show(msgLoginToDelete)
		return MutationSkipped
	}
	if !confirm.Confirm(msgConfirmDelete) {
		return MutationSkipped
	}

	err := f.api.DeletePost(ctx, token, postID)
	if err == nil {
		f.Message.Show(msgPostDeleted)
		f.bus.Publish(ctx, EventPostDeleted)
		return MutationConfirmed
	}

	f.logger.Warn("deleting post", zap.String("post_id", postID), zap.Error(err))
	if !errors.Is(err, ErrTransport) {
		f.Message.Show(errorMessage(err, msgDeleteFailed, msgDeleteNetwork))
		return MutationFailed
	}

	f.mu.Lock()
	kept := make([]Post, 0, len(f.posts))
	for _, p := range f.posts {
		if p.ID == postID {
			p.Unconfirmed = true
			f.removed = append(f.removed, p)
			continue
		}
		kept = append(kept, p)
	}
	f.posts = kept
	f.prunePanels()
	f.mu.Unlock()
	f.Message.Show(msgDeleteNetwork)
	return MutationFailed
}

// Logout drops the stored token.
func (f *Feed) Logout(ctx context.Context) error {
	if err := f.session.Clear(); err != nil {
		return err
	}
	f.bus.Publish(ctx, EventLoggedOut)
	return nil
}

// CanDelete reports whether the delete control is shown for p. It is a
// display hint only; the backend decides who may delete.
func (f *Feed) CanDelete(p Post) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canDelete(p)
}

func (f *Feed) canDelete(p Post) bool {
	return f.loggedIn && f.user != nil && f.user.Email == p.Author.Email
}

// Panel returns the comment panel for postID, creating it on first use.
func (f *Feed) Panel(postID string) *CommentPanel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.panel(postID)
}

func (f *Feed) panel(postID string) *CommentPanel {
	p, ok := f.panels[postID]
	if !ok {
		p = NewCommentPanel(postID, f.api, f.session, f.bus, f.logger)
		f.panels[postID] = p
	}
	return p
}

func (f *Feed) prunePanels() {
	keep := make(map[string]bool, len(f.posts))
	for _, p := range f.posts {
		keep[p.ID] = true
	}
	for id := range f.panels {
		if !keep[id] {
			delete(f.panels, id)
		}
	}
}

// Removed returns the posts hidden locally whose deletion the backend
// never confirmed.
func (f *Feed) Removed() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Post(nil), f.removed...)
}

// Posts returns a copy of the current list.
func (f *Feed) Posts() []Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Post(nil), f.posts...)
}

func (f *Feed) Post(id string) (Post, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}

type PostView struct {
	Post
	CanDelete    bool
	CommentDraft string
	CommentError string
}

type FeedView struct {
	Posts      []PostView
	Removed    []Post
	LoggedIn   bool
	User       *User
	Submitting bool
	Draft      Draft
	Message    string
}

// View snapshots everything the home template renders.
func (f *Feed) View() FeedView {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := FeedView{
		Posts:      make([]PostView, 0, len(f.posts)),
		LoggedIn:   f.loggedIn,
		Submitting: f.submitting,
		Removed:    append([]Post(nil), f.removed...),
		Draft:      f.draft,
		Message:    f.Message.Text(),
	}
	if f.user != nil {
		u := *f.user
		v.User = &u
	}
	for _, p := range f.posts {
		draft, errText := f.panel(p.ID).State()
		v.Posts = append(v.Posts, PostView{
			Post:         p,
			CanDelete:    f.canDelete(p),
			CommentDraft: draft,
			CommentError: errText,
		})
	}
	return v
}
