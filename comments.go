package main

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	msgCommentFailed  = "Lỗi khi gửi bình luận"
	msgCommentNetwork = "Lỗi mạng khi gửi bình luận"
)

// CommentPanel is the comment form under one post.
type CommentPanel struct {
	postID  string
	api     PostAPI
	session *Session
	bus     *Bus
	logger  *zap.Logger

	mu    sync.Mutex
	draft string
	err   string
}

func NewCommentPanel(postID string, api PostAPI, session *Session, bus *Bus, logger *zap.Logger) *CommentPanel {
	return &CommentPanel{
		postID:  postID,
		api:     api,
		session: session,
		bus:     bus,
		logger:  logger,
	}
}

// Submit sends content as a new comment. Blank content is ignored. On
// success the post list is reloaded through the bus rather than patched.
func (p *CommentPanel) Submit(ctx context.Context, content string) MutationState {
	p.mu.Lock()
	p.err = ""
	p.draft = content
	p.mu.Unlock()

	if strings.TrimSpace(content) == "" {
		return MutationSkipped
	}

	err := p.api.CreateComment(ctx, p.session.Token(), p.postID, content)
	if err != nil {
		p.logger.Warn("creating comment", zap.String("post_id", p.postID), zap.Error(err))
		p.mu.Lock()
		p.err = errorMessage(err, msgCommentFailed, msgCommentNetwork)
		p.mu.Unlock()
		return MutationFailed
	}

	p.mu.Lock()
	p.draft = ""
	p.mu.Unlock()
	p.bus.Publish(ctx, EventCommentCreated)
	return MutationConfirmed
}

// State returns the current draft and error text.
func (p *CommentPanel) State() (draft, errText string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.draft, p.err
}
