package blog

import (
	"context"
	"fmt"

	"github.com/fusionworks/go-blog-client/gateway"
	"github.com/fusionworks/go-blog-client/internal/utils"
	"github.com/pkg/errors"
)

const commentPath = "/v1/api/comment"

// CommentsService reads and writes post comments.
type CommentsService struct {
	api *gateway.Client
}

// NewCommentsService creates a comments client over the gateway.
func NewCommentsService(api *gateway.Client) *CommentsService {
	return &CommentsService{api: api}
}

// ListByPost returns the flat comment list for a post.
func (s *CommentsService) ListByPost(ctx context.Context, postID int64, page *PageQuery) ([]Comment, error) {
	var comments []Comment
	path := fmt.Sprintf("%s/post/%d", commentPath, postID)
	if err := s.api.Get(ctx, path, page.Values(), &comments); err != nil {
		return nil, errors.Wrapf(err, "[CommentsService.ListByPost] post %d", postID)
	}
	return comments, nil
}

// Tree returns the threaded comment tree for a post.
func (s *CommentsService) Tree(ctx context.Context, postID int64) ([]Comment, error) {
	var comments []Comment
	path := fmt.Sprintf("%s/tree/post/%d", commentPath, postID)
	if err := s.api.Get(ctx, path, nil, &comments); err != nil {
		return nil, errors.Wrapf(err, "[CommentsService.Tree] post %d", postID)
	}
	return comments, nil
}

// Count returns the number of comments on a post.
func (s *CommentsService) Count(ctx context.Context, postID int64) (int64, error) {
	var count int64
	path := fmt.Sprintf("%s/count/post/%d", commentPath, postID)
	if err := s.api.Get(ctx, path, nil, &count); err != nil {
		return 0, errors.Wrapf(err, "[CommentsService.Count] post %d", postID)
	}
	return count, nil
}

// Add creates a top-level comment on a post.
func (s *CommentsService) Add(ctx context.Context, postID int64, content string) (*Comment, error) {
	var comment Comment
	req := commentRequest{PostID: postID, Comment: content}
	if err := s.api.Post(ctx, commentPath, req, &comment); err != nil {
		return nil, errors.Wrapf(err, "[CommentsService.Add] post %d", postID)
	}
	return &comment, nil
}

// Reply creates a reply under an existing comment.
func (s *CommentsService) Reply(ctx context.Context, postID, parentID int64, content string) (*Comment, error) {
	var comment Comment
	req := commentRequest{PostID: postID, ParentID: utils.Ptr(parentID), Comment: content}
	if err := s.api.Post(ctx, commentPath+"/reply", req, &comment); err != nil {
		return nil, errors.Wrapf(err, "[CommentsService.Reply] post %d parent %d", postID, parentID)
	}
	return &comment, nil
}

// Update edits a comment's text.
func (s *CommentsService) Update(ctx context.Context, id int64, content string) (*Comment, error) {
	var comment Comment
	req := commentRequest{Comment: content, Edited: true}
	if err := s.api.Put(ctx, fmt.Sprintf("%s/%d", commentPath, id), req, &comment); err != nil {
		return nil, errors.Wrapf(err, "[CommentsService.Update] id %d", id)
	}
	return &comment, nil
}

// Delete removes a comment.
func (s *CommentsService) Delete(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("%s/%d", commentPath, id)); err != nil {
		return errors.Wrapf(err, "[CommentsService.Delete] id %d", id)
	}
	return nil
}
