package blog

import (
	"context"
	"fmt"

	"github.com/fusionworks/go-blog-client/gateway"
	"github.com/pkg/errors"
)

const postPath = "/v1/api/post"

// PostsService reads and writes blog posts.
type PostsService struct {
	api *gateway.Client
}

// NewPostsService creates a posts client over the gateway.
func NewPostsService(api *gateway.Client) *PostsService {
	return &PostsService{api: api}
}

// List returns posts, newest first by backend default.
func (s *PostsService) List(ctx context.Context, page *PageQuery) ([]Post, error) {
	var posts []Post
	if err := s.api.Get(ctx, postPath, page.Values(), &posts); err != nil {
		return nil, errors.Wrap(err, "[PostsService.List]")
	}
	for i := range posts {
		posts[i].normalize()
	}
	return posts, nil
}

// Get returns a single post by ID.
func (s *PostsService) Get(ctx context.Context, id int64) (*Post, error) {
	var post Post
	if err := s.api.Get(ctx, fmt.Sprintf("%s/%d", postPath, id), nil, &post); err != nil {
		return nil, errors.Wrapf(err, "[PostsService.Get] id %d", id)
	}
	post.normalize()
	return &post, nil
}

// Create publishes a new post.
func (s *PostsService) Create(ctx context.Context, in PostInput) (*Post, error) {
	in.normalize()
	var post Post
	if err := s.api.Post(ctx, postPath+"/create", in, &post); err != nil {
		return nil, errors.Wrap(err, "[PostsService.Create]")
	}
	post.normalize()
	return &post, nil
}

// Update replaces a post's content.
func (s *PostsService) Update(ctx context.Context, id int64, in PostInput) (*Post, error) {
	in.normalize()
	var post Post
	if err := s.api.Put(ctx, fmt.Sprintf("%s/%d", postPath, id), in, &post); err != nil {
		return nil, errors.Wrapf(err, "[PostsService.Update] id %d", id)
	}
	post.normalize()
	return &post, nil
}

// Delete removes a post.
func (s *PostsService) Delete(ctx context.Context, id int64) error {
	if err := s.api.Delete(ctx, fmt.Sprintf("%s/%d", postPath, id)); err != nil {
		return errors.Wrapf(err, "[PostsService.Delete] id %d", id)
	}
	return nil
}

// Categories lists the available post categories.
func (s *PostsService) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.api.Get(ctx, postPath+"/categories", nil, &categories); err != nil {
		return nil, errors.Wrap(err, "[PostsService.Categories]")
	}
	if categories == nil {
		categories = []Category{}
	}
	return categories, nil
}
