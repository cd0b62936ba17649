// Package blog exposes typed clients for the platform's REST resources:
// posts, comments, and user administration. They are thin pass-throughs
// over the gateway client; the only local logic is shape normalization of
// responses for display.
package blog

import (
	"net/url"
	"strconv"
	"time"
)

// PostStatusPublished is assumed when the backend omits a status.
const PostStatusPublished = "PUBLISHED"

// Author is the embedded author shape some backend revisions return
// instead of a flat authorUsername.
type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Post is a blog post as returned by the backend.
type Post struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Summary        string     `json:"summary,omitempty"`
	Excerpt        string     `json:"excerpt,omitempty"`
	Slug           string     `json:"slug,omitempty"`
	Content        string     `json:"content"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	AuthorUsername string     `json:"authorUsername,omitempty"`
	Author         *Author    `json:"author,omitempty"`
	Categories     []Category `json:"categories"`
	Tags           []string   `json:"tags"`
	CommentCount   int        `json:"commentCount,omitempty"`
	Status         string     `json:"status,omitempty"`
	CreatedAt      time.Time  `json:"createdAt,omitzero"`
	UpdatedAt      time.Time  `json:"updatedAt,omitzero"`
}

// normalize fills the gaps different backend revisions leave: missing
// status, author nested instead of flat, nil collections, no update stamp.
func (p *Post) normalize() {
	if p.AuthorUsername == "" && p.Author != nil {
		p.AuthorUsername = p.Author.Username
	}
	if p.Categories == nil {
		p.Categories = []Category{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Status == "" {
		p.Status = PostStatusPublished
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
}

// PostInput is the payload for creating or updating a post.
type PostInput struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary,omitempty"`
	Content    string   `json:"content"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
}

// normalize guarantees the backend sees arrays, never null.
func (in *PostInput) normalize() {
	if in.Categories == nil {
		in.Categories = []string{}
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
}

// Category is a post category.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Comment is a post comment, optionally carrying its replies when fetched
// as a tree.
type Comment struct {
	ID         int64     `json:"id"`
	PostID     int64     `json:"postId"`
	ParentID   *int64    `json:"parentId,omitempty"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId,omitempty"`
	AuthorName string    `json:"authorName,omitempty"`
	Approved   bool      `json:"approved,omitempty"`
	Edited     bool      `json:"edited,omitempty"`
	Replies    []Comment `json:"replies,omitempty"`
	CreatedAt  time.Time `json:"createdAt,omitzero"`
}

// commentRequest is the write payload; the backend takes the text under
// "comment" while returning it as "content".
type commentRequest struct {
	PostID   int64  `json:"postId"`
	ParentID *int64 `json:"parentId,omitempty"`
	Comment  string `json:"comment"`
	Edited   bool   `json:"edited"`
}

// User is an account as seen by the user and admin endpoints.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Enabled   bool      `json:"enabled"`
	Roles     []string  `json:"roles,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// UserInput is the payload for registration and profile updates.
type UserInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Password  string `json:"password,omitempty"`
}

// PagingResult is the backend's page envelope.
type PagingResult[T any] struct {
	Content       []T   `json:"content"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
	Size          int   `json:"size"`
	Page          int   `json:"page"`
	Empty         bool  `json:"empty"`
}

// PageQuery selects a page of a listing.
type PageQuery struct {
	Page int
	Size int
	Sort string
}

// Values encodes the query as request parameters.
func (q *PageQuery) Values() url.Values {
	if q == nil {
		return nil
	}
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	if q.Size > 0 {
		v.Set("size", strconv.Itoa(q.Size))
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}
