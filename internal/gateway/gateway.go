// Package gateway defines the remote bookmarks API capability (spec §6):
// authentication, user identity, and cursor-paginated bookmark pages.
// The concrete wire protocol is an external collaborator; this package
// only states the shape the Export Engine depends on, plus a
// hermetic in-memory fake for tests, following spec §9's "capabilities
// over subclassing" guidance.
package gateway

import (
	"context"
	"time"
)

// RawRecord is one bookmark as returned by the remote, before the Export
// Engine normalizes it into model.Record. JSON tags exist so a fixture
// file can stand in for a live remote (see cmd/bookmarkctl's -fixture
// flag); the production wire format is an external collaborator's
// concern, not this package's.
type RawRecord struct {
	ID             string     `json:"id"`
	URL            *string    `json:"url"`
	Text           *string    `json:"text"`
	AuthorUsername *string    `json:"authorUsername"`
	AuthorName     *string    `json:"authorName"`
	CreatedAt      *time.Time `json:"createdAt"`
	LikeCount      int        `json:"likeCount"`
	RetweetCount   int        `json:"retweetCount"`
	ReplyCount     int        `json:"replyCount"`
}

// RateLimit mirrors the headers a real response would carry.
type RateLimit struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

// Page is one page of the bookmarks stream.
type Page struct {
	Records    []RawRecord `json:"records"`
	NextCursor string      `json:"nextCursor"` // empty means this was the last page
	RateLimit  RateLimit   `json:"rateLimit"`
}

// Identity is the authenticated user's identity.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Gateway is the capability boundary the Export Engine depends on.
// Implementations may hit an HTTP API, a test double, or anything else;
// the engine only ever calls through this interface.
type Gateway interface {
	// Authenticate exchanges credentials for a session token.
	Authenticate(ctx context.Context, credentials string) (token string, err error)
	// GetUser resolves the authenticated identity once per export
	// session.
	GetUser(ctx context.Context, token string) (Identity, error)
	// GetBookmarks fetches the page following cursor (empty cursor means
	// the first page).
	GetBookmarks(ctx context.Context, token, cursor string) (Page, error)
}
