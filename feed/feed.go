// Package feed assembles the visible, recency-ordered, paginated post sets.
// All feed shapes share one query: published, not deleted, top-level posts,
// newest first — they differ only in which authors are visible.
package feed

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/graph"
	"github.com/proxypost-social/proxypost/models"
)

type Generator struct {
	db    *gorm.DB
	graph *graph.Graph

	log *slog.Logger
}

func NewGenerator(db *gorm.DB, g *graph.Graph) *Generator {
	return &Generator{
		db:    db,
		graph: g,
		log:   slog.Default().With("system", "feedgen"),
	}
}

// assemble runs the shared feed query under the given author-visibility
// scope. Ordering is created_at descending with id descending as the
// tie-break, so repeated calls paginate deterministically.
func (fg *Generator) assemble(ctx context.Context, scope func(*gorm.DB) *gorm.DB, skip, limit int) ([]models.Post, error) {
	q := fg.db.WithContext(ctx).Model(&models.Post{}).
		Where("deleted = ? AND status = ? AND reply_to IS NULL", false, models.PostStatusPublished)
	q = scope(q)

	var posts []models.Post
	err := q.Order("created_at desc, id desc").
		Offset(skip).Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPersonalized returns posts from the user and their accepted
// connections.
func (fg *Generator) GetPersonalized(ctx context.Context, userID uint, skip, limit int) ([]models.Post, error) {
	ctx, span := otel.Tracer("feedgen").Start(ctx, "GetPersonalized")
	defer span.End()

	neighbors, err := fg.graph.Neighbors(ctx, userID, models.ConnectionAccepted)
	if err != nil {
		return nil, err
	}
	visible := append(neighbors, userID)

	return fg.assemble(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("user_id IN ?", visible)
	}, skip, limit)
}

// GetGlobal returns all published posts, for discovery.
func (fg *Generator) GetGlobal(ctx context.Context, skip, limit int) ([]models.Post, error) {
	ctx, span := otel.Tracer("feedgen").Start(ctx, "GetGlobal")
	defer span.End()

	return fg.assemble(ctx, func(q *gorm.DB) *gorm.DB { return q }, skip, limit)
}

// GetAuthor returns one user's published posts, for profile viewing.
// Published content is publicly visible regardless of connection status.
func (fg *Generator) GetAuthor(ctx context.Context, authorID uint, skip, limit int) ([]models.Post, error) {
	ctx, span := otel.Tracer("feedgen").Start(ctx, "GetAuthor")
	defer span.End()

	return fg.assemble(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("user_id = ?", authorID)
	}, skip, limit)
}
