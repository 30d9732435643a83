// Package graph stores pairwise connections between users. A connection row
// remembers its initiator, but accepted connections are symmetric: Neighbors
// answers "who is on the other side" regardless of direction.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/proxypost-social/proxypost/models"
)

type Graph struct {
	db *gorm.DB

	log *slog.Logger
}

func NewGraph(db *gorm.DB) *Graph {
	db.AutoMigrate(&models.Connection{})

	return &Graph{
		db:  db,
		log: slog.Default().With("system", "graph"),
	}
}

// Request creates a pending connection from one user to another. At most one
// row may exist per unordered pair, whichever side initiated first.
func (g *Graph) Request(ctx context.Context, from, to uint, kind models.ConnectionKind, byAgent bool) (*models.Connection, error) {
	if from == to {
		return nil, models.ErrSelfConnection
	}
	if kind == "" {
		kind = models.ConnectionFriend
	}

	lo, hi := from, to
	if lo > hi {
		lo, hi = hi, lo
	}
	conn := models.Connection{
		UserID:           from,
		PeerID:           to,
		PairLow:          lo,
		PairHigh:         hi,
		Kind:             kind,
		Status:           models.ConnectionPending,
		InitiatedByAgent: byAgent,
	}

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&models.Connection{}).
			Where("(user_id = ? AND peer_id = ?) OR (user_id = ? AND peer_id = ?)", from, to, to, from).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return models.ErrDuplicateConnection
		}
		return tx.Create(&conn).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, models.ErrDuplicateConnection
		}
		return nil, err
	}

	g.log.Info("connection requested", "from", from, "to", to, "kind", kind)
	return &conn, nil
}

func (g *Graph) load(ctx context.Context, connID uint) (*models.Connection, error) {
	var conn models.Connection
	if err := g.db.WithContext(ctx).First(&conn, connID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &conn, nil
}

// decide resolves a pending request. Only the receiving side may decide, and
// the guarded update ensures racing accept/reject calls cannot both land.
func (g *Graph) decide(ctx context.Context, connID, requester uint, to models.ConnectionStatus) (*models.Connection, error) {
	conn, err := g.load(ctx, connID)
	if err != nil {
		return nil, err
	}
	if conn.PeerID != requester {
		return nil, fmt.Errorf("only the receiving user can decide a connection request: %w", models.ErrForbidden)
	}

	res := g.db.WithContext(ctx).Model(&models.Connection{}).
		Where("id = ? AND status = ?", conn.ID, models.ConnectionPending).
		Update("status", to)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("connection %d is not pending: %w", conn.ID, models.ErrInvalidState)
	}

	conn.Status = to
	return conn, nil
}

func (g *Graph) Accept(ctx context.Context, connID, requester uint) (*models.Connection, error) {
	return g.decide(ctx, connID, requester, models.ConnectionAccepted)
}

func (g *Graph) Reject(ctx context.Context, connID, requester uint) (*models.Connection, error) {
	return g.decide(ctx, connID, requester, models.ConnectionRejected)
}

// Remove deletes the connection outright. Either party may remove it;
// connections carry no audit requirement.
func (g *Graph) Remove(ctx context.Context, connID, requester uint) error {
	conn, err := g.load(ctx, connID)
	if err != nil {
		return err
	}
	if conn.UserID != requester && conn.PeerID != requester {
		return fmt.Errorf("not a party to connection %d: %w", connID, models.ErrForbidden)
	}
	return g.db.WithContext(ctx).Delete(&models.Connection{}, conn.ID).Error
}

// UpdateKind reclassifies an accepted connection (friend, professional, ...).
func (g *Graph) UpdateKind(ctx context.Context, connID, requester uint, kind models.ConnectionKind) (*models.Connection, error) {
	conn, err := g.load(ctx, connID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != requester && conn.PeerID != requester {
		return nil, fmt.Errorf("not a party to connection %d: %w", connID, models.ErrForbidden)
	}
	if conn.Status != models.ConnectionAccepted {
		return nil, fmt.Errorf("connection %d is not accepted: %w", connID, models.ErrInvalidState)
	}

	if err := g.db.WithContext(ctx).Model(conn).Update("kind", kind).Error; err != nil {
		return nil, err
	}
	return conn, nil
}

// Neighbors returns the users on the other side of this user's connections
// with the given status, regardless of which side initiated.
func (g *Graph) Neighbors(ctx context.Context, userID uint, status models.ConnectionStatus) ([]uint, error) {
	var conns []models.Connection
	err := g.db.WithContext(ctx).
		Where("(user_id = ? OR peer_id = ?) AND status = ?", userID, userID, status).
		Find(&conns).Error
	if err != nil {
		return nil, err
	}

	out := make([]uint, 0, len(conns))
	for _, c := range conns {
		if c.UserID == userID {
			out = append(out, c.PeerID)
		} else {
			out = append(out, c.UserID)
		}
	}
	return out, nil
}

// List returns the user's connections newest first, optionally filtered by
// status.
func (g *Graph) List(ctx context.Context, userID uint, status models.ConnectionStatus) ([]models.Connection, error) {
	q := g.db.WithContext(ctx).Where("user_id = ? OR peer_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var conns []models.Connection
	err := q.Order("created_at desc, id desc").Find(&conns).Error
	return conns, err
}
