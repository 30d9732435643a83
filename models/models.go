package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Handle      string `gorm:"uniqueIndex"`
	DisplayName string
}

// Agent is the autonomous actor configured for a user. Each user owns at
// most one agent (enforced by the unique index on UserID).
type Agent struct {
	gorm.Model
	UserID        uint   `gorm:"uniqueIndex"`
	Name          string `gorm:"default:My Agent"`
	SystemPrompt  string `gorm:"type:text"`
	Personality   string `gorm:"type:text"`
	Preferences   string `gorm:"type:text"`
	AutonomyLevel int    `gorm:"default:5"`
	Active        bool   `gorm:"default:true"`

	// Daily quota state. ActionsToday is only meaningful relative to
	// LastActionDay (UTC calendar date, time.DateOnly format): a stale day
	// means the counter is due for a lazy reset.
	ActionsToday  int
	LastActionDay string
	LastActionAt  *time.Time
}

type PostStatus string

const (
	PostStatusDraft     = PostStatus("draft")
	PostStatusPublished = PostStatus("published")
	PostStatusScheduled = PostStatus("scheduled")
)

type ActorKind string

const (
	ActorKindAgent = ActorKind("agent")
	ActorKindHuman = ActorKind("human")
)

// Post is a content artifact, human- or agent-authored. A comment is a post
// whose ReplyTo references its parent; both share the same status lifecycle.
// Rows are soft-deleted only, so the approval audit trail stays intact.
type Post struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID  uint  `gorm:"index"`
	AgentID *uint `gorm:"index"`
	ReplyTo *uint `gorm:"index"`

	Content string     `gorm:"type:text"`
	Author  ActorKind  `gorm:"index"`
	Status  PostStatus `gorm:"index"`

	Edited       bool
	EditedByUser bool
	Deleted      bool

	LikeCount  int64
	ReplyCount int64
}

type ActionType string

const (
	ActionPostCreated         = ActionType("post_created")
	ActionCommentCreated      = ActionType("comment_created")
	ActionLikeGiven           = ActionType("like_given")
	ActionConnectionRequested = ActionType("connection_requested")
	ActionMessageSent         = ActionType("message_sent")
	ActionTaskCompleted       = ActionType("task_completed")
)

type ActionStatus string

const (
	ActionPendingApproval = ActionStatus("pending_approval")
	ActionApproved        = ActionStatus("approved")
	ActionCompleted       = ActionStatus("completed")
	ActionEditedByUser    = ActionStatus("edited_by_user")
	ActionRejected        = ActionStatus("rejected")
	ActionDeletedByUser   = ActionStatus("deleted_by_user")
)

// Terminal reports whether no further approval decision applies to the
// action. Terminal statuses never regress to pending.
func (s ActionStatus) Terminal() bool {
	switch s {
	case ActionApproved, ActionRejected, ActionDeletedByUser:
		return true
	}
	return false
}

type Feedback string

const (
	FeedbackPositive = Feedback("positive")
	FeedbackNegative = Feedback("negative")
	FeedbackNeutral  = Feedback("neutral")
)

// AgentAction is the audit record for one agent-initiated action and its
// approval lifecycle. Rows are never deleted; "deleted" is a status.
type AgentAction struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time

	AgentID uint  `gorm:"index"`
	UserID  uint  `gorm:"index"`
	PostID  *uint `gorm:"index"`

	Kind   ActionType   `gorm:"index"`
	Status ActionStatus `gorm:"index"`

	Description string `gorm:"type:text"`
	Metadata    string `gorm:"type:text"`

	Feedback        Feedback
	EngagementScore int64
}

type ConnectionStatus string

const (
	ConnectionPending  = ConnectionStatus("pending")
	ConnectionAccepted = ConnectionStatus("accepted")
	ConnectionRejected = ConnectionStatus("rejected")
)

type ConnectionKind string

const (
	ConnectionCloseFriend  = ConnectionKind("close_friend")
	ConnectionFriend       = ConnectionKind("friend")
	ConnectionAcquaintance = ConnectionKind("acquaintance")
	ConnectionProfessional = ConnectionKind("professional")
)

// Connection records a relationship between two users. The row remembers
// who initiated (UserID) and who was asked (PeerID), but an accepted
// connection is symmetric. At most one row exists per unordered pair.
type Connection struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID uint `gorm:"index"`
	PeerID uint `gorm:"index"`

	// The pair in sorted order. Keeping the unique index on the sorted
	// columns lets the database reject a second row for the same two users
	// no matter which side initiated.
	PairLow  uint `gorm:"index:idx_connection_pair,unique"`
	PairHigh uint `gorm:"index:idx_connection_pair,unique"`

	Kind   ConnectionKind   `gorm:"default:friend"`
	Status ConnectionStatus `gorm:"index"`

	InitiatedByAgent bool
}

// LikeRecord is one user's like on a post or comment. The unique index
// backs the one-like-per-user rule.
type LikeRecord struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time

	UserID uint `gorm:"index:idx_like_user_post,unique"`
	PostID uint `gorm:"index:idx_like_user_post,unique"`

	Actor ActorKind
}
