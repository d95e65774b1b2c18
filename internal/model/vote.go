package model

import "time"

// VoteTarget names what a vote applies to.
type VoteTarget string

const (
	VoteTargetDiscussion VoteTarget = "discussion"
	VoteTargetComment    VoteTarget = "comment"
)

// Vote is one user's up/down vote on a discussion or comment.
// (UserID, TargetType, TargetID) is the primary key — a user holds at most
// one vote per target. Value is +1 or -1.
type Vote struct {
	UserID     string     `json:"userId"`
	TargetType VoteTarget `json:"targetType"`
	TargetID   string     `json:"targetId"`
	Value      int        `json:"value"`
	CreatedAt  time.Time  `json:"createdAt"`
}
