package model

import "time"

// Discussion is a top-level forum thread started by a user.
type Discussion struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Score     int       `json:"score"` // sum of votes, populated on reads
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Comment is a reply inside a discussion.
type Comment struct {
	ID           string    `json:"id"`
	DiscussionID string    `json:"discussionId"`
	UserID       string    `json:"userId"`
	Body         string    `json:"body"`
	Score        int       `json:"score"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
