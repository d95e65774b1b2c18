package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/model"
	"github.com/sakif/discussions/internal/repository"
)

const (
	MaxTitleLength   = 200
	MaxBodyLength    = 64 * 1024
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// DiscussionService handles forum threads and their comments. Every mutation
// takes the acting user's id; update and delete are author-only.
type DiscussionService struct {
	discussions repository.DiscussionRepository
	comments    repository.CommentRepository
	votes       repository.VoteRepository
	logger      *slog.Logger
}

func NewDiscussionService(
	discussions repository.DiscussionRepository,
	comments repository.CommentRepository,
	votes repository.VoteRepository,
	logger *slog.Logger,
) *DiscussionService {
	return &DiscussionService{
		discussions: discussions,
		comments:    comments,
		votes:       votes,
		logger:      logger,
	}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return title, nil
}

func validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", apperror.ValidationFailed("body", "body is required")
	}
	if len(body) > MaxBodyLength {
		return "", apperror.ValidationFailed("body",
			fmt.Sprintf("body must be %d bytes or less", MaxBodyLength))
	}
	return body, nil
}

// Create starts a new thread authored by userID.
func (s *DiscussionService) Create(ctx context.Context, userID, title, body string) (*model.Discussion, error) {
	title, err := validateTitle(title)
	if err != nil {
		return nil, err
	}
	body, err = validateBody(body)
	if err != nil {
		return nil, err
	}

	discussion := &model.Discussion{
		UserID: userID,
		Title:  title,
		Body:   body,
	}
	if err := s.discussions.Create(ctx, discussion); err != nil {
		s.logger.Error("failed to create discussion",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating discussion: %w", err)
	}

	s.logger.Info("discussion created",
		slog.String("id", discussion.ID),
		slog.String("userID", userID),
	)
	return discussion, nil
}

func (s *DiscussionService) GetByID(ctx context.Context, id string) (*model.Discussion, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "discussion ID is required")
	}
	return s.discussions.GetByID(ctx, id)
}

// List returns threads newest-first with clamped pagination.
func (s *DiscussionService) List(ctx context.Context, limit, offset int) ([]model.Discussion, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	discussions, err := s.discussions.List(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list discussions", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing discussions: %w", err)
	}
	return discussions, nil
}

// Update rewrites a thread's title and body. Only the author may update.
func (s *DiscussionService) Update(ctx context.Context, id, userID, title, body string) (*model.Discussion, error) {
	discussion, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if discussion.UserID != userID {
		return nil, apperror.Forbidden("only the author can edit this discussion")
	}

	if title, err = validateTitle(title); err != nil {
		return nil, err
	}
	if body, err = validateBody(body); err != nil {
		return nil, err
	}
	discussion.Title = title
	discussion.Body = body

	if err := s.discussions.Update(ctx, discussion); err != nil {
		s.logger.Error("failed to update discussion",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating discussion: %w", err)
	}
	return discussion, nil
}

// Delete removes a thread with its comments and votes. Author-only.
func (s *DiscussionService) Delete(ctx context.Context, id, userID string) error {
	discussion, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if discussion.UserID != userID {
		return apperror.Forbidden("only the author can delete this discussion")
	}

	if err := s.discussions.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting discussion: %w", err)
	}
	s.logger.Info("discussion deleted", slog.String("id", id))
	return nil
}

// AddComment replies to an existing thread.
func (s *DiscussionService) AddComment(ctx context.Context, discussionID, userID, body string) (*model.Comment, error) {
	body, err := validateBody(body)
	if err != nil {
		return nil, err
	}

	// Confirm the thread exists so a reply to a deleted thread reads as 404,
	// not a foreign-key failure.
	if _, err := s.GetByID(ctx, discussionID); err != nil {
		return nil, err
	}

	comment := &model.Comment{
		DiscussionID: discussionID,
		UserID:       userID,
		Body:         body,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		s.logger.Error("failed to create comment",
			slog.String("discussionID", discussionID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating comment: %w", err)
	}
	return comment, nil
}

// ListComments returns a thread's replies oldest-first.
func (s *DiscussionService) ListComments(ctx context.Context, discussionID string) ([]model.Comment, error) {
	if _, err := s.GetByID(ctx, discussionID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByDiscussion(ctx, discussionID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return comments, nil
}

// DeleteComment removes a reply. Author-only.
func (s *DiscussionService) DeleteComment(ctx context.Context, id, userID string) error {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		return apperror.Forbidden("only the author can delete this comment")
	}
	if err := s.comments.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	return nil
}

// CastVote records a +1/-1 vote by userID on a discussion or comment.
// Re-casting the same value toggles the vote off; a different value
// replaces it.
func (s *DiscussionService) CastVote(ctx context.Context, userID string, target model.VoteTarget, targetID string, value int) error {
	if value != 1 && value != -1 {
		return apperror.ValidationFailed("value", "vote value must be 1 or -1")
	}
	if err := s.checkVoteTarget(ctx, target, targetID); err != nil {
		return err
	}

	existing, err := s.votes.Get(ctx, userID, target, targetID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("loading vote: %w", err)
	}
	if existing != nil && existing.Value == value {
		if err := s.votes.Delete(ctx, userID, target, targetID); err != nil {
			return fmt.Errorf("toggling vote off: %w", err)
		}
		return nil
	}

	vote := &model.Vote{
		UserID:     userID,
		TargetType: target,
		TargetID:   targetID,
		Value:      value,
	}
	if err := s.votes.Set(ctx, vote); err != nil {
		return fmt.Errorf("casting vote: %w", err)
	}
	return nil
}

// RemoveVote withdraws the user's vote. Removing a vote that was never cast
// is not an error.
func (s *DiscussionService) RemoveVote(ctx context.Context, userID string, target model.VoteTarget, targetID string) error {
	if err := s.checkVoteTarget(ctx, target, targetID); err != nil {
		return err
	}
	if err := s.votes.Delete(ctx, userID, target, targetID); err != nil {
		return fmt.Errorf("removing vote: %w", err)
	}
	return nil
}

func (s *DiscussionService) checkVoteTarget(ctx context.Context, target model.VoteTarget, targetID string) error {
	switch target {
	case model.VoteTargetDiscussion:
		_, err := s.GetByID(ctx, targetID)
		return err
	case model.VoteTargetComment:
		_, err := s.comments.GetByID(ctx, targetID)
		return err
	default:
		return apperror.ValidationFailed("target", "vote target must be a discussion or a comment")
	}
}
