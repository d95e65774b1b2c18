package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/model"
	"github.com/sakif/discussions/internal/repository"
)

// =========================================================================
// FAKES
// =========================================================================

type fakeDiscussionRepo struct {
	discussions map[string]*model.Discussion
	nextID      int
}

func (f *fakeDiscussionRepo) Create(_ context.Context, d *model.Discussion) error {
	f.nextID++
	d.ID = fmt.Sprintf("disc-%d", f.nextID)
	d.CreatedAt = time.Now()
	stored := *d
	f.discussions[d.ID] = &stored
	return nil
}

func (f *fakeDiscussionRepo) GetByID(_ context.Context, id string) (*model.Discussion, error) {
	d, ok := f.discussions[id]
	if !ok {
		return nil, apperror.NotFound("discussion", id)
	}
	result := *d
	return &result, nil
}

func (f *fakeDiscussionRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Discussion, error) {
	ids := make([]string, 0, len(f.discussions))
	for id := range f.discussions {
		ids = append(ids, id)
	}
	// Newest-first, matching the sqlite implementation.
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))

	result := make([]model.Discussion, 0, len(ids))
	for _, id := range ids {
		result = append(result, *f.discussions[id])
	}
	if opts.Offset >= len(result) {
		return []model.Discussion{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (f *fakeDiscussionRepo) Update(_ context.Context, d *model.Discussion) error {
	if _, ok := f.discussions[d.ID]; !ok {
		return apperror.NotFound("discussion", d.ID)
	}
	stored := *d
	f.discussions[d.ID] = &stored
	return nil
}

func (f *fakeDiscussionRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.discussions[id]; !ok {
		return apperror.NotFound("discussion", id)
	}
	delete(f.discussions, id)
	return nil
}

type fakeCommentRepo struct {
	comments map[string]*model.Comment
	nextID   int
}

func (f *fakeCommentRepo) Create(_ context.Context, c *model.Comment) error {
	f.nextID++
	c.ID = fmt.Sprintf("comment-%d", f.nextID)
	c.CreatedAt = time.Now()
	stored := *c
	f.comments[c.ID] = &stored
	return nil
}

func (f *fakeCommentRepo) GetByID(_ context.Context, id string) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	result := *c
	return &result, nil
}

func (f *fakeCommentRepo) ListByDiscussion(_ context.Context, discussionID string) ([]model.Comment, error) {
	ids := make([]string, 0, len(f.comments))
	for id, c := range f.comments {
		if c.DiscussionID == discussionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids) // oldest-first
	result := make([]model.Comment, 0, len(ids))
	for _, id := range ids {
		result = append(result, *f.comments[id])
	}
	return result, nil
}

func (f *fakeCommentRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.comments[id]; !ok {
		return apperror.NotFound("comment", id)
	}
	delete(f.comments, id)
	return nil
}

type voteKey struct {
	userID   string
	target   model.VoteTarget
	targetID string
}

type fakeVoteRepo struct {
	votes map[voteKey]int
}

func (f *fakeVoteRepo) Get(_ context.Context, userID string, target model.VoteTarget, targetID string) (*model.Vote, error) {
	value, ok := f.votes[voteKey{userID, target, targetID}]
	if !ok {
		return nil, apperror.NotFound("vote", targetID)
	}
	return &model.Vote{UserID: userID, TargetType: target, TargetID: targetID, Value: value}, nil
}

func (f *fakeVoteRepo) Set(_ context.Context, vote *model.Vote) error {
	f.votes[voteKey{vote.UserID, vote.TargetType, vote.TargetID}] = vote.Value
	return nil
}

func (f *fakeVoteRepo) Delete(_ context.Context, userID string, target model.VoteTarget, targetID string) error {
	delete(f.votes, voteKey{userID, target, targetID})
	return nil
}

func (f *fakeVoteRepo) Score(_ context.Context, target model.VoteTarget, targetID string) (int, error) {
	sum := 0
	for key, value := range f.votes {
		if key.target == target && key.targetID == targetID {
			sum += value
		}
	}
	return sum, nil
}

// =========================================================================
// TEST HELPER
// =========================================================================

func newDiscussionTestService(t *testing.T) (*DiscussionService, *fakeVoteRepo) {
	t.Helper()
	votes := &fakeVoteRepo{votes: make(map[voteKey]int)}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc := NewDiscussionService(
		&fakeDiscussionRepo{discussions: make(map[string]*model.Discussion)},
		&fakeCommentRepo{comments: make(map[string]*model.Comment)},
		votes,
		logger,
	)
	return svc, votes
}

// =========================================================================
// DISCUSSION TESTS
// =========================================================================

func TestDiscussionCreate_Success(t *testing.T) {
	svc, _ := newDiscussionTestService(t)

	d, err := svc.Create(context.Background(), "user-a", "  Generics in Go  ", "When should I reach for them?")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.ID == "" {
		t.Error("expected discussion to have an ID")
	}
	if d.Title != "Generics in Go" {
		t.Errorf("Title = %q, want trimmed %q", d.Title, "Generics in Go")
	}
	if d.UserID != "user-a" {
		t.Errorf("UserID = %q, want user-a", d.UserID)
	}
}

func TestDiscussionCreate_Validation(t *testing.T) {
	svc, _ := newDiscussionTestService(t)

	tests := []struct {
		name  string
		title string
		body  string
	}{
		{"empty title", "", "body"},
		{"whitespace title", "   ", "body"},
		{"title too long", strings.Repeat("a", MaxTitleLength+1), "body"},
		{"empty body", "title", ""},
		{"body too long", "title", strings.Repeat("a", MaxBodyLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), "user-a", tt.title, tt.body)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDiscussionUpdate_AuthorOnly(t *testing.T) {
	svc, _ := newDiscussionTestService(t)
	created, err := svc.Create(context.Background(), "user-a", "mine", "original body")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := svc.Update(context.Background(), created.ID, "user-b", "hijacked", "evil"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-author update: error = %v, want ErrForbidden", err)
	}

	updated, err := svc.Update(context.Background(), created.ID, "user-a", "edited", "new body")
	if err != nil {
		t.Fatalf("author update: %v", err)
	}
	if updated.Title != "edited" {
		t.Errorf("Title = %q, want edited", updated.Title)
	}
}

func TestDiscussionDelete_AuthorOnly(t *testing.T) {
	svc, _ := newDiscussionTestService(t)
	created, err := svc.Create(context.Background(), "user-a", "mine", "body")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := svc.Delete(context.Background(), created.ID, "user-b"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-author delete: error = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(context.Background(), created.ID, "user-a"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if _, err := svc.GetByID(context.Background(), created.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after delete: error = %v, want ErrNotFound", err)
	}
}

func TestDiscussionList_ClampsBadValues(t *testing.T) {
	svc, _ := newDiscussionTestService(t)

	if _, err := svc.List(context.Background(), -5, -10); err != nil {
		t.Fatalf("List() should clamp negative values, got %v", err)
	}
}

// =========================================================================
// COMMENT TESTS
// =========================================================================

func TestAddComment(t *testing.T) {
	svc, _ := newDiscussionTestService(t)
	d, err := svc.Create(context.Background(), "user-a", "thread", "body")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	comment, err := svc.AddComment(context.Background(), d.ID, "user-b", "good question")
	if err != nil {
		t.Fatalf("AddComment() error = %v", err)
	}
	if comment.DiscussionID != d.ID {
		t.Errorf("DiscussionID = %q, want %q", comment.DiscussionID, d.ID)
	}

	comments, err := svc.ListComments(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 1 {
		t.Errorf("%d comments, want 1", len(comments))
	}
}

func TestAddComment_MissingDiscussion(t *testing.T) {
	svc, _ := newDiscussionTestService(t)

	_, err := svc.AddComment(context.Background(), "nonexistent", "user-b", "into the void")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDeleteComment_AuthorOnly(t *testing.T) {
	svc, _ := newDiscussionTestService(t)
	d, _ := svc.Create(context.Background(), "user-a", "thread", "body")
	comment, err := svc.AddComment(context.Background(), d.ID, "user-b", "my reply")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := svc.DeleteComment(context.Background(), comment.ID, "user-a"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-author delete: error = %v, want ErrForbidden", err)
	}
	if err := svc.DeleteComment(context.Background(), comment.ID, "user-b"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
}

// =========================================================================
// VOTE TESTS
// =========================================================================

func TestCastVote(t *testing.T) {
	svc, votes := newDiscussionTestService(t)
	d, _ := svc.Create(context.Background(), "user-a", "thread", "body")

	if err := svc.CastVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID, 1); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	if err := svc.CastVote(context.Background(), "user-c", model.VoteTargetDiscussion, d.ID, -1); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	score, err := votes.Score(context.Background(), model.VoteTargetDiscussion, d.ID)
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score != 0 {
		t.Errorf("score = %d, want 0", score)
	}

	// Re-voting with a different value replaces, it never stacks.
	if err := svc.CastVote(context.Background(), "user-c", model.VoteTargetDiscussion, d.ID, 1); err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}
	score, _ = votes.Score(context.Background(), model.VoteTargetDiscussion, d.ID)
	if score != 2 {
		t.Errorf("score after re-vote = %d, want 2", score)
	}
}

// TestCastVote_SameValueToggles: casting the identical value a second time
// withdraws the vote instead of leaving it in place.
func TestCastVote_SameValueToggles(t *testing.T) {
	svc, votes := newDiscussionTestService(t)
	d, _ := svc.Create(context.Background(), "user-a", "thread", "body")

	if err := svc.CastVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID, 1); err != nil {
		t.Fatalf("first cast: %v", err)
	}
	if err := svc.CastVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID, 1); err != nil {
		t.Fatalf("second cast: %v", err)
	}

	if _, err := votes.Get(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("after toggle: Get() error = %v, want ErrNotFound", err)
	}
	score, _ := votes.Score(context.Background(), model.VoteTargetDiscussion, d.ID)
	if score != 0 {
		t.Errorf("score after toggle = %d, want 0", score)
	}

	// A third cast re-establishes the vote.
	if err := svc.CastVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID, 1); err != nil {
		t.Fatalf("third cast: %v", err)
	}
	score, _ = votes.Score(context.Background(), model.VoteTargetDiscussion, d.ID)
	if score != 1 {
		t.Errorf("score after re-cast = %d, want 1", score)
	}
}

func TestCastVote_Validation(t *testing.T) {
	svc, _ := newDiscussionTestService(t)
	d, _ := svc.Create(context.Background(), "user-a", "thread", "body")

	if err := svc.CastVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID, 0); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("zero value: error = %v, want ErrValidation", err)
	}
	if err := svc.CastVote(context.Background(), "user-b", model.VoteTarget("reply"), d.ID, 1); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("bad target: error = %v, want ErrValidation", err)
	}
	if err := svc.CastVote(context.Background(), "user-b", model.VoteTargetDiscussion, "nonexistent", 1); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing target: error = %v, want ErrNotFound", err)
	}
}

func TestRemoveVote_Idempotent(t *testing.T) {
	svc, votes := newDiscussionTestService(t)
	d, _ := svc.Create(context.Background(), "user-a", "thread", "body")

	if err := svc.CastVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID, 1); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := svc.RemoveVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID); err != nil {
		t.Fatalf("RemoveVote() error = %v", err)
	}
	// Removing again is fine.
	if err := svc.RemoveVote(context.Background(), "user-b", model.VoteTargetDiscussion, d.ID); err != nil {
		t.Errorf("second RemoveVote() error = %v, want nil", err)
	}

	score, _ := votes.Score(context.Background(), model.VoteTargetDiscussion, d.ID)
	if score != 0 {
		t.Errorf("score = %d, want 0", score)
	}
}
