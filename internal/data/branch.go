package data

import "time"

type BranchType string

const (
	BranchMain      BranchType = "MAIN"
	BranchSideStory BranchType = "SIDE_STORY"
	BranchFanFic    BranchType = "FAN_FIC"
	BranchIfStory   BranchType = "IF_STORY"
)

const DefaultVoteThreshold = 1000

type BranchCounter string

const (
	BranchVoteCount    BranchCounter = "vote_count"
	BranchViewCount    BranchCounter = "view_count"
	BranchChapterCount BranchCounter = "chapter_count"
)

type Branch struct {
	ID                string      `json:"id" bson:"_id"`
	NovelID           string      `json:"novel_id" bson:"novel_id"`
	AuthorID          string      `json:"author_id" bson:"author_id"`
	IsMain            bool        `json:"is_main" bson:"is_main"`
	ParentBranchID    *string     `json:"parent_branch_id,omitempty" bson:"parent_branch_id,omitempty"`
	ForkPointChapter  *int        `json:"fork_point_chapter,omitempty" bson:"fork_point_chapter,omitempty"`
	Name              string      `json:"name" bson:"name"`
	Description       string      `json:"description" bson:"description"`
	CoverImageURL     string      `json:"cover_image_url,omitempty" bson:"cover_image_url,omitempty"`
	BranchType        BranchType  `json:"branch_type" bson:"branch_type"`
	Visibility        Visibility  `json:"visibility" bson:"visibility"`
	CanonStatus       CanonStatus `json:"canon_status" bson:"canon_status"`
	MergedAtChapter   *int        `json:"merged_at_chapter,omitempty" bson:"merged_at_chapter,omitempty"`
	VoteCount         int         `json:"vote_count" bson:"vote_count"`
	VoteThreshold     int         `json:"vote_threshold" bson:"vote_threshold"`
	ViewCount         int64       `json:"view_count" bson:"view_count"`
	ChapterCount      int         `json:"chapter_count" bson:"chapter_count"`
	LastChapterNumber int         `json:"last_chapter_number" bson:"last_chapter_number"`
	CreatedAt         time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" bson:"updated_at"`
	DeletedAt         *time.Time  `json:"-" bson:"deleted_at,omitempty"`
}

// NewMainBranch builds the main storyline for a freshly created novel.
func NewMainBranch(id string, novel *Novel, now time.Time) *Branch {
	return &Branch{
		ID:            id,
		NovelID:       novel.ID,
		AuthorID:      novel.AuthorID,
		IsMain:        true,
		Name:          novel.Title,
		Description:   novel.Description,
		CoverImageURL: novel.CoverImageURL,
		BranchType:    BranchMain,
		Visibility:    VisibilityPublic,
		CanonStatus:   CanonNonCanon,
		VoteThreshold: DefaultVoteThreshold,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// HiddenFrom reports whether viewerID must not see the branch at all. A PRIVATE
// branch exists only for its author.
func (b *Branch) HiddenFrom(viewerID string) bool {
	return b.Visibility == VisibilityPrivate && b.AuthorID != viewerID
}

// BranchVote records one reader's vote. The pair is unique.
type BranchVote struct {
	ReaderID  string    `json:"reader_id" bson:"reader_id"`
	BranchID  string    `json:"branch_id" bson:"branch_id"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

type BranchLinkRequest struct {
	ID             string            `json:"id" bson:"_id"`
	BranchID       string            `json:"branch_id" bson:"branch_id"`
	NovelID        string            `json:"novel_id" bson:"novel_id"`
	RequesterID    string            `json:"requester_id" bson:"requester_id"`
	Status         LinkRequestStatus `json:"status" bson:"status"`
	RequestMessage string            `json:"request_message" bson:"request_message"`
	ReviewerID     *string           `json:"reviewer_id,omitempty" bson:"reviewer_id,omitempty"`
	ReviewComment  string            `json:"review_comment,omitempty" bson:"review_comment,omitempty"`
	ReviewedAt     *time.Time        `json:"reviewed_at,omitempty" bson:"reviewed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at" bson:"created_at"`
}

// LinkReview is the terminal write applied to a pending link request.
type LinkReview struct {
	Status     LinkRequestStatus
	ReviewerID string
	Comment    string
	ReviewedAt time.Time
}
