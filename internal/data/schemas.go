package data

import "time"

type NovelCreateRequest struct {
	Title          string    `json:"title" validate:"required,min=1,max=200"`
	Description    string    `json:"description" validate:"max=5000"`
	CoverImageURL  string    `json:"cover_image_url" validate:"omitempty,url"`
	Genre          string    `json:"genre" validate:"required,min=1,max=50"`
	AgeRating      AgeRating `json:"age_rating" validate:"omitempty,oneof=ALL R12 R15 R19"`
	AllowBranching *bool     `json:"allow_branching"`
}

type NovelUpdateRequest struct {
	Title          *string      `json:"title" validate:"omitempty,min=1,max=200"`
	Description    *string      `json:"description" validate:"omitempty,max=5000"`
	CoverImageURL  *string      `json:"cover_image_url" validate:"omitempty,url"`
	Genre          *string      `json:"genre" validate:"omitempty,min=1,max=50"`
	AgeRating      *AgeRating   `json:"age_rating" validate:"omitempty,oneof=ALL R12 R15 R19"`
	Status         *NovelStatus `json:"status" validate:"omitempty,oneof=ONGOING COMPLETED HIATUS"`
	AllowBranching *bool        `json:"allow_branching"`
}

// ForkRequest describes a new branch. ParentBranchID defaults to the novel's main branch.
type ForkRequest struct {
	ParentBranchID   *string    `json:"parent_branch_id" validate:"omitempty,min=1"`
	ForkPointChapter *int       `json:"fork_point_chapter" validate:"omitempty,min=1"`
	Name             string     `json:"name" validate:"required,min=1,max=100"`
	Description      string     `json:"description" validate:"max=2000"`
	CoverImageURL    string     `json:"cover_image_url" validate:"omitempty,url"`
	BranchType       BranchType `json:"branch_type" validate:"omitempty,oneof=SIDE_STORY FAN_FIC IF_STORY"`
	Visibility       Visibility `json:"visibility" validate:"omitempty,oneof=PRIVATE PUBLIC LINKED"`
}

type BranchUpdateRequest struct {
	Name          *string     `json:"name" validate:"omitempty,min=1,max=100"`
	Description   *string     `json:"description" validate:"omitempty,max=2000"`
	CoverImageURL *string     `json:"cover_image_url" validate:"omitempty,url"`
	BranchType    *BranchType `json:"branch_type" validate:"omitempty,oneof=SIDE_STORY FAN_FIC IF_STORY"`
}

type VisibilityRequest struct {
	Visibility Visibility `json:"visibility" validate:"required"`
}

type MergeRequest struct {
	AtChapter int `json:"at_chapter"`
}

type LinkRequestCreateRequest struct {
	Message string `json:"message" validate:"max=1000"`
}

type LinkReviewRequest struct {
	Comment string `json:"comment" validate:"max=1000"`
}

type ChapterCreateRequest struct {
	Title         string     `json:"title" validate:"required,min=1,max=200"`
	Content       string     `json:"content" validate:"required"`
	AccessType    AccessType `json:"access_type" validate:"omitempty,oneof=FREE SUBSCRIPTION"`
	Price         int        `json:"price" validate:"min=0"`
	AuthorComment string     `json:"author_comment" validate:"max=1000"`
}

type ChapterUpdateRequest struct {
	Title         *string     `json:"title" validate:"omitempty,min=1,max=200"`
	Content       *string     `json:"content" validate:"omitempty,min=1"`
	AccessType    *AccessType `json:"access_type" validate:"omitempty,oneof=FREE SUBSCRIPTION"`
	Price         *int        `json:"price" validate:"omitempty,min=0"`
	AuthorComment *string     `json:"author_comment" validate:"omitempty,max=1000"`
}

type ScheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

type UserProfile struct {
	Nickname  string     `json:"nickname" validate:"required,min=1,max=50"`
	Email     string     `json:"email" validate:"omitempty,email"`
	BirthDate *time.Time `json:"birth_date"`
}

type SubscribeRequest struct {
	PlanType  PlanType `json:"plan_type" validate:"required,oneof=BASIC PREMIUM"`
	AutoRenew bool     `json:"auto_renew"`
}

type ChangePlanRequest struct {
	PlanType PlanType `json:"plan_type" validate:"required,oneof=BASIC PREMIUM"`
}

type Pagination struct {
	Page  int `query:"page" validate:"omitempty,min=1"`
	Limit int `query:"limit" validate:"omitempty,min=1,max=100"`
}

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 100
)

// Normalize fills zero values with the defaults.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = defaultPage
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Skip is the number of records before the page. A zero Limit means no paging.
func (p Pagination) Skip() int {
	if p.Limit == 0 || p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

type BranchSort string

const (
	SortLatest BranchSort = "latest"
	SortVotes  BranchSort = "votes"
	SortViews  BranchSort = "views"
)

type BranchQuery struct {
	Visibilities []Visibility
	Sort         BranchSort
	Pagination
}

// NovelQuery filters the novel listing. Empty fields match everything.
type NovelQuery struct {
	Genre  string
	Status NovelStatus
	Pagination
}

type Novels struct {
	Novels []Novel `json:"novels"`
}

type Branches struct {
	Branches []Branch `json:"branches"`
	Page     int      `json:"page,omitempty"`
	Limit    int      `json:"limit,omitempty"`
}

type Chapters struct {
	Chapters []Chapter `json:"chapters"`
}

type LinkRequests struct {
	LinkRequests []BranchLinkRequest `json:"link_requests"`
}
