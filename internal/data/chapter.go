package data

import "time"

type AccessType string

const (
	AccessFree         AccessType = "FREE"
	AccessSubscription AccessType = "SUBSCRIPTION"
)

type ChapterCounter string

const (
	ChapterViewCount    ChapterCounter = "view_count"
	ChapterLikeCount    ChapterCounter = "like_count"
	ChapterCommentCount ChapterCounter = "comment_count"
)

type Chapter struct {
	ID            string        `json:"id" bson:"_id"`
	BranchID      string        `json:"branch_id" bson:"branch_id"`
	ChapterNumber int           `json:"chapter_number" bson:"chapter_number"`
	Title         string        `json:"title" bson:"title"`
	Content       string        `json:"content,omitempty" bson:"content"`
	ContentHTML   string        `json:"content_html,omitempty" bson:"content_html"`
	WordCount     int           `json:"word_count" bson:"word_count"`
	AccessType    AccessType    `json:"access_type" bson:"access_type"`
	Price         int           `json:"price" bson:"price"`
	AuthorComment string        `json:"author_comment,omitempty" bson:"author_comment,omitempty"`
	Status        ChapterStatus `json:"status" bson:"status"`
	ScheduledAt   *time.Time    `json:"scheduled_at,omitempty" bson:"scheduled_at,omitempty"`
	PublishedAt   *time.Time    `json:"published_at,omitempty" bson:"published_at,omitempty"`
	ViewCount     int64         `json:"view_count" bson:"view_count"`
	LikeCount     int           `json:"like_count" bson:"like_count"`
	CommentCount  int           `json:"comment_count" bson:"comment_count"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" bson:"updated_at"`
	DeletedAt     *time.Time    `json:"-" bson:"deleted_at,omitempty"`
}

// IsFree reports whether the chapter is readable without an entitlement. Anything
// but an explicit FREE needs one.
func (c *Chapter) IsFree() bool {
	return c.AccessType == AccessFree
}

// VisibleTo reports whether viewerID may see the chapter on branch b at all. The
// branch author sees everything; everyone else sees published chapters of branches
// not hidden from them.
func (c *Chapter) VisibleTo(b *Branch, viewerID string) bool {
	if b.AuthorID == viewerID {
		return true
	}
	return c.Status == ChapterPublished && !b.HiddenFrom(viewerID)
}

// Preview strips the body for readers who may not open the chapter.
func (c Chapter) Preview() Chapter {
	c.Content = ""
	c.ContentHTML = ""
	return c
}
