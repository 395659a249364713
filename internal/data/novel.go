package data

import "time"

type AgeRating string

const (
	AgeRatingAll AgeRating = "ALL"
	AgeRatingR12 AgeRating = "R12"
	AgeRatingR15 AgeRating = "R15"
	AgeRatingR19 AgeRating = "R19"
)

// MinimumAge returns the age a reader must have reached. ALL and unknown ratings return 0.
func (r AgeRating) MinimumAge() int {
	switch r {
	case AgeRatingR12:
		return 12
	case AgeRatingR15:
		return 15
	case AgeRatingR19:
		return 19
	default:
		return 0
	}
}

type NovelStatus string

const (
	NovelOngoing   NovelStatus = "ONGOING"
	NovelCompleted NovelStatus = "COMPLETED"
	NovelHiatus    NovelStatus = "HIATUS"
)

func (s NovelStatus) Valid() bool {
	switch s {
	case NovelOngoing, NovelCompleted, NovelHiatus:
		return true
	}
	return false
}

type NovelCounter string

const (
	NovelBranchCount       NovelCounter = "branch_count"
	NovelTotalChapterCount NovelCounter = "total_chapter_count"
	NovelTotalViewCount    NovelCounter = "total_view_count"
)

type Novel struct {
	ID                string      `json:"id" bson:"_id"`
	AuthorID          string      `json:"author_id" bson:"author_id"`
	Title             string      `json:"title" bson:"title"`
	Description       string      `json:"description" bson:"description"`
	CoverImageURL     string      `json:"cover_image_url,omitempty" bson:"cover_image_url,omitempty"`
	Genre             string      `json:"genre" bson:"genre"`
	AgeRating         AgeRating   `json:"age_rating" bson:"age_rating"`
	Status            NovelStatus `json:"status" bson:"status"`
	AllowBranching    bool        `json:"allow_branching" bson:"allow_branching"`
	BranchCount       int         `json:"branch_count" bson:"branch_count"`
	TotalChapterCount int         `json:"total_chapter_count" bson:"total_chapter_count"`
	TotalViewCount    int64       `json:"total_view_count" bson:"total_view_count"`
	CreatedAt         time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at" bson:"updated_at"`
	DeletedAt         *time.Time  `json:"-" bson:"deleted_at,omitempty"`
}

type User struct {
	ID        string     `json:"id" bson:"_id"`
	Nickname  string     `json:"nickname" bson:"nickname"`
	Email     string     `json:"email,omitempty" bson:"email,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty" bson:"birth_date,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// AgeOn returns the user's age in whole years on day, and false when the birth date is unknown.
func (u *User) AgeOn(day time.Time) (int, bool) {
	if u.BirthDate == nil {
		return 0, false
	}
	born := u.BirthDate.UTC()
	age := day.Year() - born.Year()
	if day.Month() < born.Month() || (day.Month() == born.Month() && day.Day() < born.Day()) {
		age--
	}
	return age, true
}
