package data

import "time"

type Purchase struct {
	ID          string    `json:"id" bson:"_id"`
	ReaderID    string    `json:"reader_id" bson:"reader_id"`
	ChapterID   string    `json:"chapter_id" bson:"chapter_id"`
	Price       int       `json:"price" bson:"price"`
	PurchasedAt time.Time `json:"purchased_at" bson:"purchased_at"`
}

type PlanType string

const (
	PlanBasic   PlanType = "BASIC"
	PlanPremium PlanType = "PREMIUM"
)

const subscriptionPeriod = 30 * 24 * time.Hour

// Period is the length of one billing cycle for the plan.
func (p PlanType) Period() time.Duration {
	return subscriptionPeriod
}

type Subscription struct {
	ID          string             `json:"id" bson:"_id"`
	ReaderID    string             `json:"reader_id" bson:"reader_id"`
	PlanType    PlanType           `json:"plan_type" bson:"plan_type"`
	StartDate   time.Time          `json:"start_date" bson:"start_date"`
	EndDate     time.Time          `json:"end_date" bson:"end_date"`
	Status      SubscriptionStatus `json:"status" bson:"status"`
	AutoRenew   bool               `json:"auto_renew" bson:"auto_renew"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

// ActiveOn reports whether the subscription grants access on the given day.
// endDate is inclusive.
func (s *Subscription) ActiveOn(day time.Time) bool {
	return s.Status == SubscriptionActive && !s.EndDate.Before(day)
}
