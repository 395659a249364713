package data

// transitions lists the legal target states for each source state.
type transitions[S comparable] map[S][]S

func (t transitions[S]) allows(from, to S) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityLinked  Visibility = "LINKED"
)

// LINKED is never a target here. It is reached only through an approved link request.
var ownerVisibility = transitions[Visibility]{
	VisibilityPrivate: {VisibilityPrivate, VisibilityPublic},
	VisibilityPublic:  {VisibilityPublic, VisibilityPrivate},
	VisibilityLinked:  {VisibilityPublic, VisibilityPrivate},
}

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityPublic, VisibilityLinked:
		return true
	}
	return false
}

// OwnerCanSet reports whether a branch owner may move from v to next directly.
func (v Visibility) OwnerCanSet(next Visibility) bool {
	return ownerVisibility.allows(v, next)
}

// Listed reports whether the branch shows up in public branch listings.
func (v Visibility) Listed() bool {
	return v == VisibilityPublic || v == VisibilityLinked
}

type CanonStatus string

const (
	CanonNonCanon  CanonStatus = "NON_CANON"
	CanonCandidate CanonStatus = "CANDIDATE"
	CanonMerged    CanonStatus = "MERGED"
)

var canonForward = transitions[CanonStatus]{
	CanonNonCanon:  {CanonCandidate, CanonMerged},
	CanonCandidate: {CanonMerged},
}

func (s CanonStatus) CanAdvanceTo(next CanonStatus) bool {
	return canonForward.allows(s, next)
}

// Rank orders canon statuses: NON_CANON < CANDIDATE < MERGED.
func (s CanonStatus) Rank() int {
	switch s {
	case CanonCandidate:
		return 1
	case CanonMerged:
		return 2
	default:
		return 0
	}
}

type LinkRequestStatus string

const (
	LinkRequestPending  LinkRequestStatus = "PENDING"
	LinkRequestApproved LinkRequestStatus = "APPROVED"
	LinkRequestRejected LinkRequestStatus = "REJECTED"
)

var linkRequestFlow = transitions[LinkRequestStatus]{
	LinkRequestPending: {LinkRequestApproved, LinkRequestRejected},
}

func (s LinkRequestStatus) CanTransitionTo(next LinkRequestStatus) bool {
	return linkRequestFlow.allows(s, next)
}

func (s LinkRequestStatus) Terminal() bool {
	return s == LinkRequestApproved || s == LinkRequestRejected
}

type ChapterStatus string

const (
	ChapterDraft     ChapterStatus = "DRAFT"
	ChapterScheduled ChapterStatus = "SCHEDULED"
	ChapterPublished ChapterStatus = "PUBLISHED"
)

var chapterFlow = transitions[ChapterStatus]{
	ChapterDraft:     {ChapterScheduled, ChapterPublished},
	ChapterScheduled: {ChapterScheduled, ChapterPublished},
}

func (s ChapterStatus) CanTransitionTo(next ChapterStatus) bool {
	return chapterFlow.allows(s, next)
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)
