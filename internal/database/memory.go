package database

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mAmineChniti/Forklore/internal/data"
)

// Memory is an in-process Service. Transactions are serialized and run against a
// copy of the state that replaces the live state only when the callback succeeds.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

type voteKey struct {
	readerID string
	branchID string
}

type memState struct {
	users         map[string]data.User
	novels        map[string]data.Novel
	branches      map[string]data.Branch
	votes         map[voteKey]data.BranchVote
	linkRequests  map[string]data.BranchLinkRequest
	chapters      map[string]data.Chapter
	purchases     map[string]data.Purchase
	subscriptions map[string]data.Subscription
}

var _ Service = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{state: &memState{
		users:         make(map[string]data.User),
		novels:        make(map[string]data.Novel),
		branches:      make(map[string]data.Branch),
		votes:         make(map[voteKey]data.BranchVote),
		linkRequests:  make(map[string]data.BranchLinkRequest),
		chapters:      make(map[string]data.Chapter),
		purchases:     make(map[string]data.Purchase),
		subscriptions: make(map[string]data.Subscription),
	}}
}

func (s *memState) clone() *memState {
	return &memState{
		users:         maps.Clone(s.users),
		novels:        maps.Clone(s.novels),
		branches:      maps.Clone(s.branches),
		votes:         maps.Clone(s.votes),
		linkRequests:  maps.Clone(s.linkRequests),
		chapters:      maps.Clone(s.chapters),
		purchases:     maps.Clone(s.purchases),
		subscriptions: maps.Clone(s.subscriptions),
	}
}

func (m *Memory) WithTx(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) View(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, &memTx{st: m.state, readOnly: true})
}

func (m *Memory) Health(ctx context.Context) (map[string]string, error) {
	return map[string]string{"message": "It's healthy", "driver": "memory"}, nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }

type memTx struct {
	st       *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *memTx) Users() UserStore                 { return memUsers{t} }
func (t *memTx) Novels() NovelStore               { return memNovels{t} }
func (t *memTx) Branches() BranchStore            { return memBranches{t} }
func (t *memTx) Votes() VoteStore                 { return memVotes{t} }
func (t *memTx) LinkRequests() LinkRequestStore   { return memLinkRequests{t} }
func (t *memTx) Chapters() ChapterStore           { return memChapters{t} }
func (t *memTx) Purchases() PurchaseStore         { return memPurchases{t} }
func (t *memTx) Subscriptions() SubscriptionStore { return memSubscriptions{t} }

func addFloor(v, delta int64) int64 {
	v += delta
	if v < 0 {
		return 0
	}
	return v
}

func paginate[T any](items []T, p data.Pagination) []T {
	if p.Limit == 0 {
		return items
	}
	skip := p.Skip()
	if skip >= len(items) {
		return []T{}
	}
	return items[skip:min(skip+p.Limit, len(items))]
}

type memUsers struct{ t *memTx }

func (s memUsers) Get(ctx context.Context, id string) (*data.User, error) {
	u, ok := s.t.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s memUsers) Upsert(ctx context.Context, u *data.User) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	if existing, ok := s.t.st.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	}
	s.t.st.users[u.ID] = *u
	return nil
}

type memNovels struct{ t *memTx }

func (s memNovels) live(id string) (data.Novel, bool) {
	n, ok := s.t.st.novels[id]
	return n, ok && n.DeletedAt == nil
}

func (s memNovels) Insert(ctx context.Context, n *data.Novel) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	if _, ok := s.t.st.novels[n.ID]; ok {
		return ErrDuplicate
	}
	s.t.st.novels[n.ID] = *n
	return nil
}

func (s memNovels) Get(ctx context.Context, id string) (*data.Novel, error) {
	n, ok := s.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (s memNovels) List(ctx context.Context, q data.NovelQuery) ([]data.Novel, error) {
	out := []data.Novel{}
	for _, n := range s.t.st.novels {
		if n.DeletedAt != nil || (q.Genre != "" && n.Genre != q.Genre) || (q.Status != "" && n.Status != q.Status) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, q.Pagination), nil
}

func (s memNovels) Update(ctx context.Context, n *data.Novel) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	cur, ok := s.live(n.ID)
	if !ok {
		return ErrNotFound
	}
	cur.Title = n.Title
	cur.Description = n.Description
	cur.CoverImageURL = n.CoverImageURL
	cur.Genre = n.Genre
	cur.AgeRating = n.AgeRating
	cur.Status = n.Status
	cur.AllowBranching = n.AllowBranching
	cur.UpdatedAt = n.UpdatedAt
	s.t.st.novels[n.ID] = cur
	return nil
}

func (s memNovels) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	n, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}
	n.DeletedAt = &at
	n.UpdatedAt = at
	s.t.st.novels[id] = n
	return nil
}

func (s memNovels) IncCounter(ctx context.Context, id string, field data.NovelCounter, delta int64) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	n, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}
	switch field {
	case data.NovelBranchCount:
		n.BranchCount = int(addFloor(int64(n.BranchCount), delta))
	case data.NovelTotalChapterCount:
		n.TotalChapterCount = int(addFloor(int64(n.TotalChapterCount), delta))
	case data.NovelTotalViewCount:
		n.TotalViewCount = addFloor(n.TotalViewCount, delta)
	}
	s.t.st.novels[id] = n
	return nil
}

type memBranches struct{ t *memTx }

func (s memBranches) live(id string) (data.Branch, bool) {
	b, ok := s.t.st.branches[id]
	return b, ok && b.DeletedAt == nil
}

func (s memBranches) Insert(ctx context.Context, b *data.Branch) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	if _, ok := s.t.st.branches[b.ID]; ok {
		return ErrDuplicate
	}
	if b.IsMain {
		if _, err := s.GetMain(ctx, b.NovelID); err == nil {
			return ErrDuplicate
		}
	}
	s.t.st.branches[b.ID] = *b
	return nil
}

func (s memBranches) Get(ctx context.Context, id string) (*data.Branch, error) {
	b, ok := s.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (s memBranches) GetMain(ctx context.Context, novelID string) (*data.Branch, error) {
	for _, b := range s.t.st.branches {
		if b.IsMain && b.NovelID == novelID && b.DeletedAt == nil {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (s memBranches) List(ctx context.Context, novelID string, q data.BranchQuery) ([]data.Branch, error) {
	out := []data.Branch{}
	for _, b := range s.t.st.branches {
		if b.NovelID != novelID || b.DeletedAt != nil {
			continue
		}
		if len(q.Visibilities) > 0 && !slices.Contains(q.Visibilities, b.Visibility) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch q.Sort {
		case data.SortVotes:
			if a.VoteCount != b.VoteCount {
				return a.VoteCount > b.VoteCount
			}
		case data.SortViews:
			if a.ViewCount != b.ViewCount {
				return a.ViewCount > b.ViewCount
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return paginate(out, q.Pagination), nil
}

func (s memBranches) Update(ctx context.Context, b *data.Branch) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	cur, ok := s.live(b.ID)
	if !ok {
		return ErrNotFound
	}
	cur.Name = b.Name
	cur.Description = b.Description
	cur.CoverImageURL = b.CoverImageURL
	cur.BranchType = b.BranchType
	cur.Visibility = b.Visibility
	cur.CanonStatus = b.CanonStatus
	cur.MergedAtChapter = b.MergedAtChapter
	cur.UpdatedAt = b.UpdatedAt
	s.t.st.branches[b.ID] = cur
	return nil
}

func (s memBranches) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	b, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}
	b.DeletedAt = &at
	b.UpdatedAt = at
	s.t.st.branches[id] = b
	return nil
}

func (s memBranches) IncCounter(ctx context.Context, id string, field data.BranchCounter, delta int64) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	b, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}
	switch field {
	case data.BranchVoteCount:
		b.VoteCount = int(addFloor(int64(b.VoteCount), delta))
	case data.BranchViewCount:
		b.ViewCount = addFloor(b.ViewCount, delta)
	case data.BranchChapterCount:
		b.ChapterCount = int(addFloor(int64(b.ChapterCount), delta))
	}
	s.t.st.branches[id] = b
	return nil
}

func (s memBranches) NextChapterNumber(ctx context.Context, id string) (int, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	b, ok := s.live(id)
	if !ok {
		return 0, ErrNotFound
	}
	b.LastChapterNumber++
	s.t.st.branches[id] = b
	return b.LastChapterNumber, nil
}

type memVotes struct{ t *memTx }

func (s memVotes) Insert(ctx context.Context, v *data.BranchVote) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	key := voteKey{v.ReaderID, v.BranchID}
	if _, ok := s.t.st.votes[key]; ok {
		return ErrDuplicate
	}
	s.t.st.votes[key] = *v
	return nil
}

func (s memVotes) Delete(ctx context.Context, readerID, branchID string) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	key := voteKey{readerID, branchID}
	if _, ok := s.t.st.votes[key]; !ok {
		return ErrNotFound
	}
	delete(s.t.st.votes, key)
	return nil
}

func (s memVotes) Exists(ctx context.Context, readerID, branchID string) (bool, error) {
	_, ok := s.t.st.votes[voteKey{readerID, branchID}]
	return ok, nil
}

type memLinkRequests struct{ t *memTx }

func (s memLinkRequests) Insert(ctx context.Context, r *data.BranchLinkRequest) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	if _, ok := s.t.st.linkRequests[r.ID]; ok {
		return ErrDuplicate
	}
	if r.Status == data.LinkRequestPending {
		if _, err := s.FindPending(ctx, r.BranchID); err == nil {
			return ErrDuplicate
		}
	}
	s.t.st.linkRequests[r.ID] = *r
	return nil
}

func (s memLinkRequests) Get(ctx context.Context, id string) (*data.BranchLinkRequest, error) {
	r, ok := s.t.st.linkRequests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s memLinkRequests) FindPending(ctx context.Context, branchID string) (*data.BranchLinkRequest, error) {
	for _, r := range s.t.st.linkRequests {
		if r.BranchID == branchID && r.Status == data.LinkRequestPending {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (s memLinkRequests) List(ctx context.Context, novelID string, status data.LinkRequestStatus) ([]data.BranchLinkRequest, error) {
	out := []data.BranchLinkRequest{}
	for _, r := range s.t.st.linkRequests {
		if r.NovelID != novelID || (status != "" && r.Status != status) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s memLinkRequests) Review(ctx context.Context, id string, review data.LinkReview) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	r, ok := s.t.st.linkRequests[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != data.LinkRequestPending {
		return ErrConflict
	}
	reviewer, at := review.ReviewerID, review.ReviewedAt
	r.Status = review.Status
	r.ReviewerID = &reviewer
	r.ReviewComment = review.Comment
	r.ReviewedAt = &at
	s.t.st.linkRequests[id] = r
	return nil
}

type memChapters struct{ t *memTx }

func (s memChapters) live(id string) (data.Chapter, bool) {
	c, ok := s.t.st.chapters[id]
	return c, ok && c.DeletedAt == nil
}

func (s memChapters) Insert(ctx context.Context, c *data.Chapter) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	if _, ok := s.t.st.chapters[c.ID]; ok {
		return ErrDuplicate
	}
	// Tombstoned chapters keep their number.
	for _, other := range s.t.st.chapters {
		if other.BranchID == c.BranchID && other.ChapterNumber == c.ChapterNumber {
			return ErrDuplicate
		}
	}
	s.t.st.chapters[c.ID] = *c
	return nil
}

func (s memChapters) Get(ctx context.Context, id string) (*data.Chapter, error) {
	c, ok := s.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s memChapters) List(ctx context.Context, branchID string, publishedOnly bool) ([]data.Chapter, error) {
	out := []data.Chapter{}
	for _, c := range s.t.st.chapters {
		if c.BranchID != branchID || c.DeletedAt != nil {
			continue
		}
		if publishedOnly && c.Status != data.ChapterPublished {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	return out, nil
}

func (s memChapters) Update(ctx context.Context, c *data.Chapter) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	cur, ok := s.live(c.ID)
	if !ok {
		return ErrNotFound
	}
	cur.Title = c.Title
	cur.Content = c.Content
	cur.ContentHTML = c.ContentHTML
	cur.WordCount = c.WordCount
	cur.AccessType = c.AccessType
	cur.Price = c.Price
	cur.AuthorComment = c.AuthorComment
	cur.UpdatedAt = c.UpdatedAt
	s.t.st.chapters[c.ID] = cur
	return nil
}

func (s memChapters) SoftDelete(ctx context.Context, id string, at time.Time) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	c, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}
	c.DeletedAt = &at
	c.UpdatedAt = at
	s.t.st.chapters[id] = c
	return nil
}

func (s memChapters) unpublished(id string) (data.Chapter, error) {
	if err := s.t.writable(); err != nil {
		return data.Chapter{}, err
	}
	c, ok := s.live(id)
	if !ok {
		return data.Chapter{}, ErrNotFound
	}
	if c.Status == data.ChapterPublished {
		return data.Chapter{}, ErrConflict
	}
	return c, nil
}

func (s memChapters) Schedule(ctx context.Context, id string, at, now time.Time) error {
	c, err := s.unpublished(id)
	if err != nil {
		return err
	}
	c.Status = data.ChapterScheduled
	c.ScheduledAt = &at
	c.UpdatedAt = now
	s.t.st.chapters[id] = c
	return nil
}

func (s memChapters) Publish(ctx context.Context, id string, now time.Time) error {
	c, err := s.unpublished(id)
	if err != nil {
		return err
	}
	c.Status = data.ChapterPublished
	c.PublishedAt = &now
	c.ScheduledAt = nil
	c.UpdatedAt = now
	s.t.st.chapters[id] = c
	return nil
}

func (s memChapters) PublishDue(ctx context.Context, id string, now time.Time) error {
	c, err := s.unpublished(id)
	if err != nil {
		return err
	}
	if c.Status != data.ChapterScheduled || c.ScheduledAt == nil || c.ScheduledAt.After(now) {
		return ErrConflict
	}
	c.Status = data.ChapterPublished
	c.PublishedAt = &now
	c.ScheduledAt = nil
	c.UpdatedAt = now
	s.t.st.chapters[id] = c
	return nil
}

func (s memChapters) DueScheduled(ctx context.Context, now time.Time) ([]data.Chapter, error) {
	out := []data.Chapter{}
	for _, c := range s.t.st.chapters {
		if c.DeletedAt != nil || c.Status != data.ChapterScheduled || c.ScheduledAt == nil {
			continue
		}
		if !c.ScheduledAt.After(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	return out, nil
}

func (s memChapters) IncCounter(ctx context.Context, id string, field data.ChapterCounter, delta int64) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	c, ok := s.live(id)
	if !ok {
		return ErrNotFound
	}
	switch field {
	case data.ChapterViewCount:
		c.ViewCount = addFloor(c.ViewCount, delta)
	case data.ChapterLikeCount:
		c.LikeCount = int(addFloor(int64(c.LikeCount), delta))
	case data.ChapterCommentCount:
		c.CommentCount = int(addFloor(int64(c.CommentCount), delta))
	}
	s.t.st.chapters[id] = c
	return nil
}

type memPurchases struct{ t *memTx }

func (s memPurchases) Insert(ctx context.Context, p *data.Purchase) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	if _, ok := s.t.st.purchases[p.ID]; ok {
		return ErrDuplicate
	}
	if exists, _ := s.Exists(ctx, p.ReaderID, p.ChapterID); exists {
		return ErrDuplicate
	}
	s.t.st.purchases[p.ID] = *p
	return nil
}

func (s memPurchases) Exists(ctx context.Context, readerID, chapterID string) (bool, error) {
	for _, p := range s.t.st.purchases {
		if p.ReaderID == readerID && p.ChapterID == chapterID {
			return true, nil
		}
	}
	return false, nil
}

func (s memPurchases) List(ctx context.Context, readerID string) ([]data.Purchase, error) {
	out := []data.Purchase{}
	for _, p := range s.t.st.purchases {
		if p.ReaderID == readerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAt.After(out[j].PurchasedAt) })
	return out, nil
}

type memSubscriptions struct{ t *memTx }

func (s memSubscriptions) Insert(ctx context.Context, sub *data.Subscription) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	if _, ok := s.t.st.subscriptions[sub.ID]; ok {
		return ErrDuplicate
	}
	if sub.Status == data.SubscriptionActive {
		if _, err := s.Current(ctx, sub.ReaderID); err == nil {
			return ErrDuplicate
		}
	}
	s.t.st.subscriptions[sub.ID] = *sub
	return nil
}

func (s memSubscriptions) Current(ctx context.Context, readerID string) (*data.Subscription, error) {
	for _, sub := range s.t.st.subscriptions {
		if sub.ReaderID == readerID && sub.Status == data.SubscriptionActive {
			return &sub, nil
		}
	}
	return nil, ErrNotFound
}

func (s memSubscriptions) List(ctx context.Context, readerID string) ([]data.Subscription, error) {
	out := []data.Subscription{}
	for _, sub := range s.t.st.subscriptions {
		if sub.ReaderID == readerID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s memSubscriptions) Update(ctx context.Context, sub *data.Subscription) error {
	if err := s.t.writable(); err != nil {
		return err
	}
	cur, ok := s.t.st.subscriptions[sub.ID]
	if !ok {
		return ErrNotFound
	}
	next := *sub
	next.CreatedAt = cur.CreatedAt
	s.t.st.subscriptions[sub.ID] = next
	return nil
}

func (s memSubscriptions) ExpireBefore(ctx context.Context, day, now time.Time) (int, error) {
	if err := s.t.writable(); err != nil {
		return 0, err
	}
	n := 0
	for id, sub := range s.t.st.subscriptions {
		if sub.Status == data.SubscriptionActive && sub.EndDate.Before(day) {
			sub.Status = data.SubscriptionExpired
			sub.UpdatedAt = now
			s.t.st.subscriptions[id] = sub
			n++
		}
	}
	return n, nil
}

func (s memSubscriptions) DueRenewal(ctx context.Context, day time.Time) ([]data.Subscription, error) {
	out := []data.Subscription{}
	for _, sub := range s.t.st.subscriptions {
		if sub.Status == data.SubscriptionActive && sub.AutoRenew && sub.EndDate.Equal(day) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
