package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mAmineChniti/Forklore/internal/data"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	usersCollection         = "users"
	novelsCollection        = "novels"
	branchesCollection      = "branches"
	votesCollection         = "branch_votes"
	linkRequestsCollection  = "branch_link_requests"
	chaptersCollection      = "chapters"
	purchasesCollection     = "purchases"
	subscriptionsCollection = "subscriptions"
)

// Mongo is the production Service. Transactions need a replica set.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Service = (*Mongo)(nil)

func NewMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo: %w", err)
	}
	return NewMongoFromClient(client, dbName), nil
}

func NewMongoFromClient(client *mongo.Client, dbName string) *Mongo {
	return &Mongo{client: client, db: client.Database(dbName)}
}

func (m *Mongo) WithTx(ctx context.Context, fn TxFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("error starting session: %w", err)
	}
	defer session.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, &mongoTx{db: m.db})
	}, opts)
	return err
}

func (m *Mongo) View(ctx context.Context, fn TxFunc) error {
	return fn(ctx, &mongoTx{db: m.db, readOnly: true})
}

func (m *Mongo) Health(ctx context.Context) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := m.client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("db down: %w", err)
	}
	return map[string]string{"message": "It's healthy", "driver": "mongo"}, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique and lookup indexes the stores rely on.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		novelsCollection: {
			{
				Keys:    bson.D{{Key: "author_id", Value: 1}},
				Options: options.Index().SetName("idx_author"),
			},
			{
				Keys:    bson.D{{Key: "genre", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_genre_created"),
			},
		},
		branchesCollection: {
			{
				Keys: bson.D{{Key: "novel_id", Value: 1}},
				Options: options.Index().SetName("uniq_main_per_novel").SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "is_main", Value: true}}),
			},
			{
				Keys:    bson.D{{Key: "novel_id", Value: 1}, {Key: "visibility", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_novel_visibility"),
			},
		},
		votesCollection: {
			{
				Keys:    bson.D{{Key: "reader_id", Value: 1}, {Key: "branch_id", Value: 1}},
				Options: options.Index().SetName("uniq_reader_branch").SetUnique(true),
			},
		},
		linkRequestsCollection: {
			{
				Keys: bson.D{{Key: "branch_id", Value: 1}},
				Options: options.Index().SetName("uniq_pending_per_branch").SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "status", Value: string(data.LinkRequestPending)}}),
			},
			{
				Keys:    bson.D{{Key: "novel_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_novel_status"),
			},
		},
		chaptersCollection: {
			{
				Keys:    bson.D{{Key: "branch_id", Value: 1}, {Key: "chapter_number", Value: 1}},
				Options: options.Index().SetName("uniq_branch_number").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}},
				Options: options.Index().SetName("idx_status_scheduled"),
			},
		},
		purchasesCollection: {
			{
				Keys:    bson.D{{Key: "reader_id", Value: 1}, {Key: "chapter_id", Value: 1}},
				Options: options.Index().SetName("uniq_reader_chapter").SetUnique(true),
			},
		},
		subscriptionsCollection: {
			{
				Keys: bson.D{{Key: "reader_id", Value: 1}},
				Options: options.Index().SetName("uniq_active_per_reader").SetUnique(true).
					SetPartialFilterExpression(bson.D{{Key: "status", Value: string(data.SubscriptionActive)}}),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}},
				Options: options.Index().SetName("idx_status_end"),
			},
		},
	}
	for name, models := range indexes {
		if _, err := m.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("error creating %s indexes: %w", name, err)
		}
	}
	return nil
}

type mongoTx struct {
	db       *mongo.Database
	readOnly bool
}

func (t *mongoTx) store(name string) mongoStore {
	return mongoStore{coll: t.db.Collection(name), readOnly: t.readOnly}
}

func (t *mongoTx) Users() UserStore               { return mongoUsers{t.store(usersCollection)} }
func (t *mongoTx) Novels() NovelStore             { return mongoNovels{t.store(novelsCollection)} }
func (t *mongoTx) Branches() BranchStore          { return mongoBranches{t.store(branchesCollection)} }
func (t *mongoTx) Votes() VoteStore               { return mongoVotes{t.store(votesCollection)} }
func (t *mongoTx) LinkRequests() LinkRequestStore { return mongoLinkRequests{t.store(linkRequestsCollection)} }
func (t *mongoTx) Chapters() ChapterStore         { return mongoChapters{t.store(chaptersCollection)} }
func (t *mongoTx) Purchases() PurchaseStore       { return mongoPurchases{t.store(purchasesCollection)} }
func (t *mongoTx) Subscriptions() SubscriptionStore {
	return mongoSubscriptions{t.store(subscriptionsCollection)}
}

type mongoStore struct {
	coll     *mongo.Collection
	readOnly bool
}

func (s mongoStore) insert(ctx context.Context, doc any) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("error inserting into %s: %w", s.coll.Name(), err)
	}
	return nil
}

// update applies update to the document matching filter. A miss is reported as
// ErrConflict when a document with the same id exists, ErrNotFound otherwise.
func (s mongoStore) update(ctx context.Context, id string, filter bson.M, update any) error {
	if s.readOnly {
		return ErrReadOnly
	}
	filter["_id"] = id
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("error updating %s: %w", s.coll.Name(), err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id, "deleted_at": nil}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("error counting %s: %w", s.coll.Name(), err)
	}
	if n > 0 {
		return ErrConflict
	}
	return ErrNotFound
}

// incCounter adds delta to field. Negative deltas go through a pipeline that floors at zero.
func (s mongoStore) incCounter(ctx context.Context, id, field string, delta int64) error {
	var update any = bson.M{"$inc": bson.M{field: delta}}
	if delta < 0 {
		update = mongo.Pipeline{{{Key: "$set", Value: bson.D{{Key: field, Value: bson.D{
			{Key: "$max", Value: bson.A{0, bson.D{{Key: "$add", Value: bson.A{"$" + field, delta}}}}},
		}}}}}}
	}
	return s.update(ctx, id, live(bson.M{}), update)
}

func (s mongoStore) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("error counting %s: %w", s.coll.Name(), err)
	}
	return n > 0, nil
}

func live(filter bson.M) bson.M {
	filter["deleted_at"] = nil
	return filter
}

func findOne[T any](ctx context.Context, s mongoStore, filter any) (*T, error) {
	var out T
	err := s.coll.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching from %s: %w", s.coll.Name(), err)
	}
	return &out, nil
}

func findMany[T any](ctx context.Context, s mongoStore, filter any, opts *options.FindOptions) ([]T, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error fetching from %s: %w", s.coll.Name(), err)
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding %s: %w", s.coll.Name(), err)
	}
	return out, nil
}

func paged(opts *options.FindOptions, p data.Pagination) *options.FindOptions {
	if p.Limit > 0 {
		opts.SetSkip(int64(p.Skip())).SetLimit(int64(p.Limit))
	}
	return opts
}

type mongoUsers struct{ mongoStore }

func (s mongoUsers) Get(ctx context.Context, id string) (*data.User, error) {
	return findOne[data.User](ctx, s.mongoStore, bson.M{"_id": id})
}

func (s mongoUsers) Upsert(ctx context.Context, u *data.User) error {
	if s.readOnly {
		return ErrReadOnly
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{
		"$set": bson.M{
			"nickname":   u.Nickname,
			"email":      u.Email,
			"birth_date": u.BirthDate,
			"updated_at": u.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": u.CreatedAt},
	}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error upserting user: %w", err)
	}
	return nil
}

type mongoNovels struct{ mongoStore }

func (s mongoNovels) Insert(ctx context.Context, n *data.Novel) error {
	return s.insert(ctx, n)
}

func (s mongoNovels) Get(ctx context.Context, id string) (*data.Novel, error) {
	return findOne[data.Novel](ctx, s.mongoStore, live(bson.M{"_id": id}))
}

func (s mongoNovels) List(ctx context.Context, q data.NovelQuery) ([]data.Novel, error) {
	filter := live(bson.M{})
	if q.Genre != "" {
		filter["genre"] = q.Genre
	}
	if q.Status != "" {
		filter["status"] = q.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return findMany[data.Novel](ctx, s.mongoStore, filter, paged(opts, q.Pagination))
}

func (s mongoNovels) Update(ctx context.Context, n *data.Novel) error {
	return s.update(ctx, n.ID, live(bson.M{}), bson.M{"$set": bson.M{
		"title":           n.Title,
		"description":     n.Description,
		"cover_image_url": n.CoverImageURL,
		"genre":           n.Genre,
		"age_rating":      n.AgeRating,
		"status":          n.Status,
		"allow_branching": n.AllowBranching,
		"updated_at":      n.UpdatedAt,
	}})
}

func (s mongoNovels) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, live(bson.M{}), bson.M{"$set": bson.M{"deleted_at": at, "updated_at": at}})
}

func (s mongoNovels) IncCounter(ctx context.Context, id string, field data.NovelCounter, delta int64) error {
	return s.incCounter(ctx, id, string(field), delta)
}

type mongoBranches struct{ mongoStore }

func (s mongoBranches) Insert(ctx context.Context, b *data.Branch) error {
	return s.insert(ctx, b)
}

func (s mongoBranches) Get(ctx context.Context, id string) (*data.Branch, error) {
	return findOne[data.Branch](ctx, s.mongoStore, live(bson.M{"_id": id}))
}

func (s mongoBranches) GetMain(ctx context.Context, novelID string) (*data.Branch, error) {
	return findOne[data.Branch](ctx, s.mongoStore, live(bson.M{"novel_id": novelID, "is_main": true}))
}

func (s mongoBranches) List(ctx context.Context, novelID string, q data.BranchQuery) ([]data.Branch, error) {
	filter := live(bson.M{"novel_id": novelID})
	if len(q.Visibilities) > 0 {
		filter["visibility"] = bson.M{"$in": q.Visibilities}
	}
	sortKeys := bson.D{}
	switch q.Sort {
	case data.SortVotes:
		sortKeys = append(sortKeys, bson.E{Key: "vote_count", Value: -1})
	case data.SortViews:
		sortKeys = append(sortKeys, bson.E{Key: "view_count", Value: -1})
	}
	sortKeys = append(sortKeys, bson.E{Key: "created_at", Value: -1}, bson.E{Key: "_id", Value: 1})
	return findMany[data.Branch](ctx, s.mongoStore, filter, paged(options.Find().SetSort(sortKeys), q.Pagination))
}

func (s mongoBranches) Update(ctx context.Context, b *data.Branch) error {
	return s.update(ctx, b.ID, live(bson.M{}), bson.M{"$set": bson.M{
		"name":              b.Name,
		"description":       b.Description,
		"cover_image_url":   b.CoverImageURL,
		"branch_type":       b.BranchType,
		"visibility":        b.Visibility,
		"canon_status":      b.CanonStatus,
		"merged_at_chapter": b.MergedAtChapter,
		"updated_at":        b.UpdatedAt,
	}})
}

func (s mongoBranches) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, live(bson.M{}), bson.M{"$set": bson.M{"deleted_at": at, "updated_at": at}})
}

func (s mongoBranches) IncCounter(ctx context.Context, id string, field data.BranchCounter, delta int64) error {
	return s.incCounter(ctx, id, string(field), delta)
}

func (s mongoBranches) NextChapterNumber(ctx context.Context, id string) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	var b data.Branch
	err := s.coll.FindOneAndUpdate(ctx,
		live(bson.M{"_id": id}),
		bson.M{"$inc": bson.M{"last_chapter_number": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("error allocating chapter number: %w", err)
	}
	return b.LastChapterNumber, nil
}

type mongoVotes struct{ mongoStore }

func (s mongoVotes) Insert(ctx context.Context, v *data.BranchVote) error {
	return s.insert(ctx, v)
}

func (s mongoVotes) Delete(ctx context.Context, readerID, branchID string) error {
	if s.readOnly {
		return ErrReadOnly
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"reader_id": readerID, "branch_id": branchID})
	if err != nil {
		return fmt.Errorf("error deleting vote: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s mongoVotes) Exists(ctx context.Context, readerID, branchID string) (bool, error) {
	return s.exists(ctx, bson.M{"reader_id": readerID, "branch_id": branchID})
}

type mongoLinkRequests struct{ mongoStore }

func (s mongoLinkRequests) Insert(ctx context.Context, r *data.BranchLinkRequest) error {
	return s.insert(ctx, r)
}

func (s mongoLinkRequests) Get(ctx context.Context, id string) (*data.BranchLinkRequest, error) {
	return findOne[data.BranchLinkRequest](ctx, s.mongoStore, bson.M{"_id": id})
}

func (s mongoLinkRequests) FindPending(ctx context.Context, branchID string) (*data.BranchLinkRequest, error) {
	return findOne[data.BranchLinkRequest](ctx, s.mongoStore, bson.M{
		"branch_id": branchID,
		"status":    data.LinkRequestPending,
	})
}

func (s mongoLinkRequests) List(ctx context.Context, novelID string, status data.LinkRequestStatus) ([]data.BranchLinkRequest, error) {
	filter := bson.M{"novel_id": novelID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return findMany[data.BranchLinkRequest](ctx, s.mongoStore, filter, opts)
}

func (s mongoLinkRequests) Review(ctx context.Context, id string, review data.LinkReview) error {
	if s.readOnly {
		return ErrReadOnly
	}
	filter := bson.M{"_id": id, "status": data.LinkRequestPending}
	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"status":         review.Status,
		"reviewer_id":    review.ReviewerID,
		"review_comment": review.Comment,
		"reviewed_at":    review.ReviewedAt,
	}})
	if err != nil {
		return fmt.Errorf("error reviewing link request: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	found, err := s.exists(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if found {
		return ErrConflict
	}
	return ErrNotFound
}

type mongoChapters struct{ mongoStore }

func (s mongoChapters) Insert(ctx context.Context, c *data.Chapter) error {
	return s.insert(ctx, c)
}

func (s mongoChapters) Get(ctx context.Context, id string) (*data.Chapter, error) {
	return findOne[data.Chapter](ctx, s.mongoStore, live(bson.M{"_id": id}))
}

func (s mongoChapters) List(ctx context.Context, branchID string, publishedOnly bool) ([]data.Chapter, error) {
	filter := live(bson.M{"branch_id": branchID})
	if publishedOnly {
		filter["status"] = data.ChapterPublished
	}
	opts := options.Find().SetSort(bson.D{{Key: "chapter_number", Value: 1}})
	return findMany[data.Chapter](ctx, s.mongoStore, filter, opts)
}

func (s mongoChapters) Update(ctx context.Context, c *data.Chapter) error {
	return s.update(ctx, c.ID, live(bson.M{}), bson.M{"$set": bson.M{
		"title":          c.Title,
		"content":        c.Content,
		"content_html":   c.ContentHTML,
		"word_count":     c.WordCount,
		"access_type":    c.AccessType,
		"price":          c.Price,
		"author_comment": c.AuthorComment,
		"updated_at":     c.UpdatedAt,
	}})
}

func (s mongoChapters) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id, live(bson.M{}), bson.M{"$set": bson.M{"deleted_at": at, "updated_at": at}})
}

func unpublished() bson.M {
	return live(bson.M{"status": bson.M{"$ne": data.ChapterPublished}})
}

func (s mongoChapters) Schedule(ctx context.Context, id string, at, now time.Time) error {
	return s.update(ctx, id, unpublished(), bson.M{"$set": bson.M{
		"status":       data.ChapterScheduled,
		"scheduled_at": at,
		"updated_at":   now,
	}})
}

func (s mongoChapters) Publish(ctx context.Context, id string, now time.Time) error {
	return s.update(ctx, id, unpublished(), bson.M{
		"$set": bson.M{
			"status":       data.ChapterPublished,
			"published_at": now,
			"updated_at":   now,
		},
		"$unset": bson.M{"scheduled_at": ""},
	})
}

func (s mongoChapters) PublishDue(ctx context.Context, id string, now time.Time) error {
	filter := live(bson.M{
		"status":       data.ChapterScheduled,
		"scheduled_at": bson.M{"$lte": now},
	})
	return s.update(ctx, id, filter, bson.M{
		"$set": bson.M{
			"status":       data.ChapterPublished,
			"published_at": now,
			"updated_at":   now,
		},
		"$unset": bson.M{"scheduled_at": ""},
	})
}

func (s mongoChapters) DueScheduled(ctx context.Context, now time.Time) ([]data.Chapter, error) {
	filter := live(bson.M{
		"status":       data.ChapterScheduled,
		"scheduled_at": bson.M{"$lte": now},
	})
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_at", Value: 1}})
	return findMany[data.Chapter](ctx, s.mongoStore, filter, opts)
}

func (s mongoChapters) IncCounter(ctx context.Context, id string, field data.ChapterCounter, delta int64) error {
	return s.incCounter(ctx, id, string(field), delta)
}

type mongoPurchases struct{ mongoStore }

func (s mongoPurchases) Insert(ctx context.Context, p *data.Purchase) error {
	return s.insert(ctx, p)
}

func (s mongoPurchases) Exists(ctx context.Context, readerID, chapterID string) (bool, error) {
	return s.exists(ctx, bson.M{"reader_id": readerID, "chapter_id": chapterID})
}

func (s mongoPurchases) List(ctx context.Context, readerID string) ([]data.Purchase, error) {
	opts := options.Find().SetSort(bson.D{{Key: "purchased_at", Value: -1}})
	return findMany[data.Purchase](ctx, s.mongoStore, bson.M{"reader_id": readerID}, opts)
}

type mongoSubscriptions struct{ mongoStore }

func (s mongoSubscriptions) Insert(ctx context.Context, sub *data.Subscription) error {
	return s.insert(ctx, sub)
}

func (s mongoSubscriptions) Current(ctx context.Context, readerID string) (*data.Subscription, error) {
	return findOne[data.Subscription](ctx, s.mongoStore, bson.M{
		"reader_id": readerID,
		"status":    data.SubscriptionActive,
	})
}

func (s mongoSubscriptions) List(ctx context.Context, readerID string) ([]data.Subscription, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return findMany[data.Subscription](ctx, s.mongoStore, bson.M{"reader_id": readerID}, opts)
}

func (s mongoSubscriptions) Update(ctx context.Context, sub *data.Subscription) error {
	return s.update(ctx, sub.ID, bson.M{}, bson.M{"$set": bson.M{
		"plan_type":    sub.PlanType,
		"start_date":   sub.StartDate,
		"end_date":     sub.EndDate,
		"status":       sub.Status,
		"auto_renew":   sub.AutoRenew,
		"cancelled_at": sub.CancelledAt,
		"updated_at":   sub.UpdatedAt,
	}})
}

func (s mongoSubscriptions) ExpireBefore(ctx context.Context, day, now time.Time) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"status": data.SubscriptionActive, "end_date": bson.M{"$lt": day}},
		bson.M{"$set": bson.M{"status": data.SubscriptionExpired, "updated_at": now}},
	)
	if err != nil {
		return 0, fmt.Errorf("error expiring subscriptions: %w", err)
	}
	return int(res.ModifiedCount), nil
}

func (s mongoSubscriptions) DueRenewal(ctx context.Context, day time.Time) ([]data.Subscription, error) {
	filter := bson.M{
		"status":     data.SubscriptionActive,
		"auto_renew": true,
		"end_date":   day,
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	return findMany[data.Subscription](ctx, s.mongoStore, filter, opts)
}
