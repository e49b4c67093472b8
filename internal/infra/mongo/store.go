package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quizstreak-service/internal/domain"
)

const (
	usersCollection         = "users"
	dailyStatsCollection    = "dailyStats"
	leaderboardsCollection  = "leaderboards"
	badgesCollection        = "badges"
	notificationsCollection = "notifications"
	sessionsCollection      = "userSessions"
	attemptsCollection      = "userProgress"

	connectTimeout = 10 * time.Second
)

// Store implements app.Store on MongoDB. Counters only move through $inc so
// concurrent writers never lose updates.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri, verifies the connection and selects database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// EnsureIndexes creates the secondary indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		leaderboardsCollection:  {{Keys: bson.D{{Key: "period", Value: 1}, {Key: "rank", Value: 1}}}},
		notificationsCollection: {{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: 1}}}},
		sessionsCollection:      {{Keys: bson.D{{Key: "isActive", Value: 1}}}},
		dailyStatsCollection:    {{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: 1}}}},
		usersCollection:         {{Keys: bson.D{{Key: "lastQuizCompletedDateString", Value: 1}}}},
		attemptsCollection:      {{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "completedAt", Value: -1}}}},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return wrap("create indexes on "+coll, err)
		}
	}
	return nil
}

// CreateUser inserts a new user record.
func (s *Store) CreateUser(ctx context.Context, u domain.User) error {
	_, err := s.db.Collection(usersCollection).InsertOne(ctx, u)
	return wrap("create user", err)
}

func (s *Store) GetUser(ctx context.Context, userID string) (domain.User, error) {
	var u domain.User
	err := s.db.Collection(usersCollection).FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, wrap("get user", err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, userID string, upd domain.UserUpdate) (domain.User, error) {
	update := bson.M{}
	if inc := incDoc(upd.Inc); len(inc) > 0 {
		update["$inc"] = inc
	}
	if set := setDoc(upd.Set); len(set) > 0 {
		update["$set"] = set
	}
	if len(update) == 0 {
		return s.GetUser(ctx, userID)
	}
	return s.findOneAndUpdateUser(ctx, bson.M{"_id": userID}, update, "update user")
}

func (s *Store) AddBadges(ctx context.Context, userID string, grants []domain.BadgeGrant) (domain.User, error) {
	users := s.db.Collection(usersCollection)
	for _, g := range grants {
		// The $ne guard makes each award idempotent under concurrent callers.
		filter := bson.M{"_id": userID, "badgesEarned.badgeId": bson.M{"$ne": g.Award.BadgeID}}
		update := bson.M{
			"$push": bson.M{"badgesEarned": g.Award},
			"$inc":  bson.M{"totalBadgesEarned": 1, "totalPoints": g.Points},
		}
		if _, err := users.UpdateOne(ctx, filter, update); err != nil {
			return domain.User{}, wrap("add badge "+g.Award.BadgeID, err)
		}
	}
	return s.GetUser(ctx, userID)
}

func (s *Store) SpendPoints(ctx context.Context, userID string, cost int, set domain.UserFields) (domain.User, error) {
	update := bson.M{"$inc": bson.M{"totalPoints": -cost}}
	if doc := setDoc(set); len(doc) > 0 {
		update["$set"] = doc
	}
	filter := bson.M{"_id": userID, "totalPoints": bson.M{"$gte": cost}}
	u, err := s.findOneAndUpdateUser(ctx, filter, update, "spend points")
	if !errors.Is(err, domain.ErrUserNotFound) {
		return u, err
	}
	// The guard failed: tell a missing user apart from a short balance.
	if _, getErr := s.GetUser(ctx, userID); getErr != nil {
		return domain.User{}, getErr
	}
	return domain.User{}, domain.ErrInsufficientPoints
}

func (s *Store) findOneAndUpdateUser(ctx context.Context, filter, update bson.M, op string) (domain.User, error) {
	var u domain.User
	err := s.db.Collection(usersCollection).FindOneAndUpdate(
		ctx,
		filter,
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, wrap(op, err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	cur, err := s.db.Collection(usersCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, wrap("list users", err)
	}
	var users []domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, wrap("decode users", err)
	}
	return users, nil
}

func (s *Store) ResetStreaks(ctx context.Context, userIDs []string, today string) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.Collection(usersCollection).UpdateMany(
		ctx,
		bson.M{
			"_id":                         bson.M{"$in": userIDs},
			"lastQuizCompletedDateString": bson.M{"$ne": today},
			"streakFrozen":                bson.M{"$ne": true},
			"currentStreak":               bson.M{"$gt": 0},
		},
		bson.M{"$set": bson.M{"currentStreak": 0}},
	)
	if err != nil {
		return 0, wrap("reset streaks", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) IncrementDailyStat(ctx context.Context, delta domain.DailyStatDelta, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{
			"quizzesCompleted":  delta.QuizzesCompleted,
			"questionsAnswered": delta.QuestionsAnswered,
			"pointsEarned":      delta.PointsEarned,
		},
		"$set":         bson.M{"updatedAt": at.UTC()},
		"$setOnInsert": bson.M{"userId": delta.UserID, "date": delta.Date, "bestScore": 0},
	}
	_, err := s.db.Collection(dailyStatsCollection).UpdateOne(
		ctx,
		bson.M{"_id": dailyStatID(delta.UserID, delta.Date)},
		update,
		options.Update().SetUpsert(true),
	)
	return wrap("increment daily stat", err)
}

func (s *Store) GetDailyStat(ctx context.Context, userID, date string) (domain.DailyStat, error) {
	var stat domain.DailyStat
	err := s.db.Collection(dailyStatsCollection).FindOne(ctx, bson.M{"_id": dailyStatID(userID, date)}).Decode(&stat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.DailyStat{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DailyStat{}, wrap("get daily stat", err)
	}
	return stat, nil
}

func (s *Store) UpsertLeaderboardEntry(ctx context.Context, period domain.LeaderboardPeriod, delta domain.LeaderboardDelta) error {
	update := bson.M{
		"$inc": bson.M{"pointsToday": delta.PointsToday},
		"$set": bson.M{
			"username":      delta.Username,
			"avatar":        delta.Avatar,
			"totalPoints":   delta.TotalPoints,
			"currentStreak": delta.CurrentStreak,
			"lastUpdatedAt": delta.UpdatedAt.UTC(),
		},
		"$setOnInsert": bson.M{"period": period, "userId": delta.UserID, "rank": 0},
	}
	_, err := s.db.Collection(leaderboardsCollection).UpdateOne(
		ctx,
		bson.M{"_id": entryID(period, delta.UserID)},
		update,
		options.Update().SetUpsert(true),
	)
	return wrap("upsert leaderboard entry", err)
}

func (s *Store) ListLeaderboard(ctx context.Context, period domain.LeaderboardPeriod) ([]domain.LeaderboardEntry, error) {
	cur, err := s.db.Collection(leaderboardsCollection).Find(ctx, bson.M{"period": period})
	if err != nil {
		return nil, wrap("list leaderboard", err)
	}
	var entries []domain.LeaderboardEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, wrap("decode leaderboard", err)
	}
	return entries, nil
}

func (s *Store) SetRanks(ctx context.Context, period domain.LeaderboardPeriod, ranks []domain.RankAssignment, at time.Time) error {
	if len(ranks) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(ranks))
	for _, r := range ranks {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": entryID(period, r.UserID)}).
			SetUpdate(bson.M{"$set": bson.M{"rank": r.Rank, "lastUpdatedAt": at.UTC()}}))
	}
	_, err := s.db.Collection(leaderboardsCollection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return wrap("set ranks", err)
}

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) (bool, error) {
	_, err := s.db.Collection(notificationsCollection).InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, wrap("create notification", err)
	}
	return true, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	cur, err := s.db.Collection(notificationsCollection).Find(
		ctx,
		bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
	)
	if err != nil {
		return nil, wrap("list notifications", err)
	}
	var out []domain.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode notifications", err)
	}
	return out, nil
}

// CreateSession inserts a login session.
func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.Collection(sessionsCollection).InsertOne(ctx, sess)
	return wrap("create session", err)
}

func (s *Store) ListActiveSessions(ctx context.Context) ([]domain.Session, error) {
	cur, err := s.db.Collection(sessionsCollection).Find(ctx, bson.M{"isActive": true})
	if err != nil {
		return nil, wrap("list sessions", err)
	}
	var out []domain.Session
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode sessions", err)
	}
	return out, nil
}

func (s *Store) EndSessions(ctx context.Context, sessions []domain.Session, idleBefore, at time.Time) (int, error) {
	if len(sessions) == 0 {
		return 0, nil
	}
	ids := make([]string, len(sessions))
	for i, sess := range sessions {
		ids[i] = sess.ID
	}
	res, err := s.db.Collection(sessionsCollection).UpdateMany(
		ctx,
		bson.M{
			"_id":            bson.M{"$in": ids},
			"isActive":       true,
			"lastActivityAt": bson.M{"$lt": idleBefore.UTC()},
		},
		bson.M{"$set": bson.M{"isActive": false, "endedAt": at.UTC()}},
	)
	if err != nil {
		return 0, wrap("end sessions", err)
	}
	return int(res.ModifiedCount), nil
}

func (s *Store) RecordAttempt(ctx context.Context, a domain.QuizAttempt) error {
	a.CompletedAt = a.CompletedAt.UTC()
	_, err := s.db.Collection(attemptsCollection).InsertOne(ctx, a)
	return wrap("record attempt", err)
}

func (s *Store) ListAttempts(ctx context.Context, userID string, limit int) ([]domain.QuizAttempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "completedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(attemptsCollection).Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, wrap("list attempts", err)
	}
	out := []domain.QuizAttempt{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode attempts", err)
	}
	return out, nil
}

// ListBadges reads the catalog ordered by badge ID.
func (s *Store) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	cur, err := s.db.Collection(badgesCollection).Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrap("list badges", err)
	}
	var out []domain.Badge
	if err := cur.All(ctx, &out); err != nil {
		return nil, wrap("decode badges", err)
	}
	return out, nil
}

// UpsertBadges replaces catalog entries by ID.
func (s *Store) UpsertBadges(ctx context.Context, badges []domain.Badge) error {
	if len(badges) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(badges))
	for _, b := range badges {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": b.ID}).
			SetReplacement(b).
			SetUpsert(true))
	}
	_, err := s.db.Collection(badgesCollection).BulkWrite(ctx, models)
	return wrap("upsert badges", err)
}

func incDoc(c domain.UserCounters) bson.M {
	doc := bson.M{}
	if c.TotalPoints != 0 {
		doc["totalPoints"] = c.TotalPoints
	}
	if c.TotalQuizzesCompleted != 0 {
		doc["totalQuizzesCompleted"] = c.TotalQuizzesCompleted
	}
	if c.TotalQuestionsAnswered != 0 {
		doc["totalQuestionsAnswered"] = c.TotalQuestionsAnswered
	}
	return doc
}

func setDoc(f domain.UserFields) bson.M {
	doc := bson.M{}
	if f.Username != nil {
		doc["username"] = *f.Username
	}
	if f.Avatar != nil {
		doc["avatar"] = *f.Avatar
	}
	if f.AverageScore != nil {
		doc["averageScore"] = *f.AverageScore
	}
	if f.CurrentStreak != nil {
		doc["currentStreak"] = *f.CurrentStreak
	}
	if f.LongestStreak != nil {
		doc["longestStreak"] = *f.LongestStreak
	}
	if f.StreakFrozen != nil {
		doc["streakFrozen"] = *f.StreakFrozen
	}
	if f.LastQuizCompletedDate != nil {
		doc["lastQuizCompletedDate"] = f.LastQuizCompletedDate.UTC()
	}
	if f.LastQuizCompletedDateString != nil {
		doc["lastQuizCompletedDateString"] = *f.LastQuizCompletedDateString
	}
	if f.CurrentLevel != nil {
		doc["currentLevel"] = *f.CurrentLevel
	}
	if f.PointsInCurrentLevel != nil {
		doc["pointsInCurrentLevel"] = *f.PointsInCurrentLevel
	}
	if f.LastActiveAt != nil {
		doc["lastActiveAt"] = f.LastActiveAt.UTC()
	}
	if f.LastDataRefresh != nil {
		doc["lastDataRefresh"] = f.LastDataRefresh.UTC()
	}
	return doc
}

func dailyStatID(userID, date string) string {
	return userID + ":" + date
}

func entryID(period domain.LeaderboardPeriod, userID string) string {
	return string(period) + ":" + userID
}

// wrap marks network and timeout failures as transient.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return domain.Transient(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
