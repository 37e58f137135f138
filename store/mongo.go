package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"civicservice-be/models"
	"civicservice-be/services"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	requestsCollection = "service_requests"
	upvotesCollection  = "upvotes"
	usersCollection    = "users"
)

type requestDoc struct {
	ID            string    `bson:"_id"`
	Category      string    `bson:"category"`
	Description   string    `bson:"description"`
	Address       string    `bson:"address"`
	Neighborhood  *string   `bson:"neighborhood,omitempty"`
	Latitude      *float64  `bson:"latitude,omitempty"`
	Longitude     *float64  `bson:"longitude,omitempty"`
	Status        string    `bson:"status"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
	SubmittedByID *string   `bson:"submittedById,omitempty"`
}

type upvoteDoc struct {
	ID               string    `bson:"_id"`
	ServiceRequestID string    `bson:"serviceRequestId"`
	UserID           *string   `bson:"userId,omitempty"`
	IPAddress        *string   `bson:"ipAddress,omitempty"`
	CreatedAt        time.Time `bson:"createdAt"`
}

type userDoc struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	FirstName string    `bson:"firstName"`
	LastName  string    `bson:"lastName"`
	Password  string    `bson:"password"`
	Roles     []string  `bson:"roles"`
	CreatedAt time.Time `bson:"createdAt"`
}

// MongoStore keeps requests, upvotes and users in three collections
type MongoStore struct {
	db       *mongo.Database
	requests *mongo.Collection
	upvotes  *mongo.Collection
	users    *mongo.Collection
}

var (
	_ services.Store     = (*MongoStore)(nil)
	_ services.UserStore = (*MongoStore)(nil)
)

// NewMongoStore wraps db and makes sure the indexes exist
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	s := &MongoStore{
		db:       db,
		requests: db.Collection(requestsCollection),
		upvotes:  db.Collection(upvotesCollection),
		users:    db.Collection(usersCollection),
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique indexes that guard upvotes and emails.
// Signed-in votes are unique per (request, user) and anonymous votes per
// (request, ip); each partial filter only covers the documents that carry
// that field.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := s.upvotes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "serviceRequestId", Value: 1}, {Key: "userId", Value: 1}},
			Options: options.Index().
				SetName("uniq_request_user").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"userId": bson.M{"$type": "string"}}),
		},
		{
			Keys: bson.D{{Key: "serviceRequestId", Value: 1}, {Key: "ipAddress", Value: 1}},
			Options: options.Index().
				SetName("uniq_request_ip").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"ipAddress": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create upvote indexes: %w", err)
	}

	_, err = s.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "submittedById", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create request indexes: %w", err)
	}

	_, err = s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("uniq_email").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func toRequestDoc(r *models.ServiceRequest) requestDoc {
	return requestDoc{
		ID:            r.ID.String(),
		Category:      r.Category.String(),
		Description:   r.Description,
		Address:       r.Address,
		Neighborhood:  r.Neighborhood,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		Status:        r.Status.String(),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		SubmittedByID: r.SubmittedByID,
	}
}

func (d requestDoc) model() (models.ServiceRequest, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.ServiceRequest{}, fmt.Errorf("request id %q: %w", d.ID, err)
	}
	category, err := models.ParseCategory(d.Category)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	status, err := models.ParseStatus(d.Status)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	return models.ServiceRequest{
		ID:            id,
		Category:      category,
		Description:   d.Description,
		Address:       d.Address,
		Neighborhood:  d.Neighborhood,
		Latitude:      d.Latitude,
		Longitude:     d.Longitude,
		Status:        status,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
		SubmittedByID: d.SubmittedByID,
	}, nil
}

func (d upvoteDoc) model() (models.Upvote, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return models.Upvote{}, fmt.Errorf("upvote id %q: %w", d.ID, err)
	}
	requestID, err := uuid.Parse(d.ServiceRequestID)
	if err != nil {
		return models.Upvote{}, fmt.Errorf("upvote request id %q: %w", d.ServiceRequestID, err)
	}
	return models.Upvote{
		ID:               id,
		ServiceRequestID: requestID,
		UserID:           d.UserID,
		IPAddress:        d.IPAddress,
		CreatedAt:        d.CreatedAt.UTC(),
	}, nil
}

func decodeRequests(ctx context.Context, cursor *mongo.Cursor) ([]models.ServiceRequest, error) {
	defer cursor.Close(ctx)

	var docs []requestDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.ServiceRequest, 0, len(docs))
	for _, d := range docs {
		r, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *MongoStore) InsertRequest(ctx context.Context, r *models.ServiceRequest) error {
	_, err := s.requests.InsertOne(ctx, toRequestDoc(r))
	return err
}

func (s *MongoStore) FindRequest(ctx context.Context, id uuid.UUID) (*models.ServiceRequest, error) {
	var doc requestDoc
	err := s.requests.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	r, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func requestFilter(f models.RequestFilter) bson.M {
	filter := bson.M{}
	if f.Status != nil {
		filter["status"] = f.Status.String()
	}
	if f.Category != nil {
		filter["category"] = f.Category.String()
	}
	if f.SubmittedByID != nil {
		filter["submittedById"] = *f.SubmittedByID
	}
	return filter
}

func requestSort(key models.SortKey) bson.D {
	switch key {
	case models.SortCreatedAtAsc:
		return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	case models.SortUpdatedAtAsc:
		return bson.D{{Key: "updatedAt", Value: 1}, {Key: "_id", Value: 1}}
	case models.SortUpdatedAtDesc:
		return bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}
	case models.SortUpvotesDesc:
		return bson.D{{Key: "upvoteCount", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}
	}
}

func (s *MongoStore) QueryRequests(ctx context.Context, q models.RequestQuery) ([]models.ServiceRequest, int64, error) {
	filter := requestFilter(q.Filter)

	total, err := s.requests.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	var cursor *mongo.Cursor
	if q.Sort == models.SortUpvotesDesc {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: filter}},
			{{Key: "$lookup", Value: bson.M{
				"from":         upvotesCollection,
				"localField":   "_id",
				"foreignField": "serviceRequestId",
				"as":           "upvotes",
			}}},
			{{Key: "$addFields", Value: bson.M{"upvoteCount": bson.M{"$size": "$upvotes"}}}},
			{{Key: "$sort", Value: requestSort(q.Sort)}},
			{{Key: "$skip", Value: int64(q.Offset)}},
			{{Key: "$limit", Value: int64(q.Limit)}},
			{{Key: "$project", Value: bson.M{"upvotes": 0, "upvoteCount": 0}}},
		}
		cursor, err = s.requests.Aggregate(ctx, pipeline)
	} else {
		findOptions := options.Find().
			SetSort(requestSort(q.Sort)).
			SetSkip(int64(q.Offset)).
			SetLimit(int64(q.Limit))
		cursor, err = s.requests.Find(ctx, filter, findOptions)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("find requests: %w", err)
	}

	requests, err := decodeRequests(ctx, cursor)
	if err != nil {
		return nil, 0, fmt.Errorf("decode requests: %w", err)
	}
	return requests, total, nil
}

func (s *MongoStore) AllRequests(ctx context.Context) ([]models.ServiceRequest, error) {
	cursor, err := s.requests.Find(ctx, bson.M{}, options.Find().SetSort(requestSort(models.SortCreatedAtAsc)))
	if err != nil {
		return nil, err
	}
	return decodeRequests(ctx, cursor)
}

func (s *MongoStore) UpdateRequestStatus(ctx context.Context, r *models.ServiceRequest) error {
	res, err := s.requests.UpdateOne(ctx,
		bson.M{"_id": r.ID.String()},
		bson.M{"$set": bson.M{"status": r.Status.String(), "updatedAt": r.UpdatedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

// DeleteRequest removes a request and its upvotes
func (s *MongoStore) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	if _, err := s.upvotes.DeleteMany(ctx, bson.M{"serviceRequestId": id.String()}); err != nil {
		return err
	}
	res, err := s.requests.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListUpvotes(ctx context.Context, requestIDs []uuid.UUID) ([]models.Upvote, error) {
	ids := make([]string, len(requestIDs))
	for i, id := range requestIDs {
		ids[i] = id.String()
	}

	cursor, err := s.upvotes.Find(ctx, bson.M{"serviceRequestId": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []upvoteDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Upvote, 0, len(docs))
	for _, d := range docs {
		u, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *MongoStore) CountUpvotes(ctx context.Context) (int64, error) {
	return s.upvotes.CountDocuments(ctx, bson.M{})
}

func actorFilter(requestID uuid.UUID, actor models.Actor) bson.M {
	if actor.UserID != "" {
		return bson.M{"serviceRequestId": requestID.String(), "userId": actor.UserID}
	}
	return bson.M{
		"serviceRequestId": requestID.String(),
		"ipAddress":        actor.IPAddress,
		"userId":           bson.M{"$exists": false},
	}
}

func (s *MongoStore) FindUpvote(ctx context.Context, requestID uuid.UUID, actor models.Actor) (*models.Upvote, error) {
	if !actor.Known() {
		return nil, services.ErrNotFound
	}
	var doc upvoteDoc
	if err := s.upvotes.FindOne(ctx, actorFilter(requestID, actor)).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	u, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) InsertUpvote(ctx context.Context, u *models.Upvote) error {
	_, err := s.upvotes.InsertOne(ctx, upvoteDoc{
		ID:               u.ID.String(),
		ServiceRequestID: u.ServiceRequestID.String(),
		UserID:           u.UserID,
		IPAddress:        u.IPAddress,
		CreatedAt:        u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return services.ErrDuplicateUpvote
	}
	return err
}

func (s *MongoStore) DeleteUpvote(ctx context.Context, id uuid.UUID) error {
	res, err := s.upvotes.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return services.ErrNotFound
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *MongoStore) InsertUser(ctx context.Context, u *models.User) error {
	_, err := s.users.InsertOne(ctx, userDoc{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Password:  u.Password,
		Roles:     models.RoleNames(u.Roles),
		CreatedAt: u.CreatedAt,
	})
	if mongo.IsDuplicateKeyError(err) {
		return services.ErrDuplicateEmail
	}
	return err
}

func (d userDoc) model() models.User {
	return models.User{
		ID:        d.ID,
		Email:     d.Email,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Password:  d.Password,
		Roles:     models.ParseRoles(d.Roles),
		CreatedAt: d.CreatedAt.UTC(),
	}
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, services.ErrNotFound
		}
		return nil, err
	}
	u := doc.model()
	return &u, nil
}

func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]models.User, len(docs))
	for i, d := range docs {
		users[i] = d.model()
	}
	return users, nil
}
