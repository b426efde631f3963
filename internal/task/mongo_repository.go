package task

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoRepository struct {
	collection *mongo.Collection
}

// NewMongoRepository хранит задачи как документы коллекции
func NewMongoRepository(collection *mongo.Collection) TaskRepository {
	return &mongoRepository{collection: collection}
}

func (r *mongoRepository) Create(ctx context.Context, t Task) error {
	_, err := r.collection.InsertOne(ctx, t)
	return err
}

func (r *mongoRepository) Get(ctx context.Context, id string) (Task, error) {
	var t Task
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	return t, nil
}

func (r *mongoRepository) Update(ctx context.Context, t Task) (Task, error) {
	next := t
	next.Version = t.Version + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	res, err := r.collection.ReplaceOne(ctx, versionFilter(t.ID, t.Version), next)
	if err != nil {
		return Task{}, err
	}
	if res.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": t.ID})
		if err != nil {
			return Task{}, err
		}
		if count == 0 {
			return Task{}, ErrNotFound
		}
		return Task{}, ErrConflict
	}
	return next, nil
}

// versionFilter совпадает только с документом прочитанной версии
func versionFilter(id string, version int64) bson.M {
	return bson.M{"_id": id, "version": version}
}

func (r *mongoRepository) List(ctx context.Context, filter Filter) ([]Task, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.Category != nil {
		query["category"] = *filter.Category
	}
	if filter.AssignedResourceID != nil {
		query["assigned_resource_id"] = *filter.AssignedResourceID
	}
	if filter.ReporterID != nil {
		query["reporter.id"] = *filter.ReporterID
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.findMany(ctx, query, opts)
}

func (r *mongoRepository) findMany(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Task, error) {
	cur, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var tasks []Task
	for cur.Next(ctx) {
		var t Task
		if err := cur.Decode(&t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}
