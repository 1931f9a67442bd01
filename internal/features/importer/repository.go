package importer

import (
	"context"
	"time"

	"civic-os/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ImportRepository interface {
	Create(ctx context.Context, job *ImportJob) error
	Get(ctx context.Context, id string) (*ImportJob, error)
	Update(ctx context.Context, job *ImportJob) error
	FindByUserID(ctx context.Context, userID string, limit int) ([]ImportJob, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ImportRepositoryImpl struct {
	collection *mongo.Collection
}

func NewImportRepository(db *database.MongodbDB) ImportRepository {
	return &ImportRepositoryImpl{
		collection: db.DB.Collection("import_jobs"),
	}
}

func (r *ImportRepositoryImpl) Create(ctx context.Context, job *ImportJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, job)
	return err
}

func (r *ImportRepositoryImpl) Get(ctx context.Context, id string) (*ImportJob, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var job ImportJob
	err = r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&job)
	if err != nil {
		return nil, err
	}

	return &job, nil
}

func (r *ImportRepositoryImpl) Update(ctx context.Context, job *ImportJob) error {
	job.UpdatedAt = time.Now()
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	return err
}

func (r *ImportRepositoryImpl) FindByUserID(ctx context.Context, userID string, limit int) ([]ImportJob, error) {
	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []ImportJob
	if err = cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *ImportRepositoryImpl) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{
		"updated_at": bson.M{"$lt": cutoff},
		"step":       bson.M{"$in": []Step{StepSuccess, StepChoose}},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
