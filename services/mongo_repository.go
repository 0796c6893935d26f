package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"poi-map/models"
)

const (
	approvedCollection = "pois_approved"
	draftCollection    = "pois_draft"
)

type MongoRepository struct {
	client   *mongo.Client
	approved *mongo.Collection
	draft    *mongo.Collection
}

// NewMongoRepository connects to uri and, when seedFile is set and the
// approved collection is empty, seeds it from that JSON file.
func NewMongoRepository(ctx context.Context, uri, database, seedFile string) (*MongoRepository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connection failed: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	log.Println("Connected to MongoDB")
	return openMongoRepository(ctx, client, database, seedFile)
}

// openMongoRepository takes ownership of client and disconnects it when
// seeding fails.
func openMongoRepository(ctx context.Context, client *mongo.Client, database, seedFile string) (*MongoRepository, error) {
	db := client.Database(database)
	repo := &MongoRepository{
		client:   client,
		approved: db.Collection(approvedCollection),
		draft:    db.Collection(draftCollection),
	}
	if seedFile == "" {
		return repo, nil
	}
	if err := repo.seedIfEmpty(ctx, seedFile); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

func (r *MongoRepository) seedIfEmpty(ctx context.Context, seedFile string) error {
	count, err := r.approved.CountDocuments(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to count approved POIs: %w", err)
	}
	if count > 0 {
		return nil
	}
	log.Println("No approved POIs found in MongoDB, seeding sample data...")
	return r.seedApproved(ctx, seedFile)
}

func (r *MongoRepository) ListApproved(ctx context.Context) ([]models.POI, error) {
	return r.list(ctx, r.approved)
}

func (r *MongoRepository) ListDraft(ctx context.Context) ([]models.POI, error) {
	return r.list(ctx, r.draft)
}

func (r *MongoRepository) SaveDraft(ctx context.Context, poi models.POI) error {
	poi.Approved = false
	_, err := r.draft.ReplaceOne(ctx, bson.M{"_id": poi.ID}, poi, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save draft POI %s: %w", poi.ID, err)
	}
	return nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoRepository) list(ctx context.Context, coll *mongo.Collection) ([]models.POI, error) {
	opts := options.Find().SetSort(bson.D{{Key: "dateAdded", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load POIs from %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	pois := []models.POI{}
	if err := cursor.All(ctx, &pois); err != nil {
		return nil, fmt.Errorf("failed to decode POIs from %s: %w", coll.Name(), err)
	}
	return pois, nil
}

func (r *MongoRepository) seedApproved(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open POI seed file: %w", err)
	}
	defer file.Close()

	var records []models.RawPOI
	if err := json.NewDecoder(file).Decode(&records); err != nil {
		return fmt.Errorf("failed to decode POI seed file: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]any, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rec.ToPOI(true))
	}
	result, err := r.approved.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to seed POIs: %w", err)
	}
	log.Printf("Inserted %d approved POIs into MongoDB", len(result.InsertedIDs))
	return nil
}
