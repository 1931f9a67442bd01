package main

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"civic-os/internal/config"
	"civic-os/internal/database"
	"civic-os/internal/features/importer"
	"civic-os/internal/features/maintenance"
)

// One-off retention sweep: removes completed import jobs and uploaded files
// older than the retention window. The API server runs the same sweep on a
// schedule; this binary exists for manual and scripted cleanup.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	zlog, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	db := &database.MongodbDB{DB: client.Database(cfg.DBName)}
	repo := importer.NewImportRepository(db)
	svc := maintenance.NewMaintenanceService(repo, nil, cfg, zlog)

	if err := svc.Purge(ctx); err != nil {
		log.Fatalf("Retention sweep failed: %v", err)
	}

	log.Println("Cleanup complete.")
}
