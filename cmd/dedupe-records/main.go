// Command dedupe-records is a duplicate-cleanup admin utility: the
// store enforces a unique (timestamp, imei) index going forward, but
// collections seeded before that index existed (or restored from a
// pre-dedup backup) can carry true duplicates. This tool finds them
// per records_<type> collection and keeps the one with the lowest
// insertion _id, deleting the rest.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serebryakov7/telematics-gateway/internal/store"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report duplicates without deleting them")
	flag.Parse()

	uri := envOr("MONGO_URI", "mongodb://localhost:27017")
	dbName := envOr("MONGO_DB", "telematics")

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Fatalf("dedupe-records: connect: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(dbName)

	modemTypes, err := deviceModemTypes(ctx, db)
	if err != nil {
		log.Fatalf("dedupe-records: list devices: %v", err)
	}

	var totalRemoved int64
	for _, modemType := range modemTypes {
		coll := db.Collection(store.RecordsCollection(modemType))
		removed, err := dedupeCollection(ctx, coll, *dryRun)
		if err != nil {
			log.Fatalf("dedupe-records: %s: %v", coll.Name(), err)
		}
		if removed > 0 {
			fmt.Printf("%s: %d duplicate(s)%s\n", coll.Name(), removed, dryRunSuffix(*dryRun))
		}
		totalRemoved += removed
	}

	fmt.Printf("total: %d duplicate(s)%s\n", totalRemoved, dryRunSuffix(*dryRun))
	os.Exit(0)
}

func dryRunSuffix(dryRun bool) string {
	if dryRun {
		return " (dry run, not deleted)"
	}
	return ""
}

func deviceModemTypes(ctx context.Context, db *mongo.Database) ([]string, error) {
	cur, err := db.Collection(store.DevicesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	seen := make(map[string]bool)
	var types []string
	for cur.Next(ctx) {
		var d struct {
			ModemType string `bson:"modemType"`
		}
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		mt := strings.ToLower(d.ModemType)
		if mt == "" || seen[mt] {
			continue
		}
		seen[mt] = true
		types = append(types, d.ModemType)
	}
	return types, cur.Err()
}

type dupGroup struct {
	ID  bson.M               `bson:"_id"`
	IDs []primitive.ObjectID `bson:"ids"`
}

// dedupeCollection aggregates (imei, timestamp) groups with more than
// one member, sorts each group's member _ids ascending (oldest
// insertion first, since ObjectIDs are time-ordered), and removes every
// member but the first.
func dedupeCollection(ctx context.Context, coll *mongo.Collection, dryRun bool) (int64, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "imei", Value: "$imei"}, {Key: "timestamp", Value: "$timestamp"}}},
			{Key: "ids", Value: bson.D{{Key: "$push", Value: "$_id"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$match", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: 1}}}}}},
	}

	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var toDelete []primitive.ObjectID
	for cur.Next(ctx) {
		var g dupGroup
		if err := cur.Decode(&g); err != nil {
			return 0, err
		}
		sortObjectIDs(g.IDs)
		toDelete = append(toDelete, g.IDs[1:]...)
	}
	if err := cur.Err(); err != nil {
		return 0, err
	}
	if len(toDelete) == 0 || dryRun {
		return int64(len(toDelete)), nil
	}

	res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": toDelete}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// sortObjectIDs orders by raw byte value, which is monotonic with
// insertion time for MongoDB's ObjectID layout (timestamp, then
// counter).
func sortObjectIDs(ids []primitive.ObjectID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
