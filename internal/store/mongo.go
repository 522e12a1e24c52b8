package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/serebryakov7/telematics-gateway/internal/model"
)

// MongoStore implements Store against a MongoDB document database,
// configured by the gateway's MONGO_URI setting. The collection/index
// layout below (raw_<type>, records_<type>, unique (timestamp, imei))
// is the document-store shape the rest of the gateway depends on.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	indexedMu sync.Mutex
	indexed   map[string]bool
}

// NewMongoStore connects to uri and selects database dbName. Up front it
// creates only the devices index; the records_<type> indexes are
// created lazily, per modem type, the first time that collection is
// written or queried, since collection names are derived from
// device-reported modem types the gateway cannot enumerate in advance.
func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	ms := &MongoStore{
		client:  client,
		db:      client.Database(dbName),
		indexed: make(map[string]bool),
	}
	if err := ms.ensureDeviceIndexes(ctx); err != nil {
		return nil, err
	}
	return ms, nil
}

func (m *MongoStore) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) ensureDeviceIndexes(ctx context.Context) error {
	coll := m.db.Collection(DevicesCollection)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// ensureRecordIndexes creates the (imei, timestamp desc) query index and
// the unique (timestamp, imei) idempotence index on a records_<type>
// collection, once per process per modem type.
func (m *MongoStore) ensureRecordIndexes(ctx context.Context, modemType string) error {
	m.indexedMu.Lock()
	defer m.indexedMu.Unlock()

	if m.indexed[modemType] {
		return nil
	}
	coll := m.db.Collection(RecordsCollection(modemType))
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "imei", Value: 1}, {Key: "timestamp", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: 1}, {Key: "imei", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return err
	}
	m.indexed[modemType] = true
	return nil
}

func (m *MongoStore) GetDevice(ctx context.Context, imei string) (*model.Device, error) {
	var d model.Device
	err := m.db.Collection(DevicesCollection).FindOne(ctx, bson.M{"_id": imei}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *MongoStore) UpsertDevice(ctx context.Context, d *model.Device) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := m.db.Collection(DevicesCollection).UpdateOne(ctx,
		bson.M{"_id": d.IMEI},
		bson.M{"$set": d},
		options.Update().SetUpsert(true),
	)
	return err
}

func (m *MongoStore) CreateDevice(ctx context.Context, d model.Device) error {
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := m.db.Collection(DevicesCollection).InsertOne(ctx, d)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

func (m *MongoStore) UpdateDevice(ctx context.Context, imei string, patch DevicePatch) (*model.Device, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if patch.CarBrand != nil {
		set["carBrand"] = *patch.CarBrand
	}
	if patch.CarModel != nil {
		set["carModel"] = *patch.CarModel
	}
	if patch.PlateNumber != nil {
		set["plateNumber"] = *patch.PlateNumber
	}
	if patch.Notes != nil {
		set["notes"] = *patch.Notes
	}
	if patch.Approved != nil {
		set["approved"] = *patch.Approved
	}

	res := m.db.Collection(DevicesCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": imei},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var d model.Device
	if err := res.Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoStore) DeleteDevice(ctx context.Context, imei string) error {
	res, err := m.db.Collection(DevicesCollection).DeleteOne(ctx, bson.M{"_id": imei})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	cur, err := m.db.Collection(DevicesCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "lastSeen", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var devices []model.Device
	if err := cur.All(ctx, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// Insert persists a normalized record, skipping silently on a
// duplicate-key conflict: (imei, timestamp) duplicates are treated as
// equivalent, and a race-loser is treated as a success.
func (m *MongoStore) Insert(ctx context.Context, rec model.Record, modemType string) error {
	if err := m.ensureRecordIndexes(ctx, modemType); err != nil {
		return err
	}
	_, err := m.db.Collection(RecordsCollection(modemType)).InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (m *MongoStore) InsertRaw(ctx context.Context, raw model.RawFrame) error {
	_, err := m.db.Collection(RawCollection(raw.ModemType)).InsertOne(ctx, raw)
	return err
}

func (m *MongoStore) FindRange(ctx context.Context, imei string, from, to time.Time) ([]model.Record, error) {
	return m.findAcrossKnownTypes(ctx, imei, bson.M{
		"imei":      imei,
		"timestamp": bson.M{"$gte": from, "$lte": to},
	}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
}

func (m *MongoStore) FindLatest(ctx context.Context, imei string) (*model.Record, error) {
	recs, err := m.findAcrossKnownTypes(ctx, imei, bson.M{"imei": imei},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(1))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func (m *MongoStore) FindRecords(ctx context.Context, imei string, limit, skip int) ([]model.Record, error) {
	return m.findAcrossKnownTypes(ctx, imei, bson.M{"imei": imei},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit)).SetSkip(int64(skip)))
}

func (m *MongoStore) CountRange(ctx context.Context, imei string, from, to time.Time) (int64, error) {
	dev, err := m.GetDevice(ctx, imei)
	if err != nil {
		return 0, err
	}
	coll := m.db.Collection(RecordsCollection(dev.ModemType))
	return coll.CountDocuments(ctx, bson.M{
		"imei":      imei,
		"timestamp": bson.M{"$gte": from, "$lte": to},
	})
}

func (m *MongoStore) FindRaw(ctx context.Context, imei string, limit int) ([]model.RawFrame, error) {
	dev, err := m.GetDevice(ctx, imei)
	if err != nil {
		return nil, err
	}
	coll := m.db.Collection(RawCollection(dev.ModemType))
	cur, err := coll.Find(ctx, bson.M{"imei": imei},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var frames []model.RawFrame
	if err := cur.All(ctx, &frames); err != nil {
		return nil, err
	}
	return frames, nil
}

// findAcrossKnownTypes resolves imei to its device's modem type so the
// right records_<type> collection is queried. Records are always
// written to the collection matching the device's modem type at insert
// time, so a single collection lookup per device suffices.
func (m *MongoStore) findAcrossKnownTypes(ctx context.Context, imei string, filter bson.M, opts ...*options.FindOptions) ([]model.Record, error) {
	dev, err := m.GetDevice(ctx, imei)
	if err != nil {
		return nil, err
	}
	if err := m.ensureRecordIndexes(ctx, dev.ModemType); err != nil {
		return nil, err
	}
	coll := m.db.Collection(RecordsCollection(dev.ModemType))
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var recs []model.Record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
