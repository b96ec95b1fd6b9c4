// Package mongodb stores snapshots in a MongoDB collection.
package mongodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ohowland/holarchy/internal/pkg/snapshot"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultCollection = "snapshots"

// Store is a snapshot.Store backed by one collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	config Config
}

// Config locates the server and the collection.
type Config struct {
	URI        string `json:"URI"`
	Port       string `json:"Port"`
	Database   string `json:"Database"`
	Collection string `json:"Collection"`
}

// NewConfig reads a JSON config file.
func NewConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	return cfg, nil
}

func (c Config) uri() string {
	if c.Port == "" {
		return c.URI
	}
	return c.URI + ":" + c.Port
}

// New reads a JSON config file and connects to the store it describes.
func New(ctx context.Context, configPath string) (*Store, error) {
	cfg, err := NewConfig(configPath)
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

// Open connects to the server and checks it answers.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.NewClient(options.Client().ApplyURI(cfg.uri()))
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	log.Println("[Mongo] connected to", cfg.uri())
	return &Store{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
		config: cfg,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// document is the stored form of a snapshot. The state is kept as JSON text
// so the holon history keeps its encoding.
type document struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"createdAt"`
	Tick      int64     `bson:"tick"`
	State     string    `bson:"state,omitempty"`
}

func toDocument(snap snapshot.Snapshot) (document, error) {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return document{}, err
	}
	return document{
		ID:        snap.ID,
		Name:      snap.Name,
		CreatedAt: snap.Timestamp,
		Tick:      int64(snap.State.Tick),
		State:     string(state),
	}, nil
}

func (d document) info() snapshot.Info {
	return snapshot.Info{ID: d.ID, Name: d.Name, Timestamp: d.CreatedAt, Tick: uint64(d.Tick)}
}

func (d document) snapshot() (snapshot.Snapshot, error) {
	doc := snapshot.Document{}
	if err := json.Unmarshal([]byte(d.State), &doc); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode %s: %w", d.ID, err)
	}
	return snapshot.Snapshot{ID: d.ID, Name: d.Name, Timestamp: d.CreatedAt, State: doc}, nil
}

// Save upserts snap by id.
func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) error {
	d, err := toDocument(snap)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": d.ID}, d, opts)
	return err
}

// Load returns the snapshot with the given id.
func (s *Store) Load(ctx context.Context, id string) (snapshot.Snapshot, error) {
	d := document{}
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %s", snapshot.ErrNotFound, id)
	}
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return d.snapshot()
}

// List returns every stored snapshot, newest first, without states.
func (s *Store) List(ctx context.Context) ([]snapshot.Info, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"state": 0})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	docs := []document{}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]snapshot.Info, len(docs))
	for i, d := range docs {
		out[i] = d.info()
	}
	return out, nil
}

// Delete removes the snapshot with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", snapshot.ErrNotFound, id)
	}
	return nil
}
