package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"trip-provider/internal/domain"
)

type orderDoc struct {
	ID              string    `bson:"_id"`
	ProductType     string    `bson:"product_type"`
	Currency        string    `bson:"currency"`
	Total           string    `bson:"total"`
	Fees            string    `bson:"fees"`
	Status          string    `bson:"status"`
	VoucherCode     string    `bson:"voucher_code"`
	InvoiceID       string    `bson:"invoice_id"`
	PaymentID       string    `bson:"payment_id"`
	IdempotencyKey  string    `bson:"idempotency_key,omitempty"`
	QuoteTokenHash  string    `bson:"quote_token_hash"`
	PayloadSnapshot string    `bson:"payload_snapshot"`
	ItineraryID     string    `bson:"itinerary_id,omitempty"`
	SelectedRefs    string    `bson:"selected_refs,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
}

func toDoc(o *domain.Order) orderDoc {
	return orderDoc{
		ID:              o.ID,
		ProductType:     string(o.ProductType),
		Currency:        o.Currency,
		Total:           o.Total.String(),
		Fees:            o.Fees.String(),
		Status:          string(o.Status),
		VoucherCode:     o.VoucherCode,
		InvoiceID:       o.InvoiceID,
		PaymentID:       o.PaymentID,
		IdempotencyKey:  o.IdempotencyKey,
		QuoteTokenHash:  o.QuoteTokenHash,
		PayloadSnapshot: o.PayloadSnapshot,
		ItineraryID:     o.ItineraryID,
		SelectedRefs:    o.SelectedRefs,
		CreatedAt:       o.CreatedAt.UTC(),
	}
}

func (d orderDoc) order() (*domain.Order, error) {
	total, err := decimal.NewFromString(d.Total)
	if err != nil {
		return nil, fmt.Errorf("order %s total: %w", d.ID, err)
	}
	fees, err := decimal.NewFromString(d.Fees)
	if err != nil {
		return nil, fmt.Errorf("order %s fees: %w", d.ID, err)
	}
	return &domain.Order{
		ID:              d.ID,
		ProductType:     domain.ProductType(d.ProductType),
		Currency:        d.Currency,
		Total:           total,
		Fees:            fees,
		Status:          domain.OrderStatus(d.Status),
		VoucherCode:     d.VoucherCode,
		InvoiceID:       d.InvoiceID,
		PaymentID:       d.PaymentID,
		IdempotencyKey:  d.IdempotencyKey,
		QuoteTokenHash:  d.QuoteTokenHash,
		PayloadSnapshot: d.PayloadSnapshot,
		ItineraryID:     d.ItineraryID,
		SelectedRefs:    d.SelectedRefs,
		CreatedAt:       d.CreatedAt.UTC(),
	}, nil
}

type MongoOrderRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func ConnectMongo(ctx context.Context, uri, database string) (*MongoOrderRepo, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	r := NewMongoOrderRepo(client, client.Database(database))
	if err := r.CreateIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return r, nil
}

func NewMongoOrderRepo(client *mongo.Client, db *mongo.Database) *MongoOrderRepo {
	return &MongoOrderRepo{client: client, collection: db.Collection("orders")}
}

// CreateIndexes makes the idempotency key unique among orders that have
// one; orders without a key are left out of the index.
func (r *MongoOrderRepo) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "idempotency_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: -1}},
		},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *MongoOrderRepo) Create(ctx context.Context, o *domain.Order) error {
	if _, err := r.collection.InsertOne(ctx, toDoc(o)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (r *MongoOrderRepo) Get(ctx context.Context, id string) (*domain.Order, bool, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoOrderRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, bool, error) {
	return r.findOne(ctx, bson.M{"idempotency_key": key})
}

func (r *MongoOrderRepo) List(ctx context.Context, page, pageSize int) ([]domain.Order, int, error) {
	page, pageSize = normalizePage(page, pageSize)
	total, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))
	cur, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, fmt.Errorf("failed to decode orders: %w", err)
	}
	out := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.order()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, int(total), nil
}

func (r *MongoOrderRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *MongoOrderRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

func (r *MongoOrderRepo) findOne(ctx context.Context, filter bson.M) (*domain.Order, bool, error) {
	var d orderDoc
	err := r.collection.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get order: %w", err)
	}
	o, err := d.order()
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}
