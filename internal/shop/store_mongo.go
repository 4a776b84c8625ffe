package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	defaultMongoDB     = "men_clothing_emporium"
	productsCollection = "products"
	cartsCollection    = "carts"
)

type productDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	Category string             `bson:"category"`
	Name     string             `bson:"name"`
	Price    bson.RawValue      `bson:"price"`
}

func (d productDoc) product() (Product, error) {
	price, err := decodePrice(d.Price)
	if err != nil {
		return Product{}, fmt.Errorf("product %s: %w", d.ID.Hex(), err)
	}
	return Product{ID: d.ID.Hex(), Category: d.Category, Name: d.Name, Price: price}, nil
}

type cartDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	ProductID primitive.ObjectID `bson:"productId"`
	Quantity  int                `bson:"quantity"`
	AddedAt   time.Time          `bson:"addedAt"`
}

func (d cartDoc) entry() CartEntry {
	return CartEntry{
		ID:        d.ID.Hex(),
		ProductID: d.ProductID.Hex(),
		Quantity:  d.Quantity,
		AddedAt:   d.AddedAt.UTC(),
	}
}

// MongoStore has no multi-document transactions: DeleteProduct removes the
// product and then its cart entries as two separate writes.
type MongoStore struct {
	client   *mongo.Client
	products *mongo.Collection
	carts    *mongo.Collection
}

// OpenMongo connects, pings the primary and ensures the indexes the store
// relies on. The database name comes from the URI path.
func OpenMongo(ctx context.Context, uri string) (*MongoStore, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("parse mongo uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = defaultMongoDB
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	s := NewMongoStore(client, dbName)
	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		products: db.Collection(productsCollection),
		carts:    db.Collection(cartsCollection),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	return withTimeout(ctx, 10*time.Second, func(ctx context.Context) error {
		if _, err := s.carts.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "productId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("carts_productId_unique"),
		}); err != nil {
			return fmt.Errorf("create carts index: %w", err)
		}
		if _, err := s.products.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "category", Value: 1}},
			Options: options.Index().SetName("products_category"),
		}); err != nil {
			return fmt.Errorf("create products index: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.client.Ping(ctx, readpref.Primary())
	})
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ListProducts(ctx context.Context) ([]Product, error) {
	return s.findProducts(ctx, bson.D{})
}

func (s *MongoStore) ListProductsByCategory(ctx context.Context, category string) ([]Product, error) {
	return s.findProducts(ctx, bson.D{{Key: "category", Value: category}})
}

func (s *MongoStore) findProducts(ctx context.Context, filter any) ([]Product, error) {
	var docs []productDoc

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		cur, err := s.products.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
		if err != nil {
			return err
		}
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}

	out := make([]Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.product()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MongoStore) GetProduct(ctx context.Context, id string) (Product, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Product{}, false, nil
	}

	var d productDoc
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.products.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&d)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("get product: %w", err)
	}

	p, err := d.product()
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *MongoStore) CreateProduct(ctx context.Context, category, name string, price decimal.Decimal) (Product, error) {
	if err := validatePrice(price); err != nil {
		return Product{}, err
	}
	d128, err := encodePrice(price)
	if err != nil {
		return Product{}, err
	}

	oid := primitive.NewObjectID()
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.products.InsertOne(ctx, bson.D{
			{Key: "_id", Value: oid},
			{Key: "category", Value: category},
			{Key: "name", Value: name},
			{Key: "price", Value: d128},
		})
		return err
	})
	if err != nil {
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	return Product{ID: oid.Hex(), Category: category, Name: name, Price: price}, nil
}

func (s *MongoStore) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (Product, bool, error) {
	if err := patch.validate(); err != nil {
		return Product{}, false, err
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Product{}, false, nil
	}
	if patch.Empty() {
		return s.GetProduct(ctx, id)
	}

	set := bson.D{}
	if patch.Category != nil {
		set = append(set, bson.E{Key: "category", Value: *patch.Category})
	}
	if patch.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *patch.Name})
	}
	if patch.Price != nil {
		d128, err := encodePrice(*patch.Price)
		if err != nil {
			return Product{}, false, err
		}
		set = append(set, bson.E{Key: "price", Value: d128})
	}

	var d productDoc
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.products.FindOneAndUpdate(ctx,
			bson.D{{Key: "_id", Value: oid}},
			bson.D{{Key: "$set", Value: set}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&d)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("update product: %w", err)
	}

	p, err := d.product()
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

// DeleteProduct is not atomic. If the cascade fails the product is already
// gone and the error is returned with found set; the stale entries surface in
// ListCart with a nil product and are excluded from CartTotal.
func (s *MongoStore) DeleteProduct(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	filter := bson.D{{Key: "_id", Value: oid}}

	var res *mongo.DeleteResult
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		res, err = s.products.DeleteOne(ctx, filter)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	found := res.DeletedCount > 0

	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.carts.DeleteMany(ctx, bson.D{{Key: "productId", Value: oid}})
		return err
	})
	if err != nil {
		return found, fmt.Errorf("delete cart entries for product %s: %w", id, err)
	}
	return found, nil
}

// ListCart resolves product references with a second query, left-join style.
func (s *MongoStore) ListCart(ctx context.Context) ([]CartLine, error) {
	var docs []cartDoc

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		cur, err := s.carts.Find(ctx, bson.D{},
			options.Find().SetSort(bson.D{{Key: "addedAt", Value: 1}, {Key: "_id", Value: 1}}))
		if err != nil {
			return err
		}
		return cur.All(ctx, &docs)
	})
	if err != nil {
		return nil, fmt.Errorf("find cart entries: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ProductID)
	}

	byID := make(map[string]Product, len(ids))
	if len(ids) > 0 {
		products, err := s.findProducts(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}})
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			byID[p.ID] = p
		}
	}

	out := make([]CartLine, 0, len(docs))
	for _, d := range docs {
		line := CartLine{CartEntry: d.entry()}
		if p, ok := byID[line.ProductID]; ok {
			line.Product = &p
		}
		out = append(out, line)
	}
	return out, nil
}

// AddToCart is one upsert against the unique productId index. Two racing
// first inserts make one of them fail with a duplicate key; that one is
// retried and lands on the increment path.
func (s *MongoStore) AddToCart(ctx context.Context, productID string) (CartEntry, error) {
	oid, err := primitive.ObjectIDFromHex(productID)
	if err != nil {
		return CartEntry{}, fmt.Errorf("%w: product id %q", ErrInvalidID, productID)
	}

	e, err := s.upsertEntry(ctx, oid)
	if mongo.IsDuplicateKeyError(err) {
		e, err = s.upsertEntry(ctx, oid)
	}
	if err != nil {
		return CartEntry{}, fmt.Errorf("add to cart: %w", err)
	}
	return e, nil
}

func (s *MongoStore) upsertEntry(ctx context.Context, productID primitive.ObjectID) (CartEntry, error) {
	var d cartDoc
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.carts.FindOneAndUpdate(ctx,
			bson.D{{Key: "productId", Value: productID}},
			bson.D{
				{Key: "$inc", Value: bson.D{{Key: "quantity", Value: 1}}},
				{Key: "$setOnInsert", Value: bson.D{{Key: "addedAt", Value: time.Now().UTC()}}},
			},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&d)
	})
	if err != nil {
		return CartEntry{}, err
	}
	return d.entry(), nil
}

func (s *MongoStore) RemoveFromCart(ctx context.Context, entryID string) error {
	oid, err := primitive.ObjectIDFromHex(entryID)
	if err != nil {
		return nil
	}
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.carts.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
		return err
	})
	if err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

func (s *MongoStore) ClearCart(ctx context.Context) error {
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.carts.DeleteMany(ctx, bson.D{})
		return err
	})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// CartTotal runs the lookup/unwind/group pipeline; $unwind drops entries whose
// product is gone.
func (s *MongoStore) CartTotal(ctx context.Context) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: productsCollection},
			{Key: "localField", Value: "productId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "product"},
		}}},
		{{Key: "$unwind", Value: "$product"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: bson.D{
				{Key: "$multiply", Value: bson.A{"$product.price", "$quantity"}},
			}}}},
		}}},
	}

	var rows []struct {
		Total bson.RawValue `bson:"total"`
	}
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		cur, err := s.carts.Aggregate(ctx, pipeline)
		if err != nil {
			return err
		}
		return cur.All(ctx, &rows)
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("cart total: %w", err)
	}
	if len(rows) == 0 {
		return decimal.Zero, nil
	}
	return decodePrice(rows[0].Total)
}

func encodePrice(d decimal.Decimal) (primitive.Decimal128, error) {
	d128, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("%w: price %s", ErrInvalidProduct, d.String())
	}
	return d128, nil
}

// decodePrice accepts the numeric encodings found in existing collections:
// documents written by other clients store prices as doubles or integers.
func decodePrice(rv bson.RawValue) (decimal.Decimal, error) {
	switch rv.Type {
	case bsontype.Decimal128:
		return decimal.NewFromString(rv.Decimal128().String())
	case bsontype.Double:
		return decimal.NewFromFloat(rv.Double()), nil
	case bsontype.Int32:
		return decimal.NewFromInt(int64(rv.Int32())), nil
	case bsontype.Int64:
		return decimal.NewFromInt(rv.Int64()), nil
	case bsontype.Null, bsontype.Undefined, 0:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected price type %s", rv.Type)
	}
}
