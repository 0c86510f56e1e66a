package repo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quickcart/internal/domain"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
)

// productDoc is read loosely: products are also written by the catalog
// tooling, so numbers may arrive as any BSON numeric type and stock may be
// absent or non-numeric.
type productDoc struct {
	ID          string        `bson:"_id"`
	Name        string        `bson:"name"`
	Description string        `bson:"description"`
	Images      []string      `bson:"images"`
	Price       bson.RawValue `bson:"price"`
	Discount    bson.RawValue `bson:"discount"`
	Stock       bson.RawValue `bson:"stock"`
}

type orderItemDoc struct {
	Key       string                `bson:"_key"`
	ProductID string                `bson:"product_id"`
	Quantity  int                   `bson:"quantity"`
	UnitPrice *primitive.Decimal128 `bson:"unit_price,omitempty"`
}

type orderDoc struct {
	ID                string               `bson:"_id"`
	OrderNumber       string               `bson:"order_number"`
	CustomerName      string               `bson:"customer_name"`
	CustomerEmail     string               `bson:"customer_email"`
	ClerkUserID       string               `bson:"clerk_user_id"`
	Address           *domain.Address      `bson:"address"`
	PaymentMethod     string               `bson:"payment_method"`
	Status            string               `bson:"status"`
	Currency          string               `bson:"currency"`
	TotalPrice        primitive.Decimal128 `bson:"total_price"`
	AmountDiscount    primitive.Decimal128 `bson:"amount_discount"`
	Items             []orderItemDoc       `bson:"products"`
	CheckoutSessionID string               `bson:"checkout_session_id"`
	PaymentIntentID   string               `bson:"payment_intent_id"`
	Invoice           *invoiceDoc          `bson:"invoice,omitempty"`
	CreatedAt         time.Time            `bson:"created_at"`
}

type invoiceDoc struct {
	ID        string `bson:"id"`
	Number    string `bson:"number"`
	HostedURL string `bson:"hosted_invoice_url"`
}

// CreateMongoIndexes installs the indexes the mongo repositories rely on,
// including the partial unique index that rejects a second card order for
// one checkout session.
func CreateMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(ordersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "checkout_session_id", Value: 1}},
			Options: options.Index().
				SetName("card_session_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"payment_method": string(domain.PaymentCard)}),
		},
		{
			Keys: bson.D{{Key: "clerk_user_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "order_number", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	_, err = db.Collection(productsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "name", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create product indexes: %w", err)
	}
	return nil
}

type mongoProductRepo struct {
	collection *mongo.Collection
}

func NewMongoProductRepo(db *mongo.Database) ProductRepo {
	return &mongoProductRepo{collection: db.Collection(productsCollection)}
}

func (m *mongoProductRepo) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDoc
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *mongoProductRepo) DecrementStock(ctx context.Context, id string, quantity int) error {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": id, "stock": bson.M{"$type": "number"}},
		mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"stock": bson.M{"$max": bson.A{bson.M{"$subtract": bson.A{"$stock", int64(quantity)}}, 0}},
			}}},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *mongoProductRepo) Search(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"name": pattern},
		bson.M{"description": pattern},
	}}
	opts := options.Find().SetLimit(int64(limit)).SetSort(bson.D{{Key: "name", Value: 1}})

	cur, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, d := range docs {
		p, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (m *mongoProductRepo) Upsert(ctx context.Context, p domain.Product) error {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	discount, err := toDecimal128(p.Discount)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	set := bson.M{
		"name":        p.Name,
		"description": p.Description,
		"images":      p.Images,
		"price":       price,
		"discount":    discount,
		"stock":       p.Stock,
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.collection.UpdateOne(ctx, bson.M{"_id": p.ID}, bson.M{"$set": set}, opts); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

type mongoOrderRepo struct {
	collection *mongo.Collection
}

func NewMongoOrderRepo(db *mongo.Database) OrderRepo {
	return &mongoOrderRepo{collection: db.Collection(ordersCollection)}
}

func (m *mongoOrderRepo) CreateOrder(ctx context.Context, order *domain.Order) error {
	doc, err := newOrderDoc(order)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	_, err = m.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *mongoOrderRepo) ExistsBySessionID(ctx context.Context, sessionID string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx,
		bson.M{"checkout_session_id": sessionID, "payment_method": string(domain.PaymentCard)},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	return n > 0, nil
}

func (m *mongoOrderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	var doc orderDoc
	err := m.collection.FindOne(ctx, bson.M{"order_number": orderNumber}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	o, err := doc.toDomain()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (m *mongoOrderRepo) ListByUser(ctx context.Context, clerkUserID string) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := m.collection.Find(ctx, bson.M{"clerk_user_id": clerkUserID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, d := range docs {
		o, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (d productDoc) toDomain() (domain.Product, error) {
	price, err := decimalFromRaw(d.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: price: %w", d.ID, err)
	}
	discount := decimal.Zero
	if d.Discount.Type != 0 && d.Discount.Type != bson.TypeNull {
		if discount, err = decimalFromRaw(d.Discount); err != nil {
			return domain.Product{}, fmt.Errorf("product %s: discount: %w", d.ID, err)
		}
	}
	return domain.Product{
		ID:          d.ID,
		Name:        d.Name,
		Description: d.Description,
		Images:      d.Images,
		Price:       price,
		Discount:    discount,
		Stock:       stockFromRaw(d.Stock),
	}, nil
}

func newOrderDoc(o *domain.Order) (orderDoc, error) {
	total, err := toDecimal128(o.TotalPrice)
	if err != nil {
		return orderDoc{}, fmt.Errorf("total price: %w", err)
	}
	discount, err := toDecimal128(o.AmountDiscount)
	if err != nil {
		return orderDoc{}, fmt.Errorf("amount discount: %w", err)
	}
	doc := orderDoc{
		ID:                o.ID.String(),
		OrderNumber:       o.OrderNumber,
		CustomerName:      o.CustomerName,
		CustomerEmail:     o.CustomerEmail,
		ClerkUserID:       o.ClerkUserID,
		Address:           o.Address,
		PaymentMethod:     string(o.PaymentMethod),
		Status:            string(o.Status),
		Currency:          o.Currency,
		TotalPrice:        total,
		AmountDiscount:    discount,
		CheckoutSessionID: o.CheckoutSessionID,
		PaymentIntentID:   o.PaymentIntentID,
		CreatedAt:         o.CreatedAt,
	}
	for _, it := range o.Items {
		item := orderItemDoc{Key: it.Key, ProductID: it.ProductID, Quantity: it.Quantity}
		if it.UnitPrice.Valid {
			unit, err := toDecimal128(it.UnitPrice.Decimal)
			if err != nil {
				return orderDoc{}, fmt.Errorf("unit price of %s: %w", it.ProductID, err)
			}
			item.UnitPrice = &unit
		}
		doc.Items = append(doc.Items, item)
	}
	if o.Invoice != nil {
		doc.Invoice = &invoiceDoc{ID: o.Invoice.ID, Number: o.Invoice.Number, HostedURL: o.Invoice.HostedURL}
	}
	return doc, nil
}

func (d orderDoc) toDomain() (domain.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: bad id: %w", d.OrderNumber, err)
	}
	o := domain.Order{
		ID:                id,
		OrderNumber:       d.OrderNumber,
		CustomerName:      d.CustomerName,
		CustomerEmail:     d.CustomerEmail,
		ClerkUserID:       d.ClerkUserID,
		Address:           d.Address,
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		Status:            domain.OrderStatus(d.Status),
		Currency:          d.Currency,
		CheckoutSessionID: d.CheckoutSessionID,
		PaymentIntentID:   d.PaymentIntentID,
		CreatedAt:         d.CreatedAt,
	}
	if o.TotalPrice, err = fromDecimal128(d.TotalPrice); err != nil {
		return domain.Order{}, fmt.Errorf("order %s: total price: %w", d.OrderNumber, err)
	}
	if o.AmountDiscount, err = fromDecimal128(d.AmountDiscount); err != nil {
		return domain.Order{}, fmt.Errorf("order %s: amount discount: %w", d.OrderNumber, err)
	}
	for _, it := range d.Items {
		item := domain.OrderItem{Key: it.Key, ProductID: it.ProductID, Quantity: it.Quantity}
		if it.UnitPrice != nil {
			unit, err := fromDecimal128(*it.UnitPrice)
			if err != nil {
				return domain.Order{}, fmt.Errorf("order %s: unit price: %w", d.OrderNumber, err)
			}
			item.UnitPrice = decimal.NewNullDecimal(unit)
		}
		o.Items = append(o.Items, item)
	}
	if d.Invoice != nil {
		o.Invoice = &domain.Invoice{ID: d.Invoice.ID, Number: d.Invoice.Number, HostedURL: d.Invoice.HostedURL}
	}
	return o, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	return primitive.ParseDecimal128(d.String())
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	return decimal.NewFromString(v.String())
}

func decimalFromRaw(v bson.RawValue) (decimal.Decimal, error) {
	if d, ok := v.Decimal128OK(); ok {
		return fromDecimal128(d)
	}
	if f, ok := v.DoubleOK(); ok {
		return decimal.NewFromFloat(f), nil
	}
	if n, ok := v.Int64OK(); ok {
		return decimal.NewFromInt(n), nil
	}
	if n, ok := v.Int32OK(); ok {
		return decimal.NewFromInt32(n), nil
	}
	return decimal.Zero, fmt.Errorf("not a number (bson type %s)", v.Type)
}

// stockFromRaw maps anything but a BSON number to untracked stock.
func stockFromRaw(v bson.RawValue) *int64 {
	if n, ok := v.Int64OK(); ok {
		return &n
	}
	if n, ok := v.Int32OK(); ok {
		return lo.ToPtr(int64(n))
	}
	if f, ok := v.DoubleOK(); ok {
		return lo.ToPtr(int64(f))
	}
	return nil
}
