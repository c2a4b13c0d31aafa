package store

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	exchange "github.com/thrasher-corp/testex/exchanges"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Mongo persists the four collections in a MongoDB database. Monetary
// fields are stored as Decimal128 and restored to native decimals on every
// read path; transient connectivity failures are retried per withRetry.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

// Connect dials the database and verifies the connection
func Connect(ctx context.Context, uri, database string, log *zap.Logger) (*Mongo, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetRegistry(newRegistry())

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging mongo")
	}

	return &Mongo{
		client: client,
		db:     client.Database(database),
		log:    log,
	}, nil
}

// Close disconnects the client
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func isTransient(err error) bool {
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

func (m *Mongo) retry(ctx context.Context, name string, op func() error) error {
	return withRetry(ctx, m.log, name, isTransient, op)
}

// InsertOrder inserts a new order document
func (m *Mongo) InsertOrder(ctx context.Context, o exchange.Order) error {
	return m.retry(ctx, "insert order", func() error {
		_, err := m.db.Collection(CollectionOrders).InsertOne(ctx, o)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return errors.Wrap(err, "inserting order")
	})
}

// FindOrder fetches one order scoped to an api key
func (m *Mongo) FindOrder(ctx context.Context, apiKey, number string) (*exchange.Order, error) {
	var o exchange.Order
	err := m.retry(ctx, "find order", func() error {
		err := m.db.Collection(CollectionOrders).
			FindOne(ctx, bson.M{"_id": number, "api_key": apiKey}).
			Decode(&o)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return errors.Wrap(err, "finding order")
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// FindOrders lists an api key's orders by status, optionally narrowed to a
// market
func (m *Mongo) FindOrders(ctx context.Context, apiKey string, status exchange.OrderStatus, market string) ([]exchange.Order, error) {
	filter := bson.M{"api_key": apiKey, "status": status}
	if market != "" {
		filter["market"] = market
	}

	var orders []exchange.Order
	err := m.retry(ctx, "find orders", func() error {
		cur, err := m.db.Collection(CollectionOrders).Find(ctx, filter)
		if err != nil {
			return errors.Wrap(err, "finding orders")
		}
		orders = orders[:0]
		return errors.Wrap(cur.All(ctx, &orders), "decoding orders")
	})
	return orders, err
}

// FindOpenOrders lists every opened order across api keys
func (m *Mongo) FindOpenOrders(ctx context.Context) ([]exchange.Order, error) {
	var orders []exchange.Order
	err := m.retry(ctx, "find open orders", func() error {
		cur, err := m.db.Collection(CollectionOrders).Find(ctx, bson.M{"status": exchange.Opened})
		if err != nil {
			return errors.Wrap(err, "finding open orders")
		}
		orders = orders[:0]
		return errors.Wrap(cur.All(ctx, &orders), "decoding open orders")
	})
	return orders, err
}

// ApplyOrderFill increments executed_amount and sets the new average price,
// status and update time in one find-and-modify gated on status=opened,
// returning the updated document
func (m *Mongo) ApplyOrderFill(ctx context.Context, number string, fill, averagePrice decimal.Decimal, status exchange.OrderStatus, at time.Time) (*exchange.Order, error) {
	update := bson.M{
		"$inc": bson.M{"executed_amount": fill},
		"$set": bson.M{
			"average_price": averagePrice,
			"status":        status,
			"updated_at":    at,
		},
	}

	var o exchange.Order
	err := m.retry(ctx, "apply order fill", func() error {
		err := m.db.Collection(CollectionOrders).
			FindOneAndUpdate(ctx,
				bson.M{"_id": number, "status": exchange.Opened},
				update,
				options.FindOneAndUpdate().SetReturnDocument(options.After)).
			Decode(&o)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return errors.Wrap(err, "applying order fill")
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CloseOrder transitions an opened order to closed, returning the updated
// document
func (m *Mongo) CloseOrder(ctx context.Context, apiKey, number string, at time.Time) (*exchange.Order, error) {
	update := bson.M{"$set": bson.M{
		"status":     exchange.Closed,
		"updated_at": at,
	}}

	var o exchange.Order
	err := m.retry(ctx, "close order", func() error {
		err := m.db.Collection(CollectionOrders).
			FindOneAndUpdate(ctx,
				bson.M{"_id": number, "api_key": apiKey, "status": exchange.Opened},
				update,
				options.FindOneAndUpdate().SetReturnDocument(options.After)).
			Decode(&o)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return errors.Wrap(err, "closing order")
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertTrade inserts a new trade document
func (m *Mongo) InsertTrade(ctx context.Context, t exchange.Trade) error {
	return m.retry(ctx, "insert trade", func() error {
		_, err := m.db.Collection(CollectionTrades).InsertOne(ctx, t)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return errors.Wrap(err, "inserting trade")
	})
}

// FindTrades lists an api key's trades matching the filter
func (m *Mongo) FindTrades(ctx context.Context, apiKey string, filter exchange.TradeFilter) ([]exchange.Trade, error) {
	query := bson.M{"api_key": apiKey}
	if filter.OrderNumber != "" {
		query["order_number"] = filter.OrderNumber
	}
	if filter.Market != "" {
		query["market"] = filter.Market
	}
	addInterval(query, filter.StartAt, filter.EndAt)

	opts := options.Find()
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}

	var trades []exchange.Trade
	err := m.retry(ctx, "find trades", func() error {
		cur, err := m.db.Collection(CollectionTrades).Find(ctx, query, opts)
		if err != nil {
			return errors.Wrap(err, "finding trades")
		}
		trades = trades[:0]
		return errors.Wrap(cur.All(ctx, &trades), "decoding trades")
	})
	return trades, err
}

// InsertTransaction inserts a new transaction document
func (m *Mongo) InsertTransaction(ctx context.Context, tx exchange.Transaction) error {
	return m.retry(ctx, "insert transaction", func() error {
		_, err := m.db.Collection(CollectionTransactions).InsertOne(ctx, tx)
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return errors.Wrap(err, "inserting transaction")
	})
}

// FindTransactions lists an api key's transactions matching the filter
func (m *Mongo) FindTransactions(ctx context.Context, apiKey string, filter exchange.TransactionFilter) ([]exchange.Transaction, error) {
	query := bson.M{"api_key": apiKey}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if filter.Currency != "" {
		query["currency"] = filter.Currency
	}
	addInterval(query, filter.StartAt, filter.EndAt)

	var txs []exchange.Transaction
	err := m.retry(ctx, "find transactions", func() error {
		cur, err := m.db.Collection(CollectionTransactions).Find(ctx, query)
		if err != nil {
			return errors.Wrap(err, "finding transactions")
		}
		txs = txs[:0]
		return errors.Wrap(cur.All(ctx, &txs), "decoding transactions")
	})
	return txs, err
}

// FindUnconfirmedTransactions lists every transaction not yet confirmed,
// across api keys
func (m *Mongo) FindUnconfirmedTransactions(ctx context.Context) ([]exchange.Transaction, error) {
	filter := bson.M{"status": bson.M{"$ne": exchange.Confirmed}}

	var txs []exchange.Transaction
	err := m.retry(ctx, "find unconfirmed transactions", func() error {
		cur, err := m.db.Collection(CollectionTransactions).Find(ctx, filter)
		if err != nil {
			return errors.Wrap(err, "finding unconfirmed transactions")
		}
		txs = txs[:0]
		return errors.Wrap(cur.All(ctx, &txs), "decoding unconfirmed transactions")
	})
	return txs, err
}

// ConfirmTransaction sets a transaction's status to confirmed, returning the
// updated document
func (m *Mongo) ConfirmTransaction(ctx context.Context, apiKey, id string, at time.Time) (*exchange.Transaction, error) {
	update := bson.M{"$set": bson.M{
		"status":     exchange.Confirmed,
		"updated_at": at,
	}}

	var tx exchange.Transaction
	err := m.retry(ctx, "confirm transaction", func() error {
		err := m.db.Collection(CollectionTransactions).
			FindOneAndUpdate(ctx,
				bson.M{"_id": id, "api_key": apiKey},
				update,
				options.FindOneAndUpdate().SetReturnDocument(options.After)).
			Decode(&tx)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return errors.Wrap(err, "confirming transaction")
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindBalances lists every balance row for an api key
func (m *Mongo) FindBalances(ctx context.Context, apiKey string) ([]exchange.Balance, error) {
	var balances []exchange.Balance
	err := m.retry(ctx, "find balances", func() error {
		cur, err := m.db.Collection(CollectionBalances).Find(ctx, bson.M{"api_key": apiKey})
		if err != nil {
			return errors.Wrap(err, "finding balances")
		}
		balances = balances[:0]
		return errors.Wrap(cur.All(ctx, &balances), "decoding balances")
	})
	return balances, err
}

// FindBalance fetches one balance cell
func (m *Mongo) FindBalance(ctx context.Context, apiKey, currency string) (*exchange.Balance, error) {
	var b exchange.Balance
	err := m.retry(ctx, "find balance", func() error {
		err := m.db.Collection(CollectionBalances).
			FindOne(ctx, bson.M{"api_key": apiKey, "currency": currency}).
			Decode(&b)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return errors.Wrap(err, "finding balance")
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// IncrementBalance applies one currency's delta atomically, upserting the
// row with a fresh uuid id when it does not exist yet
func (m *Mongo) IncrementBalance(ctx context.Context, apiKey, currency string, delta exchange.BalanceDelta) error {
	inc := bson.M{}
	if !delta.Available.IsZero() {
		inc["available"] = delta.Available
	}
	if !delta.Frozen.IsZero() {
		inc["frozen"] = delta.Frozen
	}
	if !delta.Pending.IsZero() {
		inc["pending"] = delta.Pending
	}
	if len(inc) == 0 {
		return nil
	}

	id, err := uuid.NewV4()
	if err != nil {
		return errors.Wrap(err, "generating balance id")
	}

	update := bson.M{
		"$inc":         inc,
		"$setOnInsert": bson.M{"_id": id.String()},
	}

	return m.retry(ctx, "increment balance", func() error {
		_, err := m.db.Collection(CollectionBalances).UpdateOne(ctx,
			bson.M{"api_key": apiKey, "currency": currency},
			update,
			options.Update().SetUpsert(true))
		return errors.Wrap(err, "incrementing balance")
	})
}

func addInterval(query bson.M, start, end time.Time) {
	cond := bson.M{}
	if !start.IsZero() {
		cond["$gt"] = start
	}
	if !end.IsZero() {
		cond["$lt"] = end
	}
	if len(cond) > 0 {
		query["created_at"] = cond
	}
}
