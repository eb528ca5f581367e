package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jacentio/espalier/tree"
)

// Store is the DynamoDB implementation of tree.RowStore. Node rows live
// in a single table keyed by id, with GSIs for ordered forest scans,
// child listings, and root enumeration. Forest-scoped exclusive locks are
// lease items in a separate table, fenced by uuid tokens that every
// commit re-checks transactionally.
type Store struct {
	client *dynamodb.Client
	config Config
	logger *slog.Logger
}

// New creates a new Store instance.
func New(client *dynamodb.Client, config Config) *Store {
	return NewWithLogger(client, config, nil)
}

// NewWithLogger creates a new Store instance with a logger for oversize
// commit and lock-contention events.
func NewWithLogger(client *dynamodb.Client, config Config, logger *slog.Logger) *Store {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		config: config,
		logger: logger,
	}
}

// lockRecord is a forest lock lease.
type lockRecord struct {
	ForestID  string `dynamodbav:"forest_id"`
	Token     string `dynamodbav:"token"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// tombstoneFilter excludes rows whose cascade delete is in flight.
const tombstoneFilter = "attribute_not_exists(deleting)"

// Get implements tree.Reader with a strongly consistent point read.
func (s *Store) Get(ctx context.Context, id string) (*tree.Node, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.NodeTable),
		Key:            nodeKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s", tree.ErrNotFound, id)
	}
	if _, tombstoned := result.Item["deleting"]; tombstoned {
		return nil, fmt.Errorf("%w: %s", tree.ErrNotFound, id)
	}
	return unmarshalNode(result.Item)
}

// Forest implements tree.Reader; the forest index orders rows by lo.
func (s *Store) Forest(ctx context.Context, forestID string) ([]*tree.Node, error) {
	return s.queryIndex(ctx, s.config.ForestIndex, "forest_id", forestID)
}

// Children implements tree.Reader; the parent index orders rows by lo.
func (s *Store) Children(ctx context.Context, parentID string) ([]*tree.Node, error) {
	if parentID == "" {
		return nil, nil
	}
	return s.queryIndex(ctx, s.config.ParentIndex, "parent_id", parentID)
}

// Roots implements tree.Reader; the root index orders rows by created_at.
func (s *Store) Roots(ctx context.Context) ([]*tree.Node, error) {
	return s.queryIndex(ctx, s.config.RootIndex, "root", rootMarker)
}

func (s *Store) queryIndex(ctx context.Context, index, keyAttr, keyValue string) ([]*tree.Node, error) {
	var nodes []*tree.Node
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.NodeTable),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String("#k = :v"),
		FilterExpression:       aws.String(tombstoneFilter),
		ExpressionAttributeNames: map[string]string{
			"#k": keyAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: keyValue},
		},
		ScanIndexForward: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			n, err := unmarshalNode(raw)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// Update implements tree.RowStore. Locks are acquired per forest in
// sorted order (no lock-order deadlocks between concurrent mutations),
// fn's buffered writes commit through TransactWriteItems with a fencing
// condition check on every held lock, and the locks are released after.
func (s *Store) Update(ctx context.Context, forestIDs []string, fn func(tree.Txn) error) error {
	forests := dedupeSorted(forestIDs)
	token := uuid.NewString()

	var held []string
	for _, f := range forests {
		if err := s.acquireLock(ctx, f, token); err != nil {
			s.releaseLocks(ctx, held, token)
			return err
		}
		held = append(held, f)
	}
	defer s.releaseLocks(ctx, held, token)

	txn := &dynamoTxn{
		store: s,
		puts:  make(map[string]tree.Node),
		dels:  make(map[string]bool),
	}
	if err := fn(txn); err != nil {
		return err
	}
	return s.commit(ctx, forests, token, txn)
}

func (s *Store) acquireLock(ctx context.Context, forestID, token string) error {
	record := lockRecord{
		ForestID:  forestID,
		Token:     token,
		ExpiresAt: time.Now().Add(s.config.LockTTL).Unix(),
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal lock: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.config.LockTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(forest_id) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(time.Now().Unix(), 10),
			},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return fmt.Errorf("%w: forest %s", ErrForestLocked, forestID)
	}
	return err
}

func (s *Store) releaseLocks(ctx context.Context, forests []string, token string) {
	for _, f := range forests {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.config.LockTable),
			Key: map[string]types.AttributeValue{
				"forest_id": &types.AttributeValueMemberS{Value: f},
			},
			ConditionExpression: aws.String("#token = :token"),
			ExpressionAttributeNames: map[string]string{
				"#token": "token",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":token": &types.AttributeValueMemberS{Value: token},
			},
		})
		if err != nil {
			// expired and stolen, or already gone
			s.logger.Warn("failed to release forest lock",
				"forest", f,
				"error", err,
			)
		}
	}
}

// commit writes the transaction buffer. Small commits go out as a single
// TransactWriteItems with fencing checks on every held lock. Oversize
// delete sets are tombstoned at the subtree root and completed by the
// stream handler. Oversize put sets are refused outright, before anything
// is written: applying them in several transactions would expose a
// half-renumbered forest to readers and to crash recovery, and a partial
// renumbering cannot be completed without risking a sibling reorder.
func (s *Store) commit(ctx context.Context, forests []string, token string, txn *dynamoTxn) error {
	if len(txn.puts) == 0 && len(txn.dels) == 0 {
		return nil
	}

	checks := s.lockChecks(forests, token)
	budget := s.config.MaxTransactItems - len(checks)

	if len(txn.puts) > budget {
		return fmt.Errorf("%w: %d rows to write, budget %d", ErrMutationTooLarge, len(txn.puts), budget)
	}

	if len(txn.puts)+len(txn.dels) > budget {
		if err := s.tombstoneDeletes(ctx, txn); err != nil {
			return err
		}
		if len(txn.puts) == 0 {
			return nil
		}
		txn.dels = nil
	}

	items := checks
	for _, n := range txn.puts {
		n := n
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.config.NodeTable),
				Item:      marshalNode(&n),
			},
		})
	}
	for id := range txn.dels {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(s.config.NodeTable),
				Key:       nodeKey(id),
			},
		})
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return s.mapTransactionError(err, len(checks))
}

// tombstoneDeletes marks the shallowest row of an oversize delete set
// with a deleting timestamp; the stream handler removes the contained
// range afterwards. The engine only ever deletes a node together with its
// full contained range, so the minimum-lo row covers the whole set.
func (s *Store) tombstoneDeletes(ctx context.Context, txn *dynamoTxn) error {
	var root *tree.Node
	for id := range txn.dels {
		n, err := s.Get(ctx, id)
		if errors.Is(err, tree.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if root == nil || n.Lo.LessThan(root.Lo) {
			root = n
		}
	}
	if root == nil {
		return nil
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.config.NodeTable),
		Key:              nodeKey(root.ID),
		UpdateExpression: aws.String("SET deleting = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(time.Now().Unix(), 10),
			},
		},
	})
	if err != nil {
		return err
	}

	s.logger.Warn("cascade delete exceeds transaction cap, tombstoned for stream completion",
		"node", root.ID,
		"forest", root.ForestID,
		"rows", len(txn.dels),
	)
	return nil
}

func (s *Store) lockChecks(forests []string, token string) []types.TransactWriteItem {
	checks := make([]types.TransactWriteItem, 0, len(forests))
	for _, f := range forests {
		checks = append(checks, types.TransactWriteItem{
			ConditionCheck: &types.ConditionCheck{
				TableName: aws.String(s.config.LockTable),
				Key: map[string]types.AttributeValue{
					"forest_id": &types.AttributeValueMemberS{Value: f},
				},
				ConditionExpression: aws.String("#token = :token"),
				ExpressionAttributeNames: map[string]string{
					"#token": "token",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":token": &types.AttributeValueMemberS{Value: token},
				},
			},
		})
	}
	return checks
}

// mapTransactionError maps a cancelled transaction back to a domain
// error. A failed condition at a lock-check index means the lease expired
// and was stolen mid-mutation.
func (s *Store) mapTransactionError(err error, numChecks int) error {
	if err == nil {
		return nil
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" && i < numChecks {
				return fmt.Errorf("%w: lock lost at commit", ErrForestLocked)
			}
		}
	}
	return err
}

// DeleteRange removes every row of the forest with lo in [lo, hi],
// endpoints included. Used by the stream handler to complete tombstoned
// cascade deletes; it is idempotent and safe to retry.
func (s *Store) DeleteRange(ctx context.Context, forestID string, lo, hi decimal.Decimal) (int, error) {
	var ids []string
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.NodeTable),
		IndexName:              aws.String(s.config.ForestIndex),
		KeyConditionExpression: aws.String("forest_id = :f AND lo BETWEEN :lo AND :hi"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f":  &types.AttributeValueMemberS{Value: forestID},
			":lo": &types.AttributeValueMemberN{Value: lo.String()},
			":hi": &types.AttributeValueMemberN{Value: hi.String()},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, raw := range page.Items {
			if v, ok := raw["id"].(*types.AttributeValueMemberS); ok {
				ids = append(ids, v.Value)
			}
		}
	}

	for _, id := range ids {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.config.NodeTable),
			Key:       nodeKey(id),
		})
		if err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// dynamoTxn buffers writes against a Store. Reads observe committed
// state; the engine finishes reading before it writes.
type dynamoTxn struct {
	store *Store
	puts  map[string]tree.Node
	dels  map[string]bool
}

func (t *dynamoTxn) Get(ctx context.Context, id string) (*tree.Node, error) {
	return t.store.Get(ctx, id)
}

func (t *dynamoTxn) Forest(ctx context.Context, forestID string) ([]*tree.Node, error) {
	return t.store.Forest(ctx, forestID)
}

func (t *dynamoTxn) Children(ctx context.Context, parentID string) ([]*tree.Node, error) {
	return t.store.Children(ctx, parentID)
}

func (t *dynamoTxn) Roots(ctx context.Context) ([]*tree.Node, error) {
	return t.store.Roots(ctx)
}

func (t *dynamoTxn) Put(n *tree.Node) {
	delete(t.dels, n.ID)
	t.puts[n.ID] = *n
}

func (t *dynamoTxn) Delete(id string) {
	delete(t.puts, id)
	t.dels[id] = true
}

func dedupeSorted(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
