package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/sicko7947/etlkit"
	"github.com/sicko7947/etlkit/table"
)

// maxTransactItems is the DynamoDB limit of items per TransactWriteItems call
const maxTransactItems = 100

// DynamoDBStore persists one dataset in a DynamoDB single-table layout.
// cfg.Schema names the physical table (default "etlkit") and cfg.Table the
// dataset (default: the store name).
type DynamoDBStore struct {
	base
	client    DynamoDBClient
	tableName string
	dataset   string
	region    string
	endpoint  string
	batchSize int
}

// datasetMeta is the META item of a dataset
type datasetMeta struct {
	Columns   []string  `dynamodbav:"columns"`
	Types     []string  `dynamodbav:"types"`
	Rows      int       `dynamodbav:"rows"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

type datasetRow struct {
	sk     string
	values map[string]any
}

// NewDynamoDBStore creates a DynamoDB store. cfg.Conn may hold a
// DynamoDBClient; otherwise a client is built on first use from the default
// AWS configuration, cfg.Region and the endpoint option.
func NewDynamoDBStore(name string, stype etlkit.StoreType, cfg etlkit.StoreConfig, logger zerolog.Logger) (*DynamoDBStore, error) {
	b, err := newBase(KindDynamoDB, name, stype, logger)
	if err != nil {
		return nil, err
	}

	s := &DynamoDBStore{
		base:      b,
		tableName: lo.Ternary(cfg.Schema != "", cfg.Schema, DefaultDynamoTable),
		dataset:   lo.Ternary(cfg.Table != "", cfg.Table, name),
		region:    lo.Ternary(cfg.Region != "", cfg.Region, etlkit.DefaultDynamoRegion),
		endpoint:  cfg.OptString("endpoint", ""),
		batchSize: min(max(cfg.OptInt("batch_size", 25), 1), maxTransactItems),
	}

	switch conn := cfg.Conn.(type) {
	case nil:
	case DynamoDBClient:
		s.client = conn
	default:
		return nil, b.errorf(etlkit.ErrCodeConfig, "conn of type %T is not a DynamoDB client", cfg.Conn)
	}
	return s, nil
}

// Dataset returns the dataset name used in partition keys
func (s *DynamoDBStore) Dataset() string {
	return s.dataset
}

func (s *DynamoDBStore) getClient(ctx context.Context) (DynamoDBClient, error) {
	if s.client != nil {
		return s.client, nil
	}
	client, err := NewDynamoDBClient(ctx, s.region, s.endpoint)
	if err != nil {
		return nil, s.errorf(etlkit.ErrCodeConfig, "failed to load AWS config").Wrap(err)
	}
	s.client = client
	return client, nil
}

// Extract reads every row of the dataset
func (s *DynamoDBStore) Extract(ctx context.Context, req etlkit.ExtractRequest) (*table.Table, error) {
	if err := s.checkExtract(); err != nil {
		return nil, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	meta, err := s.loadMeta(ctx, client)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, s.errorf(etlkit.ErrCodeNotFound, "dataset %s not found", s.dataset)
	}

	rows, err := s.queryRows(ctx, client)
	if err != nil {
		return nil, err
	}
	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}

	data, err := s.buildTable(meta, rows)
	if err != nil {
		return nil, err
	}
	if err := parseDates(data, req.ParseDates); err != nil {
		return nil, withStore(err, s.name)
	}

	s.data = data
	return data, nil
}

// Load writes data as the dataset. An existing dataset is only replaced
// when overwrite is requested.
func (s *DynamoDBStore) Load(ctx context.Context, data *table.Table, opts etlkit.LoadOptions) (int, error) {
	if err := s.checkLoad(data); err != nil {
		return 0, err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return 0, err
	}

	meta, err := s.loadMeta(ctx, client)
	if err != nil {
		return 0, err
	}
	if meta != nil && !overwrite(opts) {
		return 0, s.errorf(etlkit.ErrCodeConflict, "dataset %s already exists", s.dataset)
	}
	if meta != nil {
		existing, err := s.queryRows(ctx, client)
		if err != nil {
			return 0, err
		}
		for _, row := range existing {
			if err := s.deleteRow(ctx, client, row.sk); err != nil {
				return 0, err
			}
		}
	}

	items := make([]types.TransactWriteItem, 0, data.NumRows())
	for i := 0; i < data.NumRows(); i++ {
		item, err := s.rowItem(datasetRowSK(i), data.RowMap(i))
		if err != nil {
			return 0, err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.tableName), Item: item},
		})
	}
	if err := s.writeItems(ctx, client, items); err != nil {
		return 0, err
	}

	newMeta := &datasetMeta{
		Columns:   data.Columns(),
		Types:     make([]string, data.NumCols()),
		Rows:      data.NumRows(),
		UpdatedAt: time.Now().UTC(),
	}
	for i := range newMeta.Types {
		newMeta.Types[i] = table.TypeName(data.ColumnAt(i).Type)
	}
	if err := s.putMeta(ctx, client, newMeta); err != nil {
		return 0, err
	}

	s.data = data
	return data.NumRows(), nil
}

// Clean deletes the rows matching conditions combined with op
func (s *DynamoDBStore) Clean(ctx context.Context, conditions []etlkit.Condition, op etlkit.BinaryOp) (int64, error) {
	client, meta, rows, data, err := s.snapshot(ctx, lo.Map(conditions, func(c etlkit.Condition, _ int) string {
		return c.Column
	}))
	if err != nil {
		return 0, err
	}

	var deleted int64
	for i, row := range rows {
		matched, err := etlkit.MatchAll(data.RowMap(i), conditions, op)
		if err != nil {
			return deleted, withStore(err, s.name)
		}
		if !matched {
			continue
		}
		if err := s.deleteRow(ctx, client, row.sk); err != nil {
			return deleted, err
		}
		deleted++
	}

	meta.Rows = len(rows) - int(deleted)
	meta.UpdatedAt = time.Now().UTC()
	return deleted, s.putMeta(ctx, client, meta)
}

// Update sets values on the rows whose where columns equal the given values
func (s *DynamoDBStore) Update(ctx context.Context, values, where map[string]any) (int64, error) {
	if len(values) == 0 {
		return 0, s.errorf(etlkit.ErrCodeConfig, "update needs at least one value")
	}
	if len(where) == 0 {
		return 0, s.errorf(etlkit.ErrCodeNotSupported, "update without a where clause")
	}

	client, meta, rows, data, err := s.snapshot(ctx, append(lo.Keys(values), lo.Keys(where)...))
	if err != nil {
		return 0, err
	}
	values, err = s.coerceValues(meta, values)
	if err != nil {
		return 0, err
	}

	conditions := lo.MapToSlice(where, func(col string, v any) etlkit.Condition {
		return etlkit.Condition{Column: col, Op: etlkit.OpEQ, Value: v}
	})

	var items []types.TransactWriteItem
	for i, row := range rows {
		matched, err := etlkit.MatchAll(data.RowMap(i), conditions, etlkit.BinaryAnd)
		if err != nil {
			return 0, withStore(err, s.name)
		}
		if !matched {
			continue
		}
		next := data.RowMap(i)
		for col, v := range values {
			next[col] = v
		}
		item, err := s.rowItem(row.sk, next)
		if err != nil {
			return 0, err
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(s.tableName), Item: item},
		})
	}

	if err := s.writeItems(ctx, client, items); err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

// coerceValues converts update values to the column types recorded in META
func (s *DynamoDBStore) coerceValues(meta *datasetMeta, values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for col, v := range values {
		out[col] = v
		i := lo.IndexOf(meta.Columns, col)
		if i < 0 || i >= len(meta.Types) {
			continue
		}
		dt, err := table.ParseType(meta.Types[i])
		if err != nil {
			continue
		}
		typed, err := table.NewTypedColumn(col, dt, []any{v})
		if err != nil {
			return nil, s.errorf(etlkit.ErrCodeConfig, "value for column %q is not a %s", col, meta.Types[i]).Wrap(err)
		}
		out[col] = typed.Values[0]
	}
	return out, nil
}

// snapshot reads the dataset and checks that columns exist in it
func (s *DynamoDBStore) snapshot(ctx context.Context, columns []string) (DynamoDBClient, *datasetMeta, []datasetRow, *table.Table, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	meta, err := s.loadMeta(ctx, client)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if meta == nil {
		return nil, nil, nil, nil, s.errorf(etlkit.ErrCodeNotFound, "dataset %s not found", s.dataset)
	}
	for _, col := range columns {
		if !lo.Contains(meta.Columns, col) {
			return nil, nil, nil, nil, s.errorf(etlkit.ErrCodeNotFound, "column %q not found", col)
		}
	}

	rows, err := s.queryRows(ctx, client)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	data, err := s.buildTable(meta, rows)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return client, meta, rows, data, nil
}

// Transform applies fn to the store
func (s *DynamoDBStore) Transform(ctx context.Context, fn etlkit.StoreFunc) (any, error) {
	return fn(ctx, s)
}

// Close drops the cached table
func (s *DynamoDBStore) Close() error {
	s.data = nil
	return nil
}

func (s *DynamoDBStore) loadMeta(ctx context.Context, client DynamoDBClient) (*datasetMeta, error) {
	result, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: datasetPK(s.dataset)},
			AttrSK: &types.AttributeValueMemberS{Value: datasetMetaSK()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store %s: failed to get dataset metadata: %w", s.name, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var meta datasetMeta
	if err := attributevalue.UnmarshalMap(result.Item, &meta); err != nil {
		return nil, fmt.Errorf("store %s: failed to unmarshal dataset metadata: %w", s.name, err)
	}
	return &meta, nil
}

func (s *DynamoDBStore) putMeta(ctx context.Context, client DynamoDBClient, meta *datasetMeta) error {
	item, err := attributevalue.MarshalMap(meta)
	if err != nil {
		return fmt.Errorf("store %s: failed to marshal dataset metadata: %w", s.name, err)
	}

	item[AttrPK] = &types.AttributeValueMemberS{Value: datasetPK(s.dataset)}
	item[AttrSK] = &types.AttributeValueMemberS{Value: datasetMetaSK()}
	item[AttrEntityType] = &types.AttributeValueMemberS{Value: EntityTypeDatasetMeta}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("store %s: failed to put dataset metadata: %w", s.name, err)
	}
	return nil
}

func (s *DynamoDBStore) rowItem(sk string, values map[string]any) (map[string]types.AttributeValue, error) {
	data, err := attributevalue.MarshalMap(values)
	if err != nil {
		return nil, fmt.Errorf("store %s: failed to marshal row: %w", s.name, err)
	}
	return map[string]types.AttributeValue{
		AttrPK:         &types.AttributeValueMemberS{Value: datasetPK(s.dataset)},
		AttrSK:         &types.AttributeValueMemberS{Value: sk},
		AttrEntityType: &types.AttributeValueMemberS{Value: EntityTypeDatasetRow},
		AttrData:       &types.AttributeValueMemberM{Value: data},
	}, nil
}

func (s *DynamoDBStore) writeItems(ctx context.Context, client DynamoDBClient, items []types.TransactWriteItem) error {
	for _, chunk := range lo.Chunk(items, s.batchSize) {
		_, err := client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: chunk,
		})
		if err != nil {
			return fmt.Errorf("store %s: failed to write rows: %w", s.name, err)
		}
	}
	return nil
}

func (s *DynamoDBStore) deleteRow(ctx context.Context, client DynamoDBClient, sk string) error {
	_, err := client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: datasetPK(s.dataset)},
			AttrSK: &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return fmt.Errorf("store %s: failed to delete row %s: %w", s.name, sk, err)
	}
	return nil
}

func (s *DynamoDBStore) queryRows(ctx context.Context, client DynamoDBClient) ([]datasetRow, error) {
	var rows []datasetRow
	var lastEvaluatedKey map[string]types.AttributeValue

	// Paginate through all results
	for {
		queryInput := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: datasetPK(s.dataset)},
				":sk": &types.AttributeValueMemberS{Value: rowPrefix()},
			},
		}

		if lastEvaluatedKey != nil {
			queryInput.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := client.Query(ctx, queryInput)
		if err != nil {
			return nil, fmt.Errorf("store %s: failed to query rows: %w", s.name, err)
		}

		for _, item := range result.Items {
			sk, ok := item[AttrSK].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			row := datasetRow{sk: sk.Value, values: map[string]any{}}
			if m, ok := item[AttrData].(*types.AttributeValueMemberM); ok {
				if err := attributevalue.UnmarshalMapWithOptions(m.Value, &row.values, useNumber); err != nil {
					return nil, fmt.Errorf("store %s: failed to unmarshal row %s: %w", s.name, sk.Value, err)
				}
				for col, v := range row.values {
					if n, ok := v.(attributevalue.Number); ok {
						row.values[col] = decodeNumber(n)
					}
				}
			}
			rows = append(rows, row)
		}

		// Check if there are more results
		if result.LastEvaluatedKey == nil {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return rows, nil
}

func useNumber(o *attributevalue.DecoderOptions) {
	o.UseNumber = true
}

// decodeNumber keeps integers exact instead of going through float64
func decodeNumber(n attributevalue.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// buildTable restores column order and types recorded in the META item
func (s *DynamoDBStore) buildTable(meta *datasetMeta, rows []datasetRow) (*table.Table, error) {
	cols := make([]*table.Column, len(meta.Columns))
	for i, name := range meta.Columns {
		values := make([]any, len(rows))
		for r, row := range rows {
			values[r] = row.values[name]
		}

		cols[i] = table.NewColumn(name, values)
		if i < len(meta.Types) {
			dt, err := table.ParseType(meta.Types[i])
			if err != nil {
				continue
			}
			typed, err := table.NewTypedColumn(name, dt, values)
			if err != nil {
				return nil, s.errorf(etlkit.ErrCodeConfig, "column %q does not match its recorded type", name).Wrap(err)
			}
			cols[i] = typed
		}
	}

	data, err := table.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", s.name, err)
	}
	return data, nil
}
