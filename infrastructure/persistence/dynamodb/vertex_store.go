// Package dynamodb provides the production vertex store on a DynamoDB
// single table. The table keys on PK/SK; the alias index is carried as a
// plain attribute so a GSI over it can serve alias lookups.
package dynamodb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"auditgraph/application/ports"
	"auditgraph/domain/core/entities"
	pkgerrors "auditgraph/pkg/errors"
)

const (
	entityTypeVertex = "VERTEX"
	metadataSortKey  = "METADATA"

	defaultPageSize = 40
)

// VertexStore implements ports.VertexStore on DynamoDB.
type VertexStore struct {
	client    *awsdynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewVertexStore creates a new DynamoDB vertex store.
func NewVertexStore(client *awsdynamodb.Client, tableName string, logger *zap.Logger) *VertexStore {
	return &VertexStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// vertexItem is the DynamoDB item structure for a vertex.
type vertexItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`

	entities.Vertex
}

func vertexKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "VERTEX#" + id},
		"SK": &types.AttributeValueMemberS{Value: metadataSortKey},
	}
}

// Get retrieves a vertex by its hex id.
func (s *VertexStore) Get(ctx context.Context, id string) (*entities.Vertex, error) {
	output, err := s.client.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       vertexKey(id),
	})
	if err != nil {
		s.logger.Error("Failed to get vertex from DynamoDB",
			zap.Error(err),
			zap.String("vertexID", id),
		)
		return nil, pkgerrors.NewStorageError("get", err)
	}
	if len(output.Item) == 0 {
		return nil, pkgerrors.NewNotFoundError("vertex")
	}

	var item vertexItem
	if err := attributevalue.UnmarshalMap(output.Item, &item); err != nil {
		return nil, pkgerrors.NewStorageError("get", fmt.Errorf("failed to unmarshal vertex: %w", err))
	}
	vertex := item.Vertex
	return &vertex, nil
}

// Set persists a vertex as a full item replace. Last write wins; a
// conditional write on a version attribute can be layered here without
// changing the port contract.
func (s *VertexStore) Set(ctx context.Context, vertex *entities.Vertex) error {
	if vertex == nil || vertex.ID == "" {
		return pkgerrors.NewValidationError("vertex id is required")
	}

	item := vertexItem{
		PK:         "VERTEX#" + vertex.ID,
		SK:         metadataSortKey,
		EntityType: entityTypeVertex,
		Vertex:     *vertex,
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewStorageError("set", fmt.Errorf("failed to marshal vertex: %w", err))
	}

	if _, err := s.client.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	}); err != nil {
		s.logger.Error("Failed to save vertex to DynamoDB",
			zap.Error(err),
			zap.String("vertexID", vertex.ID),
		)
		return pkgerrors.NewStorageError("set", err)
	}

	return nil
}

// Query scans the table with an expression-built filter on vertex items, then
// sorts and projects the page locally. The cursor wraps DynamoDB's
// ExclusiveStartKey.
func (s *VertexStore) Query(ctx context.Context, query ports.StoreQuery) (*ports.StoreQueryResult, error) {
	filter := expression.Name("EntityType").Equal(expression.Value(entityTypeVertex))

	if len(query.Conditions) > 0 {
		var predicate expression.ConditionBuilder
		for i, condition := range query.Conditions {
			var current expression.ConditionBuilder
			switch condition.Comparison {
			case ports.ComparisonEquals:
				current = expression.Name(condition.Property).Equal(expression.Value(condition.Value))
			default:
				current = expression.Name(condition.Property).Contains(condition.Value)
			}
			if i == 0 {
				predicate = current
			} else if query.Logic == ports.LogicalAnd {
				predicate = predicate.And(current)
			} else {
				predicate = predicate.Or(current)
			}
		}
		filter = filter.And(predicate)
	}

	builder := expression.NewBuilder().WithFilter(filter)
	expr, err := builder.Build()
	if err != nil {
		return nil, pkgerrors.NewStorageError("query", fmt.Errorf("failed to build expression: %w", err))
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	input := &awsdynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(int32(pageSize)),
	}

	if query.Cursor != "" {
		startKey, err := decodeCursor(query.Cursor)
		if err != nil {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("invalid cursor %q", query.Cursor))
		}
		input.ExclusiveStartKey = startKey
	}

	output, err := s.client.Scan(ctx, input)
	if err != nil {
		s.logger.Error("Failed to query vertices from DynamoDB", zap.Error(err))
		return nil, pkgerrors.NewStorageError("query", err)
	}

	vertices := make([]*entities.Vertex, 0, len(output.Items))
	for _, raw := range output.Items {
		var item vertexItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, pkgerrors.NewStorageError("query", fmt.Errorf("failed to unmarshal vertex: %w", err))
		}
		vertex := item.Vertex
		vertices = append(vertices, &vertex)
	}

	sortVertices(vertices, query.Sort)

	if len(query.Properties) > 0 {
		for i, vertex := range vertices {
			vertices[i] = projectVertex(vertex, query.Properties)
		}
	}

	cursor := ""
	if len(output.LastEvaluatedKey) > 0 {
		cursor, err = encodeCursor(output.LastEvaluatedKey)
		if err != nil {
			return nil, pkgerrors.NewStorageError("query", err)
		}
	}

	return &ports.StoreQueryResult{
		Entities:      vertices,
		Cursor:        cursor,
		PageSize:      pageSize,
		TotalEntities: int(output.Count),
	}, nil
}

func sortVertices(vertices []*entities.Vertex, sortBy []ports.SortProperty) {
	if len(sortBy) == 0 {
		return
	}
	primary := sortBy[0]

	sort.SliceStable(vertices, func(i, j int) bool {
		var a, b int64
		switch primary.Property {
		case "updated":
			a, b = vertices[i].Updated, vertices[j].Updated
		default:
			a, b = vertices[i].Created, vertices[j].Created
		}
		if primary.Direction == ports.SortAscending {
			return a < b
		}
		return a > b
	})
}

func projectVertex(vertex *entities.Vertex, properties []string) *entities.Vertex {
	projected := &entities.Vertex{ID: vertex.ID}
	for _, property := range properties {
		switch property {
		case "nodeIdentity":
			projected.NodeIdentity = vertex.NodeIdentity
		case "created":
			projected.Created = vertex.Created
		case "updated":
			projected.Updated = vertex.Updated
		case "metadataSchema":
			projected.MetadataSchema = vertex.MetadataSchema
		case "metadata":
			projected.Metadata = vertex.Metadata
		case "aliasIndex":
			projected.AliasIndex = vertex.AliasIndex
		case "aliases":
			projected.Aliases = vertex.Aliases
		case "resources":
			projected.Resources = vertex.Resources
		case "edges":
			projected.Edges = vertex.Edges
		case "changesets":
			projected.Changesets = vertex.Changesets
		}
	}
	return projected
}

// Cursors carry the DynamoDB start key as base64 JSON.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	plain := map[string]string{}
	for name, value := range key {
		member, ok := value.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("unsupported key attribute %q", name)
		}
		plain[name] = member.Value
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	plain := map[string]string{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	key := make(map[string]types.AttributeValue, len(plain))
	for name, value := range plain {
		key[name] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}
