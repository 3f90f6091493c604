// Package memory provides an in-process vertex store used for tests and
// single-node deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"auditgraph/application/ports"
	"auditgraph/domain/core/entities"
	pkgerrors "auditgraph/pkg/errors"
)

// defaultPageSize bounds query pages when the caller does not ask for one.
const defaultPageSize = 40

// VertexStore is an in-memory implementation of ports.VertexStore. All
// reads and writes deep-copy, so callers can never mutate stored state
// except through Set.
type VertexStore struct {
	mu       sync.RWMutex
	vertices map[string]*entities.Vertex

	// insertion preserves arrival order so unsorted scans are stable
	insertion []string
}

// NewVertexStore creates a new in-memory vertex store.
func NewVertexStore() *VertexStore {
	return &VertexStore{
		vertices: make(map[string]*entities.Vertex),
	}
}

// Get retrieves a vertex by its hex id.
func (s *VertexStore) Get(ctx context.Context, id string) (*entities.Vertex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vertex, exists := s.vertices[id]
	if !exists {
		return nil, pkgerrors.NewNotFoundError("vertex")
	}
	return cloneVertex(vertex)
}

// Set persists a vertex, replacing any prior state. Last write wins.
func (s *VertexStore) Set(ctx context.Context, vertex *entities.Vertex) error {
	if vertex == nil || vertex.ID == "" {
		return pkgerrors.NewValidationError("vertex id is required")
	}

	clone, err := cloneVertex(vertex)
	if err != nil {
		return pkgerrors.NewStorageError("set", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vertices[vertex.ID]; !exists {
		s.insertion = append(s.insertion, vertex.ID)
	}
	s.vertices[vertex.ID] = clone
	return nil
}

// Query filters, sorts, paginates, and projects the stored vertices.
func (s *VertexStore) Query(ctx context.Context, query ports.StoreQuery) (*ports.StoreQueryResult, error) {
	s.mu.RLock()
	matches := make([]*entities.Vertex, 0, len(s.vertices))
	for _, id := range s.insertion {
		vertex := s.vertices[id]
		if matchesConditions(vertex, query.Conditions, query.Logic) {
			clone, err := cloneVertex(vertex)
			if err != nil {
				s.mu.RUnlock()
				return nil, pkgerrors.NewStorageError("query", err)
			}
			matches = append(matches, clone)
		}
	}
	s.mu.RUnlock()

	sortVertices(matches, query.Sort)

	total := len(matches)
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	offset := 0
	if query.Cursor != "" {
		parsed, err := strconv.Atoi(query.Cursor)
		if err != nil {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("invalid cursor %q", query.Cursor))
		}
		offset = parsed
	}
	if offset > total {
		offset = total
	}

	end := offset + pageSize
	if end > total {
		end = total
	}
	page := matches[offset:end]

	cursor := ""
	if end < total {
		cursor = strconv.Itoa(end)
	}

	if len(query.Properties) > 0 {
		for i, vertex := range page {
			page[i] = projectVertex(vertex, query.Properties)
		}
	}

	return &ports.StoreQueryResult{
		Entities:      page,
		Cursor:        cursor,
		PageSize:      pageSize,
		TotalEntities: total,
	}, nil
}

// matchesConditions evaluates the query predicates against one vertex.
// An empty condition list matches everything.
func matchesConditions(vertex *entities.Vertex, conditions []ports.Condition, logic ports.LogicalOperator) bool {
	if len(conditions) == 0 {
		return true
	}

	for _, condition := range conditions {
		value := propertyValue(vertex, condition.Property)
		matched := false
		switch condition.Comparison {
		case ports.ComparisonIncludes:
			matched = strings.Contains(value, condition.Value)
		case ports.ComparisonEquals:
			matched = value == condition.Value
		}

		if logic == ports.LogicalAnd {
			if !matched {
				return false
			}
		} else if matched {
			return true
		}
	}

	return logic == ports.LogicalAnd
}

func propertyValue(vertex *entities.Vertex, property string) string {
	switch property {
	case "id":
		return vertex.ID
	case "aliasIndex":
		return vertex.AliasIndex
	case "nodeIdentity":
		return vertex.NodeIdentity
	default:
		return ""
	}
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

// projectVertex keeps only the requested properties; id always survives.
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

// cloneVertex deep-copies a vertex through JSON, which also keeps the
// metadata value tree in its canonical generic form.
func cloneVertex(vertex *entities.Vertex) (*entities.Vertex, error) {
	raw, err := json.Marshal(vertex)
	if err != nil {
		return nil, err
	}
	clone := &entities.Vertex{}
	if err := json.Unmarshal(raw, clone); err != nil {
		return nil, err
	}
	return clone, nil
}
