package services

import (
	"context"
	"strings"

	"auditgraph/application/ports"
	"auditgraph/domain/core/entities"
	pkgerrors "auditgraph/pkg/errors"
)

// IDMode selects which identifier properties a query needle matches.
type IDMode string

const (
	IDModeBoth  IDMode = "both"
	IDModeID    IDMode = "id"
	IDModeAlias IDMode = "alias"
)

// OrderField is a sortable vertex property.
type OrderField string

const (
	OrderByCreated OrderField = "created"
	OrderByUpdated OrderField = "updated"
)

// QueryVerticesInput shapes an id-or-alias lookup over the vertex store.
type QueryVerticesInput struct {
	// ID is the needle matched with Includes semantics; empty returns all
	// vertices in order
	ID string

	// IDMode defaults to both: the needle matches the vertex id or the
	// alias index
	IDMode IDMode

	// OrderBy defaults to created, descending
	OrderBy          OrderField
	OrderByDirection ports.SortDirection

	// Properties projects the returned vertices; id is always included
	Properties []string

	Cursor   string
	PageSize int
}

// QueryVerticesResult is one page of query matches.
type QueryVerticesResult struct {
	Entities      []*entities.Vertex `json:"entities"`
	Cursor        string             `json:"cursor,omitempty"`
	PageSize      int                `json:"pageSize,omitempty"`
	TotalEntities int                `json:"totalEntities"`
}

// Query looks vertices up by id and/or alias. The needle is matched with
// Includes predicates joined by OR, lowercased when matched against the
// alias index.
func (s *VertexService) Query(ctx context.Context, input QueryVerticesInput) (*QueryVerticesResult, error) {
	mode := input.IDMode
	if mode == "" {
		mode = IDModeBoth
	}

	var conditions []ports.Condition
	if input.ID != "" {
		if mode == IDModeID || mode == IDModeBoth {
			conditions = append(conditions, ports.Condition{
				Property:   "id",
				Comparison: ports.ComparisonIncludes,
				Value:      input.ID,
			})
		}
		if mode == IDModeAlias || mode == IDModeBoth {
			conditions = append(conditions, ports.Condition{
				Property:   "aliasIndex",
				Comparison: ports.ComparisonIncludes,
				Value:      strings.ToLower(input.ID),
			})
		}
	}

	orderBy := input.OrderBy
	if orderBy == "" {
		orderBy = OrderByCreated
	}
	direction := input.OrderByDirection
	if direction == "" {
		direction = ports.SortDescending
	}

	properties := input.Properties
	if len(properties) > 0 && !containsProperty(properties, "id") {
		properties = append([]string{"id"}, properties...)
	}

	result, err := s.store.Query(ctx, ports.StoreQuery{
		Conditions: conditions,
		Logic:      ports.LogicalOr,
		Sort: []ports.SortProperty{
			{Property: string(orderBy), Direction: direction},
		},
		Properties: properties,
		Cursor:     input.Cursor,
		PageSize:   input.PageSize,
	})
	if err != nil {
		return nil, pkgerrors.NewOperationError(pkgerrors.CodeQueryFailed, err)
	}

	return &QueryVerticesResult{
		Entities:      result.Entities,
		Cursor:        result.Cursor,
		PageSize:      result.PageSize,
		TotalEntities: result.TotalEntities,
	}, nil
}

func containsProperty(properties []string, name string) bool {
	for _, property := range properties {
		if property == name {
			return true
		}
	}
	return false
}
