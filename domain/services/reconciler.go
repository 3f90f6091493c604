// Package services holds the pure domain services: sub-element
// reconciliation and the changeset hash chain.
package services

import (
	"auditgraph/domain/core/entities"
)

// AliasUpdate is one entry of an alias update list.
type AliasUpdate struct {
	ID             string      `json:"id" validate:"required"`
	MetadataSchema string      `json:"metadataSchema,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty"`
}

// ResourceUpdate is one entry of a resource update list.
type ResourceUpdate struct {
	ID             string      `json:"id" validate:"required"`
	MetadataSchema string      `json:"metadataSchema,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty"`
}

// EdgeUpdate is one entry of an edge update list.
type EdgeUpdate struct {
	ID             string      `json:"id" validate:"required"`
	Relationship   string      `json:"relationship" validate:"required"`
	MetadataSchema string      `json:"metadataSchema,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty"`
}

// ReconcileAliases applies an alias update list to the vertex with
// soft-delete semantics: live aliases missing from the list are tombstoned,
// unknown or tombstoned ids append new elements, and matched elements are
// rewritten in place only when their content actually changed. Passing an
// empty list tombstones every live alias; an absent list must be handled by
// the caller (reconciliation is skipped entirely).
func ReconcileAliases(vertex *entities.Vertex, updates []AliasUpdate, now int64) {
	wanted := make(map[string]bool, len(updates))
	for _, update := range updates {
		wanted[update.ID] = true
	}

	for i := range vertex.Aliases {
		alias := &vertex.Aliases[i]
		if alias.Deleted == 0 && !wanted[alias.ID] {
			alias.Deleted = now
		}
	}

	for _, update := range updates {
		existing := findLiveAlias(vertex, update.ID)
		if existing == nil {
			vertex.Aliases = append(vertex.Aliases, entities.Alias{
				ID:             update.ID,
				Created:        now,
				MetadataSchema: update.MetadataSchema,
				Metadata:       update.Metadata,
			})
			continue
		}
		if existing.ContentEquals(update.MetadataSchema, update.Metadata) {
			continue
		}
		existing.Updated = now
		existing.MetadataSchema = update.MetadataSchema
		existing.Metadata = update.Metadata
	}

	vertex.RefreshAliasIndex()
}

// ReconcileResources applies a resource update list to the vertex with the
// same soft-delete semantics as ReconcileAliases.
func ReconcileResources(vertex *entities.Vertex, updates []ResourceUpdate, now int64) {
	wanted := make(map[string]bool, len(updates))
	for _, update := range updates {
		wanted[update.ID] = true
	}

	for i := range vertex.Resources {
		resource := &vertex.Resources[i]
		if resource.Deleted == 0 && !wanted[resource.ID] {
			resource.Deleted = now
		}
	}

	for _, update := range updates {
		existing := findLiveResource(vertex, update.ID)
		if existing == nil {
			vertex.Resources = append(vertex.Resources, entities.Resource{
				ID:             update.ID,
				Created:        now,
				MetadataSchema: update.MetadataSchema,
				Metadata:       update.Metadata,
			})
			continue
		}
		if existing.ContentEquals(update.MetadataSchema, update.Metadata) {
			continue
		}
		existing.Updated = now
		existing.MetadataSchema = update.MetadataSchema
		existing.Metadata = update.Metadata
	}
}

// ReconcileEdges applies an edge update list to the vertex. Edges carry a
// relationship in addition to metadata; a relationship change counts as a
// content change and is rewritten in place.
func ReconcileEdges(vertex *entities.Vertex, updates []EdgeUpdate, now int64) {
	wanted := make(map[string]bool, len(updates))
	for _, update := range updates {
		wanted[update.ID] = true
	}

	for i := range vertex.Edges {
		edge := &vertex.Edges[i]
		if edge.Deleted == 0 && !wanted[edge.ID] {
			edge.Deleted = now
		}
	}

	for _, update := range updates {
		existing := findLiveEdge(vertex, update.ID)
		if existing == nil {
			vertex.Edges = append(vertex.Edges, entities.Edge{
				ID:             update.ID,
				Relationship:   update.Relationship,
				Created:        now,
				MetadataSchema: update.MetadataSchema,
				Metadata:       update.Metadata,
			})
			continue
		}
		if existing.ContentEquals(update.Relationship, update.MetadataSchema, update.Metadata) {
			continue
		}
		existing.Updated = now
		existing.Relationship = update.Relationship
		existing.MetadataSchema = update.MetadataSchema
		existing.Metadata = update.Metadata
	}
}

// findLiveAlias returns the live alias with the given id. Tombstoned
// records never match, so a re-created id always appends a new element.
func findLiveAlias(vertex *entities.Vertex, id string) *entities.Alias {
	for i := range vertex.Aliases {
		if vertex.Aliases[i].ID == id && vertex.Aliases[i].Deleted == 0 {
			return &vertex.Aliases[i]
		}
	}
	return nil
}

func findLiveResource(vertex *entities.Vertex, id string) *entities.Resource {
	for i := range vertex.Resources {
		if vertex.Resources[i].ID == id && vertex.Resources[i].Deleted == 0 {
			return &vertex.Resources[i]
		}
	}
	return nil
}

func findLiveEdge(vertex *entities.Vertex, id string) *entities.Edge {
	for i := range vertex.Edges {
		if vertex.Edges[i].ID == id && vertex.Edges[i].Deleted == 0 {
			return &vertex.Edges[i]
		}
	}
	return nil
}
