package entities

import (
	"strings"

	"auditgraph/pkg/canonical"
)

// Vertex is the root entity of the auditable item graph. Every state change
// is recorded in the hash-chained changeset list; nothing is ever hard
// deleted, so a vertex carries its full mutation history.
type Vertex struct {
	// ID is the 32-byte identifier in lowercase hex (no URN prefix).
	ID string `json:"id" dynamodbav:"id"`

	// NodeIdentity identifies the controlling node, which signs changesets.
	NodeIdentity string `json:"nodeIdentity" dynamodbav:"nodeIdentity"`

	Created int64 `json:"created" dynamodbav:"created"`
	Updated int64 `json:"updated" dynamodbav:"updated"`

	MetadataSchema string      `json:"metadataSchema,omitempty" dynamodbav:"metadataSchema,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`

	// AliasIndex is the derived secondary-index value: the lowercased
	// ||-joined ids of all aliases (tombstones included) in insertion order.
	// It serves lookup, not visibility, and is excluded from diff snapshots.
	AliasIndex string `json:"aliasIndex,omitempty" dynamodbav:"aliasIndex,omitempty"`

	Aliases   []Alias    `json:"aliases,omitempty" dynamodbav:"aliases,omitempty"`
	Resources []Resource `json:"resources,omitempty" dynamodbav:"resources,omitempty"`
	Edges     []Edge     `json:"edges,omitempty" dynamodbav:"edges,omitempty"`

	// Changesets is append-only, oldest first.
	Changesets []Changeset `json:"changesets,omitempty" dynamodbav:"changesets,omitempty"`
}

// Alias is a named alternative identifier for a vertex.
type Alias struct {
	ID             string      `json:"id" dynamodbav:"id"`
	Created        int64       `json:"created" dynamodbav:"created"`
	Updated        int64       `json:"updated,omitempty" dynamodbav:"updated,omitempty"`
	Deleted        int64       `json:"deleted,omitempty" dynamodbav:"deleted,omitempty"`
	MetadataSchema string      `json:"metadataSchema,omitempty" dynamodbav:"metadataSchema,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
}

// Resource is an attachment associated with a vertex.
type Resource struct {
	ID             string      `json:"id" dynamodbav:"id"`
	Created        int64       `json:"created" dynamodbav:"created"`
	Updated        int64       `json:"updated,omitempty" dynamodbav:"updated,omitempty"`
	Deleted        int64       `json:"deleted,omitempty" dynamodbav:"deleted,omitempty"`
	MetadataSchema string      `json:"metadataSchema,omitempty" dynamodbav:"metadataSchema,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
}

// Edge is a typed connection from this vertex to another element.
type Edge struct {
	ID             string      `json:"id" dynamodbav:"id"`
	Relationship   string      `json:"relationship" dynamodbav:"relationship"`
	Created        int64       `json:"created" dynamodbav:"created"`
	Updated        int64       `json:"updated,omitempty" dynamodbav:"updated,omitempty"`
	Deleted        int64       `json:"deleted,omitempty" dynamodbav:"deleted,omitempty"`
	MetadataSchema string      `json:"metadataSchema,omitempty" dynamodbav:"metadataSchema,omitempty"`
	Metadata       interface{} `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
}

// NewVertex builds the zero-value vertex anchoring a fresh identity: only
// the identifier, controlling node, and timestamps are set. The first
// changeset diffs against exactly this state.
func NewVertex(id string, nodeIdentity string, now int64) *Vertex {
	return &Vertex{
		ID:           id,
		NodeIdentity: nodeIdentity,
		Created:      now,
		Updated:      now,
	}
}

// RefreshAliasIndex recomputes the derived alias index from the current
// alias list, tombstones included.
func (v *Vertex) RefreshAliasIndex() {
	if len(v.Aliases) == 0 {
		v.AliasIndex = ""
		return
	}
	ids := make([]string, 0, len(v.Aliases))
	for _, alias := range v.Aliases {
		ids = append(ids, alias.ID)
	}
	v.AliasIndex = strings.ToLower(strings.Join(ids, "||"))
}

// LatestChangeset returns the most recent changeset, or nil when the vertex
// has none.
func (v *Vertex) LatestChangeset() *Changeset {
	if len(v.Changesets) == 0 {
		return nil
	}
	return &v.Changesets[len(v.Changesets)-1]
}

// Snapshot returns the diffable state of the vertex as a generic value
// tree: everything except the changeset list and the derived alias index.
func (v *Vertex) Snapshot() (map[string]interface{}, error) {
	normalized, err := canonical.Normalize(v)
	if err != nil {
		return nil, err
	}
	snapshot, ok := normalized.(map[string]interface{})
	if !ok {
		snapshot = map[string]interface{}{}
	}
	delete(snapshot, "changesets")
	delete(snapshot, "aliasIndex")
	return snapshot, nil
}

// ContentEquals compares the reconcilable content of an alias against new
// values through the canonical encoder.
func (a *Alias) ContentEquals(metadataSchema string, metadata interface{}) bool {
	return a.MetadataSchema == metadataSchema && canonical.Equal(a.Metadata, metadata)
}

// ContentEquals compares the reconcilable content of a resource against new
// values through the canonical encoder.
func (r *Resource) ContentEquals(metadataSchema string, metadata interface{}) bool {
	return r.MetadataSchema == metadataSchema && canonical.Equal(r.Metadata, metadata)
}

// ContentEquals compares the reconcilable content of an edge, including its
// relationship, against new values through the canonical encoder.
func (e *Edge) ContentEquals(relationship, metadataSchema string, metadata interface{}) bool {
	return e.Relationship == relationship &&
		e.MetadataSchema == metadataSchema &&
		canonical.Equal(e.Metadata, metadata)
}
