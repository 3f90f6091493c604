package entities

import "auditgraph/pkg/patch"

// Changeset records one vertex mutation: the JSON Patch delta from the
// previous snapshot, chained into the vertex hash chain and anchored in the
// immutable log.
type Changeset struct {
	// Created is the single "now" captured for the whole mutation.
	Created int64 `json:"created" dynamodbav:"created"`

	// UserIdentity is the acting user, fed into the chained digest.
	UserIdentity string `json:"userIdentity" dynamodbav:"userIdentity"`

	// Patches is the ordered delta against the prior snapshot. It may be
	// empty for the first changeset of a vertex, which exists to anchor the
	// initial signature.
	Patches []patch.Operation `json:"patches" dynamodbav:"patches"`

	// Hash is the base64 Blake2b-256 digest chaining this changeset to its
	// predecessor.
	Hash string `json:"hash" dynamodbav:"hash"`

	// ImmutableStorageID is the URN of the anchored credential. Cleared by
	// an explicit remove-immutable call.
	ImmutableStorageID string `json:"immutableStorageId,omitempty" dynamodbav:"immutableStorageId,omitempty"`
}
