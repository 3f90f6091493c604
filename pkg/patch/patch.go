// Package patch computes and applies RFC 6902 JSON Patch sequences between
// vertex snapshots. Diffing favors the finest stable granularity: scalar
// changes inside an array element become a single op at /arr/i/field and
// appended elements use the /arr/- pointer, so a changeset records only what
// actually moved.
package patch

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"auditgraph/pkg/canonical"
)

// Op is an RFC 6902 operation kind.
type Op string

const (
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
	OpReplace Op = "replace"
)

// Operation is a single JSON Patch operation.
type Operation struct {
	Op    Op          `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// MarshalJSON emits the value member only for operations that carry one, so
// a remove never serializes a spurious null value into the hash chain.
func (o Operation) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"op":   string(o.Op),
		"path": o.Path,
	}
	if o.From != "" {
		m["from"] = o.From
	}
	if o.Op == OpAdd || o.Op == OpReplace {
		m["value"] = o.Value
	}
	return json.Marshal(m)
}

// Diff computes the minimal patch sequence transforming prev into next.
// Both snapshots are normalized through the canonical value tree first, so
// struct inputs and generic maps diff identically. An empty result means the
// two snapshots are semantically equal.
func Diff(prev, next interface{}) ([]Operation, error) {
	a, err := canonical.Normalize(prev)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize previous snapshot: %w", err)
	}
	b, err := canonical.Normalize(next)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize updated snapshot: %w", err)
	}

	ops := []Operation{}
	diffValue("", a, b, &ops)
	return ops, nil
}

// diffValue appends the operations turning a into b at the given pointer.
func diffValue(path string, a, b interface{}, ops *[]Operation) {
	if reflect.DeepEqual(a, b) {
		return
	}

	am, aIsMap := a.(map[string]interface{})
	bm, bIsMap := b.(map[string]interface{})
	if aIsMap && bIsMap {
		diffMap(path, am, bm, ops)
		return
	}

	aa, aIsArr := a.([]interface{})
	ba, bIsArr := b.([]interface{})
	if aIsArr && bIsArr {
		diffArray(path, aa, ba, ops)
		return
	}

	*ops = append(*ops, Operation{Op: OpReplace, Path: path, Value: b})
}

func diffMap(path string, a, b map[string]interface{}, ops *[]Operation) {
	keys := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range b {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		child := path + "/" + escapePointer(k)
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case inA && !inB:
			*ops = append(*ops, Operation{Op: OpRemove, Path: child})
		case !inA && inB:
			*ops = append(*ops, Operation{Op: OpAdd, Path: child, Value: bv})
		default:
			diffValue(child, av, bv, ops)
		}
	}
}

func diffArray(path string, a, b []interface{}, ops *[]Operation) {
	min := len(a)
	if len(b) < min {
		min = len(b)
	}

	for i := 0; i < min; i++ {
		diffValue(fmt.Sprintf("%s/%d", path, i), a[i], b[i], ops)
	}

	// Appends address the end-of-array pointer; removals walk from the tail
	// so earlier indices stay valid while the patch applies.
	for i := len(a); i < len(b); i++ {
		*ops = append(*ops, Operation{Op: OpAdd, Path: path + "/-", Value: b[i]})
	}
	for i := len(a) - 1; i >= len(b); i-- {
		*ops = append(*ops, Operation{Op: OpRemove, Path: fmt.Sprintf("%s/%d", path, i)})
	}
}

// escapePointer applies the RFC 6901 token escaping.
func escapePointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

// Apply runs a patch sequence against a document and returns the patched
// value tree. The document is normalized first, so any JSON-marshalable
// snapshot can be replayed.
func Apply(doc interface{}, ops []Operation) (interface{}, error) {
	docRaw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	opsRaw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}

	p, err := jsonpatch.DecodePatch(opsRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode patch: %w", err)
	}
	patched, err := p.Apply(docRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}

	var out interface{}
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patched document: %w", err)
	}
	return out, nil
}
