// Package ids generates the stable identifiers used across the ingestion
// layer: ULIDs for collection runs, and a deterministic business-key hash
// used as the in-memory coverage-cache key for a parameter tuple.
package ids

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// NewRunID returns a sortable, globally unique identifier for one
// collect/delete invocation.
func NewRunID() string {
	return ulid.Make().String()
}

// BusinessKey produces a deterministic hash of a parameter tuple, stable
// regardless of map iteration order. Two tuples with identical key/value
// pairs always hash to the same key, and the hash is immune to separator
// collisions that a naive string-join would be exposed to.
func BusinessKey(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var canonical strings.Builder
	for _, k := range keys {
		v := fields[k]
		canonical.WriteString(strconv.Itoa(len(k)))
		canonical.WriteByte(':')
		canonical.WriteString(k)
		canonical.WriteString(strconv.Itoa(len(v)))
		canonical.WriteByte(':')
		canonical.WriteString(v)
	}

	hash := sha256.Sum256([]byte(canonical.String()))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
