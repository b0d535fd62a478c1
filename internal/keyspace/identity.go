package keyspace

import (
	"sort"
	"strings"
)

// idSuffix terminates the counter key every Bull queue creates on first add.
const idSuffix = ":id"

// Identity is the (prefix, name) pair of a queue.
type Identity struct {
	Prefix string
	Name   string
}

// Key returns the composite "<prefix>:<name>" key.
func (i Identity) Key() string { return i.Prefix + ":" + i.Name }

// String implements fmt.Stringer.
func (i Identity) String() string { return i.Key() }

// ParseIDKey extracts the identity from a "<prefix>:<name>:id" key. The
// prefix ends at the first colon; the name may itself contain colons.
func ParseIDKey(key string) (Identity, bool) {
	if !strings.HasSuffix(key, idSuffix) {
		return Identity{}, false
	}
	rest := strings.TrimSuffix(key, idSuffix)
	prefix, name, ok := strings.Cut(rest, ":")
	if !ok || prefix == "" || name == "" {
		return Identity{}, false
	}
	return Identity{Prefix: prefix, Name: name}, true
}

// Sort orders identities by key, in place.
func Sort(ids []Identity) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Key() < ids[j].Key() })
}
