package redis

import "strings"

// Keyspace namespaces the keys a store writes, e.g. "mailing:ratelimit".
type Keyspace string

// Key joins parts under the keyspace with ":".
func (k Keyspace) Key(parts ...string) string {
	if k == "" {
		return strings.Join(parts, ":")
	}
	return string(k) + ":" + strings.Join(parts, ":")
}

// Sub returns a nested keyspace.
func (k Keyspace) Sub(name string) Keyspace {
	return Keyspace(k.Key(name))
}
