// Package storage provides the persistence layer for the bot:
//
//   - Cache: per-site opaque JSON blobs owned by site plugins (diff state)
//   - Dedup: per-site content-hash -> sent-at map with a retention window
//   - Subscriptions: subscriber -> site set + delivery session token
//
// In-memory state is the source of truth; persistence is best-effort.
// Two backends exist: "file" (pretty-printed JSON documents) and "sqlite"
// (optional, behind the sqlite build tag).
package storage
