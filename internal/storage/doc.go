// Package storage persists tracked status jobs so they survive restarts.
//
// The durable state is a single document shaped as
//
//	{ "serverStatuses": { "<id>": {...} }, "channelStatuses": { "<id>": {...} } }
//
// Two drivers exist:
//   - "file": dependency-free JSON document with atomic tmp+rename writes
//   - "sqlite": SQLite database file (optional build tag)
package storage
