// Package entry stores OpenRouter config entries and their AI task and
// conversation subentries in SQLite.
//
// An entry holds one API key; each subentry binds a model and an optional
// system prompt to an entity. Identifiers are UUIDs. The schema is versioned
// and a mismatched database is rejected rather than migrated.
package entry
