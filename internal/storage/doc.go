// Package storage holds the schedule store: registered channels and the
// daily posts attached to them, persisted in SQLite. Both the conversation
// wizard and the dispatcher go through the Store interface so tests can
// substitute an in-memory fake.
package storage
