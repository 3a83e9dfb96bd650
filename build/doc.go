// Package build holds the roster of a crew: which assistants exist, which
// model backs each one and how they are instructed. A Config is produced by
// a Planner from a task description, saved as JSON and loaded again to
// replay the exact same roster without asking a model.
package build
