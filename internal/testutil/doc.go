// Package testutil provides helpers shared by package tests: a fluent
// message builder, scripted chat agents and a concurrency gauge.
//
// These helpers are intentionally lightweight and may evolve; they are not
// part of the public API surface.
package testutil
