// Package artifact provides core.ArtifactStore implementations used for chat
// transcripts and other run outputs.
//
// InMemoryStore keeps everything in process and suits tests and single runs.
// FileStore persists artifacts as flat files below a root directory, one
// sub-directory per session:
//
//	<root>/<sessionID>/<artifactID>
//
// Callers should depend on core.ArtifactStore rather than the concrete types.
package artifact
