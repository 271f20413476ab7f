package model

import "context"

// ArtifactSink records generated artifacts out of band. Implementations are
// best effort; the synthesis path never fails because a sink did.
type ArtifactSink interface {
	Record(ctx context.Context, artifact Artifact) error
	Close() error
}
