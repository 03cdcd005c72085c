package clipper

import "context"

// Runner produces clips for one session. Implementations receive the
// session's workspace and must keep every intermediate file inside it,
// honor ctx cancellation promptly, and report progress through the
// Reporter as they go. The returned slice is the final ordered result list;
// a returned error marks the session as errored with the message captured.
//
// Runner replaces the built-in placeholder pipeline via WithRunner.
type Runner interface {
	Run(ctx context.Context, req ProcessRequest, ws Workspace, rep Reporter) ([]Result, error)
}

// Workspace is a session's durable working directory. All methods are safe
// for concurrent use; CreateTempDir and RemoveTempDir fail once the
// workspace has been cleaned up.
type Workspace interface {
	// ID returns the owning session id.
	ID() string

	// Root returns the workspace root directory path.
	Root() string

	// FilePath resolves name inside the root, rejecting escaping paths.
	FilePath(name string) (string, error)

	// CreateTempDir allocates and tracks a scratch subdirectory.
	CreateTempDir(prefix string) (string, error)

	// RemoveTempDir deletes one tracked scratch subdirectory.
	RemoveTempDir(dir string) error
}

// Reporter receives progress from a running pipeline and writes it through
// to the session record, where status polls pick it up.
type Reporter interface {
	UpdateProgress(ctx context.Context, step string, progress int)
	AddResult(ctx context.Context, result Result)
}
