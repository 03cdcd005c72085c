// Package pipeline defines the clip-production contract the session manager
// drives in the background.
//
// Defines a Runner interface and a placeholder implementation. The interface
// allows swapping the media pipeline without changing the job machinery.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vodworks/clipper/internal/model"
	"github.com/vodworks/clipper/internal/workspace"
)

// Reporter receives progress from a running pipeline. The session manager
// implements it by writing through to the session row.
type Reporter interface {
	// UpdateProgress records the current step and completion percentage.
	UpdateProgress(ctx context.Context, step string, progress int)

	// AddResult appends one finished clip to the session's results.
	AddResult(ctx context.Context, result model.Result)
}

// Runner produces clips for one session inside its workspace.
// Implementations must honor ctx cancellation promptly and keep every
// intermediate file inside the workspace.
type Runner interface {
	Run(ctx context.Context, req model.ProcessRequest, ws *workspace.Workspace, rep Reporter) ([]model.Result, error)
}

// NoopRunner emits placeholder clips without touching any media tooling.
// Used when no real pipeline is configured.
type NoopRunner struct {
	// StepDelay spaces out progress updates so cancellation mid-run is
	// observable. Zero means no delay.
	StepDelay time.Duration
}

// Run writes one placeholder file per requested clip and reports progress
// along the way.
func (r *NoopRunner) Run(ctx context.Context, req model.ProcessRequest, ws *workspace.Workspace, rep Reporter) ([]model.Result, error) {
	steps := []struct {
		name     string
		progress int
	}{
		{"downloading source", 10},
		{"transcribing audio", 30},
		{"scoring segments", 55},
	}
	for _, step := range steps {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		rep.UpdateProgress(ctx, step.name, step.progress)
	}

	results := make([]model.Result, 0, req.ClipCount)
	for i := 0; i < req.ClipCount; i++ {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}

		name := fmt.Sprintf("clip_%02d.mp4", i+1)
		path, err := ws.FilePath(name)
		if err != nil {
			return nil, fmt.Errorf("pipeline: resolve %s: %w", name, err)
		}
		if err := os.WriteFile(path, []byte("placeholder clip\n"), 0o640); err != nil {
			return nil, fmt.Errorf("pipeline: write %s: %w", name, err)
		}

		rep.UpdateProgress(ctx, fmt.Sprintf("rendering clip %d/%d", i+1, req.ClipCount), 60+(i+1)*40/req.ClipCount)

		result := model.Result{
			"index":    i + 1,
			"filename": name,
			"source":   req.Source,
		}
		rep.AddResult(ctx, result)
		results = append(results, result)
	}

	return results, nil
}

func (r *NoopRunner) wait(ctx context.Context) error {
	if r.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.StepDelay):
		return nil
	}
}
