package command

import (
	"context"
	"sync/atomic"
)

// RefreshState issues the three independent refreshes (active files,
// variables, sources) concurrently and invokes the completion
// callback exactly once after all three settle, regardless of
// individual success or failure. A best-effort aggregate, not
// all-or-nothing: each leg updates session state only on its own
// confirmed success, and the legs tolerate completing in any order
// via a countdown join.
func (s *Service) RefreshState(ctx context.Context, filePath string, cb func()) {
	if cb == nil {
		cb = func() {}
	}

	var remaining atomic.Int32
	remaining.Store(3)
	settle := func() {
		if remaining.Add(-1) == 0 {
			cb()
		}
	}

	s.ListFiles(ctx, filePath, FilesOptions{ActiveOnly: true}, func(files []string, err error) {
		if err == nil {
			s.st.SetActiveFiles(files)
		}
		settle()
	})

	s.ListVariables(ctx, filePath, nil, func([]Variable, error) {
		settle()
	})

	s.ListSources(ctx, func([]SourceStatus, error) {
		settle()
	})
}
