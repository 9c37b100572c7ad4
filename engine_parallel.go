package codeatlas

import (
	"context"
	"runtime"
	"sync"

	"github.com/codeatlas-dev/codeatlas/internal/syntax"
)

// parseAll runs Phase B over the staged files:
//
//	Phase B (parallel): parse via worker pool, one parser per call so
//	                    tree-sitter use stays goroutine-safe.
//	Fan-in  (serial):   collect results back into staged order, write
//	                    fresh parses to the cache.
//
// Files that fail to parse are logged and counted in the returned skip
// count; the run continues without them. Output order always matches
// input order, which Analyze keeps sorted by path.
func (e *Engine) parseAll(ctx context.Context, staged []sourceFile) ([]*syntax.FileSyntax, int) {
	if len(staged) == 0 {
		return nil, 0
	}

	parsed := make([]*syntax.FileSyntax, len(staged))
	errs := make([]error, len(staged))

	workers := 1
	if e.useParallel {
		workers = min(runtime.NumCPU(), len(staged))
	}
	if workers <= 1 {
		for i := range staged {
			if ctx.Err() != nil {
				break
			}
			parsed[i], errs[i] = e.parseFile(staged[i])
		}
	} else {
		idxCh := make(chan int, len(staged))
		for i := range staged {
			idxCh <- i
		}
		close(idxCh)

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range idxCh {
					if ctx.Err() != nil {
						return
					}
					parsed[i], errs[i] = e.parseFile(staged[i])
				}
			}()
		}
		wg.Wait()
	}

	// Serial fan-in: cache writes and skip accounting in staged order.
	out := make([]*syntax.FileSyntax, 0, len(staged))
	skipped := 0
	for i := range staged {
		if errs[i] != nil {
			e.logger.Warn("parse failed", "path", staged[i].path, "error", errs[i])
			skipped++
			continue
		}
		if parsed[i] == nil {
			skipped++
			continue
		}
		e.storeParsed(staged[i], parsed[i])
		out = append(out, parsed[i])
	}
	return out, skipped
}
