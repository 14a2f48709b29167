package oracle

import (
	"log"
	"strings"
)

// shouldFallbackPipeError reports whether err came from running the oracle
// binary at all (exec/IO failure) — the class of error worth retrying in
// file mode rather than surfacing immediately.
func shouldFallbackPipeError(err error) bool {
	_, ok := err.(*ExecError)
	return ok
}

// isPipeCompatibilityError recognizes stderr text produced by oracle
// binaries that don't understand wav-pipe / "-" stdio arguments at all,
// as opposed to a real detection/embedding failure on otherwise-valid
// pipe input.
func isPipeCompatibilityError(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{
		"unsupported option",
		"unrecognized option",
		"invalid option",
		"cannot open -",
		"cannot open '-'",
		"stdin",
	} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func (e *Engine) warnPipeFallback(operation string, err error) {
	e.fallbackOnce.Do(func() {
		if e.fallbackWarn != nil {
			e.fallbackWarn(operation, err)
			return
		}
		log.Printf("oracle: pipe I/O failed for %s, falling back to file I/O: %v", operation, err)
	})
}
