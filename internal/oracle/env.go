package oracle

import (
	"os"
	"strconv"
	"strings"
)

// disablePipeIOEnv mirrors AWMKIT_DISABLE_PIPE_IO: when set to a truthy
// value, every engine falls back to file-based invocation even before the
// first pipe attempt.
func disablePipeIOEnv() bool {
	return parseEnvFlag(os.Getenv("AWMKIT_DISABLE_PIPE_IO"))
}

// routeParallelismOverride mirrors AWMKIT_ROUTE_PARALLELISM: an explicit
// operator-chosen concurrency cap for per-route-step oracle invocations.
// Zero means "no override, use the computed default".
func routeParallelismOverride() int {
	raw := strings.TrimSpace(os.Getenv("AWMKIT_ROUTE_PARALLELISM"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0
	}
	return n
}

func parseEnvFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// ComputeRouteParallelism decides how many oracle invocations may run
// concurrently for a route with stepCount steps. Benchmarks on the
// originating implementation found single-threaded fastest for typical
// route sizes (a handful of stereo/mono steps); AWMKIT_ROUTE_PARALLELISM
// lets an operator opt into higher concurrency for large routes.
func ComputeRouteParallelism(stepCount int) int {
	if stepCount <= 1 {
		return 1
	}
	if forced := routeParallelismOverride(); forced > 0 {
		if forced > stepCount {
			return stepCount
		}
		return forced
	}
	return 1
}
