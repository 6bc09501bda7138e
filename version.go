package apireq

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// Version is the library release, reported in the default User-Agent and in
// the apireq_build_info metric.
var Version = "v0.3.0"

// GitCommit is set with -ldflags "-X github.com/ambiyansyah-risyal/apireq.GitCommit=<sha>".
var GitCommit = "unknown"

func buildLabels() prometheus.Labels {
	return prometheus.Labels{
		"version":    Version,
		"commit":     GitCommit,
		"go_version": runtime.Version(),
	}
}
