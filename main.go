package main

import (
	"os"

	"github.com/grafana/pyroscope-go"

	"clipforge/app"
)

// startProfiling opts into continuous profiling when PYROSCOPE_SERVER_ADDRESS
// is set. The teacher's main.go calls an observability.StartProfiling
// wrapper around this same SDK; that wrapper was never part of the
// retrieved example set, so this calls github.com/grafana/pyroscope-go
// directly rather than imitate a package that doesn't exist in the corpus.
func startProfiling() {
	addr := os.Getenv("PYROSCOPE_SERVER_ADDRESS")
	if addr == "" {
		return
	}
	_, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "clipforge",
		ServerAddress:   addr,
		Logger:          nil,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		return
	}
}

func main() {
	startProfiling()
	app.Run()
}
