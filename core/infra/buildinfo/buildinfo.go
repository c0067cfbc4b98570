package buildinfo

import (
	"fmt"
	"log"
	"runtime"
)

// Set at link time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a single-line build summary including the Go runtime.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s built=%s go=%s", Version, shortCommit(), Date, runtime.Version())
}

// Log writes the build summary prefixed with the service name.
func Log(service string) {
	log.Printf("%s %s", service, Info())
}

func shortCommit() string {
	if len(Commit) > 12 {
		return Commit[:12]
	}
	return Commit
}
