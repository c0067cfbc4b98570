package schema

import (
	"embed"
	"sync"
)

//go:embed envelopes/*.json
var envelopeFS embed.FS

var (
	workOnce   sync.Once
	workSchema *Compiled
	workErr    error

	resultOnce   sync.Once
	resultSchema *Compiled
	resultErr    error
)

// WorkEnvelope returns the compiled schema for outbound work-queue messages.
func WorkEnvelope() (*Compiled, error) {
	workOnce.Do(func() {
		data, err := envelopeFS.ReadFile("envelopes/work.envelope.json")
		if err != nil {
			workErr = err
			return
		}
		workSchema, workErr = Compile("work-envelope", data)
	})
	return workSchema, workErr
}

// ResultEnvelope returns the compiled schema for inbound result-queue messages.
func ResultEnvelope() (*Compiled, error) {
	resultOnce.Do(func() {
		data, err := envelopeFS.ReadFile("envelopes/result.envelope.json")
		if err != nil {
			resultErr = err
			return
		}
		resultSchema, resultErr = Compile("result-envelope", data)
	})
	return resultSchema, resultErr
}
