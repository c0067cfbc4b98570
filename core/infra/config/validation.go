package config

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/CardSorting/hana-relay/core/infra/schema"
)

//go:embed schema/*.json
var tuningSchemaFS embed.FS

var (
	tuningSchemaOnce sync.Once
	tuningSchema     *schema.Compiled
	tuningSchemaErr  error
)

func compiledTuningSchema() (*schema.Compiled, error) {
	tuningSchemaOnce.Do(func() {
		data, err := tuningSchemaFS.ReadFile("schema/tuning.schema.json")
		if err != nil {
			tuningSchemaErr = fmt.Errorf("load tuning schema: %w", err)
			return
		}
		tuningSchema, tuningSchemaErr = schema.Compile("tuning", data)
	})
	return tuningSchema, tuningSchemaErr
}

// validateTuningYAML checks raw YAML against the embedded tuning schema before
// it is decoded into the Tuning struct, so unknown or mistyped keys are caught
// instead of silently ignored.
func validateTuningYAML(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	compiled, err := compiledTuningSchema()
	if err != nil {
		return err
	}
	var payload any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("parse tuning config: %w", err)
	}
	if err := compiled.Validate(payload); err != nil {
		return fmt.Errorf("validate tuning config: %w", err)
	}
	return nil
}
