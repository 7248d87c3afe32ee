package validation

import (
	"fmt"

	"github.com/campusflow/campusflow/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// checkConfigs validates each action node's design-time config against the
// JSON schema published by the registered adapter for its type. Nodes whose
// type has no registered schema are left alone; the registry rejects them at
// invoke time instead.
func (v *Validator) checkConfigs(def *models.WorkflowDefinition) []ValidationError {
	if v.schemas == nil {
		return nil
	}

	var errs []ValidationError

	for _, n := range def.Nodes {
		if n.Category != models.CategoryAction && n.Category != models.CategoryAI {
			continue
		}

		schema, ok := v.schemas.Schema(n.Type)
		if !ok {
			continue
		}

		config := n.Config
		if config == nil {
			config = map[string]any{}
		}

		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(schema),
			gojsonschema.NewGoLoader(config),
		)
		if err != nil {
			errs = append(errs, ValidationError{
				Code:    CodeBadConfig,
				NodeID:  n.ID,
				Message: fmt.Sprintf("config schema check failed: %v", err),
			})

			continue
		}

		for _, desc := range result.Errors() {
			errs = append(errs, ValidationError{
				Code:    CodeBadConfig,
				NodeID:  n.ID,
				Message: desc.String(),
			})
		}
	}

	return errs
}
