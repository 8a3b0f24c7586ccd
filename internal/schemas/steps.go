package schemas

import (
	"embed"
	"fmt"
)

//go:embed *.schema.json
var stepSchemas embed.FS

// schemaFiles maps artifact step names to their embedded schema files. Form
// step payloads are validated with struct tags instead and have no entry here.
var schemaFiles = map[string]string{
	"topic_critic":                   "topic_critic.schema.json",
	"outline":                        "outline.schema.json",
	"phase2_approach_recommendation": "phase2_approach_recommendation.schema.json",
	"phase2_sources_pack":            "phase2_sources_pack.schema.json",
	"phase2_evidence_plan":           "phase2_evidence_plan.schema.json",
	"phase2_research_plan_pack":      "phase2_research_plan_pack.schema.json",
}

// ValidateArtifact validates a generated artifact payload against the schema
// registered for its step name. Steps without a registered schema pass.
func ValidateArtifact(stepName, jsonContent string) error {
	file, ok := schemaFiles[stepName]
	if !ok {
		return nil
	}

	schemaBytes, err := stepSchemas.ReadFile(file)
	if err != nil {
		return &SchemaLoadError{Name: file, Message: "embedded schema missing", Cause: err}
	}

	if err := ValidateJSONString(string(schemaBytes), jsonContent); err != nil {
		return fmt.Errorf("artifact %s: %w", stepName, err)
	}
	return nil
}
