package server

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// extractRequestSchema guards the trigger payload before any business logic
// runs; a schema violation is MalformedInput for that invocation only.
// recordId may be omitted when the object key embeds it.
var extractRequestSchema = jsonschema.MustCompileString("extract-request.json", `{
	"type": "object",
	"required": ["s3Key"],
	"additionalProperties": false,
	"properties": {
		"recordId": {"type": "string", "minLength": 1},
		"s3Key":    {"type": "string", "minLength": 1},
		"mode":     {"type": "string", "enum": ["detect", "analyzeExpense"]}
	}
}`)
