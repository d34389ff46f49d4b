package decisionlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/annexops/registry/internal/api"
)

// eventSchemaJSON is the decision-event schema from spec §4.5. It covers
// structure and required fields; business rules a generic schema can't
// express (idempotency, PII minimization) are enforced afterward in
// Service.Ingest.
const eventSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["event_id", "event_time", "actor", "subject", "model", "input", "output"],
	"properties": {
		"event_id": {"type": "string", "minLength": 1, "maxLength": 128},
		"event_time": {"type": "string", "format": "date-time"},
		"actor": {"type": "string", "minLength": 1},
		"subject": {
			"type": "object",
			"required": ["subject_type"],
			"properties": {
				"subject_type": {"type": "string", "minLength": 1},
				"subject_id": {"type": "string"},
				"subject_id_hash": {"type": "string"}
			}
		},
		"model": {
			"type": "object",
			"required": ["model_id", "model_version"],
			"properties": {
				"model_id": {"type": "string", "minLength": 1},
				"model_version": {"type": "string", "minLength": 1},
				"prompt_version": {"type": "string"}
			}
		},
		"input": {
			"type": "object",
			"required": ["input_hash"],
			"properties": {
				"input_hash": {"type": "string", "minLength": 1},
				"features_summary": {}
			}
		},
		"output": {
			"type": "object",
			"required": ["decision", "output_hash"],
			"properties": {
				"decision": {"type": "string", "minLength": 1},
				"score": {"type": "number"},
				"output_hash": {"type": "string", "minLength": 1}
			}
		},
		"human": {
			"type": "object",
			"properties": {
				"reviewer_id": {"type": "string"},
				"override": {"type": "boolean"}
			}
		},
		"trace": {
			"type": "object",
			"properties": {
				"request_id": {"type": "string"},
				"latency_ms": {"type": "integer"},
				"error": {"type": "string"}
			}
		}
	}
}`

var compiledEventSchema = mustCompileEventSchema()

func mustCompileEventSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://annexops.local/schemas/decision-event.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(eventSchemaJSON)); err != nil {
		panic(fmt.Sprintf("decisionlog: load event schema: %v", err))
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("decisionlog: compile event schema: %v", err))
	}
	return schema
}

// Subject carries the decision's subject, pre-PII-minimization.
type Subject struct {
	SubjectType   string `json:"subject_type"`
	SubjectID     string `json:"subject_id,omitempty"`
	SubjectIDHash string `json:"subject_id_hash,omitempty"`
}

// Model identifies the model version that produced the decision.
type Model struct {
	ModelID       string `json:"model_id"`
	ModelVersion  string `json:"model_version"`
	PromptVersion string `json:"prompt_version,omitempty"`
}

// Input is the hashed input reference; raw features are never required.
type Input struct {
	InputHash       string          `json:"input_hash"`
	FeaturesSummary json.RawMessage `json:"features_summary,omitempty"`
}

// Output is the decision outcome and its hashed output reference.
type Output struct {
	Decision   string   `json:"decision"`
	Score      *float64 `json:"score,omitempty"`
	OutputHash string   `json:"output_hash"`
}

// Human records optional reviewer override metadata.
type Human struct {
	ReviewerID string `json:"reviewer_id,omitempty"`
	Override   *bool  `json:"override,omitempty"`
}

// Trace carries optional request tracing metadata.
type Trace struct {
	RequestID string `json:"request_id,omitempty"`
	LatencyMs *int   `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Event is the typed decision-event payload (spec §4.5).
type Event struct {
	EventID   string    `json:"event_id"`
	EventTime time.Time `json:"event_time"`
	Actor     string    `json:"actor"`
	Subject   Subject   `json:"subject"`
	Model     Model     `json:"model"`
	Input     Input     `json:"input"`
	Output    Output    `json:"output"`
	Human     *Human    `json:"human,omitempty"`
	Trace     *Trace    `json:"trace,omitempty"`
}

// parseEvent validates raw against the decision-event JSON schema, then
// decodes it into a typed Event. Schema violations surface as
// KindIngestSchemaInvalid (400), never 422, per spec §4.5/§7.
func parseEvent(raw json.RawMessage) (*Event, error) {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, api.NewError(api.KindIngestSchemaInvalid, fmt.Sprintf("malformed JSON: %v", err))
	}
	if err := compiledEventSchema.Validate(generic); err != nil {
		return nil, api.NewError(api.KindIngestSchemaInvalid, fmt.Sprintf("event schema validation failed: %v", err))
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, api.NewError(api.KindIngestSchemaInvalid, fmt.Sprintf("event decode failed: %v", err))
	}
	return &ev, nil
}
