package server

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/enerhogar/energia-tracker/internal/common"
)

const consumptionCreateSchema = `{
	"type": "object",
	"required": ["user_id", "recorded_at", "consumption_kwh"],
	"properties": {
		"user_id":         {"type": "integer", "minimum": 1},
		"recorded_at":     {"type": "string"},
		"consumption_kwh": {"type": "number", "minimum": 0},
		"cost":            {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

const consumptionUpdateSchema = `{
	"type": "object",
	"properties": {
		"recorded_at":     {"type": "string"},
		"consumption_kwh": {"type": "number", "minimum": 0},
		"cost":            {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

const ticketCreateSchema = `{
	"type": "object",
	"required": ["user_id", "subject", "message"],
	"properties": {
		"user_id": {"type": "integer", "minimum": 1},
		"subject": {"type": "string", "minLength": 1, "maxLength": 200},
		"message": {"type": "string", "minLength": 1}
	},
	"additionalProperties": false
}`

const ticketStatusSchema = `{
	"type": "object",
	"required": ["status"],
	"properties": {
		"status": {"type": "string", "enum": ["OPEN", "IN_PROGRESS", "RESOLVED"]}
	},
	"additionalProperties": false
}`

var (
	schemaConsumptionCreate = jsonschema.MustCompileString("consumption_create.json", consumptionCreateSchema)
	schemaConsumptionUpdate = jsonschema.MustCompileString("consumption_update.json", consumptionUpdateSchema)
	schemaTicketCreate      = jsonschema.MustCompileString("ticket_create.json", ticketCreateSchema)
	schemaTicketStatus      = jsonschema.MustCompileString("ticket_status.json", ticketStatusSchema)
)

// decodeBody validates the request body against schema before unmarshalling
// it into out. Schema failures surface as validation errors with the
// schema's own message.
func decodeBody(r io.Reader, schema *jsonschema.Schema, out any) error {
	body, err := io.ReadAll(io.LimitReader(r, 1<<20))
	if err != nil {
		return common.NewAppError("BAD_BODY", "could not read request body", common.ErrValidation)
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return common.NewAppError("BAD_JSON", "request body is not valid JSON", common.ErrValidation)
	}
	if err := schema.Validate(v); err != nil {
		return common.NewAppError("SCHEMA", fmt.Sprintf("invalid request: %v", err), common.ErrValidation)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return common.NewAppError("BAD_JSON", "request body is not valid JSON", common.ErrValidation)
	}
	return nil
}
