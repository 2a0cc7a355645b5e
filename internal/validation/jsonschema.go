package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/autoforge/internal/expressions"
	"github.com/rendis/autoforge/internal/store"
	"github.com/rendis/autoforge/pkg/schema"
)

const chainSchemaURL = "https://autoforge.dev/schemas/chain.json"

// chainSchemaJSON is the JSON Schema for chain definitions.
const chainSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://autoforge.dev/schemas/chain.json",
  "type": "object",
  "required": ["name", "trigger_type", "actions"],
  "properties": {
    "name": {"type": "string", "minLength": 1, "maxLength": 200},
    "description": {"type": "string"},
    "trigger_type": {"type": "string", "enum": ["manual", "webhook", "schedule"]},
    "trigger_config": {"type": "object"},
    "actions": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/action"}
    },
    "execution_cost": {"type": "integer", "minimum": 0}
  },
  "allOf": [
    {
      "if": {"properties": {"trigger_type": {"const": "schedule"}}},
      "then": {
        "properties": {
          "trigger_config": {
            "properties": {"interval_minutes": {"type": "integer", "minimum": 1}}
          }
        }
      }
    },
    {
      "if": {"properties": {"trigger_type": {"const": "webhook"}}},
      "then": {
        "properties": {
          "trigger_config": {
            "properties": {"secret": {"type": "string", "minLength": 1}}
          }
        }
      }
    }
  ],
  "$defs": {
    "action": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string", "enum": ["http_request", "send_email", "telegram_message"]},
        "config": {"type": "object"}
      },
      "allOf": [
        {
          "if": {"properties": {"type": {"const": "http_request"}}},
          "then": {
            "properties": {
              "config": {
                "properties": {
                  "url": {"type": "string"},
                  "method": {"type": "string"},
                  "headers": {"type": "object"},
                  "success_when": {"type": "string", "minLength": 1}
                }
              }
            }
          }
        }
      ]
    }
  }
}`

// ChainValidator implements Validator with JSON Schema Draft 2020-12 plus the
// checks a schema cannot express. It is safe for concurrent use.
type ChainValidator struct {
	chainSchema *jsonschema.Schema
	exprs       *expressions.ExprEngine
}

// NewChainValidator compiles the chain schema.
func NewChainValidator() (*ChainValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(chainSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal chain schema: %w", err)
	}
	if err := c.AddResource(chainSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add chain schema resource: %w", err)
	}
	compiled, err := c.Compile(chainSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile chain schema: %w", err)
	}

	return &ChainValidator{chainSchema: compiled, exprs: expressions.NewExprEngine()}, nil
}

// chainDocument is the owner-supplied part of a chain.
type chainDocument struct {
	Name          string                    `json:"name"`
	Description   string                    `json:"description,omitempty"`
	TriggerKind   schema.TriggerKind        `json:"trigger_type"`
	TriggerConfig map[string]any            `json:"trigger_config"`
	Actions       []schema.ActionDefinition `json:"actions"`
	Cost          schema.Amount             `json:"execution_cost"`
}

// ValidateChain validates the definition fields of chain.
func (v *ChainValidator) ValidateChain(chain *store.Chain) error {
	if chain == nil {
		return schema.NewError(schema.ErrCodeValidation, "chain is nil")
	}

	d := chainDocument{
		Name:          chain.Name,
		Description:   chain.Description,
		TriggerKind:   chain.TriggerKind,
		TriggerConfig: chain.TriggerConfig,
		Actions:       chain.Actions,
		Cost:          chain.Cost,
	}
	if d.TriggerConfig == nil {
		d.TriggerConfig = map[string]any{}
	}
	if d.Actions == nil {
		d.Actions = []schema.ActionDefinition{}
	}

	doc, err := toJSONValue(d)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize chain").WithCause(err)
	}
	if err := v.chainSchema.Validate(doc); err != nil {
		return toSchemaError(err)
	}

	for i, a := range chain.Actions {
		rule, ok := a.Config["success_when"].(string)
		if !ok {
			continue
		}
		if err := v.exprs.Compile(rule); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"/actions/%d/config/success_when: %s", i, err.Error()).
				WithCause(err)
		}
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON so numbers become json.Number,
// which the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSchemaError converts a jsonschema.ValidationError into a VALIDATION_ERROR
// listing every violation with its instance location.
func toSchemaError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Validator = (*ChainValidator)(nil)
