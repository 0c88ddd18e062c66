package http

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/m-mizutani/goerr/v2"

	"github.com/delthas/giteart/pkg/domain/types"
)

//go:embed schema/push.yaml
var pushSchemaSpec []byte

const (
	envelopeSchemaName = "PushEnvelope"
	pushSchemaName     = "PushPayload"
)

// payloadValidator checks decoded webhook bodies against the push schemas
type payloadValidator struct {
	envelope *openapi3.Schema
	push     *openapi3.Schema
}

func newPayloadValidator(ctx context.Context) (*payloadValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(pushSchemaSpec)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load push payload schema")
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, goerr.Wrap(err, "push payload schema is invalid")
	}

	lookup := func(name string) (*openapi3.Schema, error) {
		ref, ok := doc.Components.Schemas[name]
		if !ok || ref.Value == nil {
			return nil, goerr.New("push payload schema not found", goerr.V("name", name))
		}
		return ref.Value, nil
	}

	v := &payloadValidator{}
	if v.envelope, err = lookup(envelopeSchemaName); err != nil {
		return nil, err
	}
	if v.push, err = lookup(pushSchemaName); err != nil {
		return nil, err
	}
	return v, nil
}

// ValidateEnvelope checks only the secret and ref fields of body
func (v *payloadValidator) ValidateEnvelope(body any) error {
	return validateSchema(v.envelope, body)
}

// Validate reports the first schema violation of body, which must be the
// result of decoding JSON into an any value.
func (v *payloadValidator) Validate(body any) error {
	return validateSchema(v.push, body)
}

func validateSchema(schema *openapi3.Schema, body any) error {
	err := schema.VisitJSON(body)
	if err == nil {
		return nil
	}

	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			field = "body"
		}
		return goerr.New(field+": "+schemaErr.Reason,
			goerr.T(types.ErrTagInvalidPayload),
			goerr.V("field", field),
		)
	}

	return goerr.Wrap(err, "payload does not match schema", goerr.T(types.ErrTagInvalidPayload))
}
