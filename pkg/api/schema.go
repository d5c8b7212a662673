package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/titlevault/pkg/property"
)

const maxBodyBytes = 1 << 20

const (
	walletPattern = `^0[xX][0-9a-fA-F]{40}$`
	hashProp      = `"hash": {"type": "string", "minLength": 1, "maxLength": 256}`
)

var (
	reviewSchema = mustSchema("review", `{
		"type": "object",
		"required": ["hash", "decision"],
		"properties": {
			`+hashProp+`,
			"decision": {"type": "string", "enum": ["approve", "reject", "APPROVE", "REJECT"]},
			"rejectionReason": {"type": "string", "maxLength": 2000},
			"reviewerWallet": {"type": "string"}
		}
	}`)
	hashSchema = mustSchema("hash", `{
		"type": "object",
		"required": ["hash"],
		"properties": {`+hashProp+`}
	}`)
	confirmSchema = mustSchema("confirm-chain-push", `{
		"type": "object",
		"required": ["hash", "txHash"],
		"properties": {
			`+hashProp+`,
			"txHash": {"type": "string", "pattern": "^0[xX][0-9a-fA-F]{64}$"}
		}
	}`)
	transferSchema = mustSchema("transfer-owner", `{
		"type": "object",
		"required": ["hash", "newOwnerWallet"],
		"properties": {
			`+hashProp+`,
			"newOwnerWallet": {"type": "string", "pattern": "`+walletPattern+`"},
			"transferCode": {"type": "string", "maxLength": 32}
		}
	}`)
	walletSchema = mustSchema("generate-code", `{
		"type": "object",
		"required": ["walletAddress"],
		"properties": {
			"walletAddress": {"type": "string", "pattern": "`+walletPattern+`"}
		}
	}`)
	validateSchema = mustSchema("validate", `{
		"type": "object",
		"required": ["hash", "walletAddress"],
		"properties": {
			`+hashProp+`,
			"walletAddress": {"type": "string", "pattern": "`+walletPattern+`"}
		}
	}`)
)

func mustSchema(name, schema string) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://titlevault.dev/schemas/%s.schema.json", name)
	if err := c.AddResource(url, bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("schema %s: %v", name, err))
	}
	return c.MustCompile(url)
}

// decodeBody reads a JSON body, validates it against schema and decodes it
// into dst. Failures wrap property.ErrValidation.
func decodeBody(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: request body exceeds %d bytes", property.ErrValidation, tooLarge.Limit)
		}
		return fmt.Errorf("%w: read body: %v", property.ErrValidation, err)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON body", property.ErrValidation)
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %s", property.ErrValidation, firstCause(ve))
		}
		return fmt.Errorf("%w: %v", property.ErrValidation, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body", property.ErrValidation)
	}
	return nil
}

func firstCause(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "body"
	}
	return fmt.Sprintf("%s: %s", loc, ve.Message)
}
