package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/hyperion-agent/contractforge/internal/model"
)

// validate is the shared struct-tag validator for CLI-parsed request
// structs (SPEC_FULL.md DOMAIN STACK: go-playground/validator in cmd/forge).
var validate = validator.New()

// loadConstructorArgs resolves the --args/--file pair into a
// model.ConstructorArgs, accepting either a positional JSON array or a
// name/value JSON object (spec.md §4.4 steps 3-4), never both.
func loadConstructorArgs(argsJSON, argsFile string) (model.ConstructorArgs, error) {
	if argsJSON != "" && argsFile != "" {
		return model.ConstructorArgs{}, fmt.Errorf("--args and --file are mutually exclusive")
	}

	raw := []byte(argsJSON)
	if argsFile != "" {
		data, err := os.ReadFile(argsFile)
		if err != nil {
			return model.ConstructorArgs{}, fmt.Errorf("read args file: %w", err)
		}
		raw = data
	}
	if len(raw) == 0 {
		return model.ConstructorArgs{}, nil
	}

	var positional []string
	if err := json.Unmarshal(raw, &positional); err == nil {
		return model.ConstructorArgs{Positional: positional}, nil
	}

	var named map[string]string
	if err := json.Unmarshal(raw, &named); err == nil {
		return model.ConstructorArgs{Named: named}, nil
	}

	return model.ConstructorArgs{}, fmt.Errorf("constructor args must be a JSON array or a JSON object of string values")
}
