package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"
)

// standardizeJSONC strips comments and trailing commas from data so it can
// be decoded by encoding/json, giving .jsonc config files the same tolerant
// parsing the teacher's own config loader offers.
func standardizeJSONC(data []byte) ([]byte, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, err
	}

	return standardized, nil
}

func unmarshalJSON(data []byte, frs *fileRuleSet) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(frs); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}

	return nil
}
