package dashboard

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Encode serializes the payload. Map keys are written in sorted order, so
// equal payloads encode to identical bytes.
func Encode(p *Payload, pretty bool) ([]byte, error) {
	var data []byte
	var err error
	if pretty {
		data, err = json.MarshalIndent(p, "", "  ")
	} else {
		data, err = json.Marshal(p)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding dashboard: %w", err)
	}
	return data, nil
}

// Decode parses a payload previously produced by Encode.
func Decode(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding dashboard: %w", err)
	}
	return &p, nil
}
