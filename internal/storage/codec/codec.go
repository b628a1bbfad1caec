// Package codec implements total, deterministic encoding/decoding of log
// records via a stable wire schema: a json.Encoder-based approach applied
// to the full Record tagged union.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/clustersched/logstorage/pkg/schema"
)

// CodingError wraps a decode failure caused by malformed bytes or a
// required field missing from otherwise-valid JSON.
type CodingError struct {
	Cause error
}

func (e *CodingError) Error() string {
	return fmt.Sprintf("codec: %v", e.Cause)
}

func (e *CodingError) Unwrap() error {
	return e.Cause
}

// Encode never fails for a well-formed schema.Record: every field the
// schema package exposes is JSON-marshalable.
func Encode(r schema.Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("codec: encode record %s: %w", r.Kind, err)
	}
	return b, nil
}

// Decode fails with *CodingError on malformed bytes or a record missing its
// Kind discriminator. An unrecognized Kind is not an error here — callers
// (the replay dispatcher, the stream manager) decide whether an unknown
// kind is ignorable or fatal, per §4.1's "surfaced as a decoded value whose
// kind is not in the dispatch table" contract.
func Decode(b []byte) (schema.Record, error) {
	var r schema.Record
	if err := json.Unmarshal(b, &r); err != nil {
		return schema.Record{}, &CodingError{Cause: err}
	}
	if r.Kind == "" {
		return schema.Record{}, &CodingError{Cause: fmt.Errorf("record missing kind")}
	}
	return r, nil
}
