package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ResultKind tells whether a Result carries free text or a parsed JSON value.
type ResultKind string

const (
	ResultText       ResultKind = "text"
	ResultStructured ResultKind = "structured"
)

// Result is the interpreted outcome of a successful dispatch.
type Result struct {
	Kind  ResultKind
	Text  string
	Value any
	// ParseError is set when structured output was requested but the reply
	// was not valid JSON and Text holds the raw reply instead.
	ParseError error
	// Refused is set when the model declined the request; Text holds its
	// refusal message.
	Refused bool

	Model              string
	FinishReason       string
	Attempts           int
	SkippedAttachments int
}

// Data returns the parsed value for structured results and the text otherwise.
func (r Result) Data() any {
	if r.Kind == ResultStructured {
		return r.Value
	}
	return r.Text
}

// interpret maps the provider's reply text to a Result. Without a schema the
// text is returned verbatim. With one, the text must be exactly one JSON value;
// anything else falls back to the raw text.
func interpret(text string, structured bool) Result {
	if !structured {
		return Result{Kind: ResultText, Text: text}
	}
	value, err := decodeStrict(text)
	if err != nil {
		return Result{Kind: ResultText, Text: text, ParseError: err}
	}
	return Result{Kind: ResultStructured, Value: value}
}

// decodeStrict parses a single JSON value, keeping numbers as json.Number so
// large integers and decimals survive unchanged.
func decodeStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode structured reply: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode structured reply: trailing data after JSON value")
	}
	return value, nil
}
