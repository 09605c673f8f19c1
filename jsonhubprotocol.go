package hublifetime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONHubProtocol is the JSON based SignalR protocol.
// Each message is terminated by the record separator 0x1E.
type JSONHubProtocol struct{}

type jsonError struct {
	message interface{}
	err     error
}

func (j *jsonError) Error() string {
	return fmt.Sprintf("%v (source: %#v)", j.err, j.message)
}

func (j *jsonError) Unwrap() error {
	return j.err
}

// Name returns "json"
func (j *JSONHubProtocol) Name() string {
	return "json"
}

// WriteMessage writes a message as JSON to the specified writer
func (j *JSONHubProtocol) WriteMessage(message interface{}, writer io.Writer) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(message); err != nil {
		return &jsonError{message, err}
	}
	// Encode appends '\n', which is replaced by the record separator
	b := buf.Bytes()
	b[len(b)-1] = 30
	_, err := writer.Write(b)
	return err
}
