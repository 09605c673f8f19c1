package hublifetime

import (
	"bytes"
	"sync"
)

// serializedMessage holds a hub message and its serialized frames, one per protocol name.
// A broadcast serializes its invocation once per protocol, regardless of the number of recipients.
type serializedMessage struct {
	message interface{}
	mx      sync.Mutex
	frames  map[string][]byte
}

func newSerializedMessage(message interface{}) *serializedMessage {
	return &serializedMessage{
		message: message,
		frames:  make(map[string][]byte),
	}
}

func (s *serializedMessage) frame(protocol HubProtocol) ([]byte, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if frame, ok := s.frames[protocol.Name()]; ok {
		return frame, nil
	}
	var buf bytes.Buffer
	if err := protocol.WriteMessage(s.message, &buf); err != nil {
		return nil, err
	}
	frame := buf.Bytes()
	s.frames[protocol.Name()] = frame
	return frame, nil
}
