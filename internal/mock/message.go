package mock

import "github.com/routemq/routemq/broker"

// Message is a simple broker.Message implementation for testing.
type Message struct {
	T string
	P []byte
	Q byte
	R bool
}

func (m *Message) Topic() string   { return m.T }
func (m *Message) Payload() []byte { return m.P }
func (m *Message) QoS() byte       { return m.Q }
func (m *Message) Retained() bool  { return m.R }

var _ broker.Message = (*Message)(nil)
