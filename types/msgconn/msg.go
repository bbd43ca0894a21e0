// Package msgconn defines the messages exchanged over a raw peer connection, and their framing.
//
// A connection starts with a ChooseConnection exchange, after which the winning connection
// only carries Data.
package msgconn

import "fmt"

// Message is an envelope; exactly one of its fields is set.
type Message struct {
	ChooseConnection *ChooseConnection `msgpack:",omitempty"`
	Data             *Data             `msgpack:",omitempty"`
}

// ChooseConnection marks a raw connection as accepted by the sender.
type ChooseConnection struct{}

// Data carries an application payload on an active connection.
type Data struct {
	Payload []byte
}

func NewChooseConnection() *Message {
	return &Message{ChooseConnection: new(ChooseConnection)}
}

func NewData(payload []byte) *Message {
	return &Message{Data: &Data{Payload: payload}}
}

func (m *Message) IsChooseConnection() bool {
	return m != nil && m.ChooseConnection != nil && m.Data == nil
}

func (m *Message) Valid() bool {
	if m == nil {
		return false
	}

	set := 0
	if m.ChooseConnection != nil {
		set++
	}
	if m.Data != nil {
		set++
	}

	return set == 1
}

func (m *Message) String() string {
	switch {
	case m == nil:
		return "<nil>"
	case m.ChooseConnection != nil:
		return "ChooseConnection"
	case m.Data != nil:
		return fmt.Sprintf("Data(%d bytes)", len(m.Data.Payload))
	default:
		return "Empty"
	}
}
