package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

var ErrEmptyID = errors.New("empty id")

// RoomID identifies a chat group's realtime audience.
type RoomID string

// MessageID identifies a persisted message.
type MessageID string

// MessageRef is a message id as a client sent it. It marshals back in the
// same JSON form, so a quoted "42" stays a string and 42 stays a number.
type MessageRef struct {
	ID     MessageID
	Quoted bool
}

func (r MessageRef) IsZero() bool { return r.ID == "" }

func (r *MessageRef) UnmarshalJSON(b []byte) error {
	s, err := decodeID(b)
	if err != nil {
		return err
	}
	r.ID = MessageID(s)
	r.Quoted = bytes.TrimSpace(b)[0] == '"'
	return nil
}

func (r MessageRef) MarshalJSON() ([]byte, error) {
	if !r.Quoted && isInteger(string(r.ID)) {
		return []byte(r.ID), nil
	}
	return json.Marshal(string(r.ID))
}

func (id *RoomID) UnmarshalJSON(b []byte) error {
	s, err := decodeID(b)
	if err != nil {
		return err
	}
	*id = RoomID(s)
	return nil
}

func (id RoomID) MarshalJSON() ([]byte, error) { return encodeID(string(id)), nil }

func (id *MessageID) UnmarshalJSON(b []byte) error {
	s, err := decodeID(b)
	if err != nil {
		return err
	}
	*id = MessageID(s)
	return nil
}

func (id MessageID) MarshalJSON() ([]byte, error) { return encodeID(string(id)), nil }

// decodeID accepts both JSON numbers and strings, since clients send group
// and message ids as integers.
func decodeID(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", ErrEmptyID
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		if s == "" {
			return "", ErrEmptyID
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// encodeID writes integer ids as JSON numbers and everything else as
// strings. Stored ids are database integers.
func encodeID(s string) []byte {
	if isInteger(s) {
		return []byte(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
