package wire

import (
	"regexp"
	"strings"
)

// Type is a message tag from the fixed protocol vocabulary.
type Type string

// Message type constants
const (
	// TypeClientID carries the connecting account id, sent once
	// immediately after connecting
	TypeClientID Type = "CLIENT_ID"
	// TypeInput is a server-initiated prompt; the peer answers with one
	// bare line
	TypeInput Type = "INPUT"
	// TypeMessage is informational text for the peer to display
	TypeMessage Type = "MESSAGE"
	// TypeEnd marks the end of a command dialogue
	TypeEnd Type = "END"
	// TypeWait tells the peer its command is waiting on the ledger lock
	TypeWait Type = "WAIT"
	// TypeError reports a command failure
	TypeError Type = "ERROR"
	// TypeNone is raw untagged text (client commands and prompt answers)
	TypeNone Type = "NONE"
	// TypeUnknown is never sent deliberately; the receiver produces it
	// for lines that fail to decode
	TypeUnknown Type = "UNKNOWN"
)

// TypeFromString matches a tag case-insensitively against the vocabulary,
// defaulting to TypeUnknown.
func TypeFromString(s string) Type {
	switch Type(strings.ToUpper(s)) {
	case TypeClientID:
		return TypeClientID
	case TypeInput:
		return TypeInput
	case TypeMessage:
		return TypeMessage
	case TypeEnd:
		return TypeEnd
	case TypeWait:
		return TypeWait
	case TypeError:
		return TypeError
	case TypeNone:
		return TypeNone
	default:
		return TypeUnknown
	}
}

// Message is one decoded protocol line.
type Message struct {
	Type    Type
	Content string
}

var messagePattern = regexp.MustCompile(`^\[(.*?)\](.*)$`)

// Parse classifies one wire line. A line without a bracketed tag decodes
// to UNKNOWN carrying the raw line; a bracketed but unrecognized tag
// decodes to UNKNOWN carrying the stripped content. Parsing never fails.
func Parse(line string) *Message {
	m := messagePattern.FindStringSubmatch(line)
	if m == nil {
		return &Message{Type: TypeUnknown, Content: line}
	}

	return &Message{
		Type:    TypeFromString(m[1]),
		Content: strings.TrimSpace(m[2]),
	}
}
