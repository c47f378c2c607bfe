package dsd

import (
	"errors"
	"fmt"
	"strings"
)

// Errors.
var (
	ErrIncompatibleFormat = errors.New("dsd: format is incompatible with operation")
	ErrUnknownFormat      = errors.New("dsd: format is unknown")
)

// SerializationFormat defines how records are encoded at rest.
type SerializationFormat uint8

// Serialization Formats.
const (
	AUTO    SerializationFormat = 0
	CBOR    SerializationFormat = 67 // C
	JSON    SerializationFormat = 74 // J
	MsgPack SerializationFormat = 77 // M
	YAML    SerializationFormat = 89 // Y
)

// DefaultSerializationFormat is used when AUTO is requested.
var DefaultSerializationFormat = JSON

// ValidateSerializationFormat validates if the format is for serialization,
// and returns the validated format as well as the result of the validation.
// If called on the AUTO format, it returns the default serialization format.
func (format SerializationFormat) ValidateSerializationFormat() (validated SerializationFormat, ok bool) {
	switch format {
	case AUTO:
		return DefaultSerializationFormat, true
	case CBOR, JSON, MsgPack, YAML:
		return format, true
	default:
		return 0, false
	}
}

// Extension returns the file extension (without dot) used for the format.
func (format SerializationFormat) Extension() string {
	switch format {
	case AUTO:
		return DefaultSerializationFormat.Extension()
	case CBOR:
		return "cbor"
	case JSON:
		return "json"
	case MsgPack:
		return "msgpack"
	case YAML:
		return "yaml"
	default:
		return ""
	}
}

func (format SerializationFormat) String() string {
	switch format {
	case AUTO:
		return "auto"
	case CBOR, JSON, MsgPack, YAML:
		return format.Extension()
	default:
		return fmt.Sprintf("unknown(%d)", uint8(format))
	}
}

// ParseFormat returns the serialization format for the given name or file extension.
func ParseFormat(name string) (SerializationFormat, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "auto":
		return DefaultSerializationFormat, nil
	case "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	case "msgpack", "mpk":
		return MsgPack, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}
