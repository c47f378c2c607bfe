// Package dsd encodes and decodes structured data in one of several
// serialization formats. The data is stored without any format prefix, the
// format is expected to be known by the reader, e.g. through a file extension.
package dsd

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ghodss/yaml"
	"github.com/vmihailenco/msgpack/v5"
)

// Dump stores the interface as a data structure in the given format.
func Dump(t interface{}, format SerializationFormat) ([]byte, error) {
	format, ok := format.ValidateSerializationFormat()
	if !ok {
		return nil, ErrIncompatibleFormat
	}

	var data []byte
	var err error
	switch format {
	case JSON:
		data, err = json.MarshalIndent(t, "", "  ")
	case CBOR:
		data, err = cbor.Marshal(t)
	case MsgPack:
		data, err = msgpack.Marshal(t)
	case YAML:
		data, err = yaml.Marshal(t)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("dsd: failed to dump %s: %w", format, err)
	}
	return data, nil
}

// Load loads the data in the given format into the given interface.
func Load(data []byte, format SerializationFormat, t interface{}) error {
	format, ok := format.ValidateSerializationFormat()
	if !ok {
		return ErrIncompatibleFormat
	}

	var err error
	switch format {
	case JSON:
		err = json.Unmarshal(data, t)
	case CBOR:
		err = cbor.Unmarshal(data, t)
	case MsgPack:
		err = msgpack.Unmarshal(data, t)
	case YAML:
		err = yaml.Unmarshal(data, t)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return fmt.Errorf("dsd: failed to load %s: %w", format, err)
	}
	return nil
}
