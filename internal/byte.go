package internal

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"
)

func SerializeToString(data interface{}) (string, error) {
	var buf bytes.Buffer
	encoder := gob.NewEncoder(&buf)
	if err := encoder.Encode(data); err != nil {
		return "", fmt.Errorf("failed to serialize: %w", err)
	}
	return buf.String(), nil
}

func DeserializeFromString(data string, out interface{}) (err error) {
	buf := bytes.NewBufferString(data)
	decoder := gob.NewDecoder(buf)
	if err = decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}

	return nil
}

func StringToHex(s string) string {
	return hex.EncodeToString([]byte(s))
}
