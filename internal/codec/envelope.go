// Package codec encodes messages the way spec.md §6.2 requires them on the
// wire: gob (our bincode analogue) wrapped in LZ4 compression.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io/ioutil"

	"github.com/pierrec/lz4/v3"
)

// Encode gob-encodes v and compresses the result with LZ4, mirroring the
// teacher's encoder setup in master/main.go (gob.NewEncoder(&writer)) with
// an LZ4 frame layered on top, as spec.md §6.2 requires for every published
// payload.
func Encode(v interface{}) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(v); err != nil {
		return nil, fmt.Errorf("codec: gob encode: %w", err)
	}

	var compressed bytes.Buffer
	w := lz4.NewWriter(&compressed)
	if _, err := w.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("codec: lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: lz4 close: %w", err)
	}
	return compressed.Bytes(), nil
}

// Decode reverses Encode into v, which must be a pointer to the same
// concrete type (or registered interface) that was encoded.
func Decode(data []byte, v interface{}) error {
	r := lz4.NewReader(bytes.NewReader(data))
	raw, err := ioutil.ReadAll(r)
	if err != nil {
		return fmt.Errorf("codec: lz4 decompress: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return fmt.Errorf("codec: gob decode: %w", err)
	}
	return nil
}
