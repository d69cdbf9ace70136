package persistence

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"civilizace.org/internal/state"
)

// State revisions are stored as zstd-compressed deterministic JSON.

func encodeState(st *state.GameState) ([]byte, error) {
	raw, err := st.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize state: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func decodeState(blob []byte) (*state.GameState, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress state: %w", err)
	}
	return state.Deserialize(raw)
}
