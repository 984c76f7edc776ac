package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cesargomez89/chordbook/internal/codec"
	"github.com/cesargomez89/chordbook/internal/domain"
)

// ParseStoredSongs decodes any historical on-disk shape of the song set:
// the current versioned envelope, a backup snapshot (whose songs field
// shares the envelope's name), or the legacy bare array written before
// envelopes existed.
func ParseStoredSongs(raw string) ([]*domain.Song, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var stored []domain.SerializedSong
		if err := json.Unmarshal([]byte(trimmed), &stored); err != nil {
			return nil, fmt.Errorf("failed to decode legacy song array: %w", err)
		}
		return codec.DeserializeSongs(stored), nil
	}

	var env domain.Envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, fmt.Errorf("failed to decode song envelope: %w", err)
	}
	return codec.DeserializeSongs(env.Songs), nil
}
