package assets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AudioSynthesizer renders text as mp3 bytes.
type AudioSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Speech uploads synthesized audio and returns its public URL.
type Speech struct {
	tts   AudioSynthesizer
	store *Store
	newID func() string
}

func NewSpeech(tts AudioSynthesizer, store *Store) (*Speech, error) {
	if tts == nil || store == nil {
		return nil, errors.New("assets: speech requires a synthesizer and a store")
	}
	return &Speech{tts: tts, store: store, newID: uuid.NewString}, nil
}

func (s *Speech) Synthesize(ctx context.Context, text string) (string, error) {
	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return "", fmt.Errorf("assets: synthesize: %w", err)
	}
	return s.store.Put(ctx, "voice/"+s.newID()+".mp3", "audio/mpeg", audio)
}
