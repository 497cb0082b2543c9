//go:build !opus

package audio

import (
	"log/slog"

	"github.com/foxseedlab/signscribe/internal/audio"
)

type noopMixer struct{}

// NewOpusMixer returns a mixer that discards audio; build with -tags opus for decoding.
func NewOpusMixer(speakerIDs ...string) audio.Mixer {
	slog.Warn("opus support not compiled in; clinician audio will not be transcribed", "speakers", len(speakerIDs))
	return &noopMixer{}
}

func (m *noopMixer) WriteOpusPacket(_ string, _ []byte) {}

func (m *noopMixer) ReadMixedPCM(_ []byte) (int, error) {
	return 0, nil
}

func (m *noopMixer) Close() {}
