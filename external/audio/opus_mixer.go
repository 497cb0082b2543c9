//go:build opus

package audio

import (
	"log/slog"
	"sync"

	"github.com/foxseedlab/signscribe/internal/audio"
	"github.com/hraban/opus"
)

type OpusMixer struct {
	mu       sync.Mutex
	speakers map[string]struct{}
	decoders map[string]*opus.Decoder
	queues   map[string]*frameQueue
	closed   bool
}

func NewOpusMixer(speakerIDs ...string) audio.Mixer {
	return &OpusMixer{
		speakers: speakerSet(speakerIDs),
		decoders: make(map[string]*opus.Decoder),
		queues:   make(map[string]*frameQueue),
	}
}

func (m *OpusMixer) WriteOpusPacket(userID string, opusData []byte) {
	if len(opusData) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || !accepts(m.speakers, userID) {
		return
	}
	dec, ok := m.decoders[userID]
	if !ok {
		var err error
		dec, err = opus.NewDecoder(sampleRate, channels)
		if err != nil {
			slog.Warn("failed to create opus decoder", "error", err, "user_id", userID)
			return
		}
		m.decoders[userID] = dec
		m.queues[userID] = &frameQueue{}
	}
	pcm := make([]int16, samplesPerFrame)
	n, err := dec.Decode(opusData, pcm)
	if err != nil || n <= 0 {
		return
	}
	total := min(n*channels, samplesPerFrame)
	frame := make([]int16, total)
	copy(frame, pcm[:total])
	m.queues[userID].push(frame)
}

func (m *OpusMixer) ReadMixedPCM(buf []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, nil
	}
	mixed := make([]int16, samplesPerFrame)
	heard := false
	for _, q := range m.queues {
		frame, ok := q.pop()
		if !ok {
			continue
		}
		mixInto(mixed, frame)
		heard = true
	}
	if !heard {
		return 0, nil
	}
	return encodePCM(buf, mixed), nil
}

func (m *OpusMixer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for userID, q := range m.queues {
		if q.dropped > 0 {
			slog.Info("mixer dropped late audio frames", "user_id", userID, "frames", q.dropped)
		}
	}
	m.closed = true
	m.decoders = nil
	m.queues = nil
}
