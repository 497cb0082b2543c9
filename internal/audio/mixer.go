package audio

// Mixer decodes per-speaker opus packets and mixes them into 48kHz stereo PCM frames.
type Mixer interface {
	WriteOpusPacket(userID string, opus []byte)
	ReadMixedPCM(buf []byte) (int, error)
	Close()
}

// MixerFactory builds a mixer that only accepts packets from speakerIDs; no ids accepts everyone.
type MixerFactory func(speakerIDs ...string) Mixer
