package audio

import "encoding/binary"

const (
	sampleRate      = 48000
	channels        = 2
	frameSizeMs     = 20
	samplesPerFrame = sampleRate * frameSizeMs * channels / 1000

	// maxQueuedFrames bounds how far one speaker may run ahead of the mix (one second).
	maxQueuedFrames = 50
)

type frameQueue struct {
	frames  [][]int16
	dropped int
}

func (q *frameQueue) push(frame []int16) {
	if len(q.frames) >= maxQueuedFrames {
		q.frames = q.frames[1:]
		q.dropped++
	}
	q.frames = append(q.frames, frame)
}

func (q *frameQueue) pop() ([]int16, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

func (q *frameQueue) hasFrame() bool {
	return len(q.frames) > 0
}

// mixInto adds frame onto mixed with saturation.
func mixInto(mixed, frame []int16) {
	for i := 0; i < len(frame) && i < len(mixed); i++ {
		mixed[i] = clampPCM(int32(mixed[i]) + int32(frame[i]))
	}
}

func clampPCM(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// encodePCM writes little-endian 16-bit samples into buf and returns the byte count.
func encodePCM(buf []byte, mixed []int16) int {
	toWrite := min(len(buf)/2, len(mixed))
	for i := 0; i < toWrite; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(mixed[i]))
	}
	return toWrite * 2
}

func speakerSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

func accepts(set map[string]struct{}, userID string) bool {
	if set == nil {
		return true
	}
	_, ok := set[userID]
	return ok
}
