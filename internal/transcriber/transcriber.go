package transcriber

import "context"

// Result is one recognition hypothesis. Interim results may be revised; final ones are not.
type Result struct {
	Text          string
	IsFinal       bool
	Confidence    float64
	HasConfidence bool
}

type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}

type ResultReceiver interface {
	OnResult(result Result)
	// OnUtteranceEnd is called when the recognizer detects the speaker stopped talking.
	OnUtteranceEnd()
	OnError(err error)
}

type Transcriber interface {
	StartStreaming(ctx context.Context, visitID, language string, receiver ResultReceiver) (StreamWriter, error)
}
