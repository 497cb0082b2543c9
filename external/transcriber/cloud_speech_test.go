package transcriber

import (
	"errors"
	"io"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/signscribe/internal/transcriber"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type recordingReceiver struct {
	results       []transcriber.Result
	utteranceEnds int
	errs          []error
}

func (r *recordingReceiver) OnResult(result transcriber.Result) { r.results = append(r.results, result) }
func (r *recordingReceiver) OnUtteranceEnd()                    { r.utteranceEnds++ }
func (r *recordingReceiver) OnError(err error)                  { r.errs = append(r.errs, err) }

func TestDispatchResponse_MapsConfidence(t *testing.T) {
	rec := &recordingReceiver{}
	dispatchResponse(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "where", Confidence: 0}}},
			{IsFinal: true, Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "where does it hurt", Confidence: 0.75}}},
			{IsFinal: true, Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "okay"}}},
			{IsFinal: true},
		},
	}, rec)

	if len(rec.results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(rec.results))
	}
	if rec.results[0].IsFinal || rec.results[0].HasConfidence {
		t.Fatalf("interim result mapped incorrectly: %+v", rec.results[0])
	}
	if !rec.results[1].HasConfidence || rec.results[1].Confidence != 0.75 {
		t.Fatalf("final confidence not mapped: %+v", rec.results[1])
	}
	if rec.results[2].HasConfidence {
		t.Fatalf("zero confidence must be treated as missing: %+v", rec.results[2])
	}
	if rec.utteranceEnds != 0 {
		t.Fatalf("unexpected utterance end")
	}
}

func TestDispatchResponse_SignalsUtteranceEnd(t *testing.T) {
	rec := &recordingReceiver{}
	dispatchResponse(&speechpb.StreamingRecognizeResponse{
		SpeechEventType: speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_END,
	}, rec)

	if rec.utteranceEnds != 1 || len(rec.results) != 0 {
		t.Fatalf("expected a single utterance end, got %+v", rec)
	}
}

func TestIsReconnectableStreamError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "eof", err: io.EOF, want: true},
		{name: "max duration", err: status.Error(codes.Aborted, "Max duration of 5 minutes reached for stream."), want: true},
		{name: "other abort", err: status.Error(codes.Aborted, "quota"), want: false},
		{name: "invalid argument", err: status.Error(codes.InvalidArgument, "bad config"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isReconnectableStreamError(tc.err); got != tc.want {
				t.Fatalf("isReconnectableStreamError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
