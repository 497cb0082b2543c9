package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foxseedlab/signscribe/internal/segment"
	"github.com/foxseedlab/signscribe/internal/webhook"
)

func testPayload() webhook.ExportPayload {
	startedAt := "2026-03-01T09:00:00Z"
	return webhook.ExportPayload{
		SchemaVersion: webhook.ExportSchemaVersion,
		VisitID:       "visit-1",
		HealthRecord:  "• [00:05] chest pain",
		Segments: []segment.Segment{
			{ID: "s1", Speaker: segment.SpeakerPatient, Modality: segment.ModalitySigned, TStart: 5000, TEnd: 5000, Text: "chest pain", Confidence: 0.95},
		},
		Entities: []segment.Entity{
			{ID: "e1", Type: segment.EntityTypeSymptom, Text: "chest pain", SourceSegmentID: "s1"},
		},
		VisitStartedAt: &startedAt,
		GeneratedAt:    "2026-03-01T09:10:00Z",
		App:            webhook.ExportApp{Name: "signscribe", Version: "dev"},
	}
}

func TestSendExport_EmptyWebhookURL(t *testing.T) {
	sender := NewHTTPSender("")
	if err := sender.SendExport(context.Background(), testPayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestSendExport_Success(t *testing.T) {
	var got map[string]any
	var gotKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type: %s", ct)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendExport(context.Background(), testPayload()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if gotKey != "visit-1/2026-03-01T09:10:00Z" {
		t.Fatalf("unexpected idempotency key: %s", gotKey)
	}
	if got["healthRecord"] != "• [00:05] chest pain" || got["visitStartedAt"] != "2026-03-01T09:00:00Z" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	segments, ok := got["segments"].([]any)
	if !ok || len(segments) != 1 {
		t.Fatalf("unexpected segments: %+v", got["segments"])
	}
	first := segments[0].(map[string]any)
	if first["tStart"] != float64(5000) || first["speaker"] != "patient" {
		t.Fatalf("unexpected segment encoding: %+v", first)
	}
	app := got["app"].(map[string]any)
	if app["name"] != "signscribe" {
		t.Fatalf("unexpected app block: %+v", app)
	}
}

func TestSendExport_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL)
	if err := sender.SendExport(context.Background(), testPayload()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
