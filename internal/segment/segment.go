package segment

import (
	"fmt"
	"maps"
	"time"
)

type Speaker string

const (
	SpeakerPatient   Speaker = "patient"
	SpeakerClinician Speaker = "clinician"
)

func (s Speaker) Valid() bool {
	return s == SpeakerPatient || s == SpeakerClinician
}

type Modality string

const (
	ModalitySigned Modality = "signed"
	ModalitySpoken Modality = "spoken"
)

func (m Modality) Valid() bool {
	return m == ModalitySigned || m == ModalitySpoken
}

// Segment is one observed communicative act. Times are milliseconds since the visit started.
type Segment struct {
	ID         string         `json:"id"`
	Speaker    Speaker        `json:"speaker"`
	Modality   Modality       `json:"modality"`
	TStart     int64          `json:"tStart"`
	TEnd       int64          `json:"tEnd"`
	Text       string         `json:"text,omitempty"`
	Glosses    []string       `json:"glosses,omitempty"`
	Confidence float64        `json:"confidence"`
	Provenance map[string]any `json:"provenance,omitempty"`
}

func (s Segment) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("segment id is empty")
	}
	if !s.Speaker.Valid() {
		return fmt.Errorf("segment %s: unknown speaker %q", s.ID, s.Speaker)
	}
	if !s.Modality.Valid() {
		return fmt.Errorf("segment %s: unknown modality %q", s.ID, s.Modality)
	}
	if s.TStart < 0 {
		return fmt.Errorf("segment %s: negative tStart %d", s.ID, s.TStart)
	}
	if s.TEnd < s.TStart {
		return fmt.Errorf("segment %s: tEnd %d before tStart %d", s.ID, s.TEnd, s.TStart)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("segment %s: confidence %v outside [0,1]", s.ID, s.Confidence)
	}
	return nil
}

// DisplayText prefers the mapped text and falls back to the joined glosses.
func (s Segment) DisplayText() string {
	if s.Text != "" {
		return s.Text
	}
	return joinGlosses(s.Glosses)
}

// Clone returns a copy that shares nothing mutable with s.
func (s Segment) Clone() Segment {
	out := s
	if s.Glosses != nil {
		out.Glosses = append([]string(nil), s.Glosses...)
	}
	out.Provenance = maps.Clone(s.Provenance)
	return out
}

type EntityType string

const (
	EntityTypeSymptom    EntityType = "symptom"
	EntityTypeDuration   EntityType = "duration"
	EntityTypeSeverity   EntityType = "severity"
	EntityTypeBodySite   EntityType = "body_site"
	EntityTypeMedication EntityType = "medication"
	EntityTypeAllergy    EntityType = "allergy"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeSymptom, EntityTypeDuration, EntityTypeSeverity,
		EntityTypeBodySite, EntityTypeMedication, EntityTypeAllergy:
		return true
	default:
		return false
	}
}

// Entity is a clinical fact extracted from exactly one segment.
type Entity struct {
	ID              string     `json:"id"`
	Type            EntityType `json:"type"`
	Text            string     `json:"text"`
	Code            string     `json:"code,omitempty"`
	SourceSegmentID string     `json:"sourceSegmentId"`
}

func (e Entity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity id is empty")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("entity %s: unknown type %q", e.ID, e.Type)
	}
	if e.SourceSegmentID == "" {
		return fmt.Errorf("entity %s: source segment id is empty", e.ID)
	}
	return nil
}

// RelativeMillis converts an absolute instant into milliseconds since startedAt, clamped at zero.
func RelativeMillis(startedAt, at time.Time) int64 {
	ms := at.Sub(startedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// FormatClock renders relative milliseconds as mm:ss.
func FormatClock(ms int64) string {
	return fmt.Sprintf("%02d:%02d", ms/60000, (ms%60000)/1000)
}

// FormatClockMillis renders relative milliseconds as mm:ss.mmm.
func FormatClockMillis(ms int64) string {
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, (ms%60000)/1000, ms%1000)
}
