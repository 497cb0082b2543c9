package segment

import (
	"cmp"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultCoalesceWindow = 300 * time.Millisecond
	DefaultTurnGap        = 1500 * time.Millisecond
)

// SortByStart returns a copy ordered by TStart. TEnd and ID break ties so that the order does not
// depend on the input order.
func SortByStart(list []Segment) []Segment {
	out := make([]Segment, len(list))
	for i, s := range list {
		out[i] = s.Clone()
	}
	slices.SortStableFunc(out, func(a, b Segment) int {
		return cmp.Or(
			cmp.Compare(a.TStart, b.TStart),
			cmp.Compare(a.TEnd, b.TEnd),
			strings.Compare(a.ID, b.ID),
		)
	})
	return out
}

// Coalesce merges adjacent same-speaker, same-modality segments whose gap is at most window.
// It is meant for display; the input is never modified.
func Coalesce(list []Segment, window time.Duration) []Segment {
	sorted := SortByStart(list)
	if len(sorted) <= 1 {
		return sorted
	}
	windowMs := window.Milliseconds()

	out := make([]Segment, 0, len(sorted))
	for _, seg := range sorted {
		if len(out) > 0 {
			run := &out[len(out)-1]
			if seg.Speaker == run.Speaker && seg.Modality == run.Modality && seg.TStart-run.TEnd <= windowMs {
				mergeInto(run, seg)
				continue
			}
		}
		out = append(out, seg)
	}
	return out
}

// mergeInto keeps the run's id and provenance so display keys stay stable.
func mergeInto(run *Segment, seg Segment) {
	run.TEnd = max(run.TEnd, seg.TEnd)
	run.Text = joinText(run.Text, seg.Text)
	run.Glosses = append(run.Glosses, seg.Glosses...)
	if len(run.Glosses) == 0 {
		run.Glosses = nil
	}
	run.Confidence = min(run.Confidence, seg.Confidence)
}

func joinText(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if endsWithSpace(a) || startsWithSpace(b) {
		return strings.TrimSpace(a + b)
	}
	return strings.TrimSpace(a + " " + b)
}

func endsWithSpace(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(r)
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}

func joinGlosses(glosses []string) string {
	return strings.Join(glosses, " ")
}
