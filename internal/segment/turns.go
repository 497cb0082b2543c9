package segment

import "time"

// Turn is a maximal run of segments from one speaker without a long silence.
// Speaker is empty when the members disagree.
type Turn struct {
	ID       int       `json:"turnId"`
	Segments []Segment `json:"segments"`
	TStart   int64     `json:"tStart"`
	TEnd     int64     `json:"tEnd"`
	Speaker  Speaker   `json:"speaker,omitempty"`
}

// LabelTurns groups segments into turns. A new turn starts on a speaker change or when the
// silence since the previous segment's end exceeds gap.
func LabelTurns(list []Segment, gap time.Duration) []Turn {
	sorted := SortByStart(list)
	gapMs := gap.Milliseconds()

	var (
		turns []Turn
		cur   []Segment
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		turns = append(turns, newTurn(len(turns), cur))
		cur = nil
	}
	for _, s := range sorted {
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			if s.Speaker != prev.Speaker || s.TStart-prev.TEnd > gapMs {
				flush()
			}
		}
		cur = append(cur, s)
	}
	flush()
	return turns
}

func newTurn(id int, members []Segment) Turn {
	t := Turn{
		ID:       id,
		Segments: members,
		TStart:   members[0].TStart,
		TEnd:     members[len(members)-1].TEnd,
		Speaker:  members[0].Speaker,
	}
	for _, m := range members[1:] {
		if m.Speaker != t.Speaker {
			t.Speaker = ""
			break
		}
	}
	return t
}
