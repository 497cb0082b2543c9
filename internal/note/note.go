package note

import (
	"fmt"
	"strings"

	"github.com/foxseedlab/signscribe/internal/segment"
)

const bullet = "• "

type group struct {
	segmentID string
	entities  []segment.Entity
}

// groupBySource groups entities by source segment in first-seen order.
func groupBySource(entities []segment.Entity) []group {
	index := make(map[string]int)
	var groups []group
	for _, e := range entities {
		if e.SourceSegmentID == "" {
			continue
		}
		i, ok := index[e.SourceSegmentID]
		if !ok {
			i = len(groups)
			index[e.SourceSegmentID] = i
			groups = append(groups, group{segmentID: e.SourceSegmentID})
		}
		groups[i].entities = append(groups[i].entities, e)
	}
	return groups
}

func stampFor(segmentID string, segments []segment.Segment) string {
	for _, s := range segments {
		if s.ID == segmentID {
			return fmt.Sprintf("[%s] ", segment.FormatClock(s.TStart))
		}
	}
	return ""
}

func texts(entities []segment.Entity, types ...segment.EntityType) []string {
	var out []string
	for _, e := range entities {
		if len(types) > 0 && !hasType(e.Type, types) {
			continue
		}
		if t := strings.TrimSpace(e.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func hasType(t segment.EntityType, types []segment.EntityType) bool {
	for _, candidate := range types {
		if t == candidate {
			return true
		}
	}
	return false
}

// BuildRecordLines renders one health record bullet per source segment:
// "• [mm:ss] chest pain, left side".
func BuildRecordLines(entities []segment.Entity, segments []segment.Segment) []string {
	var lines []string
	for _, g := range groupBySource(entities) {
		body := strings.Join(texts(g.entities), ", ")
		lines = append(lines, bullet+stampFor(g.segmentID, segments)+body)
	}
	return lines
}

// BuildHPILines composes history of present illness lines such as
// "• [00:12] chest pain — left side, two days, severe". Groups without any
// recognized type fall back to the plain entity texts.
func BuildHPILines(entities []segment.Entity, segments []segment.Segment) []string {
	var lines []string
	for _, g := range groupBySource(entities) {
		line := hpiLine(g.entities)
		if line == "" {
			continue
		}
		lines = append(lines, bullet+strings.TrimSpace(stampFor(g.segmentID, segments)+line))
	}
	return lines
}

func hpiLine(entities []segment.Entity) string {
	symptom := strings.Join(texts(entities, segment.EntityTypeSymptom), ", ")
	site := strings.Join(texts(entities, segment.EntityTypeBodySite), ", ")
	var tail []string
	if d := strings.Join(texts(entities, segment.EntityTypeDuration), ", "); d != "" {
		tail = append(tail, d)
	}
	if s := strings.Join(texts(entities, segment.EntityTypeSeverity), ", "); s != "" {
		tail = append(tail, s)
	}

	line := symptom
	if site != "" {
		if line != "" {
			line += " — "
		}
		line += site
	}
	if len(tail) > 0 {
		if line != "" {
			line += ", "
		}
		line += strings.Join(tail, ", ")
	}
	if line == "" {
		line = strings.Join(texts(entities), ", ")
	}
	return line
}
