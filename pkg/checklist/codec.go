// Package checklist extracts checklist items from free-form event
// descriptions and renders them back for pushing to the calendar.
package checklist

import (
	"regexp"
	"strings"
)

// Recognized section headers. Extraction accepts all of them; Render only
// ever rewrites the canonical "Items:" section so hand-typed synonym
// sections survive a push round-trip.
var sectionHeaderRe = regexp.MustCompile(`(?i)(?:Items|Checklist|Things to bring|Required|Bring|Pack):\s*\n`)

// A generic "Capitalized-Word:" line terminates the last section.
var genericHeaderRe = regexp.MustCompile(`\n[A-Z][a-z]+:`)

// The three bullet grammars, tried in order. First match wins.
var (
	bulletRe   = regexp.MustCompile(`^[-*•]\s+(.+)$`)
	checkboxRe = regexp.MustCompile(`^\[[ xX]?\]\s*(.+)$`)
	numberedRe = regexp.MustCompile(`^\d+[.)]\s+(.+)$`)
)

// itemsSectionRe matches a literal "Items:" section with its contiguous
// dash/star/bullet lines, for removal before re-rendering.
var itemsSectionRe = regexp.MustCompile(`(?i)Items:\s*\n(?:[-*•]\s+.+\n?)*`)

// Extract parses checklist item names from an event description.
//
// Each recognized header starts a section that runs until the next
// recognized header, the next generic "Word:" line, or end of text.
// Non-bullet lines inside a section are ignored. Duplicates are kept in
// order; callers that need set semantics collapse them.
func Extract(description string) []string {
	if description == "" {
		return nil
	}

	matches := sectionHeaderRe.FindAllStringIndex(description, -1)
	if matches == nil {
		return nil
	}

	var items []string
	for i, match := range matches {
		start := match[1]
		end := len(description)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		} else if loc := genericHeaderRe.FindStringIndex(description[start:]); loc != nil {
			end = start + loc[0]
		}

		for _, line := range strings.Split(description[start:end], "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if m := bulletRe.FindStringSubmatch(line); m != nil {
				items = append(items, strings.TrimSpace(m[1]))
			} else if m := checkboxRe.FindStringSubmatch(line); m != nil {
				items = append(items, strings.TrimSpace(m[1]))
			} else if m := numberedRe.FindStringSubmatch(line); m != nil {
				items = append(items, strings.TrimSpace(m[1]))
			}
		}
	}

	return items
}

// Render rewrites a description so its "Items:" section lists exactly the
// given names, preserving all other description content.
//
// An empty item list returns the remaining text unchanged (which may be
// empty).
func Render(itemNames []string, existingDescription string) string {
	cleaned := strings.TrimSpace(itemsSectionRe.ReplaceAllString(existingDescription, ""))

	if len(itemNames) == 0 {
		return cleaned
	}

	var b strings.Builder
	b.WriteString("Items:")
	for _, name := range itemNames {
		b.WriteString("\n- ")
		b.WriteString(name)
	}

	if cleaned != "" {
		return cleaned + "\n\n" + b.String()
	}
	return b.String()
}
