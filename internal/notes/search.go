package notes

import (
	"slices"
	"strings"
)

// SubjectGroup is one sidebar section.
type SubjectGroup struct {
	Subject string `json:"subject"`
	Notes   []Note `json:"notes"`
}

// Filter keeps notes whose title, any tag, or subject contains query, ignoring case.
// An empty query keeps every note.
func Filter(notes []Note, query string) []Note {
	needle := strings.ToLower(strings.TrimSpace(query))
	matched := make([]Note, 0, len(notes))
	for _, note := range notes {
		if needle == "" || matches(note, needle) {
			matched = append(matched, note)
		}
	}
	return matched
}

func matches(note Note, needle string) bool {
	if strings.Contains(strings.ToLower(note.Title), needle) {
		return true
	}
	for _, tag := range note.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(note.SubjectOrDefault()), needle)
}

// GroupBySubject buckets notes by subject. Known subjects come first in Subjects order,
// the rest follow alphabetically. Notes keep their relative order inside a group.
func GroupBySubject(notes []Note) []SubjectGroup {
	bySubject := make(map[string][]Note)
	for _, note := range notes {
		subject := note.SubjectOrDefault()
		bySubject[subject] = append(bySubject[subject], note)
	}

	subjects := make([]string, 0, len(bySubject))
	for subject := range bySubject {
		subjects = append(subjects, subject)
	}
	slices.SortFunc(subjects, compareSubjects)

	groups := make([]SubjectGroup, 0, len(subjects))
	for _, subject := range subjects {
		groups = append(groups, SubjectGroup{Subject: subject, Notes: bySubject[subject]})
	}
	return groups
}

func compareSubjects(left, right string) int {
	leftIndex := slices.Index(Subjects, left)
	rightIndex := slices.Index(Subjects, right)
	switch {
	case leftIndex >= 0 && rightIndex >= 0:
		return leftIndex - rightIndex
	case leftIndex >= 0:
		return -1
	case rightIndex >= 0:
		return 1
	default:
		return strings.Compare(left, right)
	}
}
