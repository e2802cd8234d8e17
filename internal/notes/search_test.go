package notes

import "testing"

func TestFilterMatchesTitleTagsAndSubject(t *testing.T) {
	newton := sampleNote("newton", "Newton's Laws")
	newton.Tags = []string{"physics"}
	newton.Subject = "Physics"

	taggedOnly := sampleNote("tagged", "Motion")
	taggedOnly.Tags = []string{"PHYSICS-revision"}
	taggedOnly.Subject = "General"

	subjectOnly := sampleNote("subject", "Numericals set 2")
	subjectOnly.Subject = "Physics: Numericals"

	unrelated := sampleNote("history", "French Revolution")
	unrelated.Tags = []string{"europe"}
	unrelated.Subject = "History"

	unclassified := sampleNote("blank", "Shopping list")
	unclassified.Subject = ""

	all := []Note{newton, taggedOnly, subjectOnly, unrelated, unclassified}

	testCases := []struct {
		name    string
		query   string
		wantIDs []string
	}{
		{name: "tag-and-subject", query: "phys", wantIDs: []string{"newton", "tagged", "subject"}},
		{name: "case-insensitive-title", query: "NEWTON", wantIDs: []string{"newton"}},
		{name: "empty-query", query: "  ", wantIDs: []string{"newton", "tagged", "subject", "history", "blank"}},
		{name: "blank-subject-matches-default", query: "general", wantIDs: []string{"tagged", "blank"}},
		{name: "no-match", query: "chemistry", wantIDs: []string{}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			matched := Filter(all, testCase.query)
			if len(matched) != len(testCase.wantIDs) {
				t.Fatalf("expected %d matches, got %d", len(testCase.wantIDs), len(matched))
			}
			for index, note := range matched {
				if note.ID != testCase.wantIDs[index] {
					t.Fatalf("match %d: want %s got %s", index, testCase.wantIDs[index], note.ID)
				}
			}
		})
	}
}

func TestGroupBySubjectOrdersKnownSubjectsFirst(t *testing.T) {
	chemistry := sampleNote("c", "Acids")
	chemistry.Subject = "Chemistry"
	history := sampleNote("h", "Mughals")
	history.Subject = "History"
	custom := sampleNote("x", "Music theory")
	custom.Subject = "Arts"
	astronomy := sampleNote("y", "Stars")
	astronomy.Subject = "Astronomy"
	unset := sampleNote("u", "Misc")
	unset.Subject = ""

	groups := GroupBySubject([]Note{custom, chemistry, unset, history, astronomy})

	want := []string{"History", "Chemistry", DefaultSubject, "Arts", "Astronomy"}
	if len(groups) != len(want) {
		t.Fatalf("expected %d groups, got %d", len(want), len(groups))
	}
	for index, group := range groups {
		if group.Subject != want[index] {
			t.Fatalf("group %d: want %s got %s", index, want[index], group.Subject)
		}
	}
	if groups[2].Notes[0].ID != "u" {
		t.Fatalf("note without subject should be grouped under %s", DefaultSubject)
	}
}

func TestSubjectOrDefault(t *testing.T) {
	if (Note{}).SubjectOrDefault() != DefaultSubject {
		t.Fatalf("missing subject should read as default")
	}
	if (Note{Subject: "Maths"}).SubjectOrDefault() != "Maths" {
		t.Fatalf("explicit subject should be kept")
	}
	if (Note{Subject: "  "}).SubjectOrDefault() != DefaultSubject {
		t.Fatalf("blank subject should read as default")
	}
	if (Note{Subject: "Astrology"}).SubjectOrDefault() != "Astrology" {
		t.Fatalf("free-form subject should be kept")
	}
}
