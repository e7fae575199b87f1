package segment

import (
	"testing"

	"github.com/mfenderov/browseflow/pkg/models"
)

func page(domain string, start, end int64, tab int) models.PageSession {
	return models.PageSession{
		URL:        "https://" + domain + "/",
		Domain:     domain,
		StartTime:  start,
		EndTime:    end,
		DurationMS: end - start,
		TabID:      models.IntPtr(tab),
		EventCount: 2,
	}
}

func TestGroup_DomainChangeScenario(t *testing.T) {
	b := New(DefaultConfig())
	pages := []models.PageSession{
		page("a.com", 0, 5000, 1),
		page("b.com", 15000, 20000, 1),
	}

	groups := b.Group(pages)

	if len(groups) != 2 || len(groups[0]) != 1 || len(groups[1]) != 1 {
		t.Fatalf("got %d groups, want two single-page groups", len(groups))
	}
	if groups[0][0].Domain != "a.com" || groups[1][0].Domain != "b.com" {
		t.Errorf("groups out of order: %s, %s", groups[0][0].Domain, groups[1][0].Domain)
	}
}

func TestGroup_BreakRules(t *testing.T) {
	tests := []struct {
		name  string
		pages []models.PageSession
		want  []int
	}{
		{
			name:  "same domain and tab stays together",
			pages: []models.PageSession{page("a.com", 0, 1000, 1), page("a.com", 2000, 3000, 1)},
			want:  []int{2},
		},
		{
			name:  "tab change",
			pages: []models.PageSession{page("a.com", 0, 1000, 1), page("a.com", 2000, 3000, 2)},
			want:  []int{1, 1},
		},
		{
			name:  "gap at threshold stays together",
			pages: []models.PageSession{page("a.com", 0, 1000, 1), page("a.com", 121000, 122000, 1)},
			want:  []int{2},
		},
		{
			name:  "gap above threshold",
			pages: []models.PageSession{page("a.com", 0, 1000, 1), page("a.com", 121001, 122000, 1)},
			want:  []int{1, 1},
		},
		{
			name: "compares with last page of group",
			pages: []models.PageSession{
				page("a.com", 0, 100000, 1),
				page("a.com", 110000, 200000, 1),
				page("a.com", 300000, 301000, 1),
			},
			want: []int{3},
		},
	}

	b := New(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := b.Group(tt.pages)
			if len(groups) != len(tt.want) {
				t.Fatalf("got %d groups, want %d", len(groups), len(tt.want))
			}
			for i, n := range tt.want {
				if len(groups[i]) != n {
					t.Errorf("group %d has %d pages, want %d", i, len(groups[i]), n)
				}
			}
		})
	}
}

func TestGroup_EveryPageInExactlyOneGroup(t *testing.T) {
	b := New(DefaultConfig())
	var pages []models.PageSession
	domains := []string{"a.com", "a.com", "b.com", "b.com", "b.com", "a.com"}
	for i, d := range domains {
		pages = append(pages, page(d, int64(i)*60000, int64(i)*60000+5000, 1+i%2))
	}

	total := 0
	for _, g := range b.Group(pages) {
		if len(g) == 0 {
			t.Fatal("empty group")
		}
		total += len(g)
	}
	if total != len(pages) {
		t.Errorf("grouped %d pages, want %d", total, len(pages))
	}
}

func TestBuild_DurationBounds(t *testing.T) {
	b := New(DefaultConfig())
	pages := []models.PageSession{
		page("short.com", 0, 1999, 1),
		page("ok.com", 10000, 12000, 1),
		page("long.com", 20000, 300000, 1),
		page("long.com", 310000, 620001, 1),
		page("max.com", 700000, 1300000, 1),
	}

	segments := b.Build(pages)

	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Domain() != "ok.com" || segments[1].Domain() != "max.com" {
		t.Errorf("kept %s and %s", segments[0].Domain(), segments[1].Domain())
	}
	for _, s := range segments {
		if s.SegmentType != models.SegmentTypeUnknown || s.ToolCategories == nil {
			t.Errorf("segment %s not initialized: %+v", s.Domain(), s)
		}
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	b := New(DefaultConfig())
	if got := b.Build(nil); got == nil || len(got) != 0 {
		t.Errorf("Build(nil) = %v, want empty slice", got)
	}
}

func TestFromEvents(t *testing.T) {
	mk := func(n int, duration int64) models.Segment {
		events := make([]models.Event, n)
		for i := range events {
			events[i] = models.Event{Type: models.EventClick, Timestamp: duration * int64(i) / int64(max(n-1, 1))}
		}
		return models.NewSegment(events)
	}

	b := New(DefaultConfig())
	segments := []models.Segment{
		mk(2, 5000),
		mk(3, 5000),
		mk(3, 1000),
		mk(101, 50000),
		mk(100, 600000),
		mk(10, 600001),
	}

	kept := b.FromEvents(segments)

	if len(kept) != 2 {
		t.Fatalf("kept %d segments, want 2", len(kept))
	}
	if len(kept[0].Events) != 3 || len(kept[1].Events) != 100 {
		t.Errorf("kept segments with %d and %d events", len(kept[0].Events), len(kept[1].Events))
	}
}
