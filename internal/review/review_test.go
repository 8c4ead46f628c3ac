package review

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobcatalog/internal/model"
)

type fakeReader struct {
	links []model.DuplicateLink
	jobs  map[string]model.CanonicalJob
}

func (f *fakeReader) ListUnreviewed(_ context.Context, limit int) ([]model.DuplicateLink, error) {
	return f.links[:min(limit, len(f.links))], nil
}

func (f *fakeReader) GetCanonicals(_ context.Context, ids []string, _ string) ([]model.CanonicalJob, error) {
	var out []model.CanonicalJob
	for _, id := range ids {
		if j, ok := f.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeResolver struct {
	calls []string
	err   error
}

func (f *fakeResolver) ResolveReview(_ context.Context, id string, approve bool) (*model.DuplicateLink, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return nil, f.err
	}
	return &model.DuplicateLink{ID: id, Reviewed: true}, nil
}

func job(id, title string) model.CanonicalJob {
	return model.CanonicalJob{ID: id, Title: title, Company: "Acme", Sources: []model.SourceRef{{Source: "acme-gh"}}}
}

func testReader() *fakeReader {
	return &fakeReader{
		links: []model.DuplicateLink{
			{ID: "link-low", CanonicalID: "c1", DuplicateID: "d1", Confidence: 0.71, Strategy: model.StrategyFuzzy},
			{ID: "link-high", CanonicalID: "c2", DuplicateID: "d2", Confidence: 0.84, Strategy: model.StrategyEmbedding, MatchedFields: []string{"title"}},
			{ID: "link-gone", CanonicalID: "c3", DuplicateID: "missing", Confidence: 0.9, Strategy: model.StrategyFuzzy},
		},
		jobs: map[string]model.CanonicalJob{
			"c1": job("c1", "Data Engineer"),
			"d1": job("d1", "Data Engineer II"),
			"c2": job("c2", "Platform Engineer"),
			"d2": job("d2", "Platform Eng."),
			"c3": job("c3", "SRE"),
		},
	}
}

func TestLoadQueue(t *testing.T) {
	items, err := LoadQueue(context.Background(), testReader(), 10)
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (link with a missing job dropped)", len(items))
	}
	if items[0].Link.ID != "link-high" {
		t.Errorf("first item = %s, want highest confidence first", items[0].Link.ID)
	}
	if items[0].Duplicate.Title != "Platform Eng." {
		t.Errorf("duplicate side = %q", items[0].Duplicate.Title)
	}
}

func TestLoadQueue_Empty(t *testing.T) {
	items, err := LoadQueue(context.Background(), &fakeReader{}, 10)
	if err != nil || items != nil {
		t.Fatalf("LoadQueue = %v, %v; want nil, nil", items, err)
	}
}

func TestGroupsAndSelect(t *testing.T) {
	items, _ := LoadQueue(context.Background(), testReader(), 10)
	groups := Groups(items)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	if groups[0].Label() != "All pending (2)" {
		t.Errorf("catch-all label = %q", groups[0].Label())
	}
	if groups[1].Strategy != model.StrategyEmbedding || groups[2].Strategy != model.StrategyFuzzy {
		t.Errorf("groups not sorted by strategy: %+v", groups)
	}
	if got := Select(items, groups[2]); len(got) != 1 || got[0].Link.ID != "link-low" {
		t.Errorf("Select(fuzzy) = %+v", got)
	}
	if got := Select(items, groups[0]); len(got) != 2 {
		t.Errorf("Select(all) returned %d items", len(got))
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func readyModel(t *testing.T, resolver Resolver) reviewModel {
	t.Helper()
	items, err := LoadQueue(context.Background(), testReader(), 10)
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	m, _ := newReviewModel(items, resolver).Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return m.(reviewModel)
}

func TestReviewModel_ApproveRemovesItem(t *testing.T) {
	resolver := &fakeResolver{}
	m := readyModel(t, resolver)

	next, cmd := m.Update(key("a"))
	m = next.(reviewModel)
	if cmd == nil {
		t.Fatal("expected a resolve command")
	}
	if m.pending != "link-high" {
		t.Errorf("pending = %q, want link-high", m.pending)
	}

	// A second decision while one is in flight is ignored.
	if _, again := m.Update(key("x")); again != nil {
		t.Error("expected no command while a decision is pending")
	}

	next, _ = m.Update(cmd())
	m = next.(reviewModel)
	if len(resolver.calls) != 1 || resolver.calls[0] != "link-high" {
		t.Errorf("resolver calls = %v", resolver.calls)
	}
	if len(m.items) != 1 || m.items[0].Link.ID != "link-low" {
		t.Errorf("items after approve = %+v", m.items)
	}
	if m.approved != 1 || m.pending != "" {
		t.Errorf("approved = %d, pending = %q", m.approved, m.pending)
	}
}

func TestReviewModel_RejectAfterMovingCursor(t *testing.T) {
	resolver := &fakeResolver{}
	m := readyModel(t, resolver)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(reviewModel)
	next, cmd := m.Update(key("x"))
	m = next.(reviewModel)
	next, _ = m.Update(cmd())
	m = next.(reviewModel)

	if resolver.calls[0] != "link-low" {
		t.Errorf("resolved %v, want link-low", resolver.calls)
	}
	if m.rejected != 1 || m.cursor != 0 {
		t.Errorf("rejected = %d, cursor = %d", m.rejected, m.cursor)
	}
}

func TestReviewModel_FailedDecisionKeepsItem(t *testing.T) {
	m := readyModel(t, &fakeResolver{err: errors.New("duplicate link already reviewed")})

	next, cmd := m.Update(key("a"))
	m = next.(reviewModel)
	next, _ = m.Update(cmd())
	m = next.(reviewModel)

	if len(m.items) != 2 {
		t.Errorf("items = %d, want 2", len(m.items))
	}
	if !m.statusErr || !strings.Contains(m.status, "already reviewed") {
		t.Errorf("status = %q (err=%v)", m.status, m.statusErr)
	}
}

func TestReviewModel_QuitAndBack(t *testing.T) {
	m := readyModel(t, nil)
	next, _ := m.Update(key("q"))
	if !next.(reviewModel).wantQuit {
		t.Error("q should quit")
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if next.(reviewModel).wantQuit {
		t.Error("esc should go back, not quit")
	}
}

func TestRenderComparison(t *testing.T) {
	items, _ := LoadQueue(context.Background(), testReader(), 10)
	out := renderComparison(items[0], 100, false)
	for _, want := range []string{"Platform Engineer", "Platform Eng.", "embedding", "press r"} {
		if !strings.Contains(out, want) {
			t.Errorf("comparison missing %q", want)
		}
	}
	out = renderComparison(items[0], 100, true)
	if !strings.Contains(out, "(no description)") {
		t.Error("expected empty description placeholder")
	}
}

func TestFormatSalary(t *testing.T) {
	if got := formatSalary(&model.Salary{Min: 90000, Max: 120000, Currency: "USD"}); got != "USD 90000 - 120000" {
		t.Errorf("formatSalary = %q", got)
	}
	if got := formatSalary(&model.Salary{Min: 50000, Max: 50000, Currency: "EUR"}); got != "EUR 50000" {
		t.Errorf("formatSalary = %q", got)
	}
	if formatSalary(nil) != "" {
		t.Error("nil salary should render empty")
	}
}

func TestPicker_SelectsGroup(t *testing.T) {
	items, _ := LoadQueue(context.Background(), testReader(), 10)
	var m tea.Model = newPickerModel(Groups(items))

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter should quit the picker")
	}
	if got := m.(pickerModel).chosen; got != 1 {
		t.Errorf("chosen = %d, want 1", got)
	}

	m, _ = newPickerModel(Groups(items)).Update(key("q"))
	if got := m.(pickerModel).chosen; got != -1 {
		t.Errorf("chosen after quit = %d, want -1", got)
	}
}

func TestLoadingModel(t *testing.T) {
	want := []Item{{Link: model.DuplicateLink{ID: "link-1"}}}
	m := newLoadingModel(func(context.Context) ([]Item, error) { return want, nil })

	next, cmd := m.Update(queueLoadedMsg{items: want})
	final := next.(loadingModel)
	if cmd == nil || !final.done || len(final.items) != 1 {
		t.Errorf("loaded model = %+v", final)
	}
	if final.View() != "" {
		t.Error("finished loader should render nothing")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !errors.Is(next.(loadingModel).err, errCancelled) {
		t.Errorf("err = %v, want cancelled", next.(loadingModel).err)
	}
}
