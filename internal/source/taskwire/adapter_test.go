package taskwire

import (
	"errors"
	"testing"

	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/source/httpx"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"auth", &httpx.StatusError{StatusCode: 401}, true},
		{"forbidden", &httpx.StatusError{StatusCode: 403}, true},
		{"not found", &httpx.StatusError{StatusCode: 404}, true},
		{"rate limited", &httpx.StatusError{StatusCode: 429}, false},
		{"server error", &httpx.StatusError{StatusCode: 503}, false},
		{"transport", errors.New("connection reset"), false},
	}

	for _, c := range cases {
		got := classify("list", c.err)
		if got == nil {
			t.Fatalf("%s: classify returned nil", c.name)
		}
		if source.IsPermanent(got) != c.permanent {
			t.Errorf("%s: permanent = %v, want %v", c.name, source.IsPermanent(got), c.permanent)
		}
		var srcErr *source.SourceError
		if !errors.As(got, &srcErr) {
			t.Fatalf("%s: not a SourceError: %T", c.name, got)
		}
		if srcErr.Provider != model.ProviderTaskManager {
			t.Errorf("%s: provider = %s", c.name, srcErr.Provider)
		}
	}

	if classify("list", nil) != nil {
		t.Error("classify(nil) should be nil")
	}
}

func TestNormalizePriority(t *testing.T) {
	cases := map[int]int{
		-3: model.PriorityP1,
		0:  model.PriorityP1,
		1:  model.PriorityP1,
		2:  model.PriorityP2,
		4:  model.PriorityP4,
		9:  model.PriorityP4,
	}
	for in, want := range cases {
		if got := normalizePriority(in); got != want {
			t.Errorf("normalizePriority(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestAdapterStreamsAndKinds(t *testing.T) {
	a := NewAdapter("https://api.example.com", "tok")

	streams := a.Streams()
	if len(streams) != 1 || streams[0] != model.StreamTasks {
		t.Errorf("streams = %v", streams)
	}
	kinds := a.Kinds(model.StreamTasks)
	if len(kinds) != 1 || kinds[0] != model.ItemKindTaskItem {
		t.Errorf("kinds = %v", kinds)
	}
	if a.Kinds(model.StreamNotifications) != nil {
		t.Error("task manager should yield nothing for the notifications stream")
	}
	scopes := a.RequiredScopes(model.StreamTasks)
	if len(scopes) != 2 {
		t.Errorf("scopes = %v", scopes)
	}
}
