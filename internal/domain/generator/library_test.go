package generator

import (
	"context"
	"encoding/json"
	"errors"
	"storynest/internal/domain/story"
	"strings"
	"testing"
)

func TestSampleLibraryMatchesTopic(t *testing.T) {
	lib := NewSampleLibrary()
	lib.pick = func(n int) int { return 0 }

	out, err := lib.GenerateText(context.Background(), "Write a story.\nTopic: Space\nLength: short", Params{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "Captain Whiskers' Space Adventure\n\n") {
		t.Errorf("Expected the space tale first, got %q", out)
	}
	if !strings.Contains(out, "\n\nThe moon glowed silver") {
		t.Error("Paragraphs should be separated by blank lines")
	}
}

func TestSampleLibraryJSON(t *testing.T) {
	lib := NewSampleLibrary()
	lib.pick = func(n int) int { return n - 1 }

	out, err := lib.GenerateText(context.Background(), "Topic: garden", Params{JSON: true})
	if err != nil {
		t.Fatal(err)
	}
	var s story.Story
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("Expected JSON, got %q: %v", out, err)
	}
	if s.Title != "The Secret Magic Garden" || len(s.Paragraphs) != 4 {
		t.Errorf("Unexpected story %+v", s)
	}
}

func TestSampleLibraryUnknownTopicFallsBack(t *testing.T) {
	lib := NewSampleLibrary()
	lib.pick = func(n int) int {
		if n != len(classicTales) {
			t.Errorf("Expected all %d tales as candidates, got %d", len(classicTales), n)
		}
		return 1
	}

	out, err := lib.GenerateText(context.Background(), "Topic: submarines", Params{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "The Three Little Pigs") {
		t.Errorf("Unexpected tale %q", out)
	}
}

func TestSampleLibraryEmptyAndCancelled(t *testing.T) {
	empty := &SampleLibrary{Name: "empty"}
	if _, err := empty.GenerateText(context.Background(), "Topic: x", Params{}); !errors.Is(err, story.ErrEmptyOutput) {
		t.Errorf("Expected ErrEmptyOutput, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSampleLibrary().GenerateText(ctx, "Topic: x", Params{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
