package textutil_test

import (
	"sort"
	"strings"
	"testing"

	"vidslide/internal/textutil"
)

func TestSanitizeDirName(t *testing.T) {
	cases := map[string]string{
		"Lecture 1":           "Lecture 1",
		`a<b>c:d"e/f\g|h?i*j`: "a_b_c_d_e_f_g_h_i_j",
		"  ..hidden..  ":      "hidden",
		"":                    "unnamed",
		"tab\tname":           "tab_name",
	}
	for in, want := range cases {
		if got := textutil.SanitizeDirName(in); got != want {
			t.Fatalf("SanitizeDirName(%q) = %q, want %q", in, got, want)
		}
	}
	long := strings.Repeat("长", 120)
	if got := []rune(textutil.SanitizeDirName(long)); len(got) != textutil.MaxDirNameLength {
		t.Fatalf("expected %d runes, got %d", textutil.MaxDirNameLength, len(got))
	}
}

func TestAutoIncrementName(t *testing.T) {
	cases := map[string]string{
		"第3节 函数":     "第4节 函数",
		"Lecture (9)": "Lecture (10)",
		"week_07":     "week_08",
		"part-1":      "part-2",
		"Lecture12":   "Lecture13",
		"Intro":       "Intro_2",
	}
	for in, want := range cases {
		if got := textutil.AutoIncrementName(in); got != want {
			t.Fatalf("AutoIncrementName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIncrementNames(t *testing.T) {
	got := textutil.IncrementNames("Intro", 3)
	want := []string{"Intro", "Intro_2", "Intro_3"}
	if len(got) != len(want) {
		t.Fatalf("expected %d names, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("IncrementNames[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if names := textutil.IncrementNames("x", 0); names != nil {
		t.Fatalf("expected nil for zero count, got %v", names)
	}
}

func TestDisambiguate(t *testing.T) {
	got := textutil.Disambiguate([]string{"Lecture1", "Intro", "Lecture1"})
	want := []string{"Lecture1_1", "Intro", "Lecture1_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Disambiguate()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	got = textutil.Disambiguate([]string{"A", "A", "A_1"})
	seen := map[string]bool{}
	for _, name := range got {
		if seen[name] {
			t.Fatalf("duplicate name after disambiguation: %v", got)
		}
		seen[name] = true
	}
}

func TestUniqueDirName(t *testing.T) {
	used := map[string]bool{"x": true, "x_1": true}
	if got := textutil.UniqueDirName("x", func(s string) bool { return used[s] }); got != "x_2" {
		t.Fatalf("unexpected unique name %q", got)
	}
	if got := textutil.UniqueDirName("y", func(s string) bool { return used[s] }); got != "y" {
		t.Fatalf("unexpected unique name %q", got)
	}
}

func TestNaturalLess(t *testing.T) {
	names := []string{"lecture10.mp4", "lecture2.mp4", "Lecture1.mp4", "intro.mp4"}
	sort.Slice(names, func(i, j int) bool { return textutil.NaturalLess(names[i], names[j]) })
	want := []string{"intro.mp4", "Lecture1.mp4", "lecture2.mp4", "lecture10.mp4"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected order: %v", names)
		}
	}
}

func TestDisplayNameFromPath(t *testing.T) {
	if got := textutil.DisplayNameFromPath("/videos/Week 3.mkv"); got != "Week 3" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := textutil.Humanize("decode_interrupted"); got != "Decode Interrupted" {
		t.Fatalf("unexpected humanized value %q", got)
	}
}
