package pipeline

import (
	"reflect"
	"testing"

	"golang.org/x/net/html"
)

func extractTest(t *testing.T, fragment, metaGoals string) ([]string, *html.Node) {
	t.Helper()
	step, err := parseStepHTML(fragment)
	if err != nil {
		t.Fatalf("parseStepHTML() error = %v", err)
	}
	return ExtractGoals(step, metaGoals), step
}

func TestExtractGoals(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		meta     string
		want     []string
	}{
		{
			name:     "blanks are numbered in document order",
			fragment: `<x-blank></x-blank><x-blank-mc></x-blank-mc>`,
			want:     []string{"blank-0", "blank-1"},
		},
		{
			name:     "next buttons",
			fragment: `<button class="next-step">go</button>`,
			want:     []string{"next-0"},
		},
		{
			name:     "equations inside a system carry no goal",
			fragment: `<x-equation></x-equation><x-equation-system><x-equation></x-equation></x-equation-system>`,
			want:     []string{"eqn-0", "eqn-1"},
		},
		{
			name:     "equation systems count and shift later indices",
			fragment: `<x-equation-system><x-equation></x-equation></x-equation-system><x-equation></x-equation>`,
			want:     []string{"eqn-0", "eqn-1"},
		},
		{
			name:     "sliders sortables and free text",
			fragment: `<x-slider></x-slider><x-sortable></x-sortable><x-free-text></x-free-text>`,
			want:     []string{"slider-0", "sortable-0", "free-text-0"},
		},
		{
			name:     "picker items keep their index but skip errors",
			fragment: `<x-picker><div class="item"></div><div class="item" data-error="no"></div><div class="item"></div></x-picker>`,
			want:     []string{"picker-0", "picker-2"},
		},
		{
			name:     "slideshow counts slides after the first",
			fragment: `<x-slideshow><div slot="stage"></div><div></div><div></div><div></div></x-slideshow>`,
			want:     []string{"slide-0", "slide-1"},
		},
		{
			name:     "algebra flow rows after the first",
			fragment: `<x-algebra-flow><ul><li></li><li></li><li></li></ul></x-algebra-flow>`,
			want:     []string{"algebra-flow-0", "algebra-flow-1"},
		},
		{
			name:     "quill and gameplay have fixed goals",
			fragment: `<x-quill></x-quill><x-gameplay></x-gameplay>`,
			want:     []string{"quill", "gameplay"},
		},
		{
			name:     "metadata goals precede explicit attributes",
			fragment: `<div goal="intro"></div><x-blank></x-blank>`,
			meta:     "extra",
			want:     []string{"extra", "intro", "blank-0"},
		},
		{
			name:     "duplicates collapse to first occurrence",
			fragment: `<div goal="blank-0"></div><x-blank></x-blank>`,
			want:     []string{"blank-0"},
		},
		{
			name:     "no interactive content",
			fragment: `<p>just text</p>`,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := extractTest(t, tt.fragment, tt.meta)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractGoals() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractGoalsWritesAttributes(t *testing.T) {
	fragment := `<x-blank></x-blank><button class="next-step">go</button>` +
		`<x-picker><div class="item"></div></x-picker>` +
		`<x-algebra-flow><ul><li></li><li></li></ul></x-algebra-flow>` +
		`<x-slideshow><div></div><div></div></x-slideshow>` +
		`<x-quill></x-quill>`
	_, step := extractTest(t, fragment, "")

	tests := []struct {
		tag  string
		want string
	}{
		{tag: "x-blank", want: "blank-0"},
		{tag: "x-picker", want: "picker"},
		{tag: "x-algebra-flow", want: "algebra-flow"},
		{tag: "x-slideshow", want: "slide"},
		{tag: "x-quill", want: "quill"},
	}
	for _, tt := range tests {
		el := findFirst(step, tagMatch(tt.tag))
		if got := attrValue(el, "goal"); got != tt.want {
			t.Errorf("%s goal attribute = %q, want %q", tt.tag, got, tt.want)
		}
	}

	next := findFirst(step, func(n *html.Node) bool { return hasClass(n, "next-step") })
	if hasAttr(next, "goal") {
		t.Error("next-step button must not get a goal attribute")
	}
}

func TestStepDuration(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		goals int
		want  float64
	}{
		{name: "empty step", text: "", goals: 0, want: 0},
		{name: "words only", text: wordString(150), goals: 0, want: 2},
		{name: "goals only", text: "", goals: 4, want: 2},
		{name: "words and goals", text: wordString(75), goals: 2, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StepDuration(tt.text, tt.goals); got != tt.want {
				t.Errorf("StepDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func wordString(n int) string {
	words := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		words = append(words, 'w', ' ')
	}
	return string(words)
}
