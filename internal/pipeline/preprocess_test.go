package pipeline

import (
	"strings"
	"testing"

	"github.com/coursekit/coursekit/internal/buildlog"
)

func newTestPreprocessor() *Preprocessor {
	return &Preprocessor{CourseID: "circles", Log: buildlog.NewNop()}
}

func TestNormalizeLineEndings(t *testing.T) {
	if got := NormalizeLineEndings("a\r\nb\rc\nd"); got != "a\nb\nc\nd" {
		t.Errorf("NormalizeLineEndings() = %q", got)
	}
}

func TestBlockIndentationColumns(t *testing.T) {
	p := newTestPreprocessor()
	src := strings.Join([]string{
		"::: column(width=320)",
		"left",
		"::: column.grow",
		"right",
		":::",
	}, "\n")

	got := p.BlockIndentation(src)

	for _, want := range []string{
		`<div class="row padded"><div style="width: 320px">`,
		"\n</div><div class=\"grow\">",
		"\n</div></div>\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, ":::") {
		t.Errorf("directive markers survived:\n%s", got)
	}
}

func TestBlockIndentationTabs(t *testing.T) {
	p := newTestPreprocessor()
	src := strings.Join([]string{
		`::: tab(title="One")`,
		"a",
		`::: tab(title="Two")`,
		"b",
		":::",
	}, "\n")

	got := p.BlockIndentation(src)

	for _, want := range []string{
		`<x-tabbox><div class="tab" title="One">`,
		"\n</div><div class=\"tab\" title=\"Two\">",
		"</div></x-tabbox>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestBlockIndentationGeneric(t *testing.T) {
	p := newTestPreprocessor()
	src := "::: x-quiz.blue\nquestion\n:::"

	got := p.BlockIndentation(src)

	if !strings.Contains(got, `<x-quiz class="blue">`) || !strings.Contains(got, "</x-quiz>") {
		t.Errorf("generic container not rendered:\n%s", got)
	}
}

func TestBlockIndentationEdgeCases(t *testing.T) {
	t.Run("malformed directive degrades to text", func(t *testing.T) {
		p := newTestPreprocessor()
		got := p.BlockIndentation("::: .\ntext")
		if !strings.Contains(got, "::: .") {
			t.Errorf("malformed directive was rewritten:\n%s", got)
		}
		if p.Log.Warnings() != 1 {
			t.Errorf("warnings = %d, want 1", p.Log.Warnings())
		}
	})

	t.Run("stray close is ignored", func(t *testing.T) {
		p := newTestPreprocessor()
		if got := p.BlockIndentation(":::\ntext"); got != ":::\ntext" {
			t.Errorf("stray close changed content: %q", got)
		}
	})

	t.Run("unclosed container stays open", func(t *testing.T) {
		p := newTestPreprocessor()
		got := p.BlockIndentation("::: x-quiz\ntext")
		if strings.Contains(got, "</x-quiz>") {
			t.Errorf("container closed at EOF:\n%s", got)
		}
	})
}

func TestRewriteAssetURLs(t *testing.T) {
	p := newTestPreprocessor()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "src attribute",
			in:   `<img src="images/dice.png">`,
			want: `<img src="/content/circles/images/dice.png">`,
		},
		{
			name: "css url",
			in:   `style="background: url(images/bg.jpg)"`,
			want: `style="background: url(/content/circles/images/bg.jpg)"`,
		},
		{
			name: "absolute url untouched",
			in:   `<img src="/other/images/x.png">`,
			want: `<img src="/other/images/x.png">`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.rewriteAssetURLs(tt.in); got != tt.want {
				t.Errorf("rewriteAssetURLs(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenameReservedAttrs(t *testing.T) {
	in := `<p when="blank-0" delay="1000" href="x">`
	want := `<p data-when="blank-0" data-delay="1000" href="x">`
	if got := renameReservedAttrs(in); got != want {
		t.Errorf("renameReservedAttrs() = %q, want %q", got, want)
	}
}

func TestAddTableHeaders(t *testing.T) {
	t.Run("headerless table gets a synthetic header", func(t *testing.T) {
		got := addTableHeaders("\n\n| a | b |\n| c | d |\n")
		if !strings.Contains(got, "| - |") {
			t.Errorf("no delimiter row added:\n%q", got)
		}
		if !strings.Contains(got, "| a | b |") {
			t.Errorf("original rows lost:\n%q", got)
		}
	})

	t.Run("table with header is unchanged", func(t *testing.T) {
		in := "\n\n| a | b |\n| --- | --- |\n| c | d |\n"
		if got := addTableHeaders(in); got != in {
			t.Errorf("headered table changed:\n%q", got)
		}
	})
}

func TestShielding(t *testing.T) {
	t.Run("blank choices", func(t *testing.T) {
		if got := shieldBlankChoices("pick [[a|b|c]] now"); got != "pick [[a§§b§§c]] now" {
			t.Errorf("shieldBlankChoices() = %q", got)
		}
	})

	t.Run("table pipes outside blanks untouched", func(t *testing.T) {
		in := "| a | b |"
		if got := shieldBlankChoices(in); got != in {
			t.Errorf("shieldBlankChoices() = %q", got)
		}
	})

	t.Run("escaped dollars", func(t *testing.T) {
		if got := shieldEscapedDollars(`costs \$5`); got != `costs \\$5` {
			t.Errorf("shieldEscapedDollars() = %q", got)
		}
	})
}

func TestPreprocess(t *testing.T) {
	p := newTestPreprocessor()
	src := "::: column(width=200)\r\n<img src=\"images/a.png\">\r\n:::\r\npick [[x|y]]"

	got := p.Preprocess(src)

	for _, want := range []string{
		`<div class="row padded">`,
		"/content/circles/images/a.png",
		"[[x§§y]]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Preprocess() missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\r") {
		t.Error("carriage returns survived")
	}
}
