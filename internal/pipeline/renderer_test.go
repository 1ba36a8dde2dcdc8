package pipeline

import (
	"strings"
	"testing"

	"github.com/coursekit/coursekit/internal/buildlog"
)

func renderTest(t *testing.T, src string) (string, *StepMetadata) {
	t.Helper()
	meta := NewStepMetadata()
	r := NewRenderer(meta, fakeTex{}, buildlog.NewNop(), Options{
		CourseID: "circles",
		Locale:   "en",
		EmojiURL: "/images/emoji",
	})
	out, err := r.Render(src)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return out, meta
}

func TestRenderHeadings(t *testing.T) {
	out, meta := renderTest(t, "# My Course\n\n## First Steps\n\nHello world.\n\n### Deep Dive\n")

	if meta.CourseTitle != "My Course" {
		t.Errorf("CourseTitle = %q", meta.CourseTitle)
	}
	if meta.SectionTitle != "First Steps" {
		t.Errorf("SectionTitle = %q", meta.SectionTitle)
	}
	if strings.Contains(out, "<h1") || strings.Contains(out, "My Course") {
		t.Errorf("course title leaked into output:\n%s", out)
	}
	// Author headings shift one level up.
	if !strings.Contains(out, "<h2>Deep Dive</h2>") {
		t.Errorf("### did not become <h2>:\n%s", out)
	}
	if !strings.Contains(out, "<p>Hello world.</p>") {
		t.Errorf("paragraph missing:\n%s", out)
	}
}

func TestRenderBlockquoteMetadata(t *testing.T) {
	out, meta := renderTest(t, "> id: intro\n> color: \"#ff0000\"\n\ntext\n")

	if meta.Field("id") != "intro" || meta.Field("color") != "#ff0000" {
		t.Errorf("metadata not captured: id=%q color=%q", meta.Field("id"), meta.Field("color"))
	}
	if strings.Contains(out, "<blockquote") {
		t.Errorf("metadata block rendered as blockquote:\n%s", out)
	}
}

func TestRenderLinks(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "next button",
			src:  "[Continue](btn:next)",
			want: `<button class="next-step">Continue</button>`,
		},
		{
			name: "glossary term",
			src:  "[circle](gloss:circle)",
			want: `<x-gloss xid="circle">circle</x-gloss>`,
		},
		{
			name: "biography",
			src:  "[Euler](bio:euler)",
			want: `<x-bio xid="euler">Euler</x-bio>`,
		},
		{
			name: "step target",
			src:  "[here](target:blank-0)",
			want: `<span class="step-target pill" tabindex="0" data-to="blank-0">here</span>`,
		},
		{
			name: "action button",
			src:  "[roll](action:rollDice())",
			want: `<button class="var-action" @click="rollDice()">roll</button>`,
		},
		{
			name: "pill",
			src:  "[r](pill:red)",
			want: `<strong class="pill red">r</strong>`,
		},
		{
			name: "arrow target with underscores",
			src:  "[go](->circle_area)",
			want: `<x-target class="step-target pill" to="circle area">go</x-target>`,
		},
		{
			name: "external link opens a new tab",
			src:  "[ext](https://example.org)",
			want: `<a href="https://example.org" target="_blank">ext</a>`,
		},
		{
			name: "fragment link stays in tab",
			src:  "[top](#top)",
			want: `<a href="#top">top</a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := renderTest(t, tt.src)
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}

	t.Run("glossary references recorded", func(t *testing.T) {
		_, meta := renderTest(t, "[a](gloss:circle) and [b](bio:euler)")
		if len(meta.Gloss()) != 1 || meta.Gloss()[0] != "circle" {
			t.Errorf("Gloss() = %v", meta.Gloss())
		}
		if len(meta.Bios()) != 1 || meta.Bios()[0] != "euler" {
			t.Errorf("Bios() = %v", meta.Bios())
		}
	})
}

func TestRenderCodeSpans(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "maths expression",
			src:  "the sum `x + 1` grows",
			want: `<span class="math" data-voice="x plus 1"><mi>x</mi><mo>+</mo><mn>1</mn></span>`,
		},
		{
			name: "interactive maths",
			src:  "solve `§x = 2`",
			want: `<x-math data-voice="x equals 2"><mi>x</mi><mo>=</mo><mn>2</mn></x-math>`,
		},
		{
			name: "tagged code span",
			src:  "run `{py} print(1)` now",
			want: `<code class="language-python">print(1)</code>`,
		},
		{
			name: "latex code span",
			src:  "see `{latex} x^2`",
			want: `<span class="math-tex">x^2</span>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _ := renderTest(t, tt.src)
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}

	t.Run("invalid maths degrades with a warning", func(t *testing.T) {
		meta := NewStepMetadata()
		log := buildlog.NewNop()
		r := NewRenderer(meta, fakeTex{}, log, Options{Locale: "en"})
		out, err := r.Render("bad `x @ y` span")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, `<span class="math"></span>`) {
			t.Errorf("no empty math span:\n%s", out)
		}
		if log.Warnings() != 1 {
			t.Errorf("warnings = %d, want 1", log.Warnings())
		}
	})
}

func TestRenderCodeBlocks(t *testing.T) {
	t.Run("latex fence becomes a display equation", func(t *testing.T) {
		out, _ := renderTest(t, "```latex\nx^2 = 4\n```\n")
		if !strings.Contains(out, `<p class="text-center">`) {
			t.Errorf("no centered wrapper:\n%s", out)
		}
		if !strings.Contains(out, `\begin{align*}x^2 = 4\end{align*}`) {
			t.Errorf("equation body missing:\n%s", out)
		}
	})

	t.Run("named fence is highlighted", func(t *testing.T) {
		out, _ := renderTest(t, "```python\nprint(1)\n```\n")
		if !strings.Contains(out, `<pre class="language-python"><code>`) {
			t.Errorf("no highlighted block:\n%s", out)
		}
	})

	t.Run("shorthand language names are mapped", func(t *testing.T) {
		out, _ := renderTest(t, "```py\nprint(1)\n```\n")
		if !strings.Contains(out, `language-python`) {
			t.Errorf("py not mapped to python:\n%s", out)
		}
	})

	t.Run("unnamed fence renders the tag template", func(t *testing.T) {
		out, _ := renderTest(t, "```\n.row\n  | hi\n```\n")
		if !strings.Contains(out, `<div class="row">hi</div>`) {
			t.Errorf("template not rendered:\n%s", out)
		}
	})
}

func TestRenderInlineConstructs(t *testing.T) {
	t.Run("emphasis and strikethrough", func(t *testing.T) {
		out, _ := renderTest(t, "*a* **b** ~~c~~")
		for _, want := range []string{"<em>a</em>", "<strong>b</strong>", "<del>c</del>"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("relative images resolve to the course root", func(t *testing.T) {
		out, _ := renderTest(t, "![dice](images/dice.png)")
		if !strings.Contains(out, `<img src="/content/circles/images/dice.png" alt="dice"/>`) {
			t.Errorf("image not rewritten:\n%s", out)
		}
	})

	t.Run("blanks survive markdown parsing", func(t *testing.T) {
		out, _ := renderTest(t, "pick [[42]] now")
		if !strings.Contains(out, `<x-blank solution="42"></x-blank>`) {
			t.Errorf("blank not rendered:\n%s", out)
		}
	})

	t.Run("tables render header and body cells", func(t *testing.T) {
		out, _ := renderTest(t, "| a | b |\n| --- | --- |\n| c | d |\n")
		for _, want := range []string{"<th>a</th>", "<td>c</td>"} {
			if !strings.Contains(out, want) {
				t.Errorf("missing %q:\n%s", want, out)
			}
		}
	})
}

func TestEscapeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "angle brackets", in: "x < y > z", want: "x &lt; y &gt; z"},
		{name: "bare ampersand", in: "a & b", want: "a &amp; b"},
		{name: "entities are not double escaped", in: "a &amp; b &#176;", want: "a &amp; b &#176;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeText(tt.in); got != tt.want {
				t.Errorf("escapeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
