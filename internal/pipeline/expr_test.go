package pipeline

import (
	"errors"
	"testing"
)

func TestParseExpr(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		want      string
		wantVoice string
	}{
		{
			name:      "addition",
			src:       "x + 1",
			want:      "<mi>x</mi><mo>+</mo><mn>1</mn>",
			wantVoice: "x plus 1",
		},
		{
			name:      "fraction",
			src:       "a/b",
			want:      "<mfrac><mrow><mi>a</mi></mrow><mrow><mi>b</mi></mrow></mfrac>",
			wantVoice: "a over b",
		},
		{
			name:      "power",
			src:       "x^2",
			want:      "<msup><mi>x</mi><mn>2</mn></msup>",
			wantVoice: "x to the power of 2",
		},
		{
			name:      "implicit multiplication",
			src:       "4x",
			want:      "<mn>4</mn><mi>x</mi>",
			wantVoice: "4 x",
		},
		{
			name:      "explicit multiplication normalized to dot",
			src:       "2 * 3",
			want:      "<mn>2</mn><mo>·</mo><mn>3</mn>",
			wantVoice: "2 times 3",
		},
		{
			name:      "parenthesized group",
			src:       "(x + 1)",
			want:      "<mrow><mo>(</mo><mi>x</mi><mo>+</mo><mn>1</mn><mo>)</mo></mrow>",
			wantVoice: "x plus 1",
		},
		{
			name:      "unary minus",
			src:       "-x",
			want:      "<mo>-</mo><mi>x</mi>",
			wantVoice: "minus x",
		},
		{
			name:      "equality",
			src:       "y = 2x",
			want:      "<mi>y</mi><mo>=</mo><mn>2</mn><mi>x</mi>",
			wantVoice: "y equals 2 x",
		},
		{
			name:      "decimal number",
			src:       ".5 + 1.25",
			want:      "<mn>.5</mn><mo>+</mo><mn>1.25</mn>",
			wantVoice: ".5 plus 1.25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, voice, err := ParseExpr(tt.src)
			if err != nil {
				t.Fatalf("ParseExpr(%q) error = %v", tt.src, err)
			}
			if got != tt.want {
				t.Errorf("markup = %q, want %q", got, tt.want)
			}
			if voice != tt.wantVoice {
				t.Errorf("voice = %q, want %q", voice, tt.wantVoice)
			}
		})
	}
}

func TestParseExprHelpers(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "input blank",
			src:  `input("42")`,
			want: `<x-blank solution="42" placeholder="???"></x-blank>`,
		},
		{
			name: "multiple choice blank",
			src:  `blank("2","3")`,
			want: `<x-blank-mc><button class="choice">2</button><button class="choice">3</button></x-blank-mc>`,
		},
		{
			name: "variable binding",
			src:  `var("speed")`,
			want: `<span class="var">${speed}</span>`,
		},
		{
			name: "reveal group",
			src:  `reveal(x,"blank-0")`,
			want: `<mrow class="reveal" data-when="blank-0"><mi>x</mi></mrow>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := ParseExpr(tt.src)
			if err != nil {
				t.Fatalf("ParseExpr(%q) error = %v", tt.src, err)
			}
			if got != tt.want {
				t.Errorf("markup = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("pill wraps content with a target", func(t *testing.T) {
		got, voice, err := ParseExpr(`pill(x,"red","step-1")`)
		if err != nil {
			t.Fatal(err)
		}
		want := `<span class="pill step-target red" data-to="step-1" tabindex="0"><mi>x</mi></span>`
		if got != want {
			t.Errorf("markup = %q, want %q", got, want)
		}
		if voice != "x" {
			t.Errorf("voice = %q, want %q", voice, "x")
		}
	})
}

func TestParseExprErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "unexpected character", src: "x @ y"},
		{name: "missing closing paren", src: "(x + 1"},
		{name: "trailing operator", src: "x +"},
		{name: "empty input", src: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseExpr(tt.src); !errors.Is(err, ErrExprParse) {
				t.Errorf("ParseExpr(%q) error = %v, want %v", tt.src, err, ErrExprParse)
			}
		})
	}
}
