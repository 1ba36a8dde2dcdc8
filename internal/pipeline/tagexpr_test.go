package pipeline

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseTag(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		want    Tag
		wantErr error
	}{
		{
			name: "bare element",
			expr: "x-box",
			want: Tag{Name: "x-box"},
		},
		{
			name: "leading class implies div",
			expr: ".red",
			want: Tag{Name: "div", Classes: []string{"red"}},
		},
		{
			name: "leading id implies div",
			expr: "#intro",
			want: Tag{Name: "div", ID: "intro"},
		},
		{
			name: "everything combined",
			expr: `x-box.red.large#intro(when="blank-0" level=3 hidden)`,
			want: Tag{
				Name:    "x-box",
				ID:      "intro",
				Classes: []string{"red", "large"},
				Attrs:   map[string]string{"when": "blank-0", "level": "3", "hidden": ""},
			},
		},
		{
			name: "comma separated attributes",
			expr: `div(a="1",b="2")`,
			want: Tag{Name: "div", Attrs: map[string]string{"a": "1", "b": "2"}},
		},
		{
			name:    "empty expression",
			expr:    "  ",
			wantErr: ErrEmptyTagExpr,
		},
		{
			name:    "dangling class dot",
			expr:    ".",
			wantErr: ErrInvalidTagExpr,
		},
		{
			name:    "unclosed attribute list",
			expr:    `div(a="1"`,
			wantErr: ErrInvalidTagExpr,
		},
		{
			name:    "unterminated attribute value",
			expr:    `div(a="1)`,
			wantErr: ErrInvalidTagExpr,
		},
		{
			name:    "unexpected character",
			expr:    "div}",
			wantErr: ErrInvalidTagExpr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTag(tt.expr)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseTag(%q) error = %v, want %v", tt.expr, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTag(%q) error = %v", tt.expr, err)
			}
			if got.Name != tt.want.Name || got.ID != tt.want.ID {
				t.Errorf("ParseTag(%q) = %+v, want %+v", tt.expr, got, tt.want)
			}
			if !reflect.DeepEqual(got.Classes, tt.want.Classes) {
				t.Errorf("Classes = %v, want %v", got.Classes, tt.want.Classes)
			}
			if tt.want.Attrs != nil && !reflect.DeepEqual(got.Attrs, tt.want.Attrs) {
				t.Errorf("Attrs = %v, want %v", got.Attrs, tt.want.Attrs)
			}
		})
	}
}

func TestTagOpenClose(t *testing.T) {
	tests := []struct {
		name      string
		expr      string
		wantOpen  string
		wantClose string
	}{
		{
			name:      "deterministic attribute order",
			expr:      `x-box#a.b(z="2" a="1")`,
			wantOpen:  `<x-box id="a" class="b" a="1" z="2">`,
			wantClose: "</x-box>",
		},
		{
			name:      "void element has no close tag",
			expr:      `img(src="x.png")`,
			wantOpen:  `<img src="x.png">`,
			wantClose: "",
		},
		{
			name:      "attribute values are escaped",
			expr:      `div(title="a<b")`,
			wantOpen:  `<div title="a&lt;b">`,
			wantClose: "</div>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := ParseTag(tt.expr)
			if err != nil {
				t.Fatalf("ParseTag(%q) error = %v", tt.expr, err)
			}
			if got := tag.Open(); got != tt.wantOpen {
				t.Errorf("Open() = %q, want %q", got, tt.wantOpen)
			}
			if got := tag.Close(); got != tt.wantClose {
				t.Errorf("Close() = %q, want %q", got, tt.wantClose)
			}
		})
	}
}

func TestRenderBlock(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		want    string
		wantErr bool
	}{
		{
			name: "nested children",
			src:  ".row\n  img(src=\"x.png\" width=120)\n  .caption Two dice",
			want: `<div class="row"><img src="x.png" width="120"><div class="caption">Two dice</div></div>`,
		},
		{
			name: "siblings close previous element",
			src:  ".a\n.b",
			want: `<div class="a"></div><div class="b"></div>`,
		},
		{
			name: "literal text lines are escaped",
			src:  ".note\n  | 1 < 2",
			want: `<div class="note">1 &lt; 2</div>`,
		},
		{
			name: "inline text after attributes",
			src:  `.pill(data-to="x") click me`,
			want: `<div class="pill" data-to="x">click me</div>`,
		},
		{
			name: "blank lines are skipped",
			src:  ".a\n\n  .b",
			want: `<div class="a"><div class="b"></div></div>`,
		},
		{
			name:    "invalid expression",
			src:     ".a\n  .",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderBlock(tt.src)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("RenderBlock() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RenderBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}
