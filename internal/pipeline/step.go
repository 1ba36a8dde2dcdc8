package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/coursekit/coursekit/internal/buildlog"
)

// TexService extends the placeholder side of the equation service with the
// substitution pass.
type TexService interface {
	TexPlaceholder
	Fill(ctx context.Context, doc string) (string, error)
}

// StepResult is the compiled form of one step.
type StepResult struct {
	ID       string
	HTML     string
	Goals    []string
	Duration float64 // minutes

	CourseTitle  string
	SectionTitle string

	// Metadata exposes the blockquote fields and the glossary/biography
	// references collected while rendering.
	Metadata *StepMetadata
}

// StepCompiler compiles one markdown step into its final HTML. A compiler is
// cheap and stateless between calls; the course assembler creates one per
// (course, locale) pair and reuses it across steps.
type StepCompiler struct {
	Tex  TexService
	Log  *buildlog.Logger
	Opts Options
}

// Compile runs the full step pipeline: source preprocessing, markdown
// rendering, equation substitution, tree post-processing, goal extraction
// and minification. index numbers the step within its course and supplies
// the fallback id.
func (c *StepCompiler) Compile(ctx context.Context, src string, index int) (*StepResult, error) {
	pre := (&Preprocessor{CourseID: c.Opts.CourseID, Log: c.Log}).Preprocess(src)

	meta := NewStepMetadata()
	fragment, err := NewRenderer(meta, c.Tex, c.Log, c.Opts).Render(pre)
	if err != nil {
		return nil, err
	}

	id := CheckID(meta.Field("id"), "step", c.Log)
	if id == "" {
		id = fmt.Sprintf("step-%d", index)
	}

	// Equations are substituted before the tree passes so that passes
	// inspecting rendered math see real markup, not placeholder tokens.
	fragment, err = c.Tex.Fill(ctx, fragment)
	if err != nil {
		return nil, err
	}

	post := &PostProcessor{
		Log:    c.Log,
		Locale: c.Opts.Locale,
		RenderMarkdown: func(text string) (string, error) {
			return c.RenderSimple(ctx, text)
		},
	}
	step, err := post.Process(fragment)
	if err != nil {
		return nil, err
	}

	goals := ExtractGoals(step, meta.Field("goals"))
	duration := StepDuration(textContent(step), len(goals))

	setAttr(step, "id", id)
	if len(goals) > 0 {
		setAttr(step, "goals", strings.Join(goals, " "))
	}
	if class := meta.Field("class"); class != "" {
		addClass(step, strings.Fields(class)...)
	}

	out, err := renderNode(step)
	if err != nil {
		return nil, err
	}

	return &StepResult{
		ID:           id,
		HTML:         MinifyHTML(out),
		Goals:        goals,
		Duration:     duration,
		CourseTitle:  meta.CourseTitle,
		SectionTitle: meta.SectionTitle,
		Metadata:     meta,
	}, nil
}

// RenderSimple compiles a standalone markdown snippet outside the step
// pipeline: container directives, inline rewrites, attribute shorthand and
// no-wrap insertion, but no metadata, goals or tree normalization. Used for
// nested markdown blocks and localization bundle values.
func (c *StepCompiler) RenderSimple(ctx context.Context, src string) (string, error) {
	p := &Preprocessor{CourseID: c.Opts.CourseID, Log: c.Log}
	pre := p.BlockIndentation(NormalizeLineEndings(src))
	pre = shieldBlankChoices(pre)

	fragment, err := NewRenderer(NewStepMetadata(), c.Tex, c.Log, c.Opts).Render(pre)
	if err != nil {
		return "", err
	}

	body, err := parseStepHTML(fragment)
	if err != nil {
		return "", err
	}
	post := &PostProcessor{Log: c.Log, Locale: c.Opts.Locale}
	for _, n := range elementsBottomUp(body) {
		post.expandAttrShorthand(n)
	}
	post.addNoWraps(body)

	inner, err := innerHTML(body)
	if err != nil {
		return "", err
	}
	return c.Tex.Fill(ctx, MinifyHTML(inner))
}
