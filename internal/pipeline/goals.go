package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// A goalRule names one kind of interactive element. Indexed rules give each
// matched element a numbered goal in document order; rules with a goals func
// derive their goals from the element's children instead. The rule name is
// written back as the element's goal attribute unless noAttr is set, so the
// runtime can dispatch scoring to the component.
type goalRule struct {
	name    string
	indexed bool
	noAttr  bool
	match   func(*html.Node) bool
	goals   func(*html.Node) []string
}

func tagMatch(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

var goalRules = []goalRule{
	{name: "blank", indexed: true, match: func(n *html.Node) bool {
		return n.Data == "x-blank" || n.Data == "x-blank-mc"
	}},
	{name: "var", indexed: true, match: tagMatch("x-var")},
	{name: "slider", indexed: true, match: tagMatch("x-slider")},
	{name: "sortable", indexed: true, match: tagMatch("x-sortable")},
	{name: "free-text", indexed: true, match: tagMatch("x-free-text")},
	{name: "next", indexed: true, match: func(n *html.Node) bool { return hasClass(n, "next-step") }, noAttr: true},
	// Systems count as equations of their own; only equations nested inside
	// a system are managed by the system and carry no goal.
	{name: "eqn", indexed: true, match: func(n *html.Node) bool {
		if n.Data == "x-equation-system" {
			return true
		}
		if n.Data != "x-equation" {
			return false
		}
		for p := n.Parent; p != nil; p = p.Parent {
			if p.Data == "x-equation-system" {
				return false
			}
		}
		return true
	}},

	// Multi-goal components: one goal per child, bare name as the attribute.
	{name: "algebra-flow", match: tagMatch("x-algebra-flow"), goals: algebraFlowGoals},
	{name: "picker", match: tagMatch("x-picker"), goals: pickerGoals},
	{name: "slide", match: tagMatch("x-slideshow"), goals: slideshowGoals},

	// Suffix-free names, kept for compatibility with stored progress.
	{name: "quill", match: tagMatch("x-quill")},
	{name: "gameplay", match: tagMatch("x-gameplay")},
}

// ExtractGoals collects the progress goals of one step: goals declared in
// metadata, explicit goal attributes, and the per-component goals the rule
// table generates. The returned list is de-duplicated in first-seen order.
func ExtractGoals(step *html.Node, metaGoals string) []string {
	goals := strings.Fields(metaGoals)

	for _, el := range findAll(step, func(n *html.Node) bool { return hasAttr(n, "goal") }) {
		goals = append(goals, strings.Fields(attrValue(el, "goal"))...)
	}

	for _, rule := range goalRules {
		for i, el := range findAll(step, rule.match) {
			name := rule.name
			if rule.indexed {
				name = fmt.Sprintf("%s-%d", rule.name, i)
			}
			if !rule.noAttr {
				setAttr(el, "goal", name)
			}
			if rule.goals != nil {
				goals = append(goals, rule.goals(el)...)
			} else {
				goals = append(goals, name)
			}
		}
	}

	return dedupeStrings(goals)
}

// algebraFlowGoals emits one goal per derivation row after the initial one.
func algebraFlowGoals(flow *html.Node) []string {
	var goals []string
	items := findAll(flow, func(n *html.Node) bool { return n.Data == "li" })
	for i := range items {
		if i == 0 {
			continue
		}
		goals = append(goals, fmt.Sprintf("algebra-flow-%d", i-1))
	}
	return goals
}

// pickerGoals emits one goal per selectable item. Items are numbered over
// all children so the indices line up with the runtime, but error items are
// not goals.
func pickerGoals(picker *html.Node) []string {
	var goals []string
	items := findAll(picker, func(n *html.Node) bool { return hasClass(n, "item") })
	for i, item := range items {
		if hasAttr(item, "data-error") {
			continue
		}
		goals = append(goals, fmt.Sprintf("picker-%d", i))
	}
	return goals
}

// slideshowGoals emits one goal per slide after the first. Children slotted
// into the stage are scenery, not slides.
func slideshowGoals(show *html.Node) []string {
	var goals []string
	var slides []*html.Node
	for c := show.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && attrValue(c, "slot") != "stage" {
			slides = append(slides, c)
		}
	}
	for i := range slides {
		if i == 0 {
			continue
		}
		goals = append(goals, fmt.Sprintf("slide-%d", i-1))
	}
	return goals
}

func dedupeStrings(items []string) []string {
	seen := make(map[string]bool, len(items))
	var result []string
	for _, s := range items {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		result = append(result, s)
	}
	return result
}

// StepDuration estimates the reading time of one step in minutes, assuming
// 75 words per minute plus half a minute per interaction goal.
func StepDuration(text string, goalCount int) float64 {
	words := len(strings.Fields(text))
	return float64(words)/75 + float64(goalCount)/2
}
