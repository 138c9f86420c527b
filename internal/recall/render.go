package recall

import (
	"fmt"
	"strings"

	"mira/internal/model"
)

// charsPerToken approximates token count from byte length for the
// character-based estimator spec.md §4.6 explicitly allows ("a final
// token-estimator (character-based is acceptable)").
const charsPerToken = 4

func estimateTokens(g *GatheredContext) int {
	return len(Render(g)) / charsPerToken
}

// trim drops lowest-value categories first until the rendered context
// fits maxTokens, in the exact order spec.md §4.6 names: expertise ->
// reasoning patterns -> design patterns -> cochange -> historical
// fixes -> build errors -> call graph -> code search -> facts.
func trim(g *GatheredContext, maxTokens int) {
	if maxTokens <= 0 || estimateTokens(g) <= maxTokens {
		return
	}

	steps := []func(){
		func() { g.Patterns = filterPatternType(g.Patterns, "expertise") },
		func() { g.Patterns = filterPatternType(g.Patterns, "reasoning") },
		func() { g.Patterns = filterPatternType(g.Patterns, "design") },
		func() { g.Cochange = nil },
		func() { g.HistoricalFixes = nil },
		func() { g.BuildErrors = nil },
		func() { g.Callers = nil; g.Callees = nil },
		func() { g.CodeSearch = nil },
		func() { g.Facts = nil },
	}

	for _, step := range steps {
		if estimateTokens(g) <= maxTokens {
			return
		}
		step()
	}
}

func filterPatternType(patterns []model.BehaviorPattern, drop string) []model.BehaviorPattern {
	out := patterns[:0]
	for _, p := range patterns {
		if p.PatternType != drop {
			out = append(out, p)
		}
	}
	return out
}

// Render formats a GatheredContext as deterministic Markdown: fixed
// section order, empty sections omitted, per spec.md §4.6 "Rendering".
func Render(g *GatheredContext) string {
	var b strings.Builder

	if len(g.CodeSearch) > 0 {
		b.WriteString("## Code search\n\n")
		for _, m := range g.CodeSearch {
			fmt.Fprintf(&b, "- `%s` (distance %.3f)\n", m.FilePath, m.Distance)
			if m.Text != "" {
				fmt.Fprintf(&b, "  ```\n  %s\n  ```\n", strings.ReplaceAll(m.Text, "\n", "\n  "))
			}
		}
		b.WriteString("\n")
	}

	if len(g.Callers) > 0 || len(g.Callees) > 0 {
		b.WriteString("## Call graph\n\n")
		if len(g.Callers) > 0 {
			b.WriteString("Callers:\n")
			for _, c := range g.Callers {
				fmt.Fprintf(&b, "- %s (%s:%d, x%d)\n", c.Name, c.FilePath, c.Line, c.Count)
			}
		}
		if len(g.Callees) > 0 {
			b.WriteString("Callees:\n")
			for _, c := range g.Callees {
				fmt.Fprintf(&b, "- %s (%s:%d, x%d)\n", c.Name, c.FilePath, c.Line, c.Count)
			}
		}
		b.WriteString("\n")
	}

	if len(g.Cochange) > 0 {
		b.WriteString("## Co-changed files\n\n")
		for _, c := range g.Cochange {
			fmt.Fprintf(&b, "- %s (with %s, %d commits)\n", c.FilePath, c.CochangedWith, c.CommitCount)
		}
		b.WriteString("\n")
	}

	if len(g.HistoricalFixes) > 0 {
		b.WriteString("## Historical fixes\n\n")
		for _, f := range g.HistoricalFixes {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Category, f.Message)
			if f.Resolution != "" {
				fmt.Fprintf(&b, "  resolution: %s\n", f.Resolution)
			}
		}
		b.WriteString("\n")
	}

	if len(g.Patterns) > 0 {
		b.WriteString("## Patterns\n\n")
		for _, p := range g.Patterns {
			fmt.Fprintf(&b, "- [%s] %s (confidence %.2f, seen %d times)\n", p.PatternType, p.PatternKey, p.Confidence, p.OccurrenceCount)
		}
		b.WriteString("\n")
	}

	if len(g.BuildErrors) > 0 {
		b.WriteString("## Build errors\n\n")
		for _, e := range g.BuildErrors {
			fmt.Fprintf(&b, "- [%s] %s (%s:%d)\n", e.Category, e.Message, e.FilePath, e.Line)
		}
		b.WriteString("\n")
	}

	if len(g.Facts) > 0 {
		b.WriteString("## Facts\n\n")
		for _, f := range g.Facts {
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
