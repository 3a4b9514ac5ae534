package ksatagent

import (
	"fmt"
	"strings"
)

// RenderText renders a view as plain text. Underlined prompt phrases are
// wrapped in underscores.
func RenderText(v View) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### %s\n\n", v.Subject))

	sb.WriteString("[지문]\n")
	writeBlocks(&sb, v.Passage, "")
	sb.WriteString("\n")

	sb.WriteString("[문항]\n")
	for _, q := range v.Questions {
		sb.WriteString(fmt.Sprintf("%d. %s\n", q.Number, promptText(q.Prompt, "_")))
		if q.HasMaterial() {
			sb.WriteString("  <보기>\n")
			writeBlocks(&sb, q.Material, "  ")
		}
		for _, c := range q.Choices {
			sb.WriteString(fmt.Sprintf("  %s %s\n", c.Symbol, c.Text))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("[해설]\n")
	for _, e := range v.Explanations {
		sb.WriteString(RenderExplanationText(e))
		sb.WriteString("\n")
	}

	return sb.String()
}

// RenderExplanationText renders one explanation block as plain text
func RenderExplanationText(e ExplanationBlock) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d번 문항\n", e.Number))
	sb.WriteString(fmt.Sprintf("정답. %s\n\n", e.AnswerSymbol))
	sb.WriteString("[정답 풀이]\n")
	sb.WriteString(e.Supporting)
	sb.WriteString("\n\n[오답 해설]\n")
	for _, r := range e.Rejections {
		sb.WriteString(fmt.Sprintf("%s %s\n", r.Symbol, r.Text))
	}
	return sb.String()
}

// RenderProgressText renders a task list as one line per task
func RenderProgressText(p Progress, tasks []Task) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("전체 진행률: %d/%d\n", p.Completed, p.Total))
	for _, t := range tasks {
		sb.WriteString(fmt.Sprintf("  %-16s %s\n", t.Label, StatusBadge(t.Status)))
	}
	return sb.String()
}

// StatusBadge returns the display badge of a task status
func StatusBadge(s TaskStatus) string {
	switch s {
	case StatusInProgress:
		return "진행중"
	case StatusComplete:
		return "완료"
	default:
		return "대기"
	}
}

func writeBlocks(sb *strings.Builder, blocks []Block, indent string) {
	for _, b := range blocks {
		switch b.Kind {
		case BlockLabel:
			sb.WriteString(indent + b.Text + "\n")
		default:
			sb.WriteString(indent + "  " + b.Text + "\n")
		}
	}
}

func promptText(spans []Span, mark string) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Underline {
			sb.WriteString(mark + s.Text + mark)
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}
