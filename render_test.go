package ksatagent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderText(t *testing.T) {
	a := &Artifact{
		Card:    Card{Subject: "이데아론"},
		Passage: Passage{Text: "(가) 철학은 ...\n(나) 과학은 ..."},
		Questions: []Question{{
			Number:        1,
			Prompt:        "적절하지 않은 것은?",
			Material:      "자료",
			Choices:       [5]string{"a", "b", "c", "d", "e"},
			CorrectChoice: 3,
			Explanations:  [5]string{"e1", "e2", "e3", "e4", "e5"},
		}},
	}
	out := RenderText(FormatArtifact(a))

	assert.True(t, strings.HasPrefix(out, "### 이데아론\n"))
	assert.Contains(t, out, "(가)\n  철학은 ...\n(나)\n  과학은 ...\n")
	assert.Contains(t, out, "1. 적절하지 _않은_ 것은?\n")
	assert.Contains(t, out, "  <보기>\n    자료\n")
	assert.Contains(t, out, "  ③ c\n")
	assert.Contains(t, out, "정답. ③\n")
	assert.Contains(t, out, "[정답 풀이]\ne3\n")
	assert.Contains(t, out, "[오답 해설]\n① e1\n② e2\n④ e4\n⑤ e5\n")
}

func TestRenderProgressText(t *testing.T) {
	tl := InitTaskList(1)
	tl.Start(LabelStructureDesign)
	tl.Start(LabelPassageGeneration)

	out := RenderProgressText(tl.Aggregate(), tl.Snapshot())
	assert.True(t, strings.HasPrefix(out, "전체 진행률: 1/3\n"))
	assert.Contains(t, out, "완료")
	assert.Contains(t, out, "진행중")
	assert.Contains(t, out, "대기")
}

func TestStatusBadge(t *testing.T) {
	assert.Equal(t, "대기", StatusBadge(StatusPending))
	assert.Equal(t, "진행중", StatusBadge(StatusInProgress))
	assert.Equal(t, "완료", StatusBadge(StatusComplete))
}
