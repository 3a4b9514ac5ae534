package ksatagent

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Passage section markers
const (
	MarkerGa = "(가)"
	MarkerNa = "(나)"
)

// UnderlinedPhrase is underlined wherever it appears in a question prompt
const UnderlinedPhrase = "않은"

var (
	splitModePattern = regexp.MustCompile(`(?m)^[\s\p{Z}]*\(가\)`)
	markerPattern    = regexp.MustCompile(`\((?:가|나)\)`)
	choiceSymbols    = [5]string{"①", "②", "③", "④", "⑤"}
)

// ChoiceSymbol returns the circled symbol of choice i (1..5), or "" when out of range
func ChoiceSymbol(i int) string {
	if i < 1 || i > 5 {
		return ""
	}
	return choiceSymbols[i-1]
}

// ParseChoiceSymbol maps a circled symbol back to its choice number
func ParseChoiceSymbol(s string) (int, bool) {
	for i, sym := range choiceSymbols {
		if s == sym {
			return i + 1, true
		}
	}
	return 0, false
}

// BlockKind distinguishes passage section labels from paragraphs
type BlockKind string

const (
	BlockLabel     BlockKind = "label"
	BlockParagraph BlockKind = "paragraph"
)

// Block is one rendered unit of passage text
type Block struct {
	Kind BlockKind `json:"kind"`
	Text string    `json:"text"`
}

// SplitPassage splits passage text into blocks. When some line starts with
// (가), after any Unicode whitespace, the text is cut at every (가)/(나) marker and the markers become label
// blocks; otherwise the whole text is one region. Every region is split on
// line breaks into trimmed, non-empty paragraphs.
func SplitPassage(text string) []Block {
	text = norm.NFC.String(text)
	blocks := []Block{}

	if !splitModePattern.MatchString(text) {
		return appendParagraphs(blocks, text)
	}

	last := 0
	for _, loc := range markerPattern.FindAllStringIndex(text, -1) {
		blocks = appendParagraphs(blocks, text[last:loc[0]])
		blocks = append(blocks, Block{Kind: BlockLabel, Text: text[loc[0]:loc[1]]})
		last = loc[1]
	}
	return appendParagraphs(blocks, text[last:])
}

func appendParagraphs(blocks []Block, region string) []Block {
	for _, line := range strings.Split(region, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blocks = append(blocks, Block{Kind: BlockParagraph, Text: line})
	}
	return blocks
}

// JoinBlocks writes blocks back as text, one block per line
func JoinBlocks(blocks []Block) string {
	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = b.Text
	}
	return strings.Join(lines, "\n")
}

// Span is a run of prompt text, optionally underlined
type Span struct {
	Text      string `json:"text"`
	Underline bool   `json:"underline,omitempty"`
}

// Choice is one labeled answer choice
type Choice struct {
	Number int    `json:"number"`
	Symbol string `json:"symbol"`
	Text   string `json:"text"`
}

// QuestionBlock is the rendered form of a question without its explanations
type QuestionBlock struct {
	Number   int       `json:"number"`
	Prompt   []Span    `json:"prompt"`
	Material []Block   `json:"material,omitempty"`
	Choices  [5]Choice `json:"choices"`
}

// HasMaterial reports whether the question carries supplementary material
func (qb QuestionBlock) HasMaterial() bool {
	return len(qb.Material) > 0
}

// FormatQuestion renders a question: prompt with the underlined phrase
// marked, optional material split into paragraphs, and choices ①..⑤ in order.
func FormatQuestion(q Question) QuestionBlock {
	qb := QuestionBlock{
		Number: q.Number,
		Prompt: highlightPrompt(q.Prompt),
	}
	if strings.TrimSpace(q.Material) != "" {
		qb.Material = SplitPassage(q.Material)
	}
	for i := range qb.Choices {
		qb.Choices[i] = Choice{
			Number: i + 1,
			Symbol: choiceSymbols[i],
			Text:   q.Choices[i],
		}
	}
	return qb
}

func highlightPrompt(prompt string) []Span {
	parts := strings.Split(prompt, UnderlinedPhrase)
	spans := make([]Span, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			spans = append(spans, Span{Text: UnderlinedPhrase, Underline: true})
		}
		if part != "" {
			spans = append(spans, Span{Text: part})
		}
	}
	return spans
}

// FormatQuestions renders every question in order
func FormatQuestions(questions []Question) []QuestionBlock {
	out := make([]QuestionBlock, 0, len(questions))
	for _, q := range questions {
		out = append(out, FormatQuestion(q))
	}
	return out
}

// Rejection explains why a wrong choice is wrong
type Rejection struct {
	Number int    `json:"number"`
	Symbol string `json:"symbol"`
	Text   string `json:"text"`
}

// ExplanationBlock is the rendered explanation of one question
type ExplanationBlock struct {
	Number       int         `json:"number"`
	Answer       int         `json:"answer"`
	AnswerSymbol string      `json:"answer_symbol"`
	Supporting   string      `json:"supporting"`
	Rejections   []Rejection `json:"rejections"`
}

// FormatExplanations renders one explanation block per question. The
// explanation at the correct choice supports the answer; the other four
// follow in ascending choice order as rejections.
func FormatExplanations(questions []Question) []ExplanationBlock {
	out := make([]ExplanationBlock, 0, len(questions))
	for _, q := range questions {
		answer := q.Answer()
		eb := ExplanationBlock{
			Number:       q.Number,
			Answer:       answer,
			AnswerSymbol: ChoiceSymbol(answer),
			Supporting:   q.Explanations[answer-1],
			Rejections:   make([]Rejection, 0, 4),
		}
		for i := 1; i <= 5; i++ {
			if i == answer {
				continue
			}
			eb.Rejections = append(eb.Rejections, Rejection{
				Number: i,
				Symbol: ChoiceSymbol(i),
				Text:   q.Explanations[i-1],
			})
		}
		out = append(out, eb)
	}
	return out
}

// View is the complete presentation form of an artifact
type View struct {
	Subject      string             `json:"subject"`
	Passage      []Block            `json:"passage"`
	Questions    []QuestionBlock    `json:"questions"`
	Explanations []ExplanationBlock `json:"explanations"`
}

// FormatArtifact renders an artifact. A nil artifact renders as an empty view.
func FormatArtifact(a *Artifact) View {
	if a == nil {
		return View{
			Subject:      DefaultSubject,
			Passage:      []Block{},
			Questions:    []QuestionBlock{},
			Explanations: []ExplanationBlock{},
		}
	}
	return View{
		Subject:      a.Card.Title(),
		Passage:      SplitPassage(a.Passage.Text),
		Questions:    FormatQuestions(a.Questions),
		Explanations: FormatExplanations(a.Questions),
	}
}
