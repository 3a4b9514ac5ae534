package ksatagent

import (
	"encoding/json"
	"strconv"
	"strings"
)

// TaskStatus represents the state of a sub-task in a generation job
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusComplete   TaskStatus = "complete"
)

// rank orders statuses so a task never moves backward
func (s TaskStatus) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusComplete:
		return 2
	default:
		return 0
	}
}

// Task is one named phase of a generation job
type Task struct {
	Label  string     `json:"label"`
	Status TaskStatus `json:"status"`
}

// Step identifies which phase a progress event refers to
type Step string

const (
	StepCard     Step = "card"
	StepPassage  Step = "passage"
	StepQuestion Step = "question"
)

// EventStatus is the phase transition reported by a progress event
type EventStatus string

const (
	EventStart    EventStatus = "start"
	EventComplete EventStatus = "complete"
)

// GenerationEvent is one parsed record of the Backend event stream.
// It is implemented by ProgressEvent, ResultEvent and FailureEvent.
type GenerationEvent interface {
	isGenerationEvent()
}

// ProgressEvent reports that a step started or completed
type ProgressEvent struct {
	Step           Step
	QuestionNumber int
	Status         EventStatus
}

// ResultEvent is the terminal success event carrying the artifact
type ResultEvent struct {
	Artifact *Artifact
}

// FailureEvent is the terminal application error event
type FailureEvent struct {
	Message string
}

func (ProgressEvent) isGenerationEvent() {}
func (ResultEvent) isGenerationEvent()   {}
func (FailureEvent) isGenerationEvent()  {}

// DefaultSubject is shown when the card carries no subject
const DefaultSubject = "생성된 지문"

// Artifact is the generated passage and question set
type Artifact struct {
	Card      Card       `json:"card"`
	Passage   Passage    `json:"passage"`
	Questions []Question `json:"questions"`
}

// Card holds the structure-design output. Only the subject is interpreted;
// every other field is kept as received.
type Card struct {
	Subject string
	Fields  map[string]json.RawMessage
}

// Title returns the display title of the card
func (c Card) Title() string {
	if strings.TrimSpace(c.Subject) == "" {
		return DefaultSubject
	}
	return c.Subject
}

func (c *Card) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	c.Fields = fields
	c.Subject = rawString(fields["subject"])
	return nil
}

func (c Card) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Fields)+1)
	for k, v := range c.Fields {
		out[k] = v
	}
	if c.Subject != "" {
		b, err := json.Marshal(c.Subject)
		if err != nil {
			return nil, err
		}
		out["subject"] = b
	}
	return json.Marshal(out)
}

// passageTextFields lists the field names the Backend has used for passage text, in lookup order
var passageTextFields = []string{"passage", "content", "passage_text"}

// Passage holds the raw passage text
type Passage struct {
	Text string
}

func (p *Passage) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// a bare string is accepted as the passage text
		var s string
		if json.Unmarshal(data, &s) == nil {
			p.Text = s
			return nil
		}
		return err
	}
	p.Text = ""
	for _, name := range passageTextFields {
		if text := rawString(fields[name]); text != "" {
			p.Text = text
			break
		}
	}
	return nil
}

func (p Passage) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"passage": p.Text})
}

// Question is a multiple choice question with five choices and five explanations
type Question struct {
	Number        int
	Prompt        string
	Material      string
	Choices       [5]string
	CorrectChoice int // 1-based
	Explanations  [5]string
}

type questionWire struct {
	QuestionNumber json.RawMessage `json:"question_number,omitempty"`
	Question       string          `json:"question"`
	Material       string          `json:"material,omitempty"`
	Choices1       string          `json:"choices_1"`
	Choices2       string          `json:"choices_2"`
	Choices3       string          `json:"choices_3"`
	Choices4       string          `json:"choices_4"`
	Choices5       string          `json:"choices_5"`
	Answer         json.RawMessage `json:"answer,omitempty"`
	Explanation1   string          `json:"explanation_1"`
	Explanation2   string          `json:"explanation_2"`
	Explanation3   string          `json:"explanation_3"`
	Explanation4   string          `json:"explanation_4"`
	Explanation5   string          `json:"explanation_5"`
}

// questionFields is the lenient decoding form of questionWire: text fields of
// any JSON type are accepted and converted by rawText
type questionFields struct {
	QuestionNumber json.RawMessage `json:"question_number"`
	Question       json.RawMessage `json:"question"`
	Material       json.RawMessage `json:"material"`
	Choices1       json.RawMessage `json:"choices_1"`
	Choices2       json.RawMessage `json:"choices_2"`
	Choices3       json.RawMessage `json:"choices_3"`
	Choices4       json.RawMessage `json:"choices_4"`
	Choices5       json.RawMessage `json:"choices_5"`
	Answer         json.RawMessage `json:"answer"`
	Explanation1   json.RawMessage `json:"explanation_1"`
	Explanation2   json.RawMessage `json:"explanation_2"`
	Explanation3   json.RawMessage `json:"explanation_3"`
	Explanation4   json.RawMessage `json:"explanation_4"`
	Explanation5   json.RawMessage `json:"explanation_5"`
}

func (q *Question) UnmarshalJSON(data []byte) error {
	var w questionFields
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	q.Number = rawInt(w.QuestionNumber)
	q.Prompt = rawText(w.Question)
	q.Material = rawText(w.Material)
	q.Choices = [5]string{
		rawText(w.Choices1), rawText(w.Choices2), rawText(w.Choices3), rawText(w.Choices4), rawText(w.Choices5),
	}
	q.Explanations = [5]string{
		rawText(w.Explanation1), rawText(w.Explanation2), rawText(w.Explanation3), rawText(w.Explanation4), rawText(w.Explanation5),
	}
	q.CorrectChoice = parseAnswer(w.Answer)
	return nil
}

func (q Question) MarshalJSON() ([]byte, error) {
	num, _ := json.Marshal(q.Number)
	answer, _ := json.Marshal(ChoiceSymbol(q.Answer()))
	return json.Marshal(questionWire{
		QuestionNumber: num,
		Question:       q.Prompt,
		Material:       q.Material,
		Choices1:       q.Choices[0],
		Choices2:       q.Choices[1],
		Choices3:       q.Choices[2],
		Choices4:       q.Choices[3],
		Choices5:       q.Choices[4],
		Answer:         answer,
		Explanation1:   q.Explanations[0],
		Explanation2:   q.Explanations[1],
		Explanation3:   q.Explanations[2],
		Explanation4:   q.Explanations[3],
		Explanation5:   q.Explanations[4],
	})
}

// Answer returns the correct choice clamped to 1..5
func (q Question) Answer() int {
	if q.CorrectChoice < 1 || q.CorrectChoice > 5 {
		return 1
	}
	return q.CorrectChoice
}

// GenerationRequest is forwarded to the Backend as the user_input of a stream request
type GenerationRequest struct {
	Field       string         `json:"field_input"`
	Subfield    string         `json:"subfield_input"`
	PassageType string         `json:"type_input"`
	Subject     *string        `json:"subject_input"`
	Points      *string        `json:"points_input"`
	Questions   []QuestionSpec `json:"questions_input"`
}

// QuestionSpec describes one requested question
type QuestionSpec struct {
	QuestionNumber int    `json:"question_number"`
	QuestionType   string `json:"question_type"`
	QuestionStyle  string `json:"question_style"`
	Answer         string `json:"answer"`
}

// Passage type selectors understood by the Backend
const (
	PassageSingle  = "단일형"
	PassageTwoPart = "(가),(나) 분리형"
)

// OutputFile is one entry of the saved output listing
type OutputFile struct {
	Filename      string `json:"filename"`
	CreatedAt     string `json:"생성일자"`
	Category      string `json:"대분야"`
	Subject       string `json:"주제"`
	QuestionCount int    `json:"문항 수"`
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// rawText returns a JSON string as is and a JSON number as its literal text.
// Any other value yields "".
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func rawInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	n, _ = strconv.Atoi(strings.TrimSpace(rawString(raw)))
	return n
}

// parseAnswer accepts a circled symbol, a digit string or a number.
// Anything unrecognized maps to 1.
func parseAnswer(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 1
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n >= 1 && n <= 5 {
			return n
		}
		return 1
	}
	s := strings.TrimSpace(rawString(raw))
	if c, ok := ParseChoiceSymbol(s); ok {
		return c
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 5 {
		return n
	}
	return 1
}
