package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"ksatagent"
)

const (
	maxQuestions = 6
	autoOption   = "자동"
)

var fieldOptions = []string{"인문예술", "법", "경제", "과학기술"}

var subfieldOptions = map[string][]string{
	"인문예술": {"동양철학", "서양철학", "논리학", "예술"},
	"법":    {"정치/제도/행정", "법규"},
	"경제":   {"경제현상", "제도/규제"},
	"과학기술": {"과학/기술", "정보통신", "기계장치", "생명과학", "자연현상"},
}

var pointsOptions = []string{
	autoOption,
	"변수 간의 관계 이해하기",
	"단계에 따른 구성요소의 역할과 상태 변화 추적하기",
	"특성과 원리 이해하기",
	"조건의 중첩과 예외 구조 파악하기",
	"논리적 규칙 파악하기",
	"공통점/차이점 파악하기",
}

var questionTypes = []string{"보기형", "추론형", "지시형", "동의형", "빈칸형", "내용일치형", "전개방식형", "어휘형"}

var questionStyles = []string{"긍정형", "부정형"}

// parseGenerationForm builds a generation request from the new-generation form
func parseGenerationForm(form url.Values) (ksatagent.GenerationRequest, error) {
	var req ksatagent.GenerationRequest

	req.Field = strings.TrimSpace(form.Get("field"))
	subfields, ok := subfieldOptions[req.Field]
	if !ok {
		return req, fmt.Errorf("unknown field %q", req.Field)
	}
	req.Subfield = strings.TrimSpace(form.Get("subfield"))
	if !contains(subfields, req.Subfield) {
		return req, fmt.Errorf("unknown subfield %q for %s", req.Subfield, req.Field)
	}

	req.PassageType = strings.TrimSpace(form.Get("type"))
	if req.PassageType == "" {
		req.PassageType = ksatagent.PassageSingle
	}
	if req.PassageType != ksatagent.PassageSingle && req.PassageType != ksatagent.PassageTwoPart {
		return req, fmt.Errorf("unknown passage type %q", req.PassageType)
	}

	if form.Get("subject_mode") != autoOption {
		if subject := strings.TrimSpace(form.Get("subject")); subject != "" {
			req.Subject = &subject
		}
	}
	if points := strings.TrimSpace(form.Get("points")); points != "" && points != autoOption {
		req.Points = &points
	}

	n, err := strconv.Atoi(form.Get("num_questions"))
	if err != nil {
		return req, errors.New("num_questions must be a number")
	}
	if n < 1 || n > maxQuestions {
		return req, fmt.Errorf("num_questions must be between 1 and %d", maxQuestions)
	}

	req.Questions = make([]ksatagent.QuestionSpec, 0, n)
	for i := 1; i <= n; i++ {
		spec := ksatagent.QuestionSpec{
			QuestionNumber: i,
			QuestionType:   valueOr(form.Get(fmt.Sprintf("q_type_%d", i)), questionTypes[0]),
			QuestionStyle:  valueOr(form.Get(fmt.Sprintf("q_style_%d", i)), questionStyles[0]),
			Answer:         valueOr(form.Get(fmt.Sprintf("q_answer_%d", i)), "①"),
		}
		if !contains(questionTypes, spec.QuestionType) {
			return req, fmt.Errorf("question %d: unknown type %q", i, spec.QuestionType)
		}
		if !contains(questionStyles, spec.QuestionStyle) {
			return req, fmt.Errorf("question %d: unknown style %q", i, spec.QuestionStyle)
		}
		if _, ok := ksatagent.ParseChoiceSymbol(spec.Answer); !ok {
			return req, fmt.Errorf("question %d: unknown answer %q", i, spec.Answer)
		}
		req.Questions = append(req.Questions, spec)
	}
	return req, nil
}

func valueOr(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
