package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/noah-isme/gema-grading-api/internal/dto"
	"github.com/noah-isme/gema-grading-api/internal/grading"
	"github.com/noah-isme/gema-grading-api/internal/models"
)

// ErrInvalidQuestionPayload indicates the question JSON does not match the schema.
var ErrInvalidQuestionPayload = errors.New("invalid question payload")

const questionSchemaURL = "mem://schemas/questions.json"

const questionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["type", "points"],
    "properties": {
      "id": {"type": "string", "maxLength": 64},
      "type": {"enum": ["multiple-choice", "true-false", "fill-blank", "matching", "short-answer", "long-answer", "definition", "paraphrase"]},
      "prompt": {"type": "string"},
      "points": {"type": "number", "exclusiveMinimum": 0},
      "options": {"type": "array", "items": {"type": "string"}},
      "correct_answer": {"type": "string"},
      "acceptable_answers": {"type": "array", "items": {"type": "string"}},
      "correct_matches": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["left", "right"],
          "properties": {
            "left": {"type": "string"},
            "right": {"type": "string"}
          }
        }
      },
      "category": {"type": "string", "maxLength": 64},
      "skill": {"type": "string", "maxLength": 64},
      "difficulty": {"type": "string", "maxLength": 32}
    }
  }
}`

var (
	questionSchemaOnce     sync.Once
	compiledQuestionSchema *jsonschema.Schema
	questionSchemaErr      error
)

func questionSchemaValidator() (*jsonschema.Schema, error) {
	questionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(questionSchemaURL, bytes.NewReader([]byte(questionSchema))); err != nil {
			questionSchemaErr = err
			return
		}
		compiledQuestionSchema, questionSchemaErr = compiler.Compile(questionSchemaURL)
	})
	return compiledQuestionSchema, questionSchemaErr
}

// parseQuestions checks the raw payload against the question schema, decodes
// it and validates every definition.
func parseQuestions(raw json.RawMessage) ([]grading.Question, error) {
	schema, err := questionSchemaValidator()
	if err != nil {
		return nil, fmt.Errorf("compile question schema: %w", err)
	}

	var document interface{}
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestionPayload, err)
	}
	if err := schema.Validate(document); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestionPayload, err)
	}

	var questions []grading.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuestionPayload, err)
	}
	if err := grading.ValidateQuestions(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// decodeAnswers turns stored answers into grading answers aligned with the
// question list. Malformed values become InvalidAnswer so they score zero.
func decodeAnswers(questions []grading.Question, stored []models.StoredAnswer) ([]grading.Answer, error) {
	answers := make([]grading.Answer, 0, len(stored))
	for _, a := range stored {
		if a.QuestionIndex < 0 || a.QuestionIndex >= len(questions) {
			continue
		}
		value, err := grading.DecodeAnswerOrInvalid(questions[a.QuestionIndex].Type, a.Value)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", a.QuestionIndex, err)
		}
		answers = append(answers, grading.Answer{
			QuestionIndex: a.QuestionIndex,
			Value:         value,
			TimeSpent:     time.Duration(a.TimeSpentSeconds) * time.Second,
		})
	}
	return grading.AlignAnswers(answers, len(questions)), nil
}

func storedAnswers(payload []dto.AnswerPayload) []models.StoredAnswer {
	out := make([]models.StoredAnswer, 0, len(payload))
	for _, a := range payload {
		out = append(out, models.StoredAnswer{
			QuestionIndex:    a.QuestionIndex,
			Value:            a.Value,
			TimeSpentSeconds: a.TimeSpentSeconds,
		})
	}
	return out
}

func totalTimeSpent(payload []dto.AnswerPayload) int {
	total := 0
	for _, a := range payload {
		total += a.TimeSpentSeconds
	}
	return total
}
