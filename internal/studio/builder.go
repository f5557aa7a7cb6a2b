package studio

import (
	"errors"
	"slices"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

const (
	MaxQuestions = 7
	MaxOptions   = 8
)

var (
	ErrTooManyQuestions = errors.New("studio_question_limit_reached")
	ErrTooManyOptions   = errors.New("studio_option_limit_reached")
	ErrQuestionIndex    = errors.New("studio_question_index_out_of_range")
	ErrOptionIndex      = errors.New("studio_option_index_out_of_range")
)

// AddQuestion appends an empty short answer question.
func AddQuestion(questions []model.SurveyQuestion) ([]model.SurveyQuestion, error) {
	if len(questions) >= MaxQuestions {
		return questions, ErrTooManyQuestions
	}
	return append(questions, model.SurveyQuestion{
		SortOrder:    len(questions),
		QuestionType: model.QuestionTypeShortAnswer,
		Options:      []string{},
	}), nil
}

// RemoveQuestion drops the question at index and renumbers the rest.
func RemoveQuestion(questions []model.SurveyQuestion, index int) ([]model.SurveyQuestion, error) {
	if index < 0 || index >= len(questions) {
		return questions, ErrQuestionIndex
	}
	return renumber(slices.Delete(questions, index, index+1)), nil
}

// MoveQuestion swaps the question at index with its neighbor in direction (-1 up, +1 down).
func MoveQuestion(questions []model.SurveyQuestion, index int, direction int) ([]model.SurveyQuestion, error) {
	target := index + direction
	if index < 0 || index >= len(questions) || target < 0 || target >= len(questions) {
		return questions, ErrQuestionIndex
	}
	questions[index], questions[target] = questions[target], questions[index]
	return renumber(questions), nil
}

// EditQuestion replaces text and type of the question at index.
func EditQuestion(questions []model.SurveyQuestion, index int, questionType model.QuestionType, questionText string) ([]model.SurveyQuestion, error) {
	if index < 0 || index >= len(questions) {
		return questions, ErrQuestionIndex
	}
	questions[index].QuestionType = model.ParseQuestionType(string(questionType))
	questions[index].QuestionText = questionText
	return questions, nil
}

// AddOption appends an option to the question at index.
func AddOption(questions []model.SurveyQuestion, index int, option string) ([]model.SurveyQuestion, error) {
	if index < 0 || index >= len(questions) {
		return questions, ErrQuestionIndex
	}
	if len(questions[index].Options) >= MaxOptions {
		return questions, ErrTooManyOptions
	}
	questions[index].Options = append(slices.Clone(questions[index].Options), option)
	return questions, nil
}

// RemoveOption drops one option of the question at index.
func RemoveOption(questions []model.SurveyQuestion, index int, optionIndex int) ([]model.SurveyQuestion, error) {
	if index < 0 || index >= len(questions) {
		return questions, ErrQuestionIndex
	}
	options := questions[index].Options
	if optionIndex < 0 || optionIndex >= len(options) {
		return questions, ErrOptionIndex
	}
	questions[index].Options = slices.Delete(slices.Clone(options), optionIndex, optionIndex+1)
	return questions, nil
}

func renumber(questions []model.SurveyQuestion) []model.SurveyQuestion {
	for index := range questions {
		questions[index].SortOrder = index
	}
	return questions
}

func cloneQuestions(questions []model.SurveyQuestion) []model.SurveyQuestion {
	if questions == nil {
		return nil
	}
	cloned := make([]model.SurveyQuestion, len(questions))
	for index, question := range questions {
		cloned[index] = question
		cloned[index].Options = slices.Clone(question.Options)
	}
	return cloned
}
