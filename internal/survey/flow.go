// Package survey drives a visitor through the questions of a survey touchpoint.
package survey

import (
	"context"
	"errors"
	"maps"
	"strings"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

// Stage is the position of a Flow.
type Stage string

const (
	StageQuestion     Stage = "question"
	StageEmailCapture Stage = "email_capture"
	StageCompleted    Stage = "completed"
)

const (
	ToastSubmitted      = "Survey submitted successfully!"
	ToastSubmitFailed   = "Something went wrong. Please try again."
	ToastNetworkFailure = "Network error. Please try again."
	CompletedMessage    = "Your response has been submitted successfully."
	EmailPrompt         = "Leave your email to stay connected (optional)"
)

var (
	ErrNoQuestions     = errors.New("survey_has_no_questions")
	ErrEmptyAnswer     = errors.New("survey_answer_required")
	ErrNotAtQuestion   = errors.New("survey_not_at_question")
	ErrNotAtEmailStep  = errors.New("survey_not_at_email_capture")
	ErrAlreadyComplete = errors.New("survey_already_completed")

	// ErrTransport marks submitter failures caused by the network rather than the server.
	ErrTransport = errors.New("survey_transport_failed")
)

// Submission is what the flow hands to a Submitter. Email may be empty.
type Submission struct {
	TouchpointID string
	Email        string
	Answers      map[string]string
}

// Submitter delivers a completed survey and returns the stored submission id.
type Submitter interface {
	SubmitSurvey(ctx context.Context, submission Submission) (string, error)
}

// Snapshot is the serializable position of a flow, carried between page requests.
type Snapshot struct {
	Step    int
	Answers map[string]string
	Email   string
}

// Flow walks Question(0..n-1), then EmailCapture, then Completed. Answers are keyed by
// question text and survive navigation in both directions.
type Flow struct {
	touchpointID string
	questions    []model.SurveyQuestion
	step         int
	answers      map[string]string
	email        string
	completed    bool
	submissionID string
	toast        string
}

// NewFlow starts at the first question. Questions are ordered by sort_order.
func NewFlow(touchpointID string, questions []model.SurveyQuestion) (*Flow, error) {
	return RestoreFlow(touchpointID, questions, Snapshot{})
}

// RestoreFlow resumes a flow from a snapshot. Out of range steps are clamped.
func RestoreFlow(touchpointID string, questions []model.SurveyQuestion, snapshot Snapshot) (*Flow, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	step := snapshot.Step
	if step < 0 {
		step = 0
	}
	if step > len(questions) {
		step = len(questions)
	}
	answers := make(map[string]string, len(snapshot.Answers))
	for question, answer := range snapshot.Answers {
		answers[question] = answer
	}
	return &Flow{
		touchpointID: touchpointID,
		questions:    model.SortedQuestions(questions),
		step:         step,
		answers:      answers,
		email:        strings.TrimSpace(snapshot.Email),
	}, nil
}

func (flow *Flow) Stage() Stage {
	switch {
	case flow.completed:
		return StageCompleted
	case flow.step == len(flow.questions):
		return StageEmailCapture
	default:
		return StageQuestion
	}
}

// Snapshot captures the current position.
func (flow *Flow) Snapshot() Snapshot {
	return Snapshot{Step: flow.step, Answers: flow.Answers(), Email: flow.email}
}

// Progress returns the one-based step and the total number of steps including email capture.
func (flow *Flow) Progress() (int, int) {
	return flow.step + 1, len(flow.questions) + 1
}

// CurrentQuestion returns the question on screen, if any.
func (flow *Flow) CurrentQuestion() (model.SurveyQuestion, bool) {
	if flow.Stage() != StageQuestion {
		return model.SurveyQuestion{}, false
	}
	return flow.questions[flow.step], true
}

func (flow *Flow) CurrentAnswer() string {
	question, onQuestion := flow.CurrentQuestion()
	if !onQuestion {
		return ""
	}
	return flow.answers[question.QuestionText]
}

// SetAnswer records value for the current question.
func (flow *Flow) SetAnswer(value string) error {
	question, onQuestion := flow.CurrentQuestion()
	if !onQuestion {
		return ErrNotAtQuestion
	}
	flow.answers[question.QuestionText] = value
	return nil
}

func (flow *Flow) SetEmail(email string) {
	flow.email = strings.TrimSpace(email)
}

func (flow *Flow) Email() string {
	return flow.email
}

// CanAdvance reports whether Next would move forward. Any non-empty answer counts, whitespace included.
func (flow *Flow) CanAdvance() bool {
	return flow.Stage() == StageQuestion && flow.CurrentAnswer() != ""
}

// Next moves to the following question, or to email capture after the last one.
func (flow *Flow) Next() error {
	if flow.Stage() != StageQuestion {
		return ErrNotAtQuestion
	}
	if !flow.CanAdvance() {
		return ErrEmptyAnswer
	}
	flow.step++
	return nil
}

// Back returns to the previous question. It reports false at the first question and after completion.
func (flow *Flow) Back() bool {
	if flow.completed || flow.step == 0 {
		return false
	}
	flow.step--
	return true
}

// Submit sends the answers once from email capture. On failure the flow stays put and
// Toast explains what happened, so the visitor can try again.
func (flow *Flow) Submit(ctx context.Context, submitter Submitter) error {
	switch flow.Stage() {
	case StageCompleted:
		return ErrAlreadyComplete
	case StageQuestion:
		return ErrNotAtEmailStep
	}
	submissionID, submitErr := submitter.SubmitSurvey(ctx, Submission{
		TouchpointID: flow.touchpointID,
		Email:        flow.email,
		Answers:      flow.Answers(),
	})
	if submitErr == nil && submissionID == "" {
		submitErr = errors.New("survey submission returned no id")
	}
	if submitErr != nil {
		flow.toast = ToastSubmitFailed
		if errors.Is(submitErr, ErrTransport) {
			flow.toast = ToastNetworkFailure
		}
		return submitErr
	}
	flow.completed = true
	flow.submissionID = submissionID
	flow.toast = ToastSubmitted
	return nil
}

func (flow *Flow) SubmissionID() string {
	return flow.submissionID
}

// Toast is the message from the last submit attempt.
func (flow *Flow) Toast() string {
	return flow.toast
}

// Answers returns a copy of the recorded answers.
func (flow *Flow) Answers() map[string]string {
	return maps.Clone(flow.answers)
}

func (flow *Flow) Questions() []model.SurveyQuestion {
	return flow.questions
}
