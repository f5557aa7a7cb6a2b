package httpapi

import (
	"sort"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

var submissionsCSVFixedColumns = []string{"Type", "Email", "Timestamp"}

// SubmissionsCSV renders submissions in the given order. Email and answer cells are always
// quoted; answer columns follow the order in which their keys first appear.
func SubmissionsCSV(submissions []model.Submission) string {
	answerKeys := collectAnswerKeys(submissions)

	lines := make([]string, 0, len(submissions)+1)
	lines = append(lines, strings.Join(append(append([]string{}, submissionsCSVFixedColumns...), answerKeys...), ","))
	for _, submission := range submissions {
		cells := make([]string, 0, len(answerKeys)+len(submissionsCSVFixedColumns))
		cells = append(cells,
			string(submission.Type),
			quoteCSVCell(submission.Email),
			submission.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		for _, key := range answerKeys {
			cells = append(cells, quoteCSVCell(submission.Answers[key]))
		}
		lines = append(lines, strings.Join(cells, ","))
	}
	return strings.Join(lines, "\n")
}

func collectAnswerKeys(submissions []model.Submission) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, submission := range submissions {
		submissionKeys := make([]string, 0, len(submission.Answers))
		for key := range submission.Answers {
			submissionKeys = append(submissionKeys, key)
		}
		sort.Strings(submissionKeys)
		for _, key := range submissionKeys {
			if _, exists := seen[key]; exists {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

func quoteCSVCell(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
