// Package quiz scores submitted answer sets against generated quiz
// questions. Scoring is a pure function: no persistence, no side effects.
package quiz

import "github.com/papercastlabs/papercast-core/internal/podcast"

// Score counts answers matching each question's correct index. Submissions
// shorter than the question list are padded with "no answer", which never
// matches; extra answers are ignored. The same inputs always produce the
// same result.
func Score(questions []podcast.QuizQuestion, answers []int, pointsPerCorrect int) podcast.QuizResult {
	result := podcast.QuizResult{
		Total:    len(questions),
		Feedback: make([]podcast.QuizFeedback, 0, len(questions)),
	}
	for i, q := range questions {
		answer := -1
		if i < len(answers) {
			answer = answers[i]
		}
		correct := answer == q.CorrectIndex
		if correct {
			result.Score++
		}
		result.Feedback = append(result.Feedback, podcast.QuizFeedback{
			Index:        i,
			WasCorrect:   correct,
			CorrectIndex: q.CorrectIndex,
		})
	}
	result.PointsEarned = result.Score * pointsPerCorrect
	return result
}
