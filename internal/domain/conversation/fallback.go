package conversation

import "strings"

var firstQuestions = []struct {
	keyword  string
	question string
}{
	{"headache", "Is the headache throbbing, pressure-like, or sharp?"},
	{"fever", "What's your current body temperature?"},
	{"cough", "Is your cough dry or productive (with mucus)?"},
	{"pain", "On a scale of 1-10, how severe is your pain?"},
	{"nausea", "Have you vomited, or just feeling nauseous?"},
}

const defaultFirstQuestion = "When did your symptoms first start?"

var nextQuestions = []string{
	"Have you had this symptom before?",
	"Are you taking any medications?",
	"Do you have any known medical conditions?",
	"Have you tried any home remedies?",
	"Are any other family members experiencing similar symptoms?",
	"Is there anything that makes it better or worse?",
	"Have you experienced any fever?",
}

// FallbackQuestion returns the deterministic question for order index n
// (1-based) when the generator fails.
func FallbackQuestion(complaint string, n int) string {
	if n <= 1 {
		lower := strings.ToLower(complaint)
		for _, q := range firstQuestions {
			if strings.Contains(lower, q.keyword) {
				return q.question
			}
		}
		return defaultFirstQuestion
	}
	return nextQuestions[(n-2)%len(nextQuestions)]
}
