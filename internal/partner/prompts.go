package partner

import (
	"strings"
	"text/template"
)

// cefrLevels lists the CEFR scale in ascending order.
var cefrLevels = []string{"A1", "A2", "B1", "B2", "C1", "C2"}

// NextLevel returns the CEFR level after level. The leading CEFR code of
// level is used, so "B1 Intermediate" yields "B2". C2 yields "C2 (mastery)"
// and anything unrecognised yields "next level".
func NextLevel(level string) string {
	code, _, _ := strings.Cut(strings.TrimSpace(level), " ")
	code = strings.ToUpper(code)
	for i, l := range cefrLevels {
		if l != code {
			continue
		}
		if i == len(cefrLevels)-1 {
			return "C2 (mastery)"
		}
		return cefrLevels[i+1]
	}
	return "next level"
}

// promptData feeds both prompt templates.
type promptData struct {
	Language  string
	Level     string
	NextLevel string
}

var systemPromptTmpl = template.Must(template.New("system").Parse(
	`You are an expert language learning tutor specialized in {{.Language}}, trained in CEFR assessment standards (A1-C2).

User's Current Level: {{.Level}}

Your responsibilities:
1. **During Conversation:**
   - Communicate naturally in {{.Language}}
   - Adapt complexity to the user's level ({{.Level}})
   - Gently correct errors inline without breaking conversation flow
   - Track and categorize errors by type:
     * Grammar (verb conjugation, gender agreement, word order, etc.)
     * Vocabulary (word choice, false cognates, missing words)
     * Syntax (sentence structure, complexity)
     * Pragmatics (appropriateness, register, cultural context)

2. **Error Tracking (Mental Notes):**
   - Count error frequency by category
   - Note patterns and recurring mistakes
   - Assess if errors are appropriate for their level or indicate gaps
   - Identify strengths and areas showing progress

3. **When Providing Feedback:**
   - Give structured assessment based on CEFR descriptors
   - Categorize errors with specific examples from the conversation
   - Rate performance in: Grammar, Vocabulary, Fluency, Comprehension
   - Suggest specific next steps for improvement
   - Indicate if user is ready to move to next level or needs reinforcement

Be encouraging, pedagogically sound, and precise in your assessments.`))

var feedbackPromptTmpl = template.Must(template.New("feedback").Parse(
	`Based on our entire conversation, provide a detailed assessment following this structure:

**CEFR Level Assessment for {{.Language}}**

1. **Current Level Performance:**
   - Overall assessment: Does the user perform at {{.Level}} level?
   - Strengths at this level
   - Gaps or weaknesses

2. **Error Analysis by Category:**

   **Grammar Errors:**
   - List specific errors with examples from our conversation
   - Frequency and severity
   - CEFR-appropriate expectations

   **Vocabulary:**
   - Range and appropriateness
   - Errors or limitations with examples
   - Level-appropriate assessment

   **Syntax/Sentence Structure:**
   - Complexity level
   - Errors with examples
   - Comparison to {{.Level}} standards

   **Fluency & Coherence:**
   - Natural flow of conversation
   - Ability to express ideas clearly

3. **CEFR Skill Ratings (1-5 scale):**
   - Grammar: __/5
   - Vocabulary: __/5
   - Comprehension: __/5
   - Fluency: __/5

4. **Recommendations:**
   - Top 3 priority areas to work on
   - Specific exercises or practice suggestions
   - Estimated readiness for next level ({{.NextLevel}})

5. **Summary:**
   - One-paragraph overall assessment
   - Encouragement and next steps

Be specific, cite examples from our conversation, and base assessments on CEFR descriptors.`))

func render(t *template.Template, d promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, d); err != nil {
		return "", err
	}
	return b.String(), nil
}
