package llm

import (
	"fmt"
	"strings"
)

// Source is one scraped page fed into the answer prompt.
type Source struct {
	URL     string
	Content string
}

// BuildAnswerPrompt assembles the research-assistant prompt from the
// user's question and the scraped sources.
func BuildAnswerPrompt(question string, sources []Source) string {
	var context strings.Builder
	for i, src := range sources {
		fmt.Fprintf(&context, "\n\n--- Source %d (%s) ---\n%s\n", i+1, src.URL, src.Content)
	}

	return fmt.Sprintf(`You are a research assistant. Based on the following information gathered from multiple websites, provide a clear, concise, and comprehensive answer to the user's question.

User's Question: %s

Information from websites:
%s

Please synthesize this information and provide:
1. A clear, well-structured answer to the question
2. Key facts and insights
3. If there are conflicting information, mention it

Make your response informative but easy to understand. Use bullet points or numbered lists where appropriate.`, question, context.String())
}

// BuildGrammarPrompt assembles the grammar-polishing prompt.
func BuildGrammarPrompt(text string) string {
	return fmt.Sprintf(`You are a grammar correction assistant. Fix any grammar errors, improve sentence structure, and make the text clearer while preserving the original meaning and information.

Original text:
%s

Return ONLY the corrected text without any explanations or additional comments.`, text)
}
