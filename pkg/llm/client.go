package llm

import (
	"context"
	"fmt"
	"strings"

	"webrag/pkg/chunking"
)

// SystemMessage is sent ahead of every prompt.
const SystemMessage = "You are a strict RAG assistant."

// NotFoundAnswer is what the model is told to say when the context lacks the answer.
const NotFoundAnswer = "I couldn't find that information in the website content."

// Generator answers a question from retrieved website text.
type Generator interface {
	Generate(ctx context.Context, question, passages string) (string, error)
}

// BuildContext joins chunk texts with blank lines, in retrieval order.
func BuildContext(chunks []chunking.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt renders the user message carrying the rules, context and question.
func BuildPrompt(question, passages string) string {
	return fmt.Sprintf(`You are a professional AI assistant specialized in answering questions
about the provided website content.

Your rules:

1. Use ONLY the information in the provided context to answer.
2. If the answer is clearly found in the context, respond confidently.
3. If the answer is NOT found in the context, say:
   "%s"
4. If the user greets you (e.g., hi, hello, thanks), respond politely.
5. If the question is unrelated to the website, politely guide the user
   back to asking about the website.
6. Keep answers clear and concise (max 4 sentences).
7. Do NOT hallucinate or invent information.

Context:
%s

User Question:
%s

Answer:
`, NotFoundAnswer, passages, question)
}
