package llm

import (
	"fmt"
	"strings"
)

// ContextualizePrompt asks the model to turn a follow-up question into one
// that stands on its own, for retrieval.
const ContextualizePrompt = "Given a chat history and the latest user question " +
	"which might reference context in the chat history, " +
	"formulate a standalone question which can be understood " +
	"without the chat history. Do NOT answer the question, " +
	"just reformulate it if needed and otherwise return it as is."

// SummarizePrompt is the system prompt for summarize-mode ingestion.
const SummarizePrompt = "Summarize the following page of a document. Keep every fact, figure, " +
	"name and date; drop boilerplate. Answer with the summary only."

// BuildPrompt renders the retrieved passages, numbered from 1, followed by
// the question. With no passages the context section says so explicitly.
func BuildPrompt(question string, passages []string) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(passages) == 0 {
		b.WriteString("(no documents available)\n")
	}
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(p))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nAnswer:")
	return b.String()
}
