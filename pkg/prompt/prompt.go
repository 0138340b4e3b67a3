// Package prompt renders the segments sent to the completion provider.
package prompt

import (
	"strings"

	"github.com/andrew/rag-chat/pkg/models"
)

// NoHistoryPlaceholder stands in for the transcript when a session has no
// prior messages. It is sent to the model verbatim.
const NoHistoryPlaceholder = "(no prior conversation)"

// DefaultSystemInstruction is the instruction the binaries use unless
// overridden.
const DefaultSystemInstruction = `You are a helpful assistant.
Answer the user's question using the provided content when it is relevant.
If the content does not contain the answer, say so instead of guessing.`

const (
	contentHeader = "CONTENT:\n"
	historyHeader = "Previous conversation:\n"
)

// Render builds the three prompt segments: the system instruction with the
// retrieval context, the transcript, and the user input.
func Render(systemInstruction string, history []models.Message, retrievalContext, userInput string) []models.Message {
	return []models.Message{
		{Role: models.RoleSystem, Content: systemInstruction + "\n\n" + contentHeader + retrievalContext},
		{Role: models.RoleSystem, Content: historyHeader + Transcript(history)},
		{Role: models.RoleUser, Content: userInput},
	}
}

// Transcript renders history as "role: content" lines, or the placeholder
// when history is empty.
func Transcript(history []models.Message) string {
	if len(history) == 0 {
		return NoHistoryPlaceholder
	}

	var b strings.Builder
	for i, msg := range history {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}

// Window returns the last n messages of history. n <= 0 keeps everything.
func Window(history []models.Message, n int) []models.Message {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
