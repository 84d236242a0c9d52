// Package prompt assembles the role-tagged message sequence sent to the
// text-generation provider: persona directive, retrieved context, known
// facts about the interlocutor, a bounded history window, and the current
// message last.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mirralabs/mirra/internal/config"
	"github.com/mirralabs/mirra/internal/facts"
	"github.com/mirralabs/mirra/internal/knowledge"
	"github.com/mirralabs/mirra/internal/llm"
)

// History window per persona. The owner persona carries a longer tail
// because roleplay coherence degrades faster when earlier turns drop out.
const (
	assistantHistoryWindow = 10
	ownerHistoryWindow     = 20
)

const assistantDirective = `You are a helpful personal assistant. The user has uploaded documents to their personal knowledge base, and excerpts relevant to their question may be provided below. Treat those excerpts as the user's own notes and files: ground your answers in them when they apply, and say plainly when they don't cover the question. Answer naturally and concisely, and always reply in the same language the user writes in.`

const ownerDirective = `You ARE the person described in the profile context below. Speak in the first person as that person, drawing on the profile for your life, opinions, and manner of speaking. The person you are talking to is someone else entirely: keep track of what they tell you about themselves, and never confuse their details with your own. Stay in character at all times and always reply in the same language they write in.`

// Compose builds the message sequence for one chat turn. Blocks are emitted
// in a fixed order and skipped when their data is absent; the current user
// message is always last.
func Compose(message string, chunks []knowledge.RetrievedChunk, history []llm.Message, f facts.Facts, persona string) []llm.Message {
	roleplay := persona == config.PersonaOwner

	msgs := make([]llm.Message, 0, len(history)+4)

	directive := assistantDirective
	if roleplay {
		directive = ownerDirective
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: directive})

	if len(chunks) > 0 {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: contextBlock(chunks, roleplay)})
	}
	if !f.Empty() {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: factsBlock(f)})
	}

	window := assistantHistoryWindow
	if roleplay {
		window = ownerHistoryWindow
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}
	msgs = append(msgs, history...)

	return append(msgs, llm.Message{Role: llm.RoleUser, Content: message})
}

// contextBlock renders retrieved chunks. The assistant persona labels each
// excerpt with its rank and similarity so the model can weigh sources; the
// owner persona gets one unlabeled profile text, since citations would
// break character.
func contextBlock(chunks []knowledge.RetrievedChunk, roleplay bool) string {
	var b strings.Builder
	if roleplay {
		b.WriteString("Your profile:\n\n")
		for i, c := range chunks {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(c.Content)
		}
		return b.String()
	}

	b.WriteString("Relevant excerpts from the user's knowledge base:\n")
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[Document excerpt %d (relevance: %.2f)]\n%s\n", i+1, c.Similarity, c.Content)
	}
	return b.String()
}

// factsBlock enumerates only the facts that were actually found.
func factsBlock(f facts.Facts) string {
	var b strings.Builder
	b.WriteString("Known facts about the person you are talking to. Use them naturally, don't recite them:\n")
	if f.Name != "" {
		fmt.Fprintf(&b, "- Their name is: %s\n", f.Name)
	}
	if f.Age != "" {
		fmt.Fprintf(&b, "- Their age is: %s\n", f.Age)
	}
	if f.City != "" {
		fmt.Fprintf(&b, "- They live in: %s\n", f.City)
	}
	return strings.TrimRight(b.String(), "\n")
}
