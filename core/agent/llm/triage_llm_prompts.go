package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"triage_server/core/domain"
)

const maxPromptBody = 4000

const (
	technicalToneInstruction = "Generate a draft reply in a technical tone, including any relevant API details, error codes, or step-by-step troubleshooting where applicable."
	businessToneInstruction  = "Generate a draft reply in a clear, concise, and business-friendly tone, focusing on the solution and next steps from a client perspective."

	knowledgeHeader = "Based on the following internal knowledge base articles:\n\n"
	knowledgeFooter = "End of knowledge base articles.\n\n"
)

func joinCategories() string {
	names := make([]string, len(domain.Categories))
	for i, c := range domain.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func joinPriorities() string {
	names := make([]string, len(domain.Priorities))
	for i, p := range domain.Priorities {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func classificationPrompt(body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify the following WhatsApp message into one of these categories: %s. ", joinCategories())
	fmt.Fprintf(&b, "Also, assign a priority: %s. ", joinPriorities())
	b.WriteString("Provide a confidence score (0.0-1.0) for the classification. ")
	b.WriteString("Explain your reasoning concisely. ")
	b.WriteString("Format your response as a JSON object with 'category', 'priority', 'confidence_score', and 'reasoning' keys. ")
	b.WriteString("If you are unsure, default to 'general inquiry' and 'medium' priority.\n\n")
	fmt.Fprintf(&b, "Message: %q", truncateBody(body, maxPromptBody))
	return b.String()
}

func knowledgeBlock(articles []domain.KnowledgeArticle) string {
	if len(articles) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(knowledgeHeader)
	for _, a := range articles {
		fmt.Fprintf(&b, "Title: %s\nContent: %s\n\n", a.Title, a.Content)
	}
	b.WriteString(knowledgeFooter)
	return b.String()
}

func toneInstruction(tone domain.Tone) string {
	if tone == domain.ToneTechnical {
		return technicalToneInstruction
	}
	return businessToneInstruction
}

func replyPrompt(body string, articles []domain.KnowledgeArticle, tone domain.Tone) string {
	var b strings.Builder
	b.WriteString("You are a customer support AI assistant for Neem. ")
	fmt.Fprintf(&b, "The client message is: %q. ", truncateBody(body, maxPromptBody))
	b.WriteString(knowledgeBlock(articles))
	b.WriteString(toneInstruction(tone))
	b.WriteString(" Ensure the reply directly addresses the client's query. Provide a greeting and a closing. ")
	b.WriteString("Also, suggest a few keywords (comma-separated) that could be used to tag this conversation for future reference or documentation improvement. ")
	b.WriteString("Format your response as a JSON object with 'reply_draft' and 'suggested_tags' keys.")
	return b.String()
}

// truncateBody cuts body to maxLen runes.
func truncateBody(body string, maxLen int) string {
	if utf8.RuneCountInString(body) <= maxLen {
		return body
	}
	runes := []rune(body)
	return string(runes[:maxLen]) + "..."
}
