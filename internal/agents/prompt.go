package agents

import (
	"fmt"
	"strings"

	"github.com/consensusnet/consensusnet/internal/claim"
	"github.com/consensusnet/consensusnet/internal/evidence"
)

const answerSchema = `Respond with a single JSON object:
{"label": "TRUE" | "FALSE" | "UNCERTAIN", "confidence": <0..1>, "reasoning": "<one short paragraph>"}`

const strictReminder = `Your previous answer was not parseable. Respond with ONLY the JSON object, no prose, no code fences.`

// defaultPrompt renders the verification prompt. Each evidence excerpt is
// tagged with its source tier and stance so the model can weigh agreement
// against contradiction explicitly.
func defaultPrompt(c *claim.Claim, b *evidence.Bundle, strict bool) string {
	var sb strings.Builder
	sb.WriteString("You are a fact-verification agent. Assess the claim strictly against the evidence below.\n\n")
	fmt.Fprintf(&sb, "Claim: %s\nDomain: %s\n\nEvidence:\n", c.Text, c.Domain)
	if b == nil || b.Len() == 0 {
		sb.WriteString("(none)\n")
	} else {
		for _, it := range b.Items() {
			fmt.Fprintf(&sb, "- [%s/%s] stance: %s (credibility %.2f, relevance %.2f): %s\n",
				it.Tier, it.SourceID, it.Stance, it.Credibility, it.Relevance, excerpt(it.Content))
		}
	}
	sb.WriteString("\nLabel TRUE only when the evidence clearly supports the claim, FALSE only when it clearly refutes it, UNCERTAIN otherwise.\n")
	sb.WriteString(answerSchema)
	if strict {
		sb.WriteString("\n\n")
		sb.WriteString(strictReminder)
	}
	return sb.String()
}

// excerpt truncates evidence content to keep the prompt bounded.
func excerpt(content string) string {
	const max = 400
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	return content[:max] + "..."
}
