package llm

import "strings"

// SystemPrompt primes the model as a company-document parser.
const SystemPrompt = "You are a company document parser. You read annual reports and " +
	"confidential information memoranda (CIMs) and return ONLY JSON that matches the " +
	"provided JSON Schema. Page numbers are 1-based positions within the PDF file, " +
	"not the page labels printed in the document. Mark financial years that represent " +
	"projections with type \"forecast\". Report extraction confidence per field as " +
	"high, medium or low. Never invent figures; omit what the document does not state."

// CorrectiveInstruction is appended when the first response could not be
// parsed as structured data.
const CorrectiveInstruction = "Your previous response was not valid JSON matching the " +
	"schema. Respond again with ONLY a single JSON object conforming exactly to the " +
	"schema. No prose, no markdown fences."

// UserPrompt assembles the instruction that accompanies the PDF payload.
func UserPrompt(req ExtractRequest) string {
	var b strings.Builder
	b.WriteString("Extract the structured company data from the attached PDF document.\n\n")
	b.WriteString("JSON Schema:\n")
	b.WriteString(req.SchemaJSON)
	if req.Corrective != "" {
		b.WriteString("\n\n")
		b.WriteString(req.Corrective)
	}
	return b.String()
}
