package resolution

import (
	"fmt"
	"strings"

	"github.com/setu-health/terminology/pkg/common/models"
)

// BuildPrompt constructs the closed-world prompt: the model may only answer
// with traditional terms listed here, which is what makes the vocabulary
// validation step a hard guarantee rather than a heuristic.
func BuildPrompt(entries []models.VocabularyEntry, symptoms string) string {
	var b strings.Builder

	b.WriteString("You are a clinical terminology assistant for traditional Indian medicine.\n")
	b.WriteString("Given the patient's symptoms, select the most plausible diagnoses.\n\n")
	b.WriteString("You MUST choose only from this vocabulary of traditional terms:\n")
	for _, entry := range entries {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", entry.TraditionalTerm, entry.Code, entry.System)
	}

	b.WriteString("\nPatient symptoms:\n")
	b.WriteString(strings.TrimSpace(symptoms))
	b.WriteString("\n\n")
	b.WriteString("Respond with a JSON array only. Each element must be an object with\n")
	b.WriteString(`"diagnosis" (a traditional term copied exactly from the vocabulary above)`)
	b.WriteString("\nand \"reasoning\" (one short sentence). ")
	b.WriteString("Return [] if no vocabulary term fits.\n")

	return b.String()
}
