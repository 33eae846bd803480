package promptstyle

import "strings"

const marker = "RECOMMENDER_PROMPT_STYLE_V1"

// ApplySystem prepends the shared output-discipline block to a system prompt.
// Prompts that already carry the marker are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou rank practice problems for a single learner.")
	b.WriteString("\nUse only the provided candidates and profile; do not invent problems.")
	if mode == "json" {
		b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys.")
		b.WriteString("\nDo not wrap the JSON in prose or markdown.")
	} else {
		b.WriteString("\nBe concise.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
