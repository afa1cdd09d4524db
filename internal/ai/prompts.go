package ai

import "fmt"

// SystemPrompt frames every transformation request
const SystemPrompt = "Eres un asistente que trabaja en español para estudiantes y profesionales. " +
	"Eres conciso y claro. Usa viñetas cuando ayuden."

// SummarizePrompt builds the user prompt for summarize mode
func SummarizePrompt(text string) string {
	return fmt.Sprintf("Resume el siguiente texto manteniendo ideas clave y sin inventar datos. Texto:\n\n%s", text)
}

// ImprovePrompt builds the user prompt for rewrite mode
func ImprovePrompt(text, tone string) string {
	if tone == "" {
		tone = "neutral"
	}
	return fmt.Sprintf("Mejora la redacción del siguiente texto en tono %s. Corrige gramática, hazlo claro y natural. Texto:\n\n%s", tone, text)
}
