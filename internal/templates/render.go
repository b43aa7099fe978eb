package templates

import "strings"

// Render substitutes named variables into a message template. Every
// occurrence of {{key}} is replaced with its value; placeholders with
// no matching key are left in place so a half-filled template is still
// visible in the stored content rather than silently blanked.
func Render(template string, variables map[string]string) string {
	result := template
	for key, value := range variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}
