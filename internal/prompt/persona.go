package prompt

import "strings"

// Persona carries the assistant's tone settings and remembered user facts.
// Scales run 1..10 with 5 as neutral.
type Persona struct {
	Personality string `json:"personality" yaml:"personality" toml:"personality"`
	Intensity   int    `json:"intensity" yaml:"intensity" toml:"intensity" validate:"min=1,max=10"`
	Verbosity   int    `json:"verbosity" yaml:"verbosity" toml:"verbosity" validate:"min=1,max=10"`
	Formality   int    `json:"formality" yaml:"formality" toml:"formality" validate:"min=1,max=10"`
	Humor       int    `json:"humor" yaml:"humor" toml:"humor" validate:"min=1,max=10"`
	Mood        string `json:"mood" yaml:"mood" toml:"mood"`

	UserName string `json:"user_name,omitempty" yaml:"user_name,omitempty" toml:"user_name,omitempty"`
	UserDOB  string `json:"user_dob,omitempty" yaml:"user_dob,omitempty" toml:"user_dob,omitempty"`
	Family   string `json:"family,omitempty" yaml:"family,omitempty" toml:"family,omitempty"`
}

// DefaultPersona is the neutral helpful assistant.
func DefaultPersona() Persona {
	return Persona{Personality: "Helpful", Intensity: 5, Verbosity: 5, Formality: 5, Humor: 5, Mood: "Neutral"}
}

// SystemPrompt renders the preamble for p.
func SystemPrompt(p Persona) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant. ")

	if p.Personality != "" && p.Personality != "Helpful" && p.Personality != "Default" {
		b.WriteString("Your core personality is " + p.Personality + ". ")
		switch {
		case p.Intensity >= 8:
			b.WriteString("You must exhibit this personality trait extremely strongly in every single sentence. ")
		case p.Intensity <= 3:
			b.WriteString("You should only show subtle, slight hints of this personality. ")
		default:
			b.WriteString("Display this personality clearly but naturally. ")
		}
	}

	if p.UserName != "" || p.UserDOB != "" || p.Family != "" {
		b.WriteString("LONG-TERM MEMORY CONTEXT: The user you are talking to is named '" + p.UserName + "'. ")
		if p.UserDOB != "" {
			b.WriteString("Their birthday/age is '" + p.UserDOB + "'. ")
		}
		if p.Family != "" {
			b.WriteString("Their close family/pets are '" + p.Family + "'. ")
		}
		b.WriteString("Always remember these facts about the user. ")
	}

	switch {
	case p.Verbosity <= 3:
		b.WriteString("Be extremely brief. ")
	case p.Verbosity >= 8:
		b.WriteString("Be very detailed and thorough. ")
	}
	switch {
	case p.Formality >= 8:
		b.WriteString("Maintain a highly professional, executive tone. ")
	case p.Formality <= 3:
		b.WriteString("Use casual language and slang. ")
	}
	if p.Humor >= 8 {
		b.WriteString("Include sarcastic or playful remarks. ")
	}
	if p.Mood != "" && p.Mood != "Neutral" {
		b.WriteString("Your current mood is " + p.Mood + ". Let this influence your tone. ")
	}

	b.WriteString("\nTools: [LAUNCH:app name] to open apps, [SEARCH:query] to search web. Only use when asked.")
	return b.String()
}
