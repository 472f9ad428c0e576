// Package prompt builds the flat prompt strings handed to engines and turns
// dialogue-marked prompts back into role/content messages for chat APIs.
package prompt

import "strings"

// Style selects the prompt layout an engine expects.
type Style int

const (
	// Flat is a plain preamble / context / USER layout.
	Flat Style = iota
	// Dialogue wraps turns in start/end markers.
	Dialogue
)

// Dialogue markers.
const (
	StartMarker = "<|im_start|>"
	EndMarker   = "<|im_end|>"
)

const (
	screenLabel = "CURRENT SCREEN CONTEXT:\n"
	userLabel   = "USER: "
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Assemble concatenates the preamble, the optional screen context block and
// the user text in the layout for style.
func Assemble(style Style, preamble, screen, user string) string {
	var b strings.Builder
	if style == Dialogue {
		b.WriteString(StartMarker + "system\n")
		b.WriteString(preamble)
		b.WriteString(EndMarker + "\n")
		b.WriteString(StartMarker + "user\n")
		if screen != "" {
			b.WriteString(screenLabel)
			b.WriteString(screen)
			b.WriteString("\n\n")
		}
		b.WriteString(user)
		b.WriteString(EndMarker + "\n")
		b.WriteString(StartMarker + "assistant\n")
		return b.String()
	}
	b.WriteString(preamble)
	b.WriteString("\n\n")
	if screen != "" {
		b.WriteString(screenLabel)
		b.WriteString(screen)
		b.WriteString("\n\n")
	}
	b.WriteString(userLabel)
	b.WriteString(user)
	return b.String()
}

// Decompose splits a dialogue-marked prompt into messages. Segments without a
// role line or content are skipped, which drops the trailing open assistant
// turn. Input that yields nothing becomes a single user message holding the
// original text verbatim.
func Decompose(p string) []Message {
	var out []Message
	segs := strings.Split(p, StartMarker)
	for _, seg := range segs[1:] {
		if end := strings.Index(seg, EndMarker); end >= 0 {
			seg = seg[:end]
		}
		role, content, ok := strings.Cut(seg, "\n")
		if !ok {
			continue
		}
		role, content = strings.TrimSpace(role), strings.TrimSpace(content)
		if role == "" || content == "" {
			continue
		}
		out = append(out, Message{Role: role, Content: content})
	}
	if len(out) == 0 {
		return []Message{{Role: "user", Content: p}}
	}
	return out
}
