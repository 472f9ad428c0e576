package prompt

import (
	"regexp"
	"sort"
	"strings"
)

// Command kinds a model may embed in its reply.
const (
	CommandLaunch = "launch"
	CommandSearch = "search"
)

var (
	launchRe = regexp.MustCompile(`(?i)\[LAUNCH:(.+?)\]`)
	searchRe = regexp.MustCompile(`(?i)\[SEARCH:(.+?)\]`)
)

// Command is a tool directive found in generated text. Executing it is the caller's job.
type Command struct {
	Kind string `json:"kind"`
	Arg  string `json:"arg"`
}

// ParseCommands returns every directive in text, in order of appearance.
func ParseCommands(text string) []Command {
	type hit struct {
		at  int
		cmd Command
	}
	var hits []hit
	for _, m := range launchRe.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], Command{Kind: CommandLaunch, Arg: strings.TrimSpace(text[m[2]:m[3]])}})
	}
	for _, m := range searchRe.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], Command{Kind: CommandSearch, Arg: strings.TrimSpace(text[m[2]:m[3]])}})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	out := make([]Command, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.cmd)
	}
	return out
}

// StripCommands removes all directives and trims the result for display.
func StripCommands(text string) string {
	text = launchRe.ReplaceAllString(text, "")
	text = searchRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
