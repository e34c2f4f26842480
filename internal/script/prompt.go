package script

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"feedcaster/internal/config"
)

const wordsPerMinute = 150

var systemPromptTemplate = template.Must(template.New("system").Parse(`You are writing a conversational podcast script for {{.SpeakerCount}} hosts based on the provided article.
{{range .Speakers}}{{.Name}} ({{.Role}}) is {{.Persona}}.
{{end}}The script should NOT read the article aloud. It should discuss, argue, and synthesize.
Quotes from the original should be paraphrased unless a short exact quote meaningfully adds to the conversation.
Every line MUST start with one of {{.RoleList}} followed by a colon. Do not include sound effects, headings or other staging instructions.
The target length for this podcast is approximately {{.Minutes}} minutes, so aim for around {{.Words}} words.`))

var defaultPersonas = []string{
	"the explainer who synthesizes and contextualizes the article",
	"the skeptic who pushes back, asks clarifying questions and highlights tension",
}

type promptSpeaker struct {
	Role    string
	Name    string
	Persona string
}

// SystemPrompt renders the generation instructions for show.
func SystemPrompt(show config.Show, targetMinutes int) (string, error) {
	if targetMinutes <= 0 {
		targetMinutes = 5
	}
	speakers := make([]promptSpeaker, 0, len(show.Voices))
	roles := make([]string, 0, len(show.Voices))
	for i, v := range show.Voices {
		persona := strings.TrimSpace(v.Persona)
		if persona == "" {
			persona = "a co-host"
			if i < len(defaultPersonas) {
				persona = defaultPersonas[i]
			}
		}
		speakers = append(speakers, promptSpeaker{Role: v.Role, Name: DisplayName(v.Role), Persona: persona})
		roles = append(roles, "'"+v.Role+":'")
	}

	var buf bytes.Buffer
	err := systemPromptTemplate.Execute(&buf, map[string]any{
		"SpeakerCount": len(speakers),
		"Speakers":     speakers,
		"RoleList":     strings.Join(roles, " or "),
		"Minutes":      targetMinutes,
		"Words":        targetMinutes * wordsPerMinute,
	})
	if err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return buf.String(), nil
}

// UserPrompt wraps the article text, truncated to maxChars runes.
func UserPrompt(articleText string, maxChars int) string {
	return "Here is the article text:\n\n" + truncateRunes(strings.TrimSpace(articleText), maxChars)
}

// DisplayName turns a role token such as HOST_A into "Host A".
func DisplayName(role string) string {
	words := strings.ReplaceAll(strings.ToLower(role), "_", " ")
	return cases.Title(language.English).String(words)
}

// IntroData feeds the show's intro template.
type IntroData struct {
	Title string
	Feed  string
	Show  string
	Date  string
}

// RenderIntro expands an intro template such as
// "We are discussing '{{.Title}}' from {{.Feed}}."
func RenderIntro(tmpl string, title, feed, show string, published time.Time) (string, error) {
	t, err := template.New("intro").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse intro template: %w", err)
	}
	if published.IsZero() {
		published = time.Now()
	}
	var buf bytes.Buffer
	data := IntroData{Title: title, Feed: feed, Show: show, Date: published.Format("January 2, 2006")}
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render intro template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
