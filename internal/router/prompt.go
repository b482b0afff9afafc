// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package router

import (
	"strings"
	"text/template"
)

// conversationalTmpl is the system prompt for small talk: no context, no tools.
var conversationalTmpl = template.Must(template.New("conversational").Parse(`You are a friendly genetics education assistant talking with {{.UserName}}.
Respond naturally and conversationally. Keep it brief and friendly.`))

// assistantTmpl is the system prompt for knowledge and tool-enabled answers.
var assistantTmpl = template.Must(template.New("assistant").Parse(`You are a genetics education assistant talking with {{.UserName}}.

RESPONSE RULES:
1. Answer from the background information when it is relevant. Do not copy it verbatim.
2. For genetic crosses, show the Punnett square and the genotype and phenotype ratios. Keep it concise unless the user asks for steps.
3. For classification questions ("is X dominant?") answer in one or two words, then one sentence of support.
4. If the background information does not cover the question, say so and answer from general knowledge.
{{- if .Tools}}
5. Use the available tools for calculations, trait lookups, and sequence work instead of computing by hand.
{{- end}}`))

// questionTmpl wraps the user's question with page and retrieved context.
var questionTmpl = template.Must(template.New("question").Parse(`{{- if .PageContext}}CURRENT PAGE CONTEXT:
The user is currently on: {{.PageContext}}

{{end -}}
{{- if .Context}}Background information (use this to answer, but don't copy it directly):
{{.Context}}

{{end -}}
Question: {{.Question}}`))

type promptData struct {
	UserName    string
	Tools       bool
	PageContext string
	Context     string
	Question    string
}

func render(t *template.Template, data promptData) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
