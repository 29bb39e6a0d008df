// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package letters drafts DataQ challenge letters.
package letters

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/sashabaranov/go-openai"
)

// LetterRequest carries the facts a letter is drafted from.
type LetterRequest struct {
	CompanyName      string
	DOTNumber        string
	InspectionNumber string
	ViolationCode    string
	Description      string
	ViolationDate    time.Time
	Location         string
	ChallengeType    string
	Reason           string
	Evidence         []string
}

// Writer drafts a letter.
type Writer interface {
	Draft(ctx context.Context, req LetterRequest) (string, error)
}

// =============================================================================
// OpenAI
// =============================================================================

const systemPrompt = `You are a DataQ challenge specialist. You help carriers draft professional challenges for inaccurate roadside inspection violations.

Guidelines:
- Be factual and professional in tone
- Reference specific regulatory requirements
- Suggest concrete evidence that would support the challenge
- Return only the letter text`

// OpenAIWriter drafts letters with a chat completion.
type OpenAIWriter struct {
	client *openai.Client
	model  string
}

// NewOpenAIWriter creates a writer. baseURL overrides the API endpoint when
// set; model defaults to gpt-4o-mini.
func NewOpenAIWriter(apiKey, model, baseURL string) *OpenAIWriter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OpenAI model not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI letter writer", "model", model)
	return &OpenAIWriter{client: openai.NewClientWithConfig(cfg), model: model}
}

// Draft implements Writer.
func (w *OpenAIWriter) Draft(ctx context.Context, req LetterRequest) (string, error) {
	slog.Debug("Drafting DataQ letter via OpenAI", "model", w.model)
	resp, err := w.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: w.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
		MaxCompletionTokens: 2000,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func userPrompt(req LetterRequest) string {
	var b strings.Builder
	b.WriteString("Generate a DataQ challenge for this violation:\n\n")
	fmt.Fprintf(&b, "Violation Code: %s\n", req.ViolationCode)
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	fmt.Fprintf(&b, "Date: %s\n", req.ViolationDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "Location: %s\n", req.Location)
	fmt.Fprintf(&b, "Inspection Report #: %s\n\n", req.InspectionNumber)
	fmt.Fprintf(&b, "Carrier's Reason for Challenge: %s\n", req.Reason)
	fmt.Fprintf(&b, "Supporting Evidence Available: %s\n\n", strings.Join(req.Evidence, ", "))
	b.WriteString("Draft a professional DataQ challenge letter.")
	return b.String()
}

// =============================================================================
// Template
// =============================================================================

var letterTemplate = template.Must(template.New("letter").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("January 2, 2006") },
	"label": func(s string) string { return strings.ReplaceAll(s, "_", " ") },
}).Parse(`{{ .Today | date }}

FMCSA DataQs
Request for Data Review

Carrier: {{ or .CompanyName "N/A" }}{{ if .DOTNumber }} (USDOT {{ .DOTNumber }}){{ end }}
Inspection Report #: {{ or .InspectionNumber "N/A" }}
Violation: {{ if .ViolationCode }}{{ .ViolationCode }} - {{ end }}{{ .Description }}
Date of Violation: {{ .ViolationDate | date }}{{ if .Location }}
Location: {{ .Location }}{{ end }}

To Whom It May Concern:

We respectfully request a review of the violation listed above on the grounds of {{ or (label .ChallengeType) "a data error" }}.

{{ .Reason }}
{{ if .Evidence }}
The following supporting evidence is enclosed:
{{ range .Evidence }}  - {{ . }}
{{ end }}{{ end }}
We ask that the violation be removed or corrected in the carrier's record. Thank you for your consideration.

Sincerely,
{{ or .CompanyName "Safety Department" }}
`))

// TemplateWriter renders a deterministic letter without any external call.
type TemplateWriter struct {
	Now func() time.Time
}

// Draft implements Writer.
func (w TemplateWriter) Draft(_ context.Context, req LetterRequest) (string, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	var buf bytes.Buffer
	err := letterTemplate.Execute(&buf, struct {
		LetterRequest
		Today time.Time
	}{req, now()})
	if err != nil {
		return "", fmt.Errorf("render letter: %w", err)
	}
	return buf.String(), nil
}

// =============================================================================
// Fallback
// =============================================================================

// Fallback tries Primary and renders Secondary when it fails.
type Fallback struct {
	Primary   Writer
	Secondary Writer
}

// Draft implements Writer.
func (f Fallback) Draft(ctx context.Context, req LetterRequest) (string, error) {
	if f.Primary != nil {
		letter, err := f.Primary.Draft(ctx, req)
		if err == nil {
			return letter, nil
		}
		slog.Warn("Letter drafting failed, using template", "error", err)
	}
	return f.Secondary.Draft(ctx, req)
}
