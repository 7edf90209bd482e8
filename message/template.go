// Package message renders personalized connection notes and follow-up
// messages from configured templates.
package message

import (
	"bytes"
	"fmt"
	"text/template"
	"unicode/utf8"

	"github.com/anvitha22/linkedin-campaign-engine/config"
	"github.com/anvitha22/linkedin-campaign-engine/ledger"
	"github.com/anvitha22/linkedin-campaign-engine/logger"
)

// TemplateData holds the target fields templates may reference
type TemplateData struct {
	FirstName string
	FullName  string
	Company   string
	Headline  string
}

// Renderer renders templates against target data with length limits applied
type Renderer struct {
	noteTmpl     *template.Template
	followUpTmpl *template.Template
	config       *config.MessagingConfig
	logger       *logger.Logger
}

// NewRenderer parses the configured templates up front so a bad template
// fails at startup, not mid-campaign
func NewRenderer(cfg *config.MessagingConfig, log *logger.Logger) (*Renderer, error) {
	noteTmpl, err := template.New("note").Parse(cfg.ConnectionNoteTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection note template: %w", err)
	}

	followUpTmpl, err := template.New("follow_up").Parse(cfg.FollowUpMessageTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse follow-up template: %w", err)
	}

	return &Renderer{
		noteTmpl:     noteTmpl,
		followUpTmpl: followUpTmpl,
		config:       cfg,
		logger:       log.WithModule("message"),
	}, nil
}

// ForKind renders the text an action kind needs. Search visits carry no text.
func (r *Renderer) ForKind(kind ledger.ActionKind, t *ledger.Target) (string, error) {
	switch kind {
	case ledger.KindConnectRequest:
		return r.ConnectionNote(t)
	case ledger.KindFollowUpMessage:
		return r.FollowUp(t)
	default:
		return "", nil
	}
}

// ConnectionNote renders the connection note for a target, truncated to the
// configured maximum length
func (r *Renderer) ConnectionNote(t *ledger.Target) (string, error) {
	return r.render(r.noteTmpl, t, r.config.MaxNoteLength)
}

// FollowUp renders the follow-up message for a target
func (r *Renderer) FollowUp(t *ledger.Target) (string, error) {
	return r.render(r.followUpTmpl, t, r.config.MaxMessageLength)
}

func (r *Renderer) render(tmpl *template.Template, t *ledger.Target, maxLen int) (string, error) {
	data := TemplateData{
		FirstName: t.FirstName,
		FullName:  t.Name,
		Company:   t.Company,
		Headline:  t.Headline,
	}
	if data.FirstName == "" {
		data.FirstName = "there"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	text := buf.String()
	if maxLen > 0 && utf8.RuneCountInString(text) > maxLen {
		// Cut on a rune boundary; a byte slice could split a character
		text = string([]rune(text)[:maxLen])
		r.logger.Warnf("Message truncated to %d characters", maxLen)
	}

	return text, nil
}
