// Package export renders a conversation as a standalone HTML document.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/askislamically/backend/internal/model/chat"
)

// ErrNothingToExport is returned while the history holds only the greeting.
var ErrNothingToExport = errors.New("no conversation to export")

const (
	documentTitle  = "Ask Islamically - Chat Export"
	sourceNote     = "Source: Quran and authentic Hadith"
	timestampStyle = "1/2/2006, 3:04:05 PM"
)

// Artifact is a rendered export ready to be downloaded.
type Artifact struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Body        []byte    `json:"-"`
	ExportedAt  time.Time `json:"exportedAt"`
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		e.now = now
	}
}

// WithLocation sets the zone used for the visible timestamps. The filename date is
// always taken in UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Exporter) {
		e.location = loc
	}
}

// Exporter renders transcripts.
type Exporter struct {
	now      func() time.Time
	location *time.Location
	markdown goldmark.Markdown
}

// New builds an exporter. Message content is treated as Markdown; raw HTML in it is escaped.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		now:      time.Now,
		location: time.Local,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type messageView struct {
	Role      chat.Role
	Body      template.HTML
	Timestamp string
	Sourced   bool
}

type documentView struct {
	Title    string
	Source   string
	Messages []messageView
}

// Export renders every message in order, all stamped with the export time.
func (e *Exporter) Export(messages []chat.Message) (*Artifact, error) {
	if len(messages) <= 1 {
		return nil, ErrNothingToExport
	}

	exportedAt := e.now()
	stamp := exportedAt.In(e.location).Format(timestampStyle)

	views := make([]messageView, 0, len(messages))
	for _, msg := range messages {
		body, err := e.render(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("render message %s: %w", msg.ID, err)
		}
		views = append(views, messageView{
			Role:      msg.Role,
			Body:      body,
			Timestamp: stamp,
			Sourced:   msg.Role == chat.RoleAssistant && strings.Contains(msg.Content, "Quran"),
		})
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, documentView{Title: documentTitle, Source: sourceNote, Messages: views}); err != nil {
		return nil, fmt.Errorf("execute export template: %w", err)
	}

	return &Artifact{
		Filename:    Filename(exportedAt),
		ContentType: "text/html",
		Body:        buf.Bytes(),
		ExportedAt:  exportedAt,
	}, nil
}

// Filename returns ask-islamically-chat-YYYY-MM-DD.html for the UTC date of t.
func Filename(t time.Time) string {
	return "ask-islamically-chat-" + t.UTC().Format("2006-01-02") + ".html"
}

func (e *Exporter) render(content string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(content), &buf); err != nil {
		return "", err
	}
	// goldmark escapes raw HTML unless html.WithUnsafe is set.
	return template.HTML(strings.TrimSpace(buf.String())), nil
}
