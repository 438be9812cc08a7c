package notify

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/peeringdb/peeringdb-sub000/internal/ixf/peering"
	apperrors "github.com/peeringdb/peeringdb-sub000/internal/shared/errors"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Kind selects the message template
type Kind string

const (
	KindAdd      Kind = "add"
	KindModify   Kind = "modify"
	KindRemove   Kind = "remove"
	KindConflict Kind = "conflict"
	KindResolved Kind = "resolved"
	KindReminder Kind = "reminder"
)

var titles = map[Kind]string{
	KindAdd:      "add request for",
	KindModify:   "update request for",
	KindRemove:   "remove request for",
	KindConflict: "conflict for",
	KindResolved: "resolved proposal for",
	KindReminder: "reminder for",
}

// FieldChange is one changed field shown in a message
type FieldChange struct {
	Field string
	From  string
	To    string
}

// Message describes the staging record a notification is about
type Message struct {
	Kind        Kind
	Exchange    *peering.Exchange
	LAN         *peering.IXLan
	Network     *peering.Network
	ASN         int64
	IPAddr4     string
	IPAddr6     string
	Speed       int
	IsRSPeer    bool
	Operational bool
	Reason      string
	Error       string
	Changes     []FieldChange
	Reminder    int
}

type view struct {
	Message
	Recipient    Recipient
	Title        string
	NetworkName  string
	ExchangeName string
	LANName      string
}

// Renderer turns messages into subject and body text
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse notification templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render returns the subject and body of m for one recipient
func (r *Renderer) Render(m Message, to Recipient) (string, string, error) {
	if _, ok := titles[m.Kind]; !ok {
		return "", "", apperrors.NewNotificationError(apperrors.ErrCodeRender, "unknown message kind", false, nil).
			WithMetadata("kind", string(m.Kind))
	}

	v := view{Message: m, Recipient: to, Title: titles[m.Kind]}
	if m.Network != nil {
		v.NetworkName = m.Network.Name
	}
	if m.Exchange != nil {
		v.ExchangeName = m.Exchange.Name
	}
	if m.LAN != nil {
		v.LANName = m.LAN.Name
	}

	var subject, body bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&subject, "subject", v); err != nil {
		return "", "", apperrors.NewNotificationError(apperrors.ErrCodeRender, "failed to render subject", false, err)
	}
	if err := r.tmpl.ExecuteTemplate(&body, string(m.Kind), v); err != nil {
		return "", "", apperrors.NewNotificationError(apperrors.ErrCodeRender, "failed to render body", false, err).
			WithMetadata("kind", string(m.Kind))
	}
	return strings.TrimSpace(subject.String()), strings.TrimSpace(body.String()) + "\n", nil
}
