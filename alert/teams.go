package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/relloyd/odsync/constants"
	"github.com/relloyd/odsync/logger"
)

const teamsTimeout = 10 * time.Second

// TeamsSink posts alerts to a Microsoft Teams (Power Automate) webhook as {"text": ...}.
type TeamsSink struct {
	log    logger.Logger
	client *resty.Client
	url    string
	Server string // shown in the footer
	Clock  clockwork.Clock
}

func NewTeamsSink(log logger.Logger, webhookURL string) *TeamsSink {
	c := resty.New().
		SetTimeout(teamsTimeout).
		SetHeader("Content-Type", "application/json")
	return &TeamsSink{log: log, client: c, url: webhookURL, Clock: clockwork.NewRealClock()}
}

type teamsPayload struct {
	Text string `json:"text"`
}

func (s *TeamsSink) Send(ctx context.Context, a Alert) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(teamsPayload{Text: s.Render(a)}).
		Post(s.url)
	if err != nil {
		return errors.Wrap(err, "error posting Teams alert")
	}
	if resp.StatusCode() != 200 && resp.StatusCode() != 202 {
		return fmt.Errorf("teams webhook returned %v: %v", resp.StatusCode(), resp.String())
	}
	s.log.Info("teams alert sent: ", a.Subject)
	return nil
}

// Render returns the markdown body of a.
func (s *TeamsSink) Render(a Alert) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("%v **%v**\n\n%v\n\n", severityIcon(a.Severity), a.Subject, a.Message))
	if len(a.Details) > 0 {
		sb.WriteString("**Details:**\n")
		for _, d := range a.Details {
			sb.WriteString(fmt.Sprintf("- **%v:** %v\n", d.Key, d.Value))
		}
	}
	sb.WriteString("\n---\n")
	sb.WriteString(fmt.Sprintf("*%v*\n", s.Clock.Now().Format(constants.TimeFormatDateTime)))
	server := s.Server
	if server == "" {
		server = "localhost"
	}
	sb.WriteString(fmt.Sprintf("*Server: %v*", server))
	return sb.String()
}

func severityIcon(s Severity) string {
	switch s {
	case SeverityCritical:
		return "\U0001F534"
	case SeverityWarning:
		return "⚠️"
	case SeverityInfo:
		return "ℹ️"
	}
	return "\U0001F4CA"
}

// Fallback sends to primary and, when that fails, logs the alert through secondary.
type Fallback struct {
	Primary   Sink
	Secondary Sink
	Log       logger.Logger
}

func (f *Fallback) Send(ctx context.Context, a Alert) error {
	err := f.Primary.Send(ctx, a)
	if err == nil {
		return nil
	}
	f.Log.Warn("alert delivery failed, falling back: ", err)
	return f.Secondary.Send(ctx, a)
}
