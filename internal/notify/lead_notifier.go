package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/listing-lead-assistant/internal/leads"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// LeadNotifier emails the sales desk whenever a lead is accepted.
type LeadNotifier struct {
	sender EmailSender
	to     string
	brand  string
	logger *logging.Logger
}

// NewLeadNotifier returns nil when there is no recipient.
func NewLeadNotifier(sender EmailSender, to, brand string, logger *logging.Logger) *LeadNotifier {
	if sender == nil || strings.TrimSpace(to) == "" {
		return nil
	}
	return &LeadNotifier{sender: sender, to: to, brand: brand, logger: logging.OrDefault(logger)}
}

// NotifyLead implements leads.Notifier.
func (n *LeadNotifier) NotifyLead(ctx context.Context, lead *leads.Lead) error {
	if n == nil {
		return nil
	}
	subject := fmt.Sprintf("New %s listing lead: %s (%s)", strings.ToLower(lead.ListingType), lead.Name, lead.CityName)
	if n.brand != "" {
		subject = n.brand + ": " + subject
	}
	msg := EmailMessage{
		To:      n.to,
		Subject: subject,
		Body:    leadBody(lead),
		HTML:    leadHTML(lead),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: lead email: %w", err)
	}
	n.logger.Debug("lead notification sent", "lead_id", lead.ID)
	return nil
}

func leadRows(lead *leads.Lead) [][2]string {
	return [][2]string{
		{"Name", lead.Name},
		{"Phone", lead.Phone},
		{"Role", lead.UserType},
		{"Listing", lead.ListingType},
		{"City", fmt.Sprintf("%s (%s)", lead.CityName, lead.CityID)},
		{"Submitted", lead.CreatedAt.Format("2006-01-02 15:04 MST")},
	}
}

func leadBody(lead *leads.Lead) string {
	var b strings.Builder
	for _, row := range leadRows(lead) {
		fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
	}
	return b.String()
}

func leadHTML(lead *leads.Lead) string {
	var b strings.Builder
	b.WriteString("<table>")
	for _, row := range leadRows(lead) {
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", row[0], html.EscapeString(row[1]))
	}
	b.WriteString("</table>")
	return b.String()
}
