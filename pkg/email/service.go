package email

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/jordanlanch/brokerdesk/pkg/leadassignment"
	"github.com/jordanlanch/brokerdesk/pkg/logger"
	"github.com/jordanlanch/brokerdesk/pkg/models"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	baseURL     string
	sendGridKey string
	useSendGrid bool
	log         logger.Logger
}

// NewService creates a new email service
// If sendGridAPIKey is provided, emails will be sent via SendGrid
// Otherwise, emails will be logged (development mode)
func NewService(fromEmail, fromName, baseURL, sendGridAPIKey string, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "email")

	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Info("email service initialized with SendGrid")
	} else {
		log.Warn("email service in console-only mode (set SENDGRID_API_KEY for production)")
	}

	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		baseURL:     baseURL,
		sendGridKey: sendGridAPIKey,
		useSendGrid: useSendGrid,
		log:         log,
	}
}

// NotifyLeadAssigned tells a broker that a new lead is waiting for them
func (s *Service) NotifyLeadAssigned(ctx context.Context, broker *models.Profile, lead *models.Lead) error {
	leadURL := fmt.Sprintf("%s/dashboard/leads/%s", s.baseURL, lead.ID)

	subject := fmt.Sprintf("New lead: %s", lead.Name)
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>You have a new lead</h2>
			<p>Hi %s,</p>
			<p><strong>%s</strong> is interested in a %s in %s (%s).</p>
			<p>Phone: %s<br>Email: %s</p>
			<p><a href="%s" style="background-color: #2196F3; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Open lead</a></p>
			<p>Please get in touch as soon as possible.</p>
		</body>
		</html>
	`, html.EscapeString(broker.FullName), html.EscapeString(lead.Name),
		html.EscapeString(orDash(lead.PropertyType)), html.EscapeString(orDash(lead.Location)),
		html.EscapeString(orDash(lead.PriceRange)), html.EscapeString(lead.Phone),
		html.EscapeString(orDash(lead.Email)), leadURL)

	plainText := fmt.Sprintf(`
Hi %s,

You have a new lead: %s
Interest: %s in %s (%s)
Phone: %s
Email: %s

Open the lead: %s
	`, broker.FullName, lead.Name, orDash(lead.PropertyType), orDash(lead.Location),
		orDash(lead.PriceRange), lead.Phone, orDash(lead.Email), leadURL)

	if s.useSendGrid {
		return s.sendViaSendGrid(ctx, broker.Email, broker.FullName, subject, body, plainText)
	}
	return s.logEmailToConsole(broker.Email, broker.FullName, subject, leadURL)
}

// SendRawEmail sends an email with custom subject and body content.
func (s *Service) SendRawEmail(ctx context.Context, toEmail, toName, subject, htmlBody, plainTextBody string) error {
	if s.useSendGrid {
		return s.sendViaSendGrid(ctx, toEmail, toName, subject, htmlBody, plainTextBody)
	}
	return s.logEmailToConsole(toEmail, toName, subject, "")
}

// ProfileReader resolves the broker of an assignment
type ProfileReader interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
}

// AssignmentHook returns an assignment hook that e-mails the broker. Sending
// happens in the background so a slow mail provider never holds up assignment.
func (s *Service) AssignmentHook(profiles ProfileReader, timeout time.Duration) leadassignment.Hook {
	return func(_ context.Context, res *leadassignment.Result) {
		lead := *res.Lead
		brokerID := res.Entry.BrokerID

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			broker, err := profiles.Get(ctx, brokerID)
			if err != nil {
				s.log.Error("failed to load broker for notification", "broker_id", brokerID, "error", err)
				return
			}
			if err := s.NotifyLeadAssigned(ctx, broker, &lead); err != nil {
				s.log.Error("failed to notify broker", "broker_id", brokerID, "lead_id", lead.ID, "error", err)
			}
		}()
	}
}

// sendViaSendGrid sends email using SendGrid API
func (s *Service) sendViaSendGrid(ctx context.Context, toEmail, toName, subject, htmlBody, plainTextBody string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)

	message := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)

	client := sendgrid.NewSendClient(s.sendGridKey)
	response, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		s.log.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	s.log.Info("email sent", "to", toEmail, "status", response.StatusCode)
	return nil
}

// logEmailToConsole logs email details (development mode)
func (s *Service) logEmailToConsole(toEmail, toName, subject, actionURL string) error {
	s.log.Info("email not sent (development mode)",
		"subject", subject,
		"to", fmt.Sprintf("%s <%s>", toName, toEmail),
		"from", fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail),
		"action_url", actionURL,
	)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
