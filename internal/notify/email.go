package notify

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/talkform/voicenote-pipeline/internal/types"
	"github.com/talkform/voicenote-pipeline/internal/util"
)

// maxAttachmentBytes caps audio attachments in fallback emails. Voice
// notes above this size stay on disk only.
const maxAttachmentBytes = 3 << 20

// sendDeliveryFailedEmail sends a delivery failure alert.
func (n *Notifier) sendDeliveryFailedEmail(cfg Settings, artifact *types.Artifact, reason string) {
	logNotifyResult(func() error {
		client, err := n.getOrCreateGraphClient(&cfg.Graph)
		if err != nil {
			return util.WrapError("create Graph client", err)
		}

		subject := "[ALERT] Voice Note Delivery Failed - " + AppName
		body := fmt.Sprintf(
			"A voice note could not be delivered to the analysis endpoint.\n\n"+
				"Platform: %s\n"+
				"Size:     %d bytes\n"+
				"Duration: %s\n"+
				"Reason:   %s\n"+
				"Time:     %s\n\n"+
				"A fallback copy is kept locally when persistence succeeded.",
			artifact.Platform, artifact.SizeBytes,
			util.FormatDuration(int64(artifact.DurationSeconds)), reason, util.HumanTime(),
		)

		recipients := ParseRecipients(cfg.Graph.Recipients)
		if len(recipients) == 0 {
			return fmt.Errorf("no valid recipients")
		}
		return client.SendMail(recipients, subject, body)
	}, "Failure email")
}

// sendFallbackEmail sends the fallback notice, attaching the audio file
// when it is small enough.
func (n *Notifier) sendFallbackEmail(cfg Settings, fb types.FallbackArtifact) {
	logNotifyResult(func() error {
		client, err := n.getOrCreateGraphClient(&cfg.Graph)
		if err != nil {
			return util.WrapError("create Graph client", err)
		}

		subject := "[NOTICE] Voice Note Saved Locally - " + AppName
		body := fmt.Sprintf(
			"An undelivered voice note was saved for later retrieval.\n\n"+
				"File: %s\n"+
				"Size: %d bytes\n"+
				"Path: %s\n"+
				"Time: %s",
			fb.Filename, fb.SizeBytes, fb.Path, util.HumanTime(),
		)

		var attachment *EmailAttachment
		if fb.SizeBytes > 0 && fb.SizeBytes <= maxAttachmentBytes {
			if data, err := os.ReadFile(fb.Path); err == nil {
				contentType := mime.TypeByExtension(filepath.Ext(fb.Filename))
				if contentType == "" {
					contentType = "application/octet-stream"
				}
				attachment = &EmailAttachment{
					Filename:    fb.Filename,
					ContentType: contentType,
					Data:        data,
				}
			}
		}

		recipients := ParseRecipients(cfg.Graph.Recipients)
		if len(recipients) == 0 {
			return fmt.Errorf("no valid recipients")
		}
		return client.SendMailWithAttachment(recipients, subject, body, attachment)
	}, "Fallback email")
}

// SendTestEmail sends a test email to verify email configuration.
func SendTestEmail(cfg *GraphConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	// Validate authentication first
	if err := client.ValidateAuth(); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	subject := "[TEST] " + AppName
	body := fmt.Sprintf(
		"Test email from the voice note pipeline.\n\n"+
			"Time: %s\n\n"+
			"Microsoft Graph configuration is working correctly.",
		util.HumanTime(),
	)

	recipients := ParseRecipients(cfg.Recipients)
	if err := client.SendMail(recipients, subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}
