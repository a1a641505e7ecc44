package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

// Postmark API error codes that mean the recipient will never accept mail
// from this server as the message stands.
const (
	postmarkInvalidRequest    = 300
	postmarkInactiveRecipient = 406
)

type postmarkClient struct {
	client *postmark.Client
	config Config
}

// NewPostmarkClient returns a sender backed by the Postmark API.
// Billing mail is transactional, so open and link tracking stay off.
func NewPostmarkClient(cfg Config) (EmailSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if !validAddress(cfg.SenderEmail) {
		return nil, fmt.Errorf("%w: SenderEmail must be a valid email address", ErrInvalidConfig)
	}
	if cfg.SupportEmail != "" && !validAddress(cfg.SupportEmail) {
		return nil, fmt.Errorf("%w: SupportEmail must be a valid email address", ErrInvalidConfig)
	}

	return &postmarkClient{
		client: postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		config: cfg,
	}, nil
}

func (c *postmarkClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	resp, err := c.client.SendEmail(ctx, postmark.Email{
		From:       c.config.SenderEmail,
		ReplyTo:    c.config.SupportEmail,
		To:         params.SendTo,
		Subject:    params.Subject,
		Tag:        params.Tag,
		HTMLBody:   params.BodyHTML,
		TrackOpens: false,
		TrackLinks: "None",
	})
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	return postmarkResult(int64(resp.ErrorCode), resp.Message)
}

// postmarkResult maps a Postmark API answer to an error. Rejected recipients
// are reported with ErrRecipientRejected so callers can stop retrying.
func postmarkResult(code int64, message string) error {
	switch code {
	case 0:
		return nil
	case postmarkInvalidRequest, postmarkInactiveRecipient:
		return errors.Join(ErrFailedToSendEmail, ErrRecipientRejected,
			fmt.Errorf("postmark error %d: %s", code, message))
	default:
		return errors.Join(ErrFailedToSendEmail, fmt.Errorf("postmark error %d: %s", code, message))
	}
}
