package email

// Config selects and configures the outgoing mail transport.
// A Postmark server token enables Postmark; otherwise DevDir enables the file
// sender; otherwise notifications are only logged.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@viewportly.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@viewportly.local"`
	DevDir               string `env:"EMAIL_DEV_DIR"`
}
