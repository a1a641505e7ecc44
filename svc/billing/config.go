package billing

import "time"

// Config holds billing settings loaded from the environment.
type Config struct {
	Provider         string        `env:"BILLING_PROVIDER" envDefault:"stripe"`
	WebhookMode      string        `env:"BILLING_WEBHOOK_MODE" envDefault:"async"`
	WebhookTolerance time.Duration `env:"BILLING_WEBHOOK_TOLERANCE" envDefault:"5m"`
	Workers          int           `env:"BILLING_WORKERS" envDefault:"4"`
	UsageTimezone    string        `env:"BILLING_USAGE_TIMEZONE" envDefault:"UTC"`
	PlansFile        string        `env:"BILLING_PLANS_FILE"`
	PricePro         string        `env:"BILLING_PRICE_PRO"`
	PriceUnlimited   string        `env:"BILLING_PRICE_UNLIMITED"`
	EventStore       string        `env:"BILLING_EVENT_STORE" envDefault:"postgres"`
	ClaimLease       time.Duration `env:"BILLING_CLAIM_LEASE" envDefault:"2m"`
	EventRetention   time.Duration `env:"BILLING_EVENT_RETENTION" envDefault:"720h"`
	SuccessURL       string        `env:"BILLING_SUCCESS_URL" envDefault:"http://localhost:8080/billing/success"`
	CancelURL        string        `env:"BILLING_CANCEL_URL" envDefault:"http://localhost:8080/billing/cancel"`
	ReturnURL        string        `env:"BILLING_RETURN_URL" envDefault:"http://localhost:8080/account"`
	InboxKey         string        `env:"BILLING_INBOX_KEY" envDefault:"viewportly:billing:inbox"`
	InboxCapacity    int           `env:"BILLING_INBOX_CAPACITY" envDefault:"1024"`
}

// Webhook handling modes.
const (
	WebhookModeSync  = "sync"
	WebhookModeAsync = "async"
)

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// PaddleConfig holds Paddle credentials.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Sandbox       bool   `env:"PADDLE_SANDBOX" envDefault:"false"`
}

// Location resolves UsageTimezone.
func (c Config) Location() (*time.Location, error) {
	if c.UsageTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.UsageTimezone)
}

// Catalog loads the plan catalog from PlansFile or falls back to defaults.
func (c Config) Catalog() (*Catalog, error) {
	if c.PlansFile != "" {
		return LoadCatalogFile(c.PlansFile)
	}
	return DefaultCatalog(c.PricePro, c.PriceUnlimited), nil
}
