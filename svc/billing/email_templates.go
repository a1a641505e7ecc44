package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/viewportly/pkg/email"
)

func isInvalidEmail(err error) bool {
	return errors.Is(err, email.ErrInvalidParams) || errors.Is(err, email.ErrRecipientRejected)
}

// intentEmail returns the subject line and body component for an intent.
func intentEmail(app string, in Intent) (string, templ.Component) {
	plan := titleTier(in.Tier)
	until := ""
	if !in.PeriodEnd.IsZero() {
		until = in.PeriodEnd.Format("January 2, 2006")
	}

	switch in.Kind {
	case IntentSubscriptionActivated:
		return fmt.Sprintf("Welcome to %s %s", app, plan),
			message(in.Name, fmt.Sprintf("Your %s plan is active.", plan), renewLine(until))
	case IntentPaymentFailed:
		return "We couldn't process your payment",
			message(in.Name, fmt.Sprintf("The latest payment for your %s plan failed.", plan),
				"Please update your payment method to keep your plan active.")
	case IntentCancellationScheduled:
		return fmt.Sprintf("Your %s plan will end", plan),
			message(in.Name, fmt.Sprintf("Your %s plan is set to cancel.", plan), accessLine(until))
	case IntentCancellationReversed:
		return fmt.Sprintf("Your %s plan will continue", plan),
			message(in.Name, fmt.Sprintf("Your %s plan will no longer be canceled.", plan), renewLine(until))
	case IntentSubscriptionCanceled:
		return fmt.Sprintf("Your %s plan has ended", plan),
			message(in.Name, fmt.Sprintf("Your %s plan has been canceled and your account is now on the Free plan.", plan))
	case IntentUsageThreshold:
		return fmt.Sprintf("You've used %d%% of your monthly analyses", in.Percent),
			message(in.Name, fmt.Sprintf("You've used %d of %d analyses this month (%s).", in.Used, in.Limit, in.Period),
				"Upgrade your plan to keep analyzing without interruption.")
	default:
		return fmt.Sprintf("%s account update", app), message(in.Name, "There is an update on your account.")
	}
}

// message renders a greeting followed by one paragraph per non-empty line.
func message(name string, lines ...string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		greeting := "Hi,"
		if name != "" {
			greeting = "Hi " + name + ","
		}
		var b strings.Builder
		b.WriteString("<p>")
		b.WriteString(templ.EscapeString(greeting))
		b.WriteString("</p>")
		for _, l := range lines {
			if l == "" {
				continue
			}
			b.WriteString("<p>")
			b.WriteString(templ.EscapeString(l))
			b.WriteString("</p>")
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func renewLine(until string) string {
	if until == "" {
		return ""
	}
	return "It renews on " + until + "."
}

func accessLine(until string) string {
	if until == "" {
		return ""
	}
	return "You keep access until " + until + "."
}

func titleTier(t Tier) string {
	if t == "" {
		return "Free"
	}
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}
