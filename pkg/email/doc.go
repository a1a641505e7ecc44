// Package email sends transactional mail.
//
// EmailSender is implemented by a Postmark API client for production and by
// DevSender, which writes messages to a local directory. Bodies are rendered
// from templ components with templates.Render.
package email
