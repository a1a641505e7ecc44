// Package analysis runs metered responsiveness checks. Every request is
// admitted by the billing meter and counted only when the check succeeds.
//
// # Flow
//
// Service.Analyze validates the URL, asks billing.Meter for a reservation,
// runs the Analyzer and commits one unit of usage when the report is ready.
// Threshold intents returned by the commit are handed to the billing
// dispatcher. A refused reservation surfaces as *billing.LimitError and the
// HTTP handler answers 402 with the current usage.
//
// # Fetching
//
// ViewportAnalyzer downloads at most WithMaxBytes of an HTML page and reports
// a missing or fixed-width viewport, disabled zoom, a non-1 initial scale and
// the absence of media queries in inline styles.
//
// Pages are fetched with NewPublicClient. Its dialer refuses loopback,
// private, link-local and other non-public addresses after DNS resolution,
// and every redirect target is validated again. Such requests fail with
// ErrForbiddenAddress wrapped in ErrInvalidURL.
//
// # Usage
//
//	svc := analysis.NewService(meter, dispatcher, analysis.NewViewportAnalyzer(),
//		analysis.WithLogger(log),
//	)
//	r.Mount("/analyses", analysis.NewHandler(svc, log).Routes())
package analysis
