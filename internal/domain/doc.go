// Package domain contains the core concepts of the HTML-to-PDF service: the
// conversion request, the failure classification and the brochure payload.
// Keep this package free of transport (HTTP) and infrastructure (Chrome/Redis) concerns.
package domain
