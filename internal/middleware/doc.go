// Package middleware provides HTTP middleware for the API server:
// request logging in W3C Extended Log Format, response compression and
// Prometheus request metrics.
package middleware
