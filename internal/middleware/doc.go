// Package middleware provides HTTP middleware for the metrics endpoint.
package middleware
