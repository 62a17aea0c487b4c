// Package id provides centralized ID generation for the backend.
//
// IDs are UUIDv4 with a type prefix (sess_*, cap_*, ast_*) so logs and
// database rows are readable at a glance and an ID of one entity kind
// cannot silently stand in for another.
package id

import (
	"strings"

	"github.com/google/uuid"
)

const (
	prefixSession = "sess_"
	prefixCapture = "cap_"
	prefixAsset   = "ast_"
)

// NewSession generates a work-session ID
func NewSession() string { return prefixSession + uuid.NewString() }

// NewCapture generates a capture ID
func NewCapture() string { return prefixCapture + uuid.NewString() }

// NewAsset generates an asset ID
func NewAsset() string { return prefixAsset + uuid.NewString() }

// IsSession reports whether s carries the work-session prefix
func IsSession(s string) bool { return strings.HasPrefix(s, prefixSession) }

// IsCapture reports whether s carries the capture prefix
func IsCapture(s string) bool { return strings.HasPrefix(s, prefixCapture) }

// IsAsset reports whether s carries the asset prefix
func IsAsset(s string) bool { return strings.HasPrefix(s, prefixAsset) }
