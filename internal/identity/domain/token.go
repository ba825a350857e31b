// Package domain holds the core entities of the identity service. Types
// here carry no storage or transport concerns.
package domain

import "time"

// TokenPair is the result of issuing or rotating credentials: a short
// lived access token and its single-use refresh companion.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenMetadata describes a verified token without exposing the signed
// payload itself.
type TokenMetadata struct {
	TokenID   string
	SubjectID string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
