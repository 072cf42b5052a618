package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrEnrollmentRejected is returned when the presented enrollment secret
// does not match the configured one.
var ErrEnrollmentRejected = errors.New("auth: enrollment secret rejected")

// EnrollmentService issues short-lived bearer tokens to agents that
// present a valid bootstrap enrollment secret, per POST /api/v1/enroll.
type EnrollmentService struct {
	secretHash []byte
	tokenSecret string
	tokenTTL    time.Duration
}

// NewEnrollmentService constructs an EnrollmentService. enrollmentSecret
// is the operator-provisioned bootstrap secret every agent is configured
// with out of band; it is hashed once at startup so the plaintext is never
// retained in memory longer than necessary.
func NewEnrollmentService(enrollmentSecret, tokenSecret string, tokenTTL time.Duration) (*EnrollmentService, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(enrollmentSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return &EnrollmentService{secretHash: hash, tokenSecret: tokenSecret, tokenTTL: tokenTTL}, nil
}

// Enroll verifies presented against the configured enrollment secret and,
// on success, mints a bearer token scoped to agentID.
func (s *EnrollmentService) Enroll(_ context.Context, agentID, presented string) (token string, expiresAt int64, err error) {
	if bcrypt.CompareHashAndPassword(s.secretHash, []byte(presented)) != nil {
		return "", 0, ErrEnrollmentRejected
	}
	return IssueToken(s.tokenSecret, agentID, s.tokenTTL)
}
