// Package workerauth implements the per-job bearer token store and the
// net/http middleware that authenticates sandboxed workers calling back
// into the orchestrator on /worker/{job_id}/....
package workerauth

import (
	"sync"

	"github.com/google/uuid"

	"github.com/panosAthDBX/ironclaw/internal/models"
	"github.com/panosAthDBX/ironclaw/internal/signing"
)

// TokenStore holds two independent in-memory mappings, each under its own
// read-write lock: job id -> bearer token, and job id -> credential
// grants. Tokens are never logged or persisted.
type TokenStore struct {
	tokensMu sync.RWMutex
	tokens   map[uuid.UUID]string

	grantsMu sync.RWMutex
	grants   map[uuid.UUID][]models.CredentialGrant
}

// NewTokenStore constructs an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[uuid.UUID]string),
		grants: make(map[uuid.UUID][]models.CredentialGrant),
	}
}

// CreateToken mints and stores a fresh token for jobID, replacing any prior
// token for the same id.
func (s *TokenStore) CreateToken(jobID uuid.UUID) (string, error) {
	token, err := signing.GenerateToken()
	if err != nil {
		return "", err
	}
	s.tokensMu.Lock()
	s.tokens[jobID] = token
	s.tokensMu.Unlock()
	return token, nil
}

// StoreGrants records credential grants for jobID. A no-op for an empty
// grant list, matching the original's "don't create an entry for nothing"
// behavior.
func (s *TokenStore) StoreGrants(jobID uuid.UUID, grants []models.CredentialGrant) {
	if len(grants) == 0 {
		return
	}
	s.grantsMu.Lock()
	s.grants[jobID] = append([]models.CredentialGrant(nil), grants...)
	s.grantsMu.Unlock()
}

// GetGrants returns a defensive copy of jobID's grants, or nil if none exist.
func (s *TokenStore) GetGrants(jobID uuid.UUID) []models.CredentialGrant {
	s.grantsMu.RLock()
	defer s.grantsMu.RUnlock()
	g, ok := s.grants[jobID]
	if !ok {
		return nil
	}
	return append([]models.CredentialGrant(nil), g...)
}

// Validate reports whether token is the live token for jobID, comparing in
// constant time. A missing job id always fails.
func (s *TokenStore) Validate(jobID uuid.UUID, token string) bool {
	s.tokensMu.RLock()
	stored, ok := s.tokens[jobID]
	s.tokensMu.RUnlock()
	if !ok {
		return false
	}
	return signing.ConstantTimeEqual(stored, token)
}

// Revoke removes both the token and the grants for jobID. The token is
// removed first, so no request authenticates for jobID from that point on,
// even while its grants are still being removed.
func (s *TokenStore) Revoke(jobID uuid.UUID) {
	s.tokensMu.Lock()
	delete(s.tokens, jobID)
	s.tokensMu.Unlock()

	s.grantsMu.Lock()
	delete(s.grants, jobID)
	s.grantsMu.Unlock()
}

// ActiveCount returns the number of live tokens, for diagnostics.
func (s *TokenStore) ActiveCount() int {
	s.tokensMu.RLock()
	defer s.tokensMu.RUnlock()
	return len(s.tokens)
}
