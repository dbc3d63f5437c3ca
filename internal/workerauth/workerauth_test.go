package workerauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/panosAthDBX/ironclaw/internal/models"
)

func TestTokenStore_CreateAndValidate(t *testing.T) {
	store := NewTokenStore()
	jobID := uuid.New()

	token, err := store.CreateToken(jobID)
	require.NoError(t, err)
	require.Len(t, token, 64)

	require.True(t, store.Validate(jobID, token))
	require.False(t, store.Validate(jobID, "wrong-token"))
	require.False(t, store.Validate(uuid.New(), token))
}

func TestTokenStore_Revoke(t *testing.T) {
	store := NewTokenStore()
	jobID := uuid.New()
	token, err := store.CreateToken(jobID)
	require.NoError(t, err)
	require.True(t, store.Validate(jobID, token))

	store.Revoke(jobID)
	require.False(t, store.Validate(jobID, token))
}

// TestTokenIsolation is the S4 end-to-end scenario: job A's token must
// never validate job B's path, grants are isolated, and revoking A leaves B
// untouched.
func TestTokenIsolation_S4(t *testing.T) {
	store := NewTokenStore()
	jobA, jobB := uuid.New(), uuid.New()

	tokenA, err := store.CreateToken(jobA)
	require.NoError(t, err)
	tokenB, err := store.CreateToken(jobB)
	require.NoError(t, err)

	store.StoreGrants(jobA, []models.CredentialGrant{{SecretName: "secret_a", EnvVar: "SECRET_A"}})
	store.StoreGrants(jobB, []models.CredentialGrant{{SecretName: "secret_b", EnvVar: "SECRET_B"}})

	require.False(t, store.Validate(jobA, tokenB))
	grantsA := store.GetGrants(jobA)
	require.Len(t, grantsA, 1)
	require.Equal(t, "secret_a", grantsA[0].SecretName)

	store.Revoke(jobA)
	require.False(t, store.Validate(jobA, tokenA))
	require.Nil(t, store.GetGrants(jobA))

	// jobB unaffected
	require.True(t, store.Validate(jobB, tokenB))
	require.Len(t, store.GetGrants(jobB), 1)
}

func TestTokenStore_EmptyGrantsNotStored(t *testing.T) {
	store := NewTokenStore()
	jobID := uuid.New()
	store.StoreGrants(jobID, nil)
	require.Nil(t, store.GetGrants(jobID))
}

func TestExtractJobID(t *testing.T) {
	id := uuid.New()
	got, ok := ExtractJobID("/worker/" + id.String() + "/llm/complete")
	require.True(t, ok)
	require.Equal(t, id, got)

	_, ok = ExtractJobID("/other/path")
	require.False(t, ok)

	_, ok = ExtractJobID("/worker/not-a-uuid/foo")
	require.False(t, ok)
}

func TestMiddleware(t *testing.T) {
	store := NewTokenStore()
	jobID := uuid.New()
	token, err := store.CreateToken(jobID)
	require.NoError(t, err)

	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := JobIDFromContext(r.Context())
		require.True(t, ok)
		require.Equal(t, jobID, id)
		w.WriteHeader(http.StatusOK)
	}))

	// Valid request
	req := httptest.NewRequest(http.MethodGet, "/worker/"+jobID.String()+"/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Missing auth header
	req2 := httptest.NewRequest(http.MethodGet, "/worker/"+jobID.String()+"/ping", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusUnauthorized, rec2.Code)

	// Malformed job id
	req3 := httptest.NewRequest(http.MethodGet, "/worker/not-a-uuid/ping", nil)
	req3.Header.Set("Authorization", "Bearer "+token)
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req3)
	require.Equal(t, http.StatusBadRequest, rec3.Code)

	// Token for a different job
	otherJob := uuid.New()
	req4 := httptest.NewRequest(http.MethodGet, "/worker/"+otherJob.String()+"/ping", nil)
	req4.Header.Set("Authorization", "Bearer "+token)
	rec4 := httptest.NewRecorder()
	handler.ServeHTTP(rec4, req4)
	require.Equal(t, http.StatusUnauthorized, rec4.Code)
}
