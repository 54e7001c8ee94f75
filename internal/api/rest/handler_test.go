package rest_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openreward/reward-distributor/internal/adapter"
	"github.com/openreward/reward-distributor/internal/api/middleware"
	"github.com/openreward/reward-distributor/internal/api/rest"
	"github.com/openreward/reward-distributor/internal/ledger"
	"github.com/openreward/reward-distributor/internal/merkle"
	"github.com/openreward/reward-distributor/internal/messaging"
	"github.com/openreward/reward-distributor/internal/store"
	"github.com/openreward/reward-distributor/internal/token"

	"github.com/ethereum/go-ethereum/common"
)

const (
	operatorKey   = "test-operator-key"
	testRecipient = "0x1111111111111111111111111111111111111111"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	l := ledger.New(ledger.Config{}, store.NewMemoryStore(), token.NewNoopMover(), adapter.NewClock(), messaging.NewNoopPublisher())

	router := gin.New()
	rest.SetupRoutes(router, rest.NewHandler(l), middleware.AuthConfig{
		APIKeys: []string{operatorKey},
	})
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("Authorization", "APIKey "+operatorKey)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	detail, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error envelope: %s", w.Body.String())
	code, _ := detail["code"].(string)
	return code
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter()

	w := doRequest(t, router, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}

func TestGrantEndpoints(t *testing.T) {
	router := newTestRouter()

	// Creation requires authentication
	w := doRequest(t, router, http.MethodPost, "/api/v1/grants", gin.H{
		"recipient": testRecipient,
		"amount":    "500",
	}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, router, http.MethodPost, "/api/v1/grants", gin.H{
		"recipient": testRecipient,
		"amount":    "500",
		"reason":    "launch bonus",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	assert.Equal(t, "500", created["amount"])
	assert.Equal(t, false, created["settled"])
	grantID := uint64(created["id"].(float64))

	// Reads are open
	w = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/v1/grants/%d", grantID), nil, false)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, router, http.MethodGet, "/api/v1/grants/999", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))

	w = doRequest(t, router, http.MethodGet, "/api/v1/grants/garbage", nil, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Settle pays the full amount once
	w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/grants/%d/settle", grantID), nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payout := decodeBody(t, w)
	assert.Equal(t, "paid", payout["state"])
	assert.Equal(t, "500", payout["amount"])

	w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/grants/%d/settle", grantID), nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errorCode(t, w))

	// The aggregate returns to zero after settlement
	w = doRequest(t, router, http.MethodGet, "/api/v1/ledger/total-locked", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", decodeBody(t, w)["total_locked"])
}

func TestGrantValidation(t *testing.T) {
	router := newTestRouter()

	// Non-decimal amount
	w := doRequest(t, router, http.MethodPost, "/api/v1/grants", gin.H{
		"recipient": testRecipient,
		"amount":    "12.5e3",
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", errorCode(t, w))

	// Missing required field
	w = doRequest(t, router, http.MethodPost, "/api/v1/grants", gin.H{
		"recipient": testRecipient,
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", errorCode(t, w))

	// Negative amount rejected by the ledger
	w = doRequest(t, router, http.MethodPost, "/api/v1/grants", gin.H{
		"recipient": testRecipient,
		"amount":    "-5",
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", errorCode(t, w))
}

func TestScheduleEndpoints(t *testing.T) {
	router := newTestRouter()

	req := gin.H{
		"beneficiary":      testRecipient,
		"external_key":     "series-a",
		"total_amount":     "1000",
		"cliff_seconds":    0,
		"duration_seconds": 3600,
		"revocable":        true,
	}

	w := doRequest(t, router, http.MethodPost, "/api/v1/schedules", req, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	scheduleID := uint64(created["id"].(float64))
	assert.Equal(t, "1000", created["total_amount"])

	w = doRequest(t, router, http.MethodPost, "/api/v1/schedules", req, true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errorCode(t, w))

	// With no cliff some amount vests immediately after creation
	w = doRequest(t, router, http.MethodGet, fmt.Sprintf("/api/v1/schedules/%d/claimable", scheduleID), nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeBody(t, w), "claimable")

	// Revocation is operator-only: a plain request bounces
	w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%d/revoke", scheduleID), nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%d/revoke", scheduleID), nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	revoked := decodeBody(t, w)
	assert.Contains(t, revoked, "forfeited")

	w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/schedules/%d/revoke", scheduleID), nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDistributionEndpoints(t *testing.T) {
	router := newTestRouter()

	leaves := []merkle.Leaf{
		{Recipient: common.HexToAddress(testRecipient), Amount: big.NewInt(100)},
		{Recipient: common.HexToAddress("0x2222222222222222222222222222222222222222"), Amount: big.NewInt(200)},
		{Recipient: common.HexToAddress("0x3333333333333333333333333333333333333333"), Amount: big.NewInt(300)},
	}
	tree := merkle.BuildTree(leaves)

	w := doRequest(t, router, http.MethodPost, "/api/v1/distributions", gin.H{
		"root":           tree.Root().Hex(),
		"total_amount":   "600",
		"window_seconds": 3600,
		"metadata_ref":   "ipfs://QmLeaves",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody(t, w)
	distID := uint64(created["id"].(float64))
	assert.Equal(t, tree.Root().Hex(), created["root"])

	proofHex := func(i uint64) []string {
		var out []string
		for _, h := range tree.Proof(i) {
			out = append(out, h.Hex())
		}
		return out
	}

	// Claiming is open; the proof is the authorization
	claimPath := fmt.Sprintf("/api/v1/distributions/%d/claims", distID)
	w = doRequest(t, router, http.MethodPost, claimPath, gin.H{
		"leaf_index": 1,
		"recipient":  "0x2222222222222222222222222222222222222222",
		"amount":     "200",
		"proof":      proofHex(1),
	}, false)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payout := decodeBody(t, w)
	assert.Equal(t, "paid", payout["state"])
	assert.Equal(t, "200", payout["amount"])

	// Replay of the same leaf
	w = doRequest(t, router, http.MethodPost, claimPath, gin.H{
		"leaf_index": 1,
		"recipient":  "0x2222222222222222222222222222222222222222",
		"amount":     "200",
		"proof":      proofHex(1),
	}, false)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", errorCode(t, w))

	// Altered amount fails proof verification
	w = doRequest(t, router, http.MethodPost, claimPath, gin.H{
		"leaf_index": 0,
		"recipient":  testRecipient,
		"amount":     "9999",
		"proof":      proofHex(0),
	}, false)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid_proof", errorCode(t, w))

	// Sweeping an open window is a conflict, and operator-only
	sweepPath := fmt.Sprintf("/api/v1/distributions/%d/sweep", distID)
	w = doRequest(t, router, http.MethodPost, sweepPath, nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, router, http.MethodPost, sweepPath, nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)
}
