package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openreward/reward-distributor/internal/ledger"
)

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
type Handler interface {
	// CreateGrant records a new direct grant (requires authentication)
	// POST /api/v1/grants
	CreateGrant(c *gin.Context)

	// GetGrant retrieves a grant by ID
	// GET /api/v1/grants/:id
	GetGrant(c *gin.Context)

	// SettleGrant pays a grant in full, exactly once (requires authentication)
	// POST /api/v1/grants/:id/settle
	SettleGrant(c *gin.Context)

	// CreateSchedule records a new vesting schedule (requires authentication)
	// POST /api/v1/schedules
	CreateSchedule(c *gin.Context)

	// GetSchedule retrieves a schedule by ID
	// GET /api/v1/schedules/:id
	GetSchedule(c *gin.Context)

	// GetClaimable returns the vested-but-unclaimed amount of a schedule
	// GET /api/v1/schedules/:id/claimable
	GetClaimable(c *gin.Context)

	// ClaimSchedule pays out everything vested and unclaimed on a schedule
	// POST /api/v1/schedules/:id/claim
	ClaimSchedule(c *gin.Context)

	// RevokeSchedule terminates a revocable schedule early (operator API key only)
	// POST /api/v1/schedules/:id/revoke
	RevokeSchedule(c *gin.Context)

	// CreateDistribution publishes a Merkle airdrop batch (requires authentication)
	// POST /api/v1/distributions
	CreateDistribution(c *gin.Context)

	// GetDistribution retrieves a distribution by ID
	// GET /api/v1/distributions/:id
	GetDistribution(c *gin.Context)

	// ClaimLeaf settles one leaf of a distribution with a Merkle proof (open,
	// the proof is the authorization)
	// POST /api/v1/distributions/:id/claims
	ClaimLeaf(c *gin.Context)

	// SweepDistribution closes an expired distribution (operator API key only)
	// POST /api/v1/distributions/:id/sweep
	SweepDistribution(c *gin.Context)

	// GetPayout retrieves a payout by ID
	// GET /api/v1/payouts/:id
	GetPayout(c *gin.Context)

	// GetTotalLocked returns the aggregate obligated-but-unpaid value
	// GET /api/v1/ledger/total-locked
	GetTotalLocked(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	ledger *ledger.Ledger
}

// NewHandler creates a new REST API handler
func NewHandler(l *ledger.Ledger) Handler {
	return &handler{ledger: l}
}

// CreateGrant records a new direct grant
func (h *handler) CreateGrant(c *gin.Context) {
	var req createGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	grant, err := h.ledger.CreateDirectGrant(c.Request.Context(), req.Recipient, amount, req.Reason)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toGrantResponse(grant))
}

// GetGrant retrieves a grant by ID
func (h *handler) GetGrant(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	grant, err := h.ledger.GetDirectGrant(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toGrantResponse(grant))
}

// SettleGrant pays a grant in full, exactly once
func (h *handler) SettleGrant(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payout, err := h.ledger.SettleDirectGrant(c.Request.Context(), id)
	if err != nil {
		// The grant is settled even when the mover failed; surface the payout
		// state alongside the error class
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPayoutResponse(payout))
}

// CreateSchedule records a new vesting schedule
func (h *handler) CreateSchedule(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	amount, err := parseAmount(req.TotalAmount)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	params := ledger.CreateVestingParams{
		Beneficiary: req.Beneficiary,
		ExternalKey: req.ExternalKey,
		TotalAmount: amount,
		Cliff:       time.Duration(req.CliffSeconds) * time.Second,
		Duration:    time.Duration(req.DurationSeconds) * time.Second,
		Revocable:   req.Revocable,
	}
	if req.StartTime != nil {
		params.StartTime = *req.StartTime
	}

	sched, err := h.ledger.CreateVestingSchedule(c.Request.Context(), params)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toScheduleResponse(sched))
}

// GetSchedule retrieves a schedule by ID
func (h *handler) GetSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	sched, err := h.ledger.GetVestingSchedule(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toScheduleResponse(sched))
}

// GetClaimable returns the vested-but-unclaimed amount of a schedule
func (h *handler) GetClaimable(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	claimable, err := h.ledger.ClaimableAmount(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, claimableResponse{
		ScheduleID: id,
		Claimable:  claimable.String(),
	})
}

// ClaimSchedule pays out everything vested and unclaimed on a schedule
func (h *handler) ClaimSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payout, err := h.ledger.ClaimVested(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPayoutResponse(payout))
}

// RevokeSchedule terminates a revocable schedule early
func (h *handler) RevokeSchedule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	forfeited, err := h.ledger.RevokeVestingSchedule(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	sched, err := h.ledger.GetVestingSchedule(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	resp := toScheduleResponse(sched)
	c.JSON(http.StatusOK, gin.H{
		"schedule":  resp,
		"forfeited": forfeited.String(),
	})
}

// CreateDistribution publishes a Merkle airdrop batch
func (h *handler) CreateDistribution(c *gin.Context) {
	var req createDistributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	amount, err := parseAmount(req.TotalAmount)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	root, err := decodeHash(req.Root)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	dist, err := h.ledger.CreateMerkleDistribution(c.Request.Context(), ledger.CreateDistributionParams{
		Root:        root,
		TotalAmount: amount,
		Window:      time.Duration(req.WindowSeconds) * time.Second,
		MetadataRef: req.MetadataRef,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toDistributionResponse(dist))
}

// GetDistribution retrieves a distribution by ID
func (h *handler) GetDistribution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	dist, err := h.ledger.GetMerkleDistribution(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDistributionResponse(dist))
}

// ClaimLeaf settles one leaf of a distribution with a Merkle proof
func (h *handler) ClaimLeaf(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req claimLeafRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}
	proof, err := parseProof(req.Proof)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	payout, err := h.ledger.ClaimMerkleLeaf(c.Request.Context(), ledger.ClaimLeafParams{
		DistributionID: id,
		LeafIndex:      req.LeafIndex,
		Recipient:      req.Recipient,
		Amount:         amount,
		Proof:          proof,
	})
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPayoutResponse(payout))
}

// SweepDistribution closes an expired distribution
func (h *handler) SweepDistribution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	swept, err := h.ledger.SweepExpired(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, sweepResponse{
		DistributionID: id,
		SweptAmount:    swept.String(),
	})
}

// GetPayout retrieves a payout by ID
func (h *handler) GetPayout(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payout, err := h.ledger.GetPayout(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPayoutResponse(payout))
}

// GetTotalLocked returns the aggregate obligated-but-unpaid value
func (h *handler) GetTotalLocked(c *gin.Context) {
	locked, err := h.ledger.TotalLocked(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, totalLockedResponse{TotalLocked: locked.String()})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// pathID parses the :id path parameter, responding with 400 on garbage
func pathID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid ID", c.Param("id"))
		return 0, false
	}
	return id, true
}
