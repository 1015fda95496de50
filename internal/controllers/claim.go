package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/amaumene/privatecinema/internal/apperr"
	"github.com/amaumene/privatecinema/internal/config"
	"github.com/amaumene/privatecinema/internal/metrics"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/utils"
)

var tracer = otel.Tracer("github.com/amaumene/privatecinema/internal/controllers")

const (
	claimPublicIDPrefix = "pub-"
	claimSecretPrefix   = "sec-"
	defaultAgentName    = "New Agent"

	// KeyPrefixLength is the number of leading API key characters stored in
	// clear to narrow the linked-server scan
	KeyPrefixLength = 8

	isoMillis = "2006-01-02T15:04:05.000Z07:00"
)

// ClaimStore is the persistence needed by the claim handshake
type ClaimStore interface {
	RunTransaction(fn func(tx *models.Tx) error) error
	FindPendingServerByClaimID(claimPublicID string) (*models.ServerRecord, error)
	GetClaimReceipt(claimPublicID string) (*models.ClaimReceipt, error)
}

// ClaimToken is returned to the signed-in user who asked to link an agent
type ClaimToken struct {
	ServerID      string `json:"serverId"`
	ClaimPublicID string `json:"claimPublicId"`
	ClaimSecret   string `json:"claimSecret"`
	ExpiresAtISO  string `json:"expiresAtISO"`
}

// ClaimRequest is what an agent presents to redeem a claim token
type ClaimRequest struct {
	ClaimPublicID string  `json:"claimPublicId" validate:"required"`
	ClaimSecret   string  `json:"claimSecret" validate:"required"`
	AgentName     *string `json:"agentName" validate:"omitempty,max=200"`
	AgentVersion  *string `json:"agentVersion" validate:"omitempty,max=100"`
	RequesterIP   string  `json:"-"`
}

// ClaimResult carries the agent API key, returned exactly once
type ClaimResult struct {
	AgentAPIKey string `json:"agentApiKey"`
	ServerID    string `json:"serverId"`
}

// ClaimController issues claim tokens and links agents that redeem them
type ClaimController struct {
	store      ClaimStore
	signingKey string
	ttl        time.Duration
	cooldown   time.Duration
	now        func() time.Time
	logger     *logrus.Logger
}

// NewClaimController creates a new claim controller
func NewClaimController(store ClaimStore, cfg *config.Config, logger *logrus.Logger) *ClaimController {
	return &ClaimController{
		store:      store,
		signingKey: cfg.HMACSecret,
		ttl:        cfg.ClaimTTL,
		cooldown:   cfg.ClaimCooldown,
		now:        time.Now,
		logger:     logger,
	}
}

func (c *ClaimController) sign(claimPublicID, claimSecret string) string {
	return utils.HMACSign(c.signingKey, claimPublicID+":"+claimSecret)
}

// IssueToken creates a pending server record for uid and returns the
// one-time claim credentials. The claim secret is never stored, only its
// signature.
func (c *ClaimController) IssueToken(ctx context.Context, uid string) (*ClaimToken, error) {
	_, span := tracer.Start(ctx, "ClaimController.IssueToken")
	defer span.End()

	if c.signingKey == "" {
		return nil, ErrSigningKeyMissing
	}

	now := c.now().UTC()
	serverID := uuid.NewString()

	publicPart, err := utils.RandomToken(12)
	if err != nil {
		return nil, fmt.Errorf("failed to generate claim id: %w", err)
	}
	secretPart, err := utils.RandomToken(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate claim secret: %w", err)
	}
	claimPublicID := claimPublicIDPrefix + publicPart
	claimSecret := claimSecretPrefix + secretPart
	expiresAt := now.Add(c.ttl)

	err = c.store.RunTransaction(func(tx *models.Tx) error {
		limit, err := tx.GetRateLimit(uid)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to read rate limit: %w", err)
		}
		if limit.Active(now) {
			return ErrClaimRateLimited
		}

		server := &models.ServerRecord{
			DocPath:        models.ServerPath(uid, serverID),
			ServerID:       serverID,
			OwnerUID:       uid,
			Status:         models.ServerStatusPending,
			ClaimPublicID:  claimPublicID,
			ClaimSignature: c.sign(claimPublicID, claimSecret),
			CreatedAt:      now,
			ExpiresAt:      &expiresAt,
		}
		if err := tx.PutServer(server); err != nil {
			return fmt.Errorf("failed to write server: %w", err)
		}

		return tx.PutRateLimit(uid, &models.RateLimitRecord{
			LastTokenCreatedAt: now,
			RateLimitedUntil:   now.Add(c.cooldown),
		})
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrClaimRateLimited) {
			metrics.ClaimEvents.WithLabelValues("issue", "rate_limited").Inc()
			return nil, err
		}
		metrics.ClaimEvents.WithLabelValues("issue", "error").Inc()
		return nil, fmt.Errorf("failed to issue claim token: %w", err)
	}

	metrics.ClaimEvents.WithLabelValues("issue", "ok").Inc()
	span.SetAttributes(attribute.String("server_id", serverID))
	c.logger.WithFields(logrus.Fields{
		"uid":       uid,
		"server_id": serverID,
		"expires":   expiresAt.Format(time.RFC3339),
	}).Info("Issued claim token")

	return &ClaimToken{
		ServerID:      serverID,
		ClaimPublicID: claimPublicID,
		ClaimSecret:   claimSecret,
		ExpiresAtISO:  expiresAt.Format(isoMillis),
	}, nil
}

// Claim redeems a claim token and links the pending server to the agent.
// Checks run in a fixed order: lookup, signature, expiry, single use.
func (c *ClaimController) Claim(ctx context.Context, req *ClaimRequest) (*ClaimResult, error) {
	_, span := tracer.Start(ctx, "ClaimController.Claim")
	defer span.End()

	result, err := c.claim(req)
	if err != nil {
		span.RecordError(err)
		metrics.ClaimEvents.WithLabelValues("claim", claimOutcome(err)).Inc()
		return nil, err
	}

	metrics.ClaimEvents.WithLabelValues("claim", "ok").Inc()
	span.SetAttributes(attribute.String("server_id", result.ServerID))
	return result, nil
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, ErrInvalidClaim):
		return "invalid"
	case errors.Is(err, ErrClaimExpired):
		return "expired"
	case errors.Is(err, ErrClaimUsed):
		return "used"
	case apperr.CodeOf(err) == apperr.InvalidArgument:
		return "bad_request"
	default:
		return "error"
	}
}

func (c *ClaimController) claim(req *ClaimRequest) (*ClaimResult, error) {
	if err := validateInput(req); err != nil {
		return nil, err
	}
	if c.signingKey == "" {
		return nil, ErrSigningKeyMissing
	}

	signature := c.sign(req.ClaimPublicID, req.ClaimSecret)

	// Lookup
	server, err := c.store.FindPendingServerByClaimID(req.ClaimPublicID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, c.rejectUnknown(req.ClaimPublicID, signature)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up claim: %w", err)
	}

	// Signature
	if !utils.ConstantTimeHexEqual(signature, server.ClaimSignature) {
		c.logger.WithField("server_id", server.ServerID).Warn("Claim rejected: signature mismatch")
		return nil, ErrInvalidClaim
	}

	// Expiry, only revealed to holders of the correct secret
	now := c.now().UTC()
	if server.IsExpired(now) {
		c.logger.WithField("server_id", server.ServerID).Info("Claim rejected: token expired")
		return nil, ErrClaimExpired
	}

	// Single use
	if server.Status != models.ServerStatusPending {
		return nil, ErrClaimUsed
	}

	// Mint the key before entering the transaction; scrypt is slow
	apiKey, err := utils.RandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	salt, err := utils.RandomToken(16)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	apiKeyHash, err := utils.DeriveKeyHash(apiKey, salt)
	if err != nil {
		return nil, err
	}

	name := defaultAgentName
	if req.AgentName != nil && *req.AgentName != "" {
		name = *req.AgentName
	}
	var ip *string
	if req.RequesterIP != "" {
		requester := req.RequesterIP
		ip = &requester
	}

	err = c.store.RunTransaction(func(tx *models.Tx) error {
		current, err := tx.GetServer(server.DocPath)
		if err != nil {
			return fmt.Errorf("failed to re-read server: %w", err)
		}
		if current.Status != models.ServerStatusPending || current.ClaimPublicID != req.ClaimPublicID {
			return ErrClaimUsed
		}

		linkedAt := now
		current.Status = models.ServerStatusLinked
		current.Name = name
		current.AgentVersion = req.AgentVersion
		current.IP = ip
		current.APIKeyHash = apiKeyHash
		current.Salt = salt
		current.KeyPrefix = apiKey[:KeyPrefixLength]
		current.LinkedAt = &linkedAt
		current.ClaimPublicID = ""
		current.ClaimSignature = ""
		current.ExpiresAt = nil
		if err := tx.PutServer(current); err != nil {
			return fmt.Errorf("failed to link server: %w", err)
		}

		return tx.PutClaimReceipt(&models.ClaimReceipt{
			ClaimPublicID:  req.ClaimPublicID,
			ClaimSignature: server.ClaimSignature,
			ServerPath:     server.DocPath,
			UsedAt:         now,
		})
	})
	if err != nil {
		if errors.Is(err, ErrClaimUsed) {
			c.logger.WithField("server_id", server.ServerID).Warn("Claim lost a race with a concurrent claim")
		}
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"server_id": server.ServerID,
		"name":      name,
	}).Info("Agent linked")

	return &ClaimResult{AgentAPIKey: apiKey, ServerID: server.ServerID}, nil
}

// rejectUnknown answers a claim with no pending server. A replay that
// presents the correct secret of an already redeemed token is reported as
// used; everything else gets the generic invalid-claim error.
func (c *ClaimController) rejectUnknown(claimPublicID, signature string) error {
	receipt, err := c.store.GetClaimReceipt(claimPublicID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			c.logger.WithError(err).Error("Failed to read claim receipt")
		}
		return ErrInvalidClaim
	}
	if utils.ConstantTimeHexEqual(signature, receipt.ClaimSignature) {
		return ErrClaimUsed
	}
	return ErrInvalidClaim
}
