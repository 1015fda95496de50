package models

import "time"

// ServerRecord represents one physical agent owned by one user.
// Stored at users/{uid}/servers/{serverId}.
type ServerRecord struct {
	DocPath  string `json:"docPath" boltholdKey:"DocPath"`
	ServerID string `json:"serverId"`
	OwnerUID string `json:"ownerUid" boltholdIndex:"OwnerUID"`

	Status ServerStatus `json:"status" boltholdIndex:"Status"`

	// Claim fields, only set while pending (empty once linked)
	ClaimPublicID  string     `json:"claimPublicId,omitempty" boltholdIndex:"ClaimPublicID"`
	ClaimSignature string     `json:"claimSignature,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt"`

	// Credential fields, only set once linked
	APIKeyHash string `json:"apiKeyHash,omitempty"`
	Salt       string `json:"salt,omitempty"`
	KeyPrefix  string `json:"keyPrefix,omitempty" boltholdIndex:"KeyPrefix"`

	// Descriptive metadata (best-effort)
	Name         string     `json:"name,omitempty"`
	AgentVersion *string    `json:"agentVersion"`
	IP           *string    `json:"ip"`
	CreatedAt    time.Time  `json:"createdAt"`
	LinkedAt     *time.Time `json:"linkedAt"`
	LastSeen     *time.Time `json:"lastSeen"`
}

// IsExpired reports whether a pending record can no longer be claimed
func (s *ServerRecord) IsExpired(now time.Time) bool {
	return s.ExpiresAt == nil || !s.ExpiresAt.After(now)
}

// RateLimitRecord throttles claim token issuance per user.
// Stored at users/{uid}/servers_meta/rateLimit.
type RateLimitRecord struct {
	DocPath            string    `json:"docPath" boltholdKey:"DocPath"`
	LastTokenCreatedAt time.Time `json:"lastTokenCreatedAt"`
	RateLimitedUntil   time.Time `json:"rateLimitedUntil"`
}

// Active reports whether the cooldown is still running
func (r *RateLimitRecord) Active(now time.Time) bool {
	return r != nil && !r.RateLimitedUntil.IsZero() && now.Before(r.RateLimitedUntil)
}

// ClaimReceipt remembers a redeemed claim token so a replay with the
// correct secret can be told apart from an unknown token.
// Stored at claims/{claimPublicId}.
type ClaimReceipt struct {
	DocPath        string    `json:"docPath" boltholdKey:"DocPath"`
	ClaimPublicID  string    `json:"claimPublicId"`
	ClaimSignature string    `json:"claimSignature"`
	ServerPath     string    `json:"serverPath"`
	UsedAt         time.Time `json:"usedAt"`
}
