package controllers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/privatecinema/internal/apperr"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/utils"
)

func TestIssueToken_ReturnsCredentials(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	c := newTestClaimController(db, clock)

	token, err := c.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	if !strings.HasPrefix(token.ClaimPublicID, "pub-") || len(token.ClaimPublicID) != 4+24 {
		t.Errorf("unexpected claimPublicId %q", token.ClaimPublicID)
	}
	if !strings.HasPrefix(token.ClaimSecret, "sec-") || len(token.ClaimSecret) != 4+32 {
		t.Errorf("unexpected claimSecret %q", token.ClaimSecret)
	}

	expires, err := time.Parse(time.RFC3339, token.ExpiresAtISO)
	if err != nil {
		t.Fatalf("expiresAtISO not parseable: %v", err)
	}
	if want := clock.Now().Add(600 * time.Second); !expires.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, expires)
	}

	server, err := db.GetServer(models.ServerPath("alice", token.ServerID))
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if server.Status != models.ServerStatusPending {
		t.Errorf("expected pending server, got %s", server.Status)
	}
	if server.ClaimSignature != utils.HMACSign("test-signing-key", token.ClaimPublicID+":"+token.ClaimSecret) {
		t.Errorf("stored signature does not match")
	}
	if strings.Contains(server.ClaimSignature, token.ClaimSecret) {
		t.Errorf("claim secret must never be stored")
	}
}

func TestIssueToken_RateLimited(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	c := newTestClaimController(db, clock)

	if _, err := c.IssueToken(context.Background(), "alice"); err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	clock.Advance(29 * time.Second)
	_, err := c.IssueToken(context.Background(), "alice")
	if !errors.Is(err, ErrClaimRateLimited) || apperr.CodeOf(err) != apperr.ResourceExhausted {
		t.Fatalf("expected rate limit, got %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.PendingServers != 1 {
		t.Errorf("rate-limited call must not create a server, got %d pending", stats.PendingServers)
	}

	// Other users are not affected
	if _, err := c.IssueToken(context.Background(), "bob"); err != nil {
		t.Errorf("expected bob to be unaffected, got %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := c.IssueToken(context.Background(), "alice"); err != nil {
		t.Errorf("expected success after cooldown, got %v", err)
	}
}

func TestIssueToken_MissingSigningKey(t *testing.T) {
	db := newTestDB(t)
	c := newTestClaimController(db, newFakeClock())
	c.signingKey = ""

	_, err := c.IssueToken(context.Background(), "alice")
	if !errors.Is(err, ErrSigningKeyMissing) || apperr.CodeOf(err) != apperr.FailedPrecondition {
		t.Fatalf("expected ErrSigningKeyMissing, got %v", err)
	}
}

func TestClaim_LinksServerOnce(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	c := newTestClaimController(db, clock)

	token, err := c.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := &ClaimRequest{
		ClaimPublicID: token.ClaimPublicID,
		ClaimSecret:   token.ClaimSecret,
		AgentVersion:  strPtr("1.2.3"),
		RequesterIP:   "203.0.113.7",
	}
	result, err := c.Claim(context.Background(), req)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if result.ServerID != token.ServerID {
		t.Errorf("expected server %s, got %s", token.ServerID, result.ServerID)
	}
	if len(result.AgentAPIKey) != 64 {
		t.Errorf("expected 32-byte hex key, got %d chars", len(result.AgentAPIKey))
	}

	server, err := db.GetServer(models.ServerPath("alice", token.ServerID))
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if server.Status != models.ServerStatusLinked {
		t.Errorf("expected linked, got %s", server.Status)
	}
	if server.ClaimPublicID != "" || server.ClaimSignature != "" || server.ExpiresAt != nil {
		t.Errorf("claim fields must be cleared once linked: %+v", server)
	}
	if server.Name != "New Agent" {
		t.Errorf("expected default name, got %q", server.Name)
	}
	if server.IP == nil || *server.IP != "203.0.113.7" {
		t.Errorf("expected requester ip to be stored, got %v", server.IP)
	}
	if server.AgentVersion == nil || *server.AgentVersion != "1.2.3" {
		t.Errorf("expected agent version to be stored")
	}
	if server.LinkedAt == nil || !server.LinkedAt.Equal(clock.Now()) {
		t.Errorf("expected linkedAt to be set")
	}
	if server.APIKeyHash == result.AgentAPIKey || strings.Contains(server.APIKeyHash, result.AgentAPIKey) {
		t.Errorf("plaintext key must never be stored")
	}
	if !utils.VerifyKeyHash(result.AgentAPIKey, server.Salt, server.APIKeyHash) {
		t.Errorf("stored hash does not verify the returned key")
	}
	if server.KeyPrefix != result.AgentAPIKey[:KeyPrefixLength] {
		t.Errorf("unexpected key prefix %q", server.KeyPrefix)
	}

	_, err = c.Claim(context.Background(), req)
	if !errors.Is(err, ErrClaimUsed) || apperr.CodeOf(err) != apperr.AlreadyExists {
		t.Fatalf("expected replay to fail with ErrClaimUsed, got %v", err)
	}
}

func TestClaim_WrongSecretLooksLikeUnknownToken(t *testing.T) {
	db := newTestDB(t)
	c := newTestClaimController(db, newFakeClock())

	token, err := c.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	_, wrongSecret := c.Claim(context.Background(), &ClaimRequest{
		ClaimPublicID: token.ClaimPublicID,
		ClaimSecret:   "sec-wrong",
	})
	_, unknown := c.Claim(context.Background(), &ClaimRequest{
		ClaimPublicID: "pub-unknown",
		ClaimSecret:   token.ClaimSecret,
	})

	if !errors.Is(wrongSecret, ErrInvalidClaim) || !errors.Is(unknown, ErrInvalidClaim) {
		t.Fatalf("expected ErrInvalidClaim for both, got %v / %v", wrongSecret, unknown)
	}
	if apperr.MessageOf(wrongSecret) != apperr.MessageOf(unknown) {
		t.Errorf("messages must be identical")
	}
	if apperr.CodeOf(wrongSecret) != apperr.PermissionDenied {
		t.Errorf("expected PermissionDenied, got %s", apperr.CodeOf(wrongSecret))
	}

	// A replay of a redeemed token with a wrong secret stays generic
	if _, err := c.Claim(context.Background(), &ClaimRequest{ClaimPublicID: token.ClaimPublicID, ClaimSecret: token.ClaimSecret}); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	_, err = c.Claim(context.Background(), &ClaimRequest{ClaimPublicID: token.ClaimPublicID, ClaimSecret: "sec-wrong"})
	if !errors.Is(err, ErrInvalidClaim) {
		t.Errorf("expected ErrInvalidClaim for wrong secret on used token, got %v", err)
	}
}

func TestClaim_Expired(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	c := newTestClaimController(db, clock)

	token, err := c.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	clock.Advance(601 * time.Second)

	_, err = c.Claim(context.Background(), &ClaimRequest{ClaimPublicID: token.ClaimPublicID, ClaimSecret: token.ClaimSecret})
	if !errors.Is(err, ErrClaimExpired) || apperr.CodeOf(err) != apperr.FailedPrecondition {
		t.Fatalf("expected ErrClaimExpired, got %v", err)
	}

	// Expiry is not revealed to a wrong secret
	_, err = c.Claim(context.Background(), &ClaimRequest{ClaimPublicID: token.ClaimPublicID, ClaimSecret: "sec-bad"})
	if !errors.Is(err, ErrInvalidClaim) {
		t.Errorf("expected ErrInvalidClaim for wrong secret on expired token, got %v", err)
	}
}

func TestClaim_ConcurrentRedemptionLinksOnce(t *testing.T) {
	db := newTestDB(t)
	c := newTestClaimController(db, newFakeClock())

	token, err := c.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	keys := make([]string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := c.Claim(context.Background(), &ClaimRequest{ClaimPublicID: token.ClaimPublicID, ClaimSecret: token.ClaimSecret})
			errs[i] = err
			if result != nil {
				keys[i] = result.AgentAPIKey
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	var winningKey string
	for i, err := range errs {
		if err == nil {
			winners++
			winningKey = keys[i]
			continue
		}
		if !errors.Is(err, ErrClaimUsed) {
			t.Errorf("expected losers to see ErrClaimUsed, got %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", winners)
	}

	server, err := db.GetServer(models.ServerPath("alice", token.ServerID))
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if !utils.VerifyKeyHash(winningKey, server.Salt, server.APIKeyHash) {
		t.Errorf("stored hash must belong to the winning key")
	}
}

func TestClaim_MissingFields(t *testing.T) {
	db := newTestDB(t)
	c := newTestClaimController(db, newFakeClock())

	_, err := c.Claim(context.Background(), &ClaimRequest{ClaimPublicID: "pub-x"})
	if apperr.CodeOf(err) != apperr.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestClaim_CustomName(t *testing.T) {
	db := newTestDB(t)
	c := newTestClaimController(db, newFakeClock())

	token, err := c.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	if _, err := c.Claim(context.Background(), &ClaimRequest{
		ClaimPublicID: token.ClaimPublicID,
		ClaimSecret:   token.ClaimSecret,
		AgentName:     strPtr("Living Room NAS"),
	}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	server, err := db.GetServer(models.ServerPath("alice", token.ServerID))
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if server.Name != "Living Room NAS" {
		t.Errorf("expected custom name, got %q", server.Name)
	}
}
