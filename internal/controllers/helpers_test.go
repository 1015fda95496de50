package controllers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/privatecinema/internal/config"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		HMACSecret:    "test-signing-key",
		ClaimTTL:      10 * time.Minute,
		ClaimCooldown: 30 * time.Second,
	}
}

func newTestClaimController(db *models.Database, clock *fakeClock) *ClaimController {
	c := NewClaimController(db, testConfig(), utils.NewDiscardLogger())
	c.now = clock.Now
	return c
}

// linkAgent runs the full claim handshake for uid and returns the agent key
func linkAgent(t *testing.T, db *models.Database, clock *fakeClock, uid string) *ClaimResult {
	t.Helper()
	claims := newTestClaimController(db, clock)

	token, err := claims.IssueToken(context.Background(), uid)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	result, err := claims.Claim(context.Background(), &ClaimRequest{
		ClaimPublicID: token.ClaimPublicID,
		ClaimSecret:   token.ClaimSecret,
	})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	return result
}

func seedMedia(t *testing.T, db *models.Database, uid string, upserts ...*models.MediaUpsert) {
	t.Helper()
	if err := db.CommitMediaBatch(uid, upserts, time.Now()); err != nil {
		t.Fatalf("CommitMediaBatch: %v", err)
	}
}

func intPtr(i int) *int           { return &i }
func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }
