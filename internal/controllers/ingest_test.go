package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/amaumene/privatecinema/internal/apperr"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/utils"
)

func rawItems(t *testing.T, items ...interface{}) []json.RawMessage {
	t.Helper()
	raws := make([]json.RawMessage, len(items))
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		raws[i] = data
	}
	return raws
}

func movieItem(path string) map[string]interface{} {
	return map[string]interface{}{
		"title":    "Heat",
		"filename": "Heat.mkv",
		"path":     path,
		"type":     "movie",
		"size":     1024,
		"duration": 6000,
	}
}

func newTestIngestController(store IngestStore, clock *fakeClock) *IngestController {
	c := NewIngestController(store, utils.NewDiscardLogger())
	c.now = clock.Now
	return c
}

func TestIngest_MixedValidity(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	agent := linkAgent(t, db, clock, "alice")
	c := newTestIngestController(db, clock)

	bad := movieItem("/movies/bad.mkv")
	delete(bad, "title")

	resp, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t,
		movieItem("/movies/one.mkv"), bad, movieItem("/movies/three.mkv")))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c.Wait()

	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	want := []string{IngestStatusUpserted, IngestStatusError, IngestStatusUpserted}
	for i, r := range resp.Results {
		if r.Status != want[i] {
			t.Errorf("item %d: expected %s, got %s (%s)", i, want[i], r.Status, r.Message)
		}
	}
	if resp.Results[1].Path != "/movies/bad.mkv" || resp.Results[1].Message == "" {
		t.Errorf("expected error result to carry path and message: %+v", resp.Results[1])
	}
	if resp.OwnerUID != "alice" || resp.ServerID != agent.ServerID {
		t.Errorf("unexpected owner/server: %s/%s", resp.OwnerUID, resp.ServerID)
	}

	wantID := utils.SHA256Hex(agent.ServerID + ":/movies/one.mkv")
	if resp.Results[0].MediaID != wantID {
		t.Errorf("expected derived media id %s, got %s", wantID, resp.Results[0].MediaID)
	}
	media, err := db.GetMedia("alice", wantID)
	if err != nil {
		t.Fatalf("GetMedia: %v", err)
	}
	if media.Status != models.MediaStatusIndexed || media.ServerID != agent.ServerID {
		t.Errorf("unexpected media record: %+v", media)
	}
	if media.Season != nil || media.Codec != nil || media.TMDBID != nil {
		t.Errorf("expected absent optional fields to be null")
	}
}

func TestIngest_Idempotent(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	agent := linkAgent(t, db, clock, "alice")
	c := newTestIngestController(db, clock)

	first := movieItem("/movies/heat.mkv")
	first["addedAt"] = "2024-01-02T03:04:05Z"
	resp1, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t, first))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	firstUpdate := clock.Now()

	clock.Advance(time.Hour)
	resp2, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t, movieItem("/movies/heat.mkv")))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c.Wait()

	if resp1.Results[0].MediaID != resp2.Results[0].MediaID {
		t.Fatalf("expected stable media id, got %s and %s", resp1.Results[0].MediaID, resp2.Results[0].MediaID)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Media != 1 {
		t.Errorf("expected exactly one media record, got %d", stats.Media)
	}

	media, err := db.GetMedia("alice", resp1.Results[0].MediaID)
	if err != nil {
		t.Fatalf("GetMedia: %v", err)
	}
	added := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if media.AddedAt == nil || !media.AddedAt.Equal(added) {
		t.Errorf("expected addedAt to keep its first value, got %v", media.AddedAt)
	}
	if !media.UpdatedAt.After(firstUpdate) {
		t.Errorf("expected updatedAt to advance, got %v", media.UpdatedAt)
	}
}

func TestIngest_SuppliedMediaID(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	agent := linkAgent(t, db, clock, "alice")
	c := newTestIngestController(db, clock)

	item := movieItem("/movies/heat.mkv")
	item["mediaId"] = "custom-id"
	bad := movieItem("/movies/other.mkv")
	bad["mediaId"] = "../escape"

	resp, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t, item, bad))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c.Wait()

	if resp.Results[0].MediaID != "custom-id" {
		t.Errorf("expected supplied media id, got %s", resp.Results[0].MediaID)
	}
	if resp.Results[1].Status != IngestStatusError {
		t.Errorf("expected path-like media id to be rejected")
	}
}

func TestIngest_ItemValidation(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	agent := linkAgent(t, db, clock, "alice")
	c := newTestIngestController(db, clock)

	badType := movieItem("/a.mkv")
	badType["type"] = "documentary"
	zeroSize := movieItem("/b.mkv")
	zeroSize["size"] = 0
	badDate := movieItem("/c.mkv")
	badDate["addedAt"] = "yesterday"
	badURL := movieItem("/d.mkv")
	badURL["posterUrl"] = "not a url"
	mistyped := movieItem("/e.mkv")
	mistyped["season"] = "one"
	negative := movieItem("/f.mkv")
	negative["episode"] = -1

	resp, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t, badType, zeroSize, badDate, badURL, mistyped, negative))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c.Wait()

	for i, r := range resp.Results {
		if r.Status != IngestStatusError {
			t.Errorf("item %d: expected error, got %s", i, r.Status)
		}
		if r.MediaID != "" {
			t.Errorf("item %d: failed items carry no media id", i)
		}
	}
	if resp.Results[4].Path != "/e.mkv" {
		t.Errorf("expected decode failure to keep the path, got %q", resp.Results[4].Path)
	}
}

func TestIngest_Authentication(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	linkAgent(t, db, clock, "alice")
	c := newTestIngestController(db, clock)

	_, err := c.Ingest(context.Background(), "", rawItems(t, movieItem("/a.mkv")))
	if !errors.Is(err, ErrMissingAPIKey) || apperr.CodeOf(err) != apperr.Unauthenticated {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	_, err = c.Ingest(context.Background(), "", nil)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey for an empty batch without a key, got %v", err)
	}

	_, err = c.Ingest(context.Background(), "0000000000000000", rawItems(t, movieItem("/a.mkv")))
	if !errors.Is(err, ErrInvalidAPIKey) || apperr.CodeOf(err) != apperr.PermissionDenied {
		t.Errorf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestIngest_AuthenticatesLegacyRecordWithoutPrefix(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	agent := linkAgent(t, db, clock, "alice")

	path := models.ServerPath("alice", agent.ServerID)
	err := db.RunTransaction(func(tx *models.Tx) error {
		server, err := tx.GetServer(path)
		if err != nil {
			return err
		}
		server.KeyPrefix = ""
		return tx.PutServer(server)
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}

	c := newTestIngestController(db, clock)
	if _, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t, movieItem("/a.mkv"))); err != nil {
		t.Fatalf("expected key to authenticate without prefix, got %v", err)
	}
	c.Wait()
}

func TestIngest_RoutesToOwningUser(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	alice := linkAgent(t, db, clock, "alice")
	bob := linkAgent(t, db, clock, "bob")
	c := newTestIngestController(db, clock)

	resp, err := c.Ingest(context.Background(), bob.AgentAPIKey, rawItems(t, movieItem("/a.mkv")))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c.Wait()

	if resp.OwnerUID != "bob" || resp.ServerID != bob.ServerID {
		t.Fatalf("expected bob's server, got %s/%s", resp.OwnerUID, resp.ServerID)
	}
	if _, err := db.GetMedia("bob", resp.Results[0].MediaID); err != nil {
		t.Errorf("expected media under bob: %v", err)
	}
	if _, err := db.GetMedia("alice", resp.Results[0].MediaID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("media must not land under alice (%s)", alice.ServerID)
	}
}

func TestIngest_EnvelopeLimits(t *testing.T) {
	db := newTestDB(t)
	c := newTestIngestController(db, newFakeClock())

	resp, err := c.Ingest(context.Background(), "any", nil)
	if err != nil {
		t.Fatalf("expected empty ingest to succeed, got %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results")
	}

	items := make([]json.RawMessage, MaxIngestItems+1)
	for i := range items {
		items[i] = json.RawMessage(`{}`)
	}
	_, err = c.Ingest(context.Background(), "any", items)
	if apperr.CodeOf(err) != apperr.InvalidArgument {
		t.Fatalf("expected InvalidArgument for oversized envelope, got %v", err)
	}
}

func TestIngest_UpdatesLastSeen(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	agent := linkAgent(t, db, clock, "alice")
	c := newTestIngestController(db, clock)

	if _, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t, movieItem("/a.mkv"))); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	c.Wait()

	server, err := db.GetServer(models.ServerPath("alice", agent.ServerID))
	if err != nil {
		t.Fatalf("GetServer: %v", err)
	}
	if server.LastSeen == nil || !server.LastSeen.Equal(clock.Now()) {
		t.Errorf("expected lastSeen to be updated, got %v", server.LastSeen)
	}
}

// flakyStore fails selected batch commits and lastSeen updates
type flakyStore struct {
	*models.Database
	commits   int
	failOn    map[int]bool
	failTouch bool
}

func (f *flakyStore) CommitMediaBatch(uid string, upserts []*models.MediaUpsert, now time.Time) error {
	f.commits++
	if f.failOn[f.commits] {
		return fmt.Errorf("commit %d failed", f.commits)
	}
	return f.Database.CommitMediaBatch(uid, upserts, now)
}

func (f *flakyStore) TouchServer(ctx context.Context, path string, at time.Time) error {
	if f.failTouch {
		return errors.New("touch failed")
	}
	return f.Database.TouchServer(ctx, path, at)
}

func TestIngest_ChunkFailureDemotesChunk(t *testing.T) {
	db := newTestDB(t)
	clock := newFakeClock()
	agent := linkAgent(t, db, clock, "alice")

	store := &flakyStore{Database: db, failOn: map[int]bool{2: true}, failTouch: true}
	c := newTestIngestController(store, clock)
	c.chunkSize = 2

	var items []interface{}
	for i := 0; i < 5; i++ {
		items = append(items, movieItem(fmt.Sprintf("/movies/%d.mkv", i)))
	}
	resp, err := c.Ingest(context.Background(), agent.AgentAPIKey, rawItems(t, items...))
	if err != nil {
		t.Fatalf("lastSeen failure must not fail the request: %v", err)
	}
	c.Wait()

	want := []string{IngestStatusUpserted, IngestStatusUpserted, IngestStatusError, IngestStatusError, IngestStatusUpserted}
	for i, r := range resp.Results {
		if r.Status != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], r.Status)
		}
	}
	if store.commits != 3 {
		t.Errorf("expected 3 chunk commits, got %d", store.commits)
	}

	if _, err := db.GetMedia("alice", resp.Results[2].MediaID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("items of a failed chunk must not be stored")
	}
	if _, err := db.GetMedia("alice", resp.Results[4].MediaID); err != nil {
		t.Errorf("items of later chunks must be stored: %v", err)
	}
}
