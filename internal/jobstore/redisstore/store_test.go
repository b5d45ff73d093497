package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore"
)

// creates new store connected to miniredis for testing
func newMini(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	s, err := New(ctx, mr.Addr(), ttl)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestPutGetList_HappyPath(t *testing.T) {
	s, mr := newMini(t, time.Hour)
	ctx := context.Background()

	recs := []jobstore.Record{
		{RunID: "run1", Date: "2023-01-16", OrderName: "SiteC_20230116", State: "polling", Attempts: 2},
		{RunID: "run1", Date: "2023-01-15", OrderName: "SiteC_20230115", State: "succeeded", Files: []string{"o1/a.zip"}},
	}
	for _, r := range recs {
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if !mr.Exists("planet:jobs:run1") {
		t.Fatal("run hash not created")
	}
	if ttl := mr.TTL("planet:jobs:run1"); ttl != time.Hour {
		t.Fatalf("ttl=%v want 1h", ttl)
	}

	got, err := s.Get(ctx, "run1", "2023-01-15")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != "succeeded" || len(got.Files) != 1 || got.Files[0] != "o1/a.zip" {
		t.Fatalf("unexpected record: %+v", got)
	}

	list, err := s.List(ctx, "run1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Date != "2023-01-15" || list[1].Attempts != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestPing_FollowsServer(t *testing.T) {
	s, mr := newMini(t, 0)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Ping(ctx); err == nil {
		t.Fatal("ping after server close should fail")
	}
}

func TestGet_MissingIsNotFound(t *testing.T) {
	s, _ := newMini(t, 0)
	_, err := s.Get(context.Background(), "run1", "2023-01-15")
	if !errors.Is(err, jobstore.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPut_NoTTLKeepsKey(t *testing.T) {
	s, mr := newMini(t, 0)
	if err := s.Put(context.Background(), jobstore.Record{RunID: "r", Date: "d", State: "created"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ttl := mr.TTL("planet:jobs:r"); ttl != 0 {
		t.Fatalf("ttl=%v want none", ttl)
	}
	mr.FastForward(48 * time.Hour)
	if !mr.Exists("planet:jobs:r") {
		t.Fatal("key expired without ttl")
	}
}

func TestPut_ExpiresAfterTTL(t *testing.T) {
	s, mr := newMini(t, time.Minute)
	if err := s.Put(context.Background(), jobstore.Record{RunID: "r", Date: "d"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	list, err := s.List(context.Background(), "r")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected expired run, got %+v", list)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), "", 0); err == nil {
		t.Fatal("empty address must fail")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := New(ctx, "127.0.0.1:1", 0, WithDialTimeout(100*time.Millisecond)); err == nil {
		t.Fatal("unreachable redis must fail ping")
	}
}
