package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jcarweb/repuestospro-sub005/internal/audit/domain"
	devicedomain "github.com/jcarweb/repuestospro-sub005/internal/device/domain"
	"github.com/jcarweb/repuestospro-sub005/internal/kv"
	"github.com/jcarweb/repuestospro-sub005/internal/kv/memory"
)

func TestKVRepository_SaveLoad(t *testing.T) {
	store := memory.New()
	repo := NewKVRepository(store)
	ctx := context.Background()

	got, err := repo.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("Load(empty) = %v, %v", got, err)
	}

	ts := time.Date(2026, 5, 4, 10, 30, 0, 123_000_000, time.UTC)
	in := []domain.Event{{
		ID:        "e1",
		Type:      domain.EventLogin,
		Timestamp: ts,
		Device:    devicedomain.Info{Platform: "android", AppVersion: "1.2", DeviceID: "d1"},
		Failed:    true,
		Location:  &domain.Location{Latitude: 10.5, Longitude: -66.9},
	}}
	if err := repo.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err = repo.Load(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("Load = %v, %v", got, err)
	}
	e := got[0]
	if e.ID != "e1" || e.Type != domain.EventLogin || !e.Failed || e.Device.DeviceID != "d1" {
		t.Errorf("Load = %+v", e)
	}
	if !e.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, ts)
	}
	if e.Location == nil || e.Location.Latitude != 10.5 {
		t.Errorf("Location = %+v", e.Location)
	}

	if err := repo.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := store.Get(ctx, kv.KeyEvents); ok {
		t.Error("history still stored after Clear")
	}
}

func TestKVRepository_LoadCorrupt(t *testing.T) {
	store := memory.New()
	_ = store.Put(context.Background(), kv.KeyEvents, []byte("{oops"))
	_, err := NewKVRepository(store).Load(context.Background())
	if !errors.Is(err, domain.ErrCorrupt) {
		t.Fatalf("Load = %v, want ErrCorrupt", err)
	}
}
