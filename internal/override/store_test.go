package override

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/camerad/internal/infrastructure/config"
	"github.com/nerrad567/camerad/internal/infrastructure/database"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
	"github.com/nerrad567/camerad/migrations"
)

// setupStore opens a migrated in-memory database and returns a store on it.
func setupStore(t *testing.T) (*Store, *SQLiteRepository) {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: ":memory:", BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := NewSQLiteRepository(db.DB)
	return NewStore(repo), repo
}

type fakeSubscriber struct {
	mu      sync.Mutex
	topic   string
	handler mqtt.MessageHandler
}

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = topic
	f.handler = handler
	return nil
}

// ===== Repository =====

func TestSQLiteRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	_, repo := setupStore(t)

	if _, err := repo.Get(ctx, "CameraDebugExpGain"); !errors.Is(err, ErrParamNotFound) {
		t.Fatalf("Get() missing error = %v, want ErrParamNotFound", err)
	}

	if err := repo.Set(ctx, &Param{Key: "CameraDebugExpGain", Value: "3"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, &Param{Key: "CameraDebugExpGain", Value: "5"}); err != nil {
		t.Fatalf("Set() upsert error = %v", err)
	}
	p, err := repo.Get(ctx, "CameraDebugExpGain")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.Value != "5" {
		t.Errorf("Value = %q, want 5", p.Value)
	}

	if err := repo.Set(ctx, &Param{Key: "CameraDebugExpTime", Value: "400"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	params, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(params) != 2 || params[0].Key != "CameraDebugExpGain" || params[1].Key != "CameraDebugExpTime" {
		t.Errorf("List() = %+v", params)
	}

	if err := repo.Delete(ctx, "CameraDebugExpGain"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "CameraDebugExpGain"); !errors.Is(err, ErrParamNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrParamNotFound", err)
	}
}

// ===== Store =====

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)

	if got := store.Get("CameraDebugExpTime"); got != "" {
		t.Errorf("Get() unset = %q, want empty", got)
	}
	p, err := store.Set(ctx, "CameraDebugExpTime", "250")
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if p.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
	if got := store.Get("CameraDebugExpTime"); got != "250" {
		t.Errorf("Get() = %q, want 250", got)
	}

	if err := store.Delete(ctx, "CameraDebugExpTime"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Lookup("CameraDebugExpTime"); !errors.Is(err, ErrParamNotFound) {
		t.Errorf("Lookup() after delete error = %v", err)
	}
	if err := store.Delete(ctx, "CameraDebugExpTime"); !errors.Is(err, ErrParamNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrParamNotFound", err)
	}
}

func TestStore_RefreshCache(t *testing.T) {
	ctx := context.Background()
	store, repo := setupStore(t)

	if err := repo.Set(ctx, &Param{Key: "b", Value: "2"}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, &Param{Key: "a", Value: "1"}); err != nil {
		t.Fatal(err)
	}
	if got := store.Get("a"); got != "" {
		t.Fatalf("Get() before refresh = %q", got)
	}

	if err := store.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	params := store.List()
	if len(params) != 2 || params[0].Key != "a" || params[1].Value != "2" {
		t.Errorf("List() = %+v", params)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"CameraDebugExpGain", false},
		{"camera.debug-exp_1", false},
		{"", true},
		{"a/b", true},
		{"a+", true},
		{"with space", true},
		{string(make([]byte, maxKeyLength+1)), true},
	}
	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) error = %v, want ErrInvalidKey", tt.key, err)
		}
	}
}

// ===== MQTT =====

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	store, _ := setupStore(t)
	sub := &fakeSubscriber{}

	if err := store.Subscribe(ctx, sub); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub.topic != "camerad/config/params/+" {
		t.Errorf("topic = %q", sub.topic)
	}

	topic := mqtt.Topics{}.Param("CameraDebugExpGain")
	if err := sub.handler(topic, []byte("7")); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if got := store.Get("CameraDebugExpGain"); got != "7" {
		t.Errorf("Get() = %q, want 7", got)
	}

	// Empty payload clears; clearing twice is not an error.
	for range 2 {
		if err := sub.handler(topic, nil); err != nil {
			t.Fatalf("clear error = %v", err)
		}
	}
	if got := store.Get("CameraDebugExpGain"); got != "" {
		t.Errorf("Get() after clear = %q", got)
	}

	if err := sub.handler("camerad/config/params/", []byte("1")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("bad topic error = %v, want ErrInvalidKey", err)
	}
}
