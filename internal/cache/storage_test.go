package cache_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecheckout/internal/cache"
	"codecheckout/internal/shared/testutil"
)

// backendFactories builds one fresh backend per variant
func backendFactories(t *testing.T) map[string]func() *cache.Backend {
	return map[string]func() *cache.Backend{
		"memory": func() *cache.Backend {
			return cache.Open(cache.Capabilities{}, nil)
		},
		"web_storage": func() *cache.Backend {
			return cache.Open(cache.Capabilities{Web: cache.NewMapWebStore()}, nil)
		},
		"file": func() *cache.Backend {
			return cache.Open(cache.Capabilities{Dir: filepath.Join(t.TempDir(), "cache")}, nil)
		},
	}
}

// =============================================================================
// Storage contract
// =============================================================================

func TestStorage_SetThenGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []cache.Record{
		cache.NewRecord(true, "License is valid", now),
		cache.NewRecord(false, "License expired", now.Add(-48*time.Hour)),
		cache.NewRecord(false, "", now),
	}

	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory()
			key := cache.Key(testutil.TestSoftwareID, testutil.TestLicenseKey)

			_, ok := b.Records.Get(ctx, key)
			assert.False(t, ok, "unwritten key must be absent")

			for _, rec := range records {
				b.Records.Set(ctx, key, rec)
				got, ok := b.Records.Get(ctx, key)
				require.True(t, ok)
				assert.Equal(t, rec, got)
			}
		})
	}
}

func TestStorage_ClearOnlyOwnNamespace(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory()
			k1 := cache.Key("sw_1", "LK-1")
			k2 := cache.Key("sw_2", "LK-2")

			b.Records.Set(ctx, k1, cache.NewRecord(true, "ok", now))
			b.Records.Set(ctx, k2, cache.NewRecord(false, "no", now))
			b.Keys.Set(ctx, "sw_1", "LK-1")

			b.Records.Clear(ctx)

			_, ok := b.Records.Get(ctx, k1)
			assert.False(t, ok)
			_, ok = b.Records.Get(ctx, k2)
			assert.False(t, ok)

			key, ok := b.Keys.Get(ctx, "sw_1")
			assert.True(t, ok, "last-known keys are outside the record namespace")
			assert.Equal(t, "LK-1", key)
		})
	}
}

func TestStorage_Isolation(t *testing.T) {
	ctx := context.Background()
	factories := backendFactories(t)

	a := factories["memory"]()
	b := factories["memory"]()
	key := cache.Key("sw", "LK")

	a.Records.Set(ctx, key, cache.NewRecord(true, "ok", time.Now()))

	_, ok := b.Records.Get(ctx, key)
	assert.False(t, ok, "memory backends must not share state")
}

func TestKeyStore_GetSet(t *testing.T) {
	ctx := context.Background()

	for name, factory := range backendFactories(t) {
		t.Run(name, func(t *testing.T) {
			b := factory()

			_, ok := b.Keys.Get(ctx, testutil.TestSoftwareID)
			assert.False(t, ok)

			b.Keys.Set(ctx, testutil.TestSoftwareID, testutil.TestLicenseKey)
			b.Keys.Set(ctx, testutil.TestSoftwareID, testutil.OtherLicenseKey)

			got, ok := b.Keys.Get(ctx, testutil.TestSoftwareID)
			require.True(t, ok)
			assert.Equal(t, testutil.OtherLicenseKey, got)

			_, ok = b.Keys.Get(ctx, "sw_other")
			assert.False(t, ok)
		})
	}
}

// =============================================================================
// Selection
// =============================================================================

func TestOpen_Selection(t *testing.T) {
	tests := []struct {
		name string
		caps cache.Capabilities
		want cache.Kind
	}{
		{"no capabilities", cache.Capabilities{}, cache.KindMemory},
		{"directory only", cache.Capabilities{Dir: t.TempDir()}, cache.KindFile},
		{"web only", cache.Capabilities{Web: cache.NewMapWebStore()}, cache.KindWebStorage},
		{"web preferred over directory", cache.Capabilities{Web: cache.NewMapWebStore(), Dir: t.TempDir()}, cache.KindWebStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := cache.Open(tt.caps, nil)
			assert.Equal(t, tt.want, b.Kind())
			assert.Equal(t, tt.want, b.Records.Kind())
		})
	}
}

func TestDetect_UsesHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	caps := cache.Detect()

	assert.Nil(t, caps.Web)
	assert.Equal(t, filepath.Join(home, ".codecheckout", "cache"), caps.Dir)
}

// =============================================================================
// Key builder
// =============================================================================

func TestKey(t *testing.T) {
	assert.Equal(t, "sw_1:LK-1", cache.Key("sw_1", "LK-1"))
	assert.Equal(t, cache.Key("sw", "LK"), cache.Key("sw", "LK"), "deterministic")

	t.Run("separator in identifiers does not collide", func(t *testing.T) {
		a := cache.Key("a", "b:c")
		b := cache.Key("a:b", "c")

		assert.NotEqual(t, a, b)
		assert.Equal(t, "a:b:c", a)
		assert.Equal(t, "a%3Ab:c", b)
	})

	t.Run("escape character in identifiers does not collide", func(t *testing.T) {
		assert.NotEqual(t, cache.Key("a%3Ab", "c"), cache.Key("a:b", "c"))
	})
}

func TestRecord_Age(t *testing.T) {
	now := time.Now()
	rec := testutil.RecordAged(true, "ok", 90*time.Minute, now)

	assert.InDelta(t, (90 * time.Minute).Seconds(), rec.Age(now).Seconds(), 0.001)
}

// =============================================================================
// WebStorage specifics
// =============================================================================

type failingWebStore struct {
	*cache.MapWebStore
}

func (failingWebStore) SetItem(string, string) error {
	return errors.New("QuotaExceededError")
}

func TestWebStorage_ForeignKeysSurviveClear(t *testing.T) {
	ctx := context.Background()
	store := cache.NewMapWebStore()
	require.NoError(t, store.SetItem("theme", "dark"))
	require.NoError(t, store.SetItem("other_app_license_x", "{}"))

	w := cache.NewWebStorage(store, nil)
	w.Set(ctx, "sw:LK", cache.NewRecord(true, "ok", time.Now()))
	w.Clear(ctx)

	v, ok := store.GetItem("theme")
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
	_, ok = store.GetItem("other_app_license_x")
	assert.True(t, ok)
	assert.Equal(t, 2, store.Len())
}

func TestWebStorage_NonJSONReadsAbsent(t *testing.T) {
	ctx := context.Background()
	logger, handler := testutil.NewTestLogger()
	store := cache.NewMapWebStore()
	require.NoError(t, store.SetItem("codecheckout_license_sw:LK", "not-json"))

	w := cache.NewWebStorage(store, logger)
	_, ok := w.Get(ctx, "sw:LK")

	assert.False(t, ok)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "unreadable cache entry")
}

func TestWebStorage_WriteFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	logger, handler := testutil.NewTestLogger()
	store := failingWebStore{cache.NewMapWebStore()}

	w := cache.NewWebStorage(store, logger)
	w.Set(ctx, cache.Key("sw", testutil.TestLicenseKey), cache.NewRecord(true, "ok", time.Now()))

	_, ok := w.Get(ctx, cache.Key("sw", testutil.TestLicenseKey))
	assert.False(t, ok)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "Failed to write cache entry")
	assert.False(t, handler.ContainsText(testutil.TestLicenseKey), "license keys must not be logged")
}

// =============================================================================
// File specifics
// =============================================================================

func TestFile_CreatesDirectoryLazily(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	f := cache.NewFile(dir, nil)

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "directory must not exist before first write")

	f.Set(ctx, "sw:LK", cache.NewRecord(true, "ok", time.Now()))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestFile_Layout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := cache.Open(cache.Capabilities{Dir: dir}, nil)

	b.Records.Set(ctx, "sw:LK", cache.NewRecord(true, "ok", time.Now()))
	b.Keys.Set(ctx, "sw", "LK")

	assert.FileExists(t, filepath.Join(dir, "validation_sw%3ALK.json"))
	assert.FileExists(t, filepath.Join(dir, "license_sw.txt"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestFile_LongKeysUseHashedNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger, handler := testutil.NewTestLogger()
	b := cache.Open(cache.Capabilities{Dir: dir}, logger)

	longKey := "sw:" + strings.Repeat("K", 300)
	otherKey := "sw:" + strings.Repeat("K", 299) + "L"
	longID := strings.Repeat("s", 300)

	b.Records.Set(ctx, longKey, cache.NewRecord(true, "long", time.Now()))
	b.Records.Set(ctx, otherKey, cache.NewRecord(false, "other", time.Now()))
	b.Keys.Set(ctx, longID, "LK")

	rec, ok := b.Records.Get(ctx, longKey)
	require.True(t, ok)
	assert.Equal(t, "long", rec.Reason)

	rec, ok = b.Records.Get(ctx, otherKey)
	require.True(t, ok)
	assert.Equal(t, "other", rec.Reason)

	key, ok := b.Keys.Get(ctx, longID)
	require.True(t, ok)
	assert.Equal(t, "LK", key)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.LessOrEqual(t, len(e.Name()), 255, e.Name())
		assert.Contains(t, e.Name(), "sha256=")
	}
	assert.Empty(t, handler.GetRecordsByLevel(slog.LevelWarn), "writes must not fail")

	b.Records.Clear(ctx)
	_, ok = b.Records.Get(ctx, longKey)
	assert.False(t, ok)
}

func TestFile_CorruptedJSONReadsAbsent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	logger, handler := testutil.NewTestLogger()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validation_sw%3ALK.json"), []byte("{broken"), 0600))

	f := cache.NewFile(dir, logger)
	_, ok := f.Get(ctx, "sw:LK")

	assert.False(t, ok)
	testutil.AssertLogContains(t, handler, slog.LevelWarn, "corrupted cache file")
}

func TestFile_ClearLeavesForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validation_backup.txt"), []byte("x"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "validation_dir.json"), 0700))

	f := cache.NewFile(dir, nil)
	f.Set(ctx, "sw:LK", cache.NewRecord(true, "ok", time.Now()))
	f.Clear(ctx)

	assert.FileExists(t, filepath.Join(dir, "notes.json"))
	assert.FileExists(t, filepath.Join(dir, "validation_backup.txt"))
	assert.DirExists(t, filepath.Join(dir, "validation_dir.json"))
	assert.NoFileExists(t, filepath.Join(dir, "validation_sw%3ALK.json"))
}

func TestFile_ClearMissingDirectory(t *testing.T) {
	logger, handler := testutil.NewTestLogger()
	f := cache.NewFile(filepath.Join(t.TempDir(), "absent"), logger)

	f.Clear(context.Background())

	assert.Empty(t, handler.GetRecordsByLevel(slog.LevelWarn))
}

func TestFileKeyStore_TrimsOnRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "license_sw.txt"), []byte("  LK-1\n"), 0600))

	s := cache.NewFileKeyStore(dir, nil)
	got, ok := s.Get(ctx, "sw")

	require.True(t, ok)
	assert.Equal(t, "LK-1", got)
}

func TestFileKeyStore_BlankFileIsAbsent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "license_sw.txt"), []byte("\n\n"), 0600))

	_, ok := cache.NewFileKeyStore(dir, nil).Get(context.Background(), "sw")
	assert.False(t, ok)
}
