package transfercode

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/titlevault/pkg/identity"
	"github.com/Mindburn-Labs/titlevault/pkg/property"

	_ "modernc.org/sqlite"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestIssueAndResolve(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	dir := identity.NewMemoryDirectory()
	require.NoError(t, dir.Put(ctx, identity.User{ID: "u1", Name: "Asha", Role: "citizen", NationalID: "123456789012", Wallet: "0xabcdef0123456789abcdef0123456789abcdef01"}))
	iss := NewIssuer(NewMemoryStore(), dir).WithClock(clk.Now)

	c, err := iss.Issue(ctx, "0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Len(t, c.Code, 8)
	assert.Equal(t, NormalizeCode(c.Code), c.Code)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", c.Wallet)
	assert.Equal(t, t0.Add(DefaultTTL), c.ExpiresAt)
	assert.False(t, c.Used)

	res, err := iss.Resolve(ctx, " "+c.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, c.Wallet, res.Code.Wallet)
	assert.False(t, res.Code.Used)
	require.NotNil(t, res.User)
	assert.Equal(t, "XXXXXXXX9012", res.User.MaskedNationalID)

	// Resolution does not consume the code.
	_, err = iss.Resolve(ctx, c.Code)
	require.NoError(t, err)

	clk.now = t0.Add(DefaultTTL + time.Second)
	_, err = iss.Resolve(ctx, c.Code)
	require.ErrorIs(t, err, property.ErrCodeExpired)
	assert.Equal(t, property.ClassTerminal, property.Classify(err))
}

func TestResolve_WithoutBoundUser(t *testing.T) {
	ctx := context.Background()
	iss := NewIssuer(NewMemoryStore(), identity.NewMemoryDirectory())
	c, err := iss.Issue(ctx, "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)

	res, err := iss.Resolve(ctx, c.Code)
	require.NoError(t, err)
	assert.Nil(t, res.User)
}

func TestIssue_InvalidWallet(t *testing.T) {
	_, err := NewIssuer(NewMemoryStore(), nil).Issue(context.Background(), "0x123")
	require.ErrorIs(t, err, property.ErrValidation)
}

func TestIssue_CollisionsAreBounded(t *testing.T) {
	ctx := context.Background()
	// A constant entropy source yields the same code every time.
	iss := NewIssuer(NewMemoryStore(), nil).WithRandom(bytes.NewReader(bytes.Repeat([]byte{0xab}, 64)))

	c, err := iss.Issue(ctx, "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	assert.Equal(t, "ABABABAB", c.Code)

	_, err = iss.Issue(ctx, "0x2222222222222222222222222222222222222222")
	require.ErrorIs(t, err, property.ErrCodeSpaceExhausted)
	assert.True(t, property.Retryable(err))
}

func TestCheck_ExpiryReportedBeforeUse(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	iss := NewIssuer(NewMemoryStore(), nil).WithClock(clk.Now).WithTTL(time.Minute)

	c, err := iss.Issue(ctx, "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)

	_, err = iss.Check(ctx, "")
	require.ErrorIs(t, err, property.ErrValidation)
	_, err = iss.Check(ctx, "FFFFFFFF")
	require.ErrorIs(t, err, property.ErrNotFound)

	require.NoError(t, iss.Redeem(ctx, c.Code))
	_, err = iss.Check(ctx, c.Code)
	require.ErrorIs(t, err, property.ErrCodeUsed)
	require.ErrorIs(t, iss.Redeem(ctx, c.Code), property.ErrCodeUsed)

	// Exactly at expiresAt the code is already expired.
	clk.now = c.ExpiresAt
	_, err = iss.Check(ctx, c.Code)
	require.ErrorIs(t, err, property.ErrCodeExpired)
	assert.NotErrorIs(t, err, property.ErrCodeUsed)
}

func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	c := Code{Code: "0A1B2C3D", Wallet: "0x2222222222222222222222222222222222222222", ExpiresAt: t0.Add(DefaultTTL), CreatedAt: t0}

	_, err := s.Get(ctx, c.Code)
	require.ErrorIs(t, err, property.ErrNotFound)
	require.ErrorIs(t, s.MarkUsed(ctx, c.Code), property.ErrNotFound)

	require.NoError(t, s.Insert(ctx, c))
	require.ErrorIs(t, s.Insert(ctx, c), property.ErrDuplicate)

	got, err := s.Get(ctx, c.Code)
	require.NoError(t, err)
	assert.Equal(t, c.Wallet, got.Wallet)
	assert.True(t, c.ExpiresAt.Equal(got.ExpiresAt))
	assert.False(t, got.Used)

	require.NoError(t, s.MarkUsed(ctx, c.Code))
	require.ErrorIs(t, s.MarkUsed(ctx, c.Code), property.ErrCodeUsed)

	got, err = s.Get(ctx, c.Code)
	require.NoError(t, err)
	assert.True(t, got.Used)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestSQLStore(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "codes.db"))
	require.NoError(t, err)
	defer db.Close()

	s := NewSQLStore(db)
	require.NoError(t, s.Init(context.Background()))
	storeContract(t, s)
}

// TestRedisStore_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisStore_Integration(t *testing.T) {
	s := NewRedisStoreFromAddr("localhost:6379", "", 0)
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	s.prefix = "titlevault:test:" + t.Name() + ":" + time.Now().Format("150405.000000") + ":"
	storeContract(t, s)
}
