package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oasislabs/ready-layer-two/protocol"
	"github.com/oasislabs/ready-layer-two/storage"
	"github.com/oasislabs/ready-layer-two/token"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(storage.NewMemoryMap[Account](), nil)
	require.NoError(t, err)
	return r
}

func rcFor(caller string) protocol.RequestContext {
	return protocol.NewRequestContext(caller, time.Unix(1000, 0))
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, "alice", "pw"))
	require.ErrorIs(t, r.Register(ctx, "alice", "other"), protocol.ErrUsernameTaken)

	// The failed registration must not replace the credential.
	_, err := r.SignIn(ctx, "alice", "other", "C")
	require.ErrorIs(t, err, protocol.ErrPermissionDenied)
	_, err = r.SignIn(ctx, "alice", "pw", "C")
	require.NoError(t, err)

	// Names are matched exactly.
	require.NoError(t, r.Register(ctx, "Alice", "pw"))
	require.NoError(t, r.Register(ctx, "alice ", "pw"))

	require.ErrorIs(t, r.Register(ctx, "", "pw"), ErrEmptyName)
}

func TestRegister_Concurrent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Register(ctx, "bob", "pw")
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, protocol.ErrUsernameTaken)
	}
	require.Equal(t, 1, succeeded)
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.Register(ctx, "alice", "pw"))

	_, err := r.SignIn(ctx, "mallory", "pw", "C")
	require.ErrorIs(t, err, protocol.ErrPermissionDenied)

	_, err = r.SignIn(ctx, "alice", "pw2", "C")
	require.ErrorIs(t, err, protocol.ErrPermissionDenied)

	_, err = r.SignIn(ctx, "alice", "", "C")
	require.ErrorIs(t, err, protocol.ErrPermissionDenied)

	issued, err := r.SignIn(ctx, "alice", "pw", "C")
	require.NoError(t, err)

	parsed, err := token.Parse(issued)
	require.NoError(t, err)
	require.Equal(t, "alice", parsed.Subject)
	require.Equal(t, "C", parsed.Audience)
}

func TestVerifyToken(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.Register(ctx, "alice", "pw"))

	issued, err := r.SignIn(ctx, "alice", "pw", "C")
	require.NoError(t, err)

	t.Run("intended audience", func(t *testing.T) {
		info, err := r.VerifyToken(ctx, rcFor("C"), issued)
		require.NoError(t, err)
		require.Equal(t, protocol.UserInfo{Name: "alice"}, info)
	})

	t.Run("other audience", func(t *testing.T) {
		_, err := r.VerifyToken(ctx, rcFor("D"), issued)
		require.ErrorIs(t, err, protocol.ErrPermissionDenied)
	})

	t.Run("garbage", func(t *testing.T) {
		for _, text := range []string{"", "garbage", "a.b", "a.b.c.d"} {
			_, err := r.VerifyToken(ctx, rcFor("C"), text)
			require.ErrorIs(t, err, protocol.ErrInvalidToken, text)
		}
	})

	t.Run("signed by another registry", func(t *testing.T) {
		other := newTestRegistry(t)
		require.NoError(t, other.Register(ctx, "alice", "pw"))
		foreign, err := other.SignIn(ctx, "alice", "pw", "C")
		require.NoError(t, err)

		_, err = r.VerifyToken(ctx, rcFor("C"), foreign)
		require.ErrorIs(t, err, protocol.ErrPermissionDenied)
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(issued, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		tampered := parts[0] + "." + parts[1] + "." + string(sig)

		_, err := r.VerifyToken(ctx, rcFor("C"), tampered)
		require.ErrorIs(t, err, protocol.ErrPermissionDenied)
	})

	t.Run("tampered anywhere", func(t *testing.T) {
		signatureStart := strings.LastIndex(issued, ".") + 1
		for i := range issued {
			if issued[i] == '.' {
				continue
			}
			b := []byte(issued)
			if b[i] == 'A' {
				b[i] = 'B'
			} else {
				b[i] = 'A'
			}
			_, err := r.VerifyToken(ctx, rcFor("C"), string(b))
			if i >= signatureStart {
				require.ErrorIs(t, err, protocol.ErrPermissionDenied, "byte %d", i)
				continue
			}
			require.Error(t, err, "byte %d", i)
			require.True(t, errors.Is(err, protocol.ErrInvalidToken) || errors.Is(err, protocol.ErrPermissionDenied),
				"byte %d: %v", i, err)
		}
	})

	t.Run("truncated signature", func(t *testing.T) {
		_, err := r.VerifyToken(ctx, rcFor("C"), issued[:len(issued)-1])
		require.ErrorIs(t, err, protocol.ErrPermissionDenied)
	})

	t.Run("no side effects", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			info, err := r.VerifyToken(ctx, rcFor("C"), issued)
			require.NoError(t, err)
			require.Equal(t, "alice", info.Name)
		}
	})
}

func TestNewRegistryWithSecret_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	accounts := storage.NewMemoryMap[Account]()
	secret, err := token.NewSecret()
	require.NoError(t, err)

	first, err := NewRegistryWithSecret(accounts, secret, nil)
	require.NoError(t, err)
	require.NoError(t, first.Register(ctx, "alice", "pw"))
	issued, err := first.SignIn(ctx, "alice", "pw", "C")
	require.NoError(t, err)

	second, err := NewRegistryWithSecret(accounts, secret, nil)
	require.NoError(t, err)
	info, err := second.VerifyToken(ctx, rcFor("C"), issued)
	require.NoError(t, err)
	require.Equal(t, "alice", info.Name)

	_, err = NewRegistryWithSecret(accounts, nil, nil)
	require.Error(t, err)
}

func TestLocalClient(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, r.Register(ctx, "alice", "pw"))
	issued, err := r.SignIn(ctx, "alice", "pw", "coordinator")
	require.NoError(t, err)

	info, err := NewLocalClient(r, "coordinator").VerifyToken(ctx, issued)
	require.NoError(t, err)
	require.Equal(t, "alice", info.Name)

	_, err = NewLocalClient(r, "someone-else").VerifyToken(ctx, issued)
	require.ErrorIs(t, err, protocol.ErrPermissionDenied)
}
