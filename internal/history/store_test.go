package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sha1n/relic-rag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, maxTurns int, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, maxTurns, ttl)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

// storeFactories lets every behavioral test run against both implementations.
func storeFactories() map[string]func(t *testing.T, maxTurns int) Store {
	return map[string]func(t *testing.T, maxTurns int) Store{
		"memory": func(t *testing.T, maxTurns int) Store {
			return NewMemoryStore(maxTurns, 0)
		},
		"redis": func(t *testing.T, maxTurns int) Store {
			store, _ := newTestRedisStore(t, maxTurns, 0)
			return store
		},
	}
}

func TestStore_AppendAndHistory(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 10)

			require.NoError(t, store.Append(ctx, "alice", "c1", domain.UserTurn("hi")))
			require.NoError(t, store.Append(ctx, "alice", "c1", domain.UserTurn("q"), domain.AssistantTurn("a")))

			turns, err := store.History(ctx, "alice", "c1")
			require.NoError(t, err)
			assert.Equal(t, []domain.Turn{
				{Role: "user", Content: "hi"},
				{Role: "user", Content: "q"},
				{Role: "assistant", Content: "a"},
			}, turns)
		})
	}
}

func TestStore_EmptyHistory(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			turns, err := newStore(t, 10).History(context.Background(), "alice", "unknown")
			require.NoError(t, err)
			assert.Empty(t, turns)
		})
	}
}

func TestStore_Bound(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 4)

			for i := range 9 {
				require.NoError(t, store.Append(ctx, "bob", "c", domain.UserTurn(fmt.Sprint(i))))
				turns, err := store.History(ctx, "bob", "c")
				require.NoError(t, err)
				assert.LessOrEqual(t, len(turns), 4)
			}

			turns, err := store.History(ctx, "bob", "c")
			require.NoError(t, err)
			assert.Equal(t, []domain.Turn{
				domain.UserTurn("5"), domain.UserTurn("6"), domain.UserTurn("7"), domain.UserTurn("8"),
			}, turns)
		})
	}
}

func TestStore_BatchLargerThanBound(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 2)

			require.NoError(t, store.Append(ctx, "bob", "c",
				domain.UserTurn("1"), domain.AssistantTurn("2"), domain.UserTurn("3")))

			turns, err := store.History(ctx, "bob", "c")
			require.NoError(t, err)
			assert.Equal(t, []domain.Turn{domain.AssistantTurn("2"), domain.UserTurn("3")}, turns)
		})
	}
}

func TestStore_Namespacing(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 10)

			require.NoError(t, store.Append(ctx, "alice", "c1", domain.UserTurn("alice c1")))
			require.NoError(t, store.Append(ctx, "alice", "c2", domain.UserTurn("alice c2")))
			require.NoError(t, store.Append(ctx, "bob", "c1", domain.UserTurn("bob c1")))
			require.NoError(t, store.Append(ctx, "a:b", "c", domain.UserTurn("colon user")))
			require.NoError(t, store.Append(ctx, "a", "b:c", domain.UserTurn("colon conversation")))

			cases := map[[2]string]string{
				{"alice", "c1"}: "alice c1",
				{"alice", "c2"}: "alice c2",
				{"bob", "c1"}:   "bob c1",
				{"a:b", "c"}:    "colon user",
				{"a", "b:c"}:    "colon conversation",
			}
			for k, want := range cases {
				turns, err := store.History(ctx, k[0], k[1])
				require.NoError(t, err)
				assert.Equal(t, []domain.Turn{domain.UserTurn(want)}, turns, "%v", k)
			}
		})
	}
}

func TestStore_Clear(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 10)

			require.NoError(t, store.Append(ctx, "alice", "c1", domain.UserTurn("x")))
			require.NoError(t, store.Append(ctx, "alice", "c2", domain.UserTurn("y")))
			require.NoError(t, store.Clear(ctx, "alice", "c1"))

			turns, err := store.History(ctx, "alice", "c1")
			require.NoError(t, err)
			assert.Empty(t, turns)

			turns, err = store.History(ctx, "alice", "c2")
			require.NoError(t, err)
			assert.Len(t, turns, 1)

			assert.NoError(t, store.Clear(ctx, "alice", "never-existed"))
		})
	}
}

func TestStore_InvalidKey(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 10)

			assert.ErrorIs(t, store.Append(ctx, "", "c", domain.UserTurn("x")), ErrInvalidKey)
			_, err := store.History(ctx, "alice", "")
			assert.ErrorIs(t, err, ErrInvalidKey)
			assert.ErrorIs(t, store.Clear(ctx, "", ""), ErrInvalidKey)
		})
	}
}

func TestStore_ConcurrentAppendsSameConversation(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 100)

			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					q := fmt.Sprintf("q%d", i)
					a := fmt.Sprintf("a%d", i)
					assert.NoError(t, store.Append(ctx, "alice", "c", domain.UserTurn(q), domain.AssistantTurn(a)))
				}()
			}
			wg.Wait()

			turns, err := store.History(ctx, "alice", "c")
			require.NoError(t, err)
			require.Len(t, turns, 40)

			// each question is immediately followed by its own answer
			for i := 0; i < len(turns); i += 2 {
				require.Equal(t, domain.RoleUser, turns[i].Role)
				require.Equal(t, domain.RoleAssistant, turns[i+1].Role)
				assert.Equal(t, "a"+turns[i].Content[1:], turns[i+1].Content)
			}
		})
	}
}

func TestMemoryStore_HistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 0)
	require.NoError(t, store.Append(ctx, "alice", "c", domain.UserTurn("original")))

	turns, err := store.History(ctx, "alice", "c")
	require.NoError(t, err)
	turns[0].Content = "mutated"

	again, err := store.History(ctx, "alice", "c")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Content)
}

func TestMemoryStore_ClearWaitsForInFlightAppend(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 0)
	require.NoError(t, store.Append(ctx, "alice", "c1", domain.UserTurn("q")))

	// Hold the lock the way an Append does between reading and writing the turns.
	store.mu.Lock()
	cleared := make(chan error, 1)
	go func() { cleared <- store.Clear(ctx, "alice", "c1") }()

	select {
	case <-cleared:
		store.mu.Unlock()
		t.Fatal("Clear completed while an append held the conversation")
	case <-time.After(50 * time.Millisecond):
	}
	turns, err := store.History(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	store.mu.Unlock()
	require.NoError(t, <-cleared)

	turns, err = store.History(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestStore_ClearRacingAppends(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, 100)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(2)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.Append(ctx, "alice", "c1", domain.UserTurn(fmt.Sprintf("q%d", i)), domain.AssistantTurn("a")))
				}(i)
				go func() {
					defer wg.Done()
					assert.NoError(t, store.Clear(ctx, "alice", "c1"))
				}()
			}
			wg.Wait()

			turns, err := store.History(ctx, "alice", "c1")
			require.NoError(t, err)
			assert.Equal(t, 0, len(turns)%2, "appends and clears never interleave inside an exchange")
		})
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(10, 20*time.Millisecond)
	require.NoError(t, store.Append(ctx, "alice", "c", domain.UserTurn("x")))

	time.Sleep(40 * time.Millisecond)

	turns, err := store.History(ctx, "alice", "c")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestMemoryStore_DefaultMaxTurns(t *testing.T) {
	store := NewMemoryStore(0, 0)
	assert.Equal(t, DefaultMaxTurns, store.maxTurns)
}

func TestRedisStore_KeyFormatAndTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 10, time.Hour)

	require.NoError(t, store.Append(ctx, "alice", "c1", domain.UserTurn("hello")))

	key := "chat:alice:c1"
	require.True(t, mr.Exists(key))
	items, err := mr.List(key)
	require.NoError(t, err)
	assert.Equal(t, []string{`{"role":"user","content":"hello"}`}, items)
	assert.Equal(t, time.Hour, mr.TTL(key))
}

func TestRedisStore_SkipsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 10, 0)

	_, err := mr.Push("chat:alice:c1", "not json", `{"role":"assistant","content":"ok"}`)
	require.NoError(t, err)

	turns, err := store.History(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Turn{domain.AssistantTurn("ok")}, turns)
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, 10, 0)
	mr.Close()

	assert.Error(t, store.Append(ctx, "alice", "c", domain.UserTurn("x")))
	_, err := store.History(ctx, "alice", "c")
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	assert.NoError(t, client.Close())

	_, err = DialRedis(context.Background(), "not-a-url")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	key, err := Key("alice", "c1")
	require.NoError(t, err)
	assert.Equal(t, "chat:alice:c1", key)

	a, _ := Key("a:b", "c")
	b, _ := Key("a", "b:c")
	assert.NotEqual(t, a, b)
}
