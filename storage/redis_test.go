package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/richinex/inkwell/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisSessionStore(client, ttl)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	ctx := context.Background()

	sess := session.New("r1", "Blog Post Generator")
	require.NoError(t, sess.State.Set("blog_posts", map[string]string{"go": "# Go"}))
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Load(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Blog Post Generator", loaded.WorkflowName)

	var posts map[string]string
	_, err = loaded.State.Get("blog_posts", &posts)
	require.NoError(t, err)
	assert.Equal(t, "# Go", posts["go"])
}

func TestRedisSessionStoreSetsTTL(t *testing.T) {
	store, mr := newRedisStore(t, 10*time.Minute)
	require.NoError(t, store.Save(context.Background(), session.New("r1", "wf")))

	assert.Equal(t, 10*time.Minute, mr.TTL(redisSessionPrefix+"r1"))
}

func TestRedisSessionStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, session.New("r1", "wf")))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "r1")
	assert.ErrorIs(t, err, session.ErrNotFound)

	ids, err := store.List(ctx, "wf")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRedisSessionStoreListAndDelete(t *testing.T) {
	store, _ := newRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, session.New("b", "blog")))
	require.NoError(t, store.Save(ctx, session.New("a", "blog")))

	ids, err := store.List(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "a"))
	ids, err = store.List(ctx, "blog")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestOpenRedisSessionStore(t *testing.T) {
	mr := miniredis.RunT(t)

	store, err := OpenRedisSessionStore(context.Background(), "redis://"+mr.Addr(), 0)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, DefaultSessionTTL, store.ttl)

	_, err = OpenRedisSessionStore(context.Background(), "not a url", 0)
	assert.Error(t, err)
}
