package watch

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func TestSubscribeFanOut(t *testing.T) {
	r := NewRegistry(0)
	c1, c2, c3 := &fakeConn{}, &fakeConn{}, &fakeConn{}

	require.True(t, r.Subscribe(c1, "/home/**", SubscribeOptions{}))
	require.True(t, r.Subscribe(c2, "/home/user/*", SubscribeOptions{}))
	require.True(t, r.Subscribe(c3, "/var/**", SubscribeOptions{}))

	subs := r.SubscribersForPath("/home/user/file.txt")
	assert.Len(t, subs, 2)
	assert.Contains(t, subs, Conn(c1))
	assert.Contains(t, subs, Conn(c2))
	assert.NotContains(t, subs, Conn(c3))

	// Deeper path: the single-star pattern no longer matches.
	subs = r.SubscribersForPath("/home/user/sub/deep.txt")
	assert.Len(t, subs, 1)
	assert.Contains(t, subs, Conn(c1))
}

func TestSubscribeDeduplicatesConnections(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}

	require.True(t, r.Subscribe(c, "/a/**", SubscribeOptions{}))
	require.True(t, r.Subscribe(c, "/a/b/**", SubscribeOptions{}))

	// Both patterns match; the connection appears once.
	assert.Len(t, r.SubscribersForPath("/a/b/c"), 1)
}

func TestSubscribeDuplicateAndLimit(t *testing.T) {
	r := NewRegistry(2)
	c := &fakeConn{}

	assert.True(t, r.Subscribe(c, "/a", SubscribeOptions{}))
	assert.False(t, r.Subscribe(c, "/a", SubscribeOptions{}))
	assert.Equal(t, 1, r.SubscriptionCount(c))

	assert.True(t, r.Subscribe(c, "/b", SubscribeOptions{}))
	assert.False(t, r.Subscribe(c, "/c", SubscribeOptions{}))
	assert.Equal(t, 2, r.SubscriptionCount(c))
}

func TestSubscribeRejectsRelativePath(t *testing.T) {
	r := NewRegistry(0)
	assert.False(t, r.Subscribe(&fakeConn{}, "relative/path", SubscribeOptions{}))
}

func TestIsSubscribedIsExact(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}
	require.True(t, r.Subscribe(c, "/a/**", SubscribeOptions{}))

	assert.True(t, r.IsSubscribed(c, "/a/**"))
	// Matching a pattern is not being subscribed to it.
	assert.False(t, r.IsSubscribed(c, "/a/b"))
}

func TestUnsubscribe(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}
	require.True(t, r.Subscribe(c, "/a", SubscribeOptions{}))

	assert.True(t, r.Unsubscribe(c, "/a"))
	assert.False(t, r.Unsubscribe(c, "/a"))
	assert.Equal(t, 0, r.ConnectionCount())
}

func TestGroups(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}
	require.True(t, r.Subscribe(c, "/logs/**", SubscribeOptions{Group: "logs"}))
	require.True(t, r.Subscribe(c, "/logs/app/*", SubscribeOptions{Group: "logs"}))
	require.True(t, r.Subscribe(c, "/data/**", SubscribeOptions{Group: "data"}))

	assert.Equal(t, []string{"/logs/**", "/logs/app/*"}, r.SubscriptionsByGroup(c, "logs"))
	assert.Equal(t, 2, r.UnsubscribeGroup(c, "logs"))
	assert.Equal(t, 0, r.UnsubscribeGroup(c, "logs"))
	assert.Equal(t, []string{"/data/**"}, r.Subscriptions(c))
}

func TestMatchingPatterns(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}
	require.True(t, r.Subscribe(c, "/a/**", SubscribeOptions{}))
	require.True(t, r.Subscribe(c, "/a/b/*", SubscribeOptions{}))
	require.True(t, r.Subscribe(c, "/other", SubscribeOptions{}))

	assert.Equal(t, []string{"/a/**", "/a/b/*"}, r.MatchingPatterns(c, "/a/b/c"))
}

func TestRemoveConnection(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}
	require.True(t, r.Subscribe(c, "/a/**", SubscribeOptions{}))

	r.RemoveConnection(c)
	assert.Equal(t, 0, r.ConnectionCount())
	assert.Empty(t, r.SubscribersForPath("/a/b"))

	// Idempotent.
	r.RemoveConnection(c)
}

func TestHasPattern(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}
	require.True(t, r.Subscribe(c, "/a/**", SubscribeOptions{}))

	assert.True(t, r.HasPattern("/a/**"))
	assert.False(t, r.HasPattern("/b/**"))
}

func TestHandleMessageErrors(t *testing.T) {
	r := NewRegistry(1)
	c := &fakeConn{}

	cases := []struct {
		name string
		raw  string
		code string
	}{
		{"garbage", "not json", ErrInvalidJSON},
		{"array root", `[1, 2]`, ErrInvalidJSON},
		{"no type", `{"path": "/a"}`, ErrMissingType},
		{"bad type", `{"type": "watch", "path": "/a"}`, ErrUnknownType},
		{"non-string type", `{"type": 7, "path": "/a"}`, ErrUnknownType},
		{"no path", `{"type": "subscribe"}`, ErrMissingPath},
		{"non-string path", `{"type": "subscribe", "path": 42}`, ErrInvalidPath},
		{"relative path", `{"type": "subscribe", "path": "a/b"}`, ErrInvalidPath},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := r.HandleMessage(c, tc.raw)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.code, resp.Error)
		})
	}
}

func TestHandleMessageSubscribe(t *testing.T) {
	r := NewRegistry(1)
	c := &fakeConn{}

	resp := r.HandleMessage(c, `{"type": "subscribe", "path": "/a"}`)
	assert.True(t, resp.Success)
	assert.Equal(t, "/a", resp.Path)

	// Duplicate subscribe succeeds without state change.
	resp = r.HandleMessage(c, `{"type": "subscribe", "path": "/a"}`)
	assert.True(t, resp.Success)
	assert.Equal(t, 1, r.SubscriptionCount(c))

	// At capacity.
	resp = r.HandleMessage(c, `{"type": "subscribe", "path": "/b"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrLimitReached, resp.Error)

	resp = r.HandleMessage(c, `{"type": "unsubscribe", "path": "/a"}`)
	assert.True(t, resp.Success)
	assert.Equal(t, 0, r.SubscriptionCount(c))
}

func TestHandleMessageRecursive(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}

	resp := r.HandleMessage(c, `{"type": "subscribe", "path": "/data", "recursive": true}`)
	require.True(t, resp.Success)
	assert.Equal(t, "/data/**", resp.Path)
	assert.True(t, resp.Recursive)

	assert.Len(t, r.SubscribersForPath("/data/deep/nested/file"), 1)
	assert.Len(t, r.SubscribersForPath("/data"), 1)
	assert.Empty(t, r.SubscribersForPath("/database"))
}

func TestHandleMessageGroup(t *testing.T) {
	r := NewRegistry(0)
	c := &fakeConn{}

	resp := r.HandleMessage(c, `{"type": "subscribe", "path": "/a", "group": "g1"}`)
	require.True(t, resp.Success)
	assert.Equal(t, []string{"/a"}, r.SubscriptionsByGroup(c, "g1"))
}
