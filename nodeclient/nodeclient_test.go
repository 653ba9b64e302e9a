package nodeclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo_DecodesOptionalFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		w.Write([]byte(`{"fullHeight": 12345, "difficulty": "99999999999999999999", "isMining": true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	info, err := c.Info(context.Background())
	require.NoError(t, err)
	require.NotNil(t, info.FullHeight)
	assert.Equal(t, int64(12345), *info.FullHeight)
	require.NotNil(t, info.Difficulty)
	assert.Equal(t, "99999999999999999999", info.Difficulty.String())
	require.NotNil(t, info.IsMining)
	assert.True(t, *info.IsMining)
	assert.Nil(t, info.PeersCount)
}

func TestBlockIDsAtHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/blocks/at/42", r.URL.Path)
		w.Write([]byte(`["abc123"]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	ids, err := c.BlockIDsAtHeight(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc123"}, ids)
}

func TestGetBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/blocks/abc123", r.URL.Path)
		w.Write([]byte(`{"header":{"id":"abc123","height":42},"blockTransactions":{"transactions":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	doc, err := c.GetBlock(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", doc.Header.ID)
	assert.Equal(t, int64(42), doc.Header.Height)
}

func TestNonOKStatus_ReturnsNodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, err := c.Info(context.Background())
	require.Error(t, err)
	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
}

func TestWalletUnlock_SendsAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret-key", r.Header.Get("api_key"))
		assert.Equal(t, "/wallet/unlock", r.URL.Path)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key")
	require.NoError(t, c.WalletUnlock(context.Background(), "hunter2"))
}

func TestMempoolSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("7"))
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	size, err := c.MempoolSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), size)
}
