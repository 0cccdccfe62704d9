package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func jpeg(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer img.Close()
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	require.NoError(t, err)
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...)
}

func TestLive(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.srv.Router())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/live"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := jpeg(t)
	send := func(mt int, data []byte) liveUpdate {
		require.NoError(t, conn.WriteMessage(mt, data))
		var u liveUpdate
		require.NoError(t, conn.ReadJSON(&u))
		return u
	}

	u := send(websocket.BinaryMessage, frame)
	assert.True(t, u.Detected)
	assert.True(t, u.Down)
	assert.Equal(t, 0, u.Count)

	u = send(websocket.BinaryMessage, frame)
	assert.False(t, u.Down)
	assert.Equal(t, 1, u.Count)

	u = send(websocket.BinaryMessage, []byte("not an image"))
	assert.NotEmpty(t, u.Error)
	assert.Equal(t, 1, u.Count)

	t.Run("single worker is busy", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	u = send(websocket.TextMessage, []byte("reset"))
	assert.Equal(t, 0, u.Count)
	assert.False(t, u.Down)

	u = send(websocket.TextMessage, []byte("hello"))
	assert.Equal(t, "unsupported message", u.Error)
}
