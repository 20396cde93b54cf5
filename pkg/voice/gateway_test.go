package voice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// fakeGateway accepts one call, records the spoken prompt, and answers with
// the scripted transcript.
func fakeGateway(t *testing.T, transcript string, spoken *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			return
		}
		*spoken = f.Text

		if transcript != "" {
			_ = wsjson.Write(ctx, conn, frame{Type: frameTranscript, Text: transcript})
		}
		// Hold the call open until the client hangs up.
		_ = wsjson.Read(ctx, conn, &f)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestGatewayDeliverAndReply(t *testing.T) {
	var spoken string
	srv := fakeGateway(t, "cancel the meeting", &spoken)
	defer srv.Close()

	ch := NewGatewayChannel(wsURL(srv), time.Second)
	ctx := context.Background()

	require.NoError(t, ch.Deliver(ctx, "you have a conflict"))
	reply, err := ch.AwaitReply(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, "cancel the meeting", reply)
	assert.Equal(t, "you have a conflict", spoken)
}

func TestGatewayReplyDeadline(t *testing.T) {
	var spoken string
	srv := fakeGateway(t, "", &spoken)
	defer srv.Close()

	ch := NewGatewayChannel(wsURL(srv), time.Second)
	ctx := context.Background()

	require.NoError(t, ch.Deliver(ctx, "anyone there?"))
	_, err := ch.AwaitReply(ctx, time.Now().Add(50*time.Millisecond))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGatewayUnreachable(t *testing.T) {
	ch := NewGatewayChannel("ws://127.0.0.1:1/nope", 100*time.Millisecond)
	err := ch.Deliver(context.Background(), "hello")
	assert.Error(t, err)
}
