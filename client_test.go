package enginemux

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enginemux/enginemux-go/contracts"
	"github.com/enginemux/enginemux-go/serialization"
	"github.com/enginemux/enginemux-go/transports/inproc"
)

type updateStatus struct {
	Status string `json:"status"`
}

func (updateStatus) UpdateType() string { return "updateStatus" }

// echoHandler answers every request with a response echoing its correlation
// tag plus the given extra fields.
func echoHandler(t *testing.T, fields map[string]interface{}) inproc.RequestHandler {
	t.Helper()

	return func(clientID contracts.ClientID, request []byte) [][]byte {
		var req map[string]interface{}
		require.NoError(t, serialization.Unmarshal(request, &req))

		doc := map[string]interface{}{
			contracts.FieldExtra: req[contracts.FieldExtra],
		}
		for k, v := range fields {
			doc[k] = v
		}
		if marker, ok := req["marker"]; ok {
			doc["echo"] = marker
		}

		raw, err := serialization.Marshal(doc)
		require.NoError(t, err)
		return [][]byte{raw}
	}
}

// driveReceiveLoop runs the single receive loop the way an embedding
// application would, forwarding decoded updates until the engine closes.
func driveReceiveLoop(client *Client, updates chan<- contracts.Update) {
	for {
		update, _, err := client.Receive()
		if err != nil {
			return
		}
		if update != nil {
			updates <- update
		}
	}
}

func newTestClient(t *testing.T, engine *inproc.Engine) *Client {
	t.Helper()

	client, err := NewClient(engine, WithReceiveTimeout(10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("fails with nil transport", func(t *testing.T) {
		_, err := NewClient(nil)
		assert.Error(t, err)
	})

	t.Run("applies options", func(t *testing.T) {
		engine := inproc.NewEngine()
		defer engine.Close()

		client, err := NewClient(engine,
			WithDefaultLogger(),
			WithReceiveTimeout(time.Second),
			WithMetrics(prometheus.NewRegistry()),
		)
		require.NoError(t, err)
		defer client.Close()

		assert.NotNil(t, client.Dispatcher())
		assert.NotNil(t, client.Classifier())
		assert.NotNil(t, client.Registry())
		assert.NotNil(t, client.Types())
	})
}

func TestClientExecute(t *testing.T) {
	t.Run("round-trips a request through the receive loop", func(t *testing.T) {
		engine := inproc.NewEngine(inproc.WithHandler(echoHandler(t, map[string]interface{}{"result": "ok"})))
		defer engine.Close()

		client := newTestClient(t, engine)

		updates := make(chan contracts.Update, 8)
		go driveReceiveLoop(client, updates)

		clientID, err := client.CreateClient()
		require.NoError(t, err)

		env, err := client.Execute(context.Background(), clientID, map[string]interface{}{"@type": "getMe"})
		require.NoError(t, err)
		assert.Equal(t, "ok", env.Fields["result"])
		assert.Equal(t, 0, client.Registry().Len())
	})

	t.Run("concurrent requests each receive their own response", func(t *testing.T) {
		engine := inproc.NewEngine(inproc.WithHandler(echoHandler(t, nil)))
		defer engine.Close()

		client := newTestClient(t, engine)
		go driveReceiveLoop(client, make(chan contracts.Update, 8))

		clientID, err := client.CreateClient()
		require.NoError(t, err)

		const calls = 20
		var wg sync.WaitGroup
		for i := 0; i < calls; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				marker := fmt.Sprintf("request-%d", i)
				env, err := client.Execute(context.Background(), clientID, map[string]interface{}{
					"@type":  "ping",
					"marker": marker,
				})
				require.NoError(t, err)
				assert.Equal(t, marker, env.Fields["echo"])
			}(i)
		}
		wg.Wait()
	})

	t.Run("absorbs rate limiting invisibly", func(t *testing.T) {
		var attempts atomic.Int32
		handler := func(clientID contracts.ClientID, request []byte) [][]byte {
			var req map[string]interface{}
			require.NoError(t, serialization.Unmarshal(request, &req))

			var doc map[string]interface{}
			if attempts.Add(1) == 1 {
				doc = map[string]interface{}{
					contracts.FieldExtra: req[contracts.FieldExtra],
					"code":               429,
					"message":            "Too many requests: retry after 0",
				}
			} else {
				doc = map[string]interface{}{
					contracts.FieldExtra: req[contracts.FieldExtra],
					"result":             "eventually",
				}
			}

			raw, err := serialization.Marshal(doc)
			require.NoError(t, err)
			return [][]byte{raw}
		}

		engine := inproc.NewEngine(inproc.WithHandler(handler))
		defer engine.Close()

		client := newTestClient(t, engine)
		go driveReceiveLoop(client, make(chan contracts.Update, 8))

		clientID, err := client.CreateClient()
		require.NoError(t, err)

		env, err := client.Execute(context.Background(), clientID, map[string]interface{}{"@type": "ping"})
		require.NoError(t, err)
		assert.Equal(t, "eventually", env.Fields["result"])
		assert.Equal(t, int32(2), attempts.Load())
	})

	t.Run("close aborts in-flight requests", func(t *testing.T) {
		engine := inproc.NewEngine() // never responds
		defer engine.Close()

		client := newTestClient(t, engine)

		clientID, err := client.CreateClient()
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := client.Execute(context.Background(), clientID, map[string]interface{}{"@type": "ping"})
			done <- err
		}()

		// Let the request register before shutting down.
		for client.Registry().Len() == 0 {
			time.Sleep(time.Millisecond)
		}
		client.Close()

		assert.Error(t, <-done)
	})
}

func TestClientUpdates(t *testing.T) {
	t.Run("pushed updates reach the driving loop typed and in order", func(t *testing.T) {
		engine := inproc.NewEngine()
		defer engine.Close()

		client := newTestClient(t, engine)
		require.NoError(t, client.RegisterUpdate(updateStatus{}))

		updates := make(chan contracts.Update, 8)
		go driveReceiveLoop(client, updates)

		engine.Push([]byte(`{"@type":"updateStatus","@client_id":1,"status":"connecting"}`))
		engine.Push([]byte(`{"@type":"updateStatus","@client_id":1,"status":"ready"}`))

		first := <-updates
		second := <-updates
		assert.Equal(t, "connecting", first.(*updateStatus).Status)
		assert.Equal(t, "ready", second.(*updateStatus).Status)
	})

	t.Run("an undecodable update does not disturb later traffic", func(t *testing.T) {
		engine := inproc.NewEngine(inproc.WithHandler(echoHandler(t, map[string]interface{}{"result": "ok"})))
		defer engine.Close()

		client := newTestClient(t, engine)
		require.NoError(t, client.RegisterUpdate(updateStatus{}))

		updates := make(chan contracts.Update, 8)
		go driveReceiveLoop(client, updates)

		engine.Push([]byte(`{"@type":"updateMystery","@client_id":1,"payload":[1,2,3]}`))
		engine.Push([]byte(`{"@type":"updateStatus","@client_id":1,"status":"ready"}`))

		update := <-updates
		assert.Equal(t, "ready", update.(*updateStatus).Status)

		clientID, err := client.CreateClient()
		require.NoError(t, err)
		env, err := client.Execute(context.Background(), clientID, map[string]interface{}{"@type": "ping"})
		require.NoError(t, err)
		assert.Equal(t, "ok", env.Fields["result"])
	})
}
