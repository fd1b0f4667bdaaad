package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// WSConfirmerConfig configures WebSocket confirmation behavior.
type WSConfirmerConfig struct {
	// HeightCheckInterval is how often the blockhash expiry window is
	// re-checked over RPC while waiting for the notification.
	HeightCheckInterval time.Duration
	// WriteTimeout bounds the subscribe request write.
	WriteTimeout time.Duration
}

// DefaultWSConfirmerConfig returns default WebSocket configuration.
func DefaultWSConfirmerConfig() WSConfirmerConfig {
	return WSConfirmerConfig{
		HeightCheckInterval: 5 * time.Second,
		WriteTimeout:        10 * time.Second,
	}
}

// WSConfirmer confirms transactions via signatureSubscribe. The
// subscription fires once when the signature reaches the requested
// commitment, which avoids hammering getSignatureStatuses. Expiry is
// still detected over RPC because the subscription never fires for a
// transaction that silently dropped.
type WSConfirmer struct {
	endpoint string
	rpc      RPCClient
	config   WSConfirmerConfig
}

// NewWSConfirmer creates a WebSocket-based confirmer.
func NewWSConfirmer(endpoint string, rpc RPCClient, config WSConfirmerConfig) *WSConfirmer {
	return &WSConfirmer{endpoint: endpoint, rpc: rpc, config: config}
}

// Verify interface compliance at compile time.
var _ Confirmer = (*WSConfirmer)(nil)

// wsRequest is a JSON-RPC 2.0 request over the socket.
type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// wsMessage is either a subscribe response or a notification.
type wsMessage struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Method string          `json:"method,omitempty"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Value struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params,omitempty"`
	Error *RPCError `json:"error,omitempty"`
}

// ConfirmTransaction subscribes to the signature and waits for the
// one-shot notification, failing over to ErrTransactionExpired when the
// height window closes first.
func (c *WSConfirmer) ConfirmTransaction(ctx context.Context, signature string, lastValidBlockHeight uint64, commitment Commitment) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial ws endpoint: %w", err)
	}
	defer conn.Close()

	sub := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]interface{}{"commitment": string(commitment)},
		},
	}
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("write signatureSubscribe: %w", err)
	}

	// Reader goroutine feeds messages; the select loop arbitrates
	// between notification, expiry and cancellation. done stops the
	// reader once the caller has its answer so it cannot sit on a
	// blocked send forever.
	msgs := make(chan wsMessage, 2)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case readErr <- err:
				case <-done:
				}
				return
			}
			select {
			case msgs <- msg:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(c.config.HeightCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("ws read: %w", err)

		case msg := <-msgs:
			if msg.Error != nil {
				return fmt.Errorf("signatureSubscribe rejected: %w", msg.Error)
			}
			if msg.Method != "signatureNotification" || msg.Params == nil {
				continue // subscribe ack
			}
			if txErr := msg.Params.Result.Value.Err; len(txErr) > 0 && string(txErr) != "null" {
				return fmt.Errorf("transaction %s failed on-chain: %s", signature, string(txErr))
			}
			return nil

		case <-ticker.C:
			if lastValidBlockHeight == 0 {
				continue
			}
			height, err := c.rpc.GetBlockHeight(ctx)
			if err != nil {
				continue // transient; the subscription may still fire
			}
			if height > lastValidBlockHeight {
				return ErrTransactionExpired
			}
		}
	}
}
