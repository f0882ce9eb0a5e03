// Command ws_smoke connects to a running server as a conversation member,
// optionally posts a message over the REST API, and prints every realtime
// event it receives until the timeout expires.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pairchat/pairchat-server/internal/core"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	token := flag.String("token", "", "bearer token for a conversation member")
	conversation := flag.String("conversation", "", "conversation UUID to join")
	text := flag.String("text", "", "optional message to post after connecting")
	timeout := flag.Duration("timeout", 10*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" || *conversation == "" {
		log.Fatal("both -token and -conversation are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	wsURL := fmt.Sprintf("ws%s/ws?token=%s&conversation_id=%s", (*addr)[len("http"):], *token, *conversation)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *text != "" {
		if err := postMessage(ctx, *addr, *token, *conversation, *text); err != nil {
			log.Fatalf("post message: %v", err)
		}
	}

	for {
		var event core.Event
		if err := wsjson.Read(ctx, conn, &event); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Fatalf("read: %v (close status %d)", err, websocket.CloseStatus(err))
		}

		switch event.Type {
		case core.EventTypeMessageNew:
			fmt.Printf("message:new id=%s\n", event.MessageID)
		case core.EventTypeMessageUpdate:
			fmt.Printf("message:update id=%s content=%q\n", event.ID, *event.Content)
		case core.EventTypeMessageDelete:
			fmt.Printf("message:delete id=%s\n", event.ID)
		case core.EventTypePing:
			fmt.Println("ping")
		default:
			fmt.Printf("unknown event %q\n", event.Type)
		}
	}
}

func postMessage(ctx context.Context, addr, token, conversation, text string) error {
	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/conversations/%s/messages", addr, conversation)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
