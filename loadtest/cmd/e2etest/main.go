// Package main implements a standalone end-to-end integration test for the
// realtime delivery server. It validates the delivery contract against a
// running server: health checks, join-then-deliver, non-delivery to unjoined
// connections, multi-device fan-out, seen-receipt targeting, notification
// delivery, and membership loss on reconnect.
//
// Usage:
//
//	go run ./cmd/e2etest/ [-url ws://localhost:8080/ws] [-api http://localhost:8080] [-timeout 60s]
//
// Exit code 0 if all required scenarios pass, 1 if any fail.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/socialink/realtime/loadtest/client"
)

// ---------------------------------------------------------------------------
// Result tracking
// ---------------------------------------------------------------------------

// resultKind categorises a scenario outcome.
type resultKind int

const (
	resultPass resultKind = iota
	resultFail
)

// scenarioResult holds the outcome of a single test scenario.
type scenarioResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r scenarioResult) tag() string {
	if r.kind == resultPass {
		return "PASS"
	}
	return "FAIL"
}

// deliveryTimeout bounds how long each scenario waits for an event to arrive.
const deliveryTimeout = 3 * time.Second

// silenceWindow is how long a scenario watches for events that must NOT
// arrive before declaring non-delivery.
const silenceWindow = 1 * time.Second

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	wsURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	apiBase := flag.String("api", "http://localhost:8080", "HTTP API base URL")
	timeout := flag.Duration("timeout", 60*time.Second, "Global test timeout")
	flag.Parse()

	fmt.Println("=== Realtime Delivery E2E Test ===")
	fmt.Printf("Server: %s\n\n", *wsURL)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var results []scenarioResult

	results = append(results, scenario1HealthCheck(ctx, *apiBase))
	results = append(results, scenario2JoinThenDeliver(ctx, *wsURL))
	results = append(results, scenario3NoJoinNoDeliver(ctx, *wsURL))
	results = append(results, scenario4MultiDeviceFanOut(ctx, *wsURL))
	results = append(results, scenario5SeenReceiptTargeting(ctx, *wsURL))
	results = append(results, scenario6NotificationDelivery(ctx, *wsURL))
	results = append(results, scenario7ReconnectDropsMembership(ctx, *wsURL))

	// -----------------------------------------------------------------------
	// Summary
	// -----------------------------------------------------------------------
	fmt.Println()
	passed := 0
	failed := 0
	for _, r := range results {
		fmt.Printf("[%s] %s", r.tag(), r.name)
		if r.detail != "" {
			fmt.Printf(" (%s)", r.detail)
		}
		fmt.Println()

		if r.kind == resultPass {
			passed++
		} else {
			failed++
		}
	}

	fmt.Printf("\n=== Results: %d/%d passed ===\n", passed, passed+failed)

	if failed > 0 {
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Scenario 1: Health Check
// ---------------------------------------------------------------------------

func scenario1HealthCheck(ctx context.Context, apiBase string) scenarioResult {
	name := "Scenario 1: Health Check"

	body, err := httpGetBody(ctx, apiBase+"/health")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("/health: %v", err)}
	}

	var health struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := json.Unmarshal([]byte(body), &health); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("/health: bad JSON: %v", err)}
	}
	if health.Status != "ok" {
		return scenarioResult{name, resultFail, fmt.Sprintf("/health: status=%q", health.Status)}
	}

	// /metrics should expose the delivery counters.
	metrics, err := httpGetBody(ctx, apiBase+"/metrics")
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("/metrics: %v", err)}
	}
	if !strings.Contains(metrics, "realtime_connections_total") {
		return scenarioResult{name, resultFail, "/metrics: realtime metrics missing"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 2: Join Then Deliver
// ---------------------------------------------------------------------------

func scenario2JoinThenDeliver(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 2: Join Then Deliver"

	recipient, received, err := joinedRecipient(ctx, wsURL, "e2e-s2-recipient", client.EventChatMessage)
	if err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	defer recipient.Close()

	producer, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("producer dial: %v", err)}
	}
	defer producer.Close()

	err = producer.Emit(client.EventChatMessage, map[string]string{
		"messageText": "hello from e2e",
		"senderId":    "e2e-s2-sender",
		"convoId":     "e2e-convo",
		"toUserId":    "e2e-s2-recipient",
	})
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("emit: %v", err)}
	}

	data, err := waitFor(received, deliveryTimeout)
	if err != nil {
		return scenarioResult{name, resultFail, "chatMessage not delivered"}
	}

	var body struct {
		MessageText string `json:"messageText"`
		SenderID    string `json:"senderId"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("bad payload: %v", err)}
	}
	if body.MessageText != "hello from e2e" || body.SenderID != "e2e-s2-sender" {
		return scenarioResult{name, resultFail, "payload fields altered in transit"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 3: No Join, No Deliver
// ---------------------------------------------------------------------------

func scenario3NoJoinNoDeliver(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 3: No Join No Deliver"

	// Connected but never joined: must receive nothing.
	bystander, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("bystander dial: %v", err)}
	}
	defer bystander.Close()

	received := make(chan json.RawMessage, 1)
	bystander.On(client.EventChatMessage, func(data json.RawMessage) {
		select {
		case received <- data:
		default:
		}
	})

	producer, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("producer dial: %v", err)}
	}
	defer producer.Close()

	err = producer.Emit(client.EventChatMessage, map[string]string{
		"messageText": "should vanish",
		"senderId":    "e2e-s3-sender",
		"convoId":     "e2e-convo",
		"toUserId":    "e2e-s3-nobody-joined",
	})
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("emit: %v", err)}
	}

	if _, err := waitFor(received, silenceWindow); err == nil {
		return scenarioResult{name, resultFail, "unjoined connection received a delivery"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 4: Multi-Device Fan-Out
// ---------------------------------------------------------------------------

func scenario4MultiDeviceFanOut(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 4: Multi-Device Fan-Out"

	deviceA, receivedA, err := joinedRecipient(ctx, wsURL, "e2e-s4-user", client.EventChatMessage)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("device A: %v", err)}
	}
	defer deviceA.Close()

	deviceB, receivedB, err := joinedRecipient(ctx, wsURL, "e2e-s4-user", client.EventChatMessage)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("device B: %v", err)}
	}
	defer deviceB.Close()

	producer, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("producer dial: %v", err)}
	}
	defer producer.Close()

	err = producer.Emit(client.EventChatMessage, map[string]string{
		"messageText": "to all devices",
		"senderId":    "e2e-s4-sender",
		"convoId":     "e2e-convo",
		"toUserId":    "e2e-s4-user",
	})
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("emit: %v", err)}
	}

	if _, err := waitFor(receivedA, deliveryTimeout); err != nil {
		return scenarioResult{name, resultFail, "device A missed the delivery"}
	}
	if _, err := waitFor(receivedB, deliveryTimeout); err != nil {
		return scenarioResult{name, resultFail, "device B missed the delivery"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 5: Seen-Receipt Targeting
// ---------------------------------------------------------------------------

func scenario5SeenReceiptTargeting(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 5: Seen-Receipt Targeting"

	// changeMsgSeen goes to the original sender, not the reader who marked
	// the messages seen.
	sender, received, err := joinedRecipient(ctx, wsURL, "e2e-s5-sender", client.EventMsgSeen)
	if err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	defer sender.Close()

	reader, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("reader dial: %v", err)}
	}
	defer reader.Close()

	err = reader.Emit(client.EventMsgSeen, map[string]string{
		"ownerId":  "e2e-s5-reader",
		"senderId": "e2e-s5-sender",
	})
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("emit: %v", err)}
	}

	data, err := waitFor(received, deliveryTimeout)
	if err != nil {
		return scenarioResult{name, resultFail, "changeMsgSeen not delivered to sender"}
	}

	var body struct {
		OwnerID string `json:"ownerId"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.OwnerID != "e2e-s5-reader" {
		return scenarioResult{name, resultFail, "seen receipt payload altered in transit"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 6: Notification Delivery
// ---------------------------------------------------------------------------

func scenario6NotificationDelivery(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 6: Notification Delivery"

	recipient, received, err := joinedRecipient(ctx, wsURL, "e2e-s6-recipient", client.EventNotification)
	if err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	defer recipient.Close()

	producer, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("producer dial: %v", err)}
	}
	defer producer.Close()

	err = producer.Emit(client.EventNotification, map[string]string{
		"type":       "LIKE",
		"message":    "liked your post",
		"senderId":   "e2e-s6-sender",
		"senderName": "E2E Sender",
		"id":         "e2e-notif-1",
		"toUserId":   "e2e-s6-recipient",
	})
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("emit: %v", err)}
	}

	data, err := waitFor(received, deliveryTimeout)
	if err != nil {
		return scenarioResult{name, resultFail, "notification not delivered"}
	}

	var body struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.Type != "LIKE" || body.ID != "e2e-notif-1" {
		return scenarioResult{name, resultFail, "notification payload altered in transit"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Scenario 7: Reconnect Drops Membership
// ---------------------------------------------------------------------------

func scenario7ReconnectDropsMembership(ctx context.Context, wsURL string) scenarioResult {
	name := "Scenario 7: Reconnect Drops Membership"

	first, _, err := joinedRecipient(ctx, wsURL, "e2e-s7-user", client.EventChatMessage)
	if err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	first.Close()

	// Give the server a moment to process the disconnect.
	time.Sleep(500 * time.Millisecond)

	// Reconnect WITHOUT joining. The old membership must be gone.
	second, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("reconnect: %v", err)}
	}
	defer second.Close()

	received := make(chan json.RawMessage, 1)
	second.On(client.EventChatMessage, func(data json.RawMessage) {
		select {
		case received <- data:
		default:
		}
	})

	producer, err := client.New(ctx, wsURL)
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("producer dial: %v", err)}
	}
	defer producer.Close()

	err = producer.Emit(client.EventChatMessage, map[string]string{
		"messageText": "post-reconnect",
		"senderId":    "e2e-s7-sender",
		"convoId":     "e2e-convo",
		"toUserId":    "e2e-s7-user",
	})
	if err != nil {
		return scenarioResult{name, resultFail, fmt.Sprintf("emit: %v", err)}
	}

	if _, err := waitFor(received, silenceWindow); err == nil {
		return scenarioResult{name, resultFail, "stale membership survived the reconnect"}
	}

	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// joinedRecipient connects a client, registers a buffered handler for the
// given event name, and joins the recipient group.
func joinedRecipient(ctx context.Context, wsURL, recipientID, eventName string) (*client.Client, chan json.RawMessage, error) {
	c, err := client.New(ctx, wsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	received := make(chan json.RawMessage, 4)
	c.On(eventName, func(data json.RawMessage) {
		select {
		case received <- data:
		default:
		}
	})

	if err := c.Join(recipientID); err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("join: %w", err)
	}
	return c, received, nil
}

// waitFor waits up to the timeout for a payload on the channel.
func waitFor(ch chan json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	select {
	case data := <-ch:
		return data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out")
	}
}

// httpGetBody performs an HTTP GET and returns the response body, requiring a
// 200 status.
func httpGetBody(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
