package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/socialink/realtime/loadtest/client"
	"github.com/socialink/realtime/loadtest/stats"
)

// chatPayload mirrors the chatMessage event body. The messageText field
// carries the producer's send timestamp in nanoseconds so the recipient can
// compute end-to-end delivery latency without clock coordination beyond the
// test process itself.
type chatPayload struct {
	MessageText string `json:"messageText"`
	SenderID    string `json:"senderId"`
	ConvoID     string `json:"convoId"`
	ToUserID    string `json:"toUserId"`
}

// runDeliver implements the end-to-end delivery load test. A pool of
// recipient connections joins their groups, then a pool of producer
// connections emits chatMessage events targeting random recipients at a
// configured rate. Each delivered event is timed from emit to receive.
// Because delivery is fire-and-forget, the report's loss rate shows events
// that targeted a recipient but never arrived.
func runDeliver(args []string) {
	fs := flag.NewFlagSet("deliver", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	recipients := fs.Int("recipients", 100, "Number of recipient connections")
	producers := fs.Int("producers", 10, "Number of producer connections")
	rate := fs.Int("rate", 10, "Events per second per producer")
	duration := fs.Duration("duration", 30*time.Second, "Production duration")
	metricsURL := fs.String("metrics", "", "Server metrics URL for scraping (e.g. http://localhost:8080/metrics)")
	fs.Parse(args)

	fmt.Printf("Deliver test: %d recipients, %d producers x %d ev/s for %s against %s\n",
		*recipients, *producers, *rate, *duration, *url)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()

	if *metricsURL != "" {
		scraper := stats.NewScraper(*metricsURL, 5*time.Second)
		scraper.Start(ctx)
		defer scraper.Stop()
		collector.SetScraper(scraper)
	}

	// -----------------------------------------------------------------------
	// Recipient phase: connect and join
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Connecting recipients ---")

	recipientIDs := make([]string, *recipients)
	recipientClients := make([]*client.Client, 0, *recipients)

	for i := 0; i < *recipients; i++ {
		recipientIDs[i] = fmt.Sprintf("deliver-%d", i)

		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		c, err := client.New(connCtx, *url)
		cancel()
		if err != nil {
			collector.AddError()
			continue
		}

		c.On(client.EventChatMessage, func(data json.RawMessage) {
			var p chatPayload
			if err := json.Unmarshal(data, &p); err != nil {
				collector.AddError()
				return
			}
			sentNanos, err := strconv.ParseInt(p.MessageText, 10, 64)
			if err != nil {
				collector.AddError()
				return
			}
			collector.AddDelivery(time.Since(time.Unix(0, sentNanos)))
		})

		if err := c.Join(recipientIDs[i]); err != nil {
			collector.AddError()
			c.Close()
			continue
		}

		collector.AddConnect(c.GetMetrics().ConnectLatency)
		recipientClients = append(recipientClients, c)
	}

	fmt.Printf("Recipients connected: %d/%d (%d errors)\n",
		len(recipientClients), *recipients, collector.ErrorCount())

	if len(recipientClients) == 0 {
		fmt.Println("No recipients connected; aborting.")
		return
	}

	// -----------------------------------------------------------------------
	// Production phase
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Production phase ---")

	prodCtx, prodCancel := context.WithTimeout(ctx, *duration)
	defer prodCancel()

	var wg sync.WaitGroup
	for p := 0; p < *producers; p++ {
		wg.Add(1)
		producerID := fmt.Sprintf("producer-%d", p)

		go func() {
			defer wg.Done()

			connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			c, err := client.New(connCtx, *url)
			cancel()
			if err != nil {
				collector.AddError()
				return
			}
			defer c.Close()

			// Producers are ingress-only connections: they never join a
			// group, they just emit events carrying the target recipient.
			ticker := time.NewTicker(time.Second / time.Duration(*rate))
			defer ticker.Stop()

			rng := rand.New(rand.NewSource(time.Now().UnixNano()))

			for {
				select {
				case <-prodCtx.Done():
					return
				case <-ticker.C:
					target := recipientIDs[rng.Intn(len(recipientIDs))]
					payload := chatPayload{
						MessageText: strconv.FormatInt(time.Now().UnixNano(), 10),
						SenderID:    producerID,
						ConvoID:     "loadtest",
						ToUserID:    target,
					}
					if err := c.Emit(client.EventChatMessage, payload); err != nil {
						collector.AddError()
						return
					}
					collector.AddProduced()
				}
			}
		}()
	}

	// Progress reporting during production.
	progressStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("  [deliver] produced: %d  delivered: %d  errors: %d\n",
					collector.ProducedCount(), collector.DeliveredCount(), collector.ErrorCount())
			case <-progressStop:
				return
			}
		}
	}()

	wg.Wait()
	close(progressStop)

	// Grace period for in-flight deliveries before closing recipients.
	fmt.Println("\nProduction complete; waiting for in-flight deliveries...")
	time.Sleep(2 * time.Second)

	// -----------------------------------------------------------------------
	// Cleanup and report
	// -----------------------------------------------------------------------
	fmt.Printf("Closing %d recipient connections...\n", len(recipientClients))
	for _, c := range recipientClients {
		c.Close()
	}

	collector.Report()
}
