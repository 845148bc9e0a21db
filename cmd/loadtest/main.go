package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/clementraoulastek/tcp-server/pkg/client"
	"github.com/clementraoulastek/tcp-server/pkg/protocol"
)

const loremIpsum = "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip ex ea commodo consequat. Duis aute irure dolor in reprehenderit in voluptate velit esse cillum dolore eu fugiat nulla pariatur. Excepteur sint occaecat cupidatat non proident, sunt in culpa qui officia deserunt mollit anim id est laborum."

// usernameSeeds feeds the username generator.
const usernameSeeds = "amber basalt cedar delta ember fjord garnet harbor indigo juniper krill lumen mesa north onyx prairie quartz raven sierra tundra umber vertex willow zephyr"

var loremWords = strings.Fields(loremIpsum)
var usernameWords = strings.Fields(usernameSeeds)

// generateUsername combines fragments of two random words with the bot id,
// so names look human but never collide.
func generateUsername(id int) string {
	word1 := usernameWords[rand.Intn(len(usernameWords))]
	word2 := usernameWords[rand.Intn(len(usernameWords))]

	frag1 := word1
	if len(frag1) > 4 {
		frag1 = frag1[:3+rand.Intn(2)]
	}
	frag2 := word2
	if len(frag2) > 4 {
		frag2 = frag2[:3+rand.Intn(2)]
	}

	return fmt.Sprintf("%s%s%d", frag1, frag2, id)
}

// Stats tracks performance metrics
type Stats struct {
	messagesSent      atomic.Int64
	messagesFailed    atomic.Int64
	reactionsSent     atomic.Int64
	framesReceived    atomic.Int64
	totalResponseTime atomic.Int64 // in microseconds

	connectionErrors atomic.Int64
	echoTimeouts     atomic.Int64
	disconnections   atomic.Int64
}

func (s *Stats) recordEcho(responseTimeUs int64) {
	s.messagesSent.Add(1)
	s.totalResponseTime.Add(responseTimeUs)
}

func (s *Stats) recordFailure() {
	s.messagesFailed.Add(1)
}

func (s *Stats) recordEchoTimeout() {
	s.messagesFailed.Add(1)
	s.echoTimeouts.Add(1)
}

func (s *Stats) recordConnectionError() {
	s.connectionErrors.Add(1)
}

func (s *Stats) recordDisconnection() {
	s.messagesFailed.Add(1)
	s.disconnections.Add(1)
}

func (s *Stats) snapshot() (sent, failed, connErrors int64, avgResponseUs float64) {
	sent = s.messagesSent.Load()
	failed = s.messagesFailed.Load()
	connErrors = s.connectionErrors.Load()

	if sent > 0 {
		avgResponseUs = float64(s.totalResponseTime.Load()) / float64(sent)
	}

	return
}

// BotClient is one scripted relay client
type BotClient struct {
	id       int
	username string
	peers    []string // usernames of the other bots
	conn     *client.Connection
	stats    *Stats

	lastSeenID atomic.Int64 // most recent stored message id seen on the wire
}

func NewBotClient(id int, username string, peers []string, serverAddr string, stats *Stats) *BotClient {
	return &BotClient{
		id:       id,
		username: username,
		peers:    peers,
		conn:     client.NewConnection(serverAddr),
		stats:    stats,
	}
}

// Connect dials the relay, waits for the connection-count notice, and
// announces the bot so direct messages can find it.
func (bc *BotClient) Connect() error {
	if err := bc.conn.Connect(); err != nil {
		return err
	}

	select {
	case frame := <-bc.conn.Incoming():
		if frame == nil {
			return fmt.Errorf("connection closed during handshake")
		}
		if frame.Command != protocol.CmdConnNb {
			return fmt.Errorf("expected CONN_NB, got %s", frame.Command)
		}
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for the connection notice")
	}

	return bc.conn.Send(protocol.CmdHelloWorld, bc.username+":home:hello")
}

// observeFrame counts an inbound frame and remembers any stored message id
// it carries, so reactions have something to point at.
func (bc *BotClient) observeFrame(frame *protocol.Frame) {
	bc.stats.framesReceived.Add(1)

	if frame.Command != protocol.CmdMessage {
		return
	}
	idField, _, found := strings.Cut(frame.Payload, ":")
	if !found {
		return
	}
	if id, err := strconv.ParseInt(idField, 10, 64); err == nil && id > 0 {
		bc.lastSeenID.Store(id)
	}
}

// drainIncoming consumes everything already buffered without blocking.
func (bc *BotClient) drainIncoming() {
	for {
		select {
		case frame, ok := <-bc.conn.Incoming():
			if !ok {
				return
			}
			bc.observeFrame(frame)
		default:
			return
		}
	}
}

// SendRandomMessage relays one message (mostly broadcasts, sometimes a
// direct message to another bot) and waits for the relay's echo to measure
// round-trip time.
func (bc *BotClient) SendRandomMessage() error {
	receiver := "home"
	if len(bc.peers) > 0 && rand.Float32() < 0.3 {
		receiver = bc.peers[rand.Intn(len(bc.peers))]
	}

	wordCount := 5 + rand.Intn(16)
	words := make([]string, wordCount)
	for i := range words {
		words[i] = loremWords[rand.Intn(len(loremWords))]
	}
	payload := fmt.Sprintf("%s:%s:%s", bc.username, receiver, strings.Join(words, " "))

	start := time.Now()
	if err := bc.conn.Send(protocol.CmdMessage, payload); err != nil {
		if strings.Contains(err.Error(), "broken pipe") ||
			strings.Contains(err.Error(), "connection reset") ||
			strings.Contains(err.Error(), "EOF") {
			bc.stats.recordDisconnection()
		} else {
			bc.stats.recordFailure()
		}
		return err
	}

	// The relay always echoes a sent message back to its sender, with the
	// stored id prepended when persistence succeeded.
	deadline := time.After(10 * time.Second)
	for {
		select {
		case frame, ok := <-bc.conn.Incoming():
			if !ok {
				bc.stats.recordDisconnection()
				return fmt.Errorf("connection closed")
			}
			bc.observeFrame(frame)

			if frame.Command != protocol.CmdMessage {
				continue
			}
			if frame.Payload == payload || strings.HasSuffix(frame.Payload, ":"+payload) {
				bc.stats.recordEcho(time.Since(start).Microseconds())
				return nil
			}
		case <-deadline:
			bc.stats.recordEchoTimeout()
			return fmt.Errorf("timeout waiting for the echo")
		}
	}
}

// SendRandomReaction reacts to the most recent message the bot has seen.
// The relay's echo carries no id to correlate, so it is counted on arrival
// like any other frame.
func (bc *BotClient) SendRandomReaction() error {
	messageID := bc.lastSeenID.Load()
	if messageID == 0 {
		return nil
	}

	payload := fmt.Sprintf("%s:home:%d;%d", bc.username, messageID, rand.Intn(5))
	if err := bc.conn.Send(protocol.CmdAddReact, payload); err != nil {
		bc.stats.recordFailure()
		return err
	}
	bc.stats.reactionsSent.Add(1)
	return nil
}

func (bc *BotClient) Run(duration, minDelay, maxDelay, shutdownDelay time.Duration) {
	defer bc.conn.Close()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Bot %d] PANIC: %v", bc.id, r)
			// Try to send a graceful goodbye even on panic
			bc.conn.Send(protocol.CmdGoodBye, bc.username+":home:bye")
			time.Sleep(50 * time.Millisecond)
		}
	}()

	endTime := time.Now().Add(duration)

	for time.Now().Before(endTime) {
		bc.drainIncoming()

		// Mostly messages, the occasional reaction
		if rand.Float32() < 0.9 {
			bc.SendRandomMessage()
		} else {
			bc.SendRandomReaction()
		}

		delay := minDelay + time.Duration(rand.Int63n(int64(maxDelay-minDelay)))
		time.Sleep(delay)
	}

	// Stagger shutdown to avoid thundering herd on disconnect
	if shutdownDelay > 0 {
		time.Sleep(shutdownDelay)
	}

	// Send graceful goodbye
	bc.conn.Send(protocol.CmdGoodBye, bc.username+":home:bye")

	// Give the relay time to process the goodbye before closing
	time.Sleep(100 * time.Millisecond)
}

func main() {
	serverAddr := flag.String("server", "localhost:12800", "Relay address (host:port)")
	numClients := flag.Int("clients", 10, "Number of concurrent clients")
	duration := flag.Duration("duration", 1*time.Minute, "Test duration")
	minDelay := flag.Duration("min-delay", 100*time.Millisecond, "Minimum delay between messages")
	maxDelay := flag.Duration("max-delay", 1*time.Second, "Maximum delay between messages")
	flag.Parse()

	// Ramp up over 25% of the test duration
	rampUpDuration := *duration / 4
	staggerDelay := rampUpDuration / time.Duration(*numClients)
	if staggerDelay < 1*time.Millisecond {
		staggerDelay = 1 * time.Millisecond
	}

	log.Printf("Starting load test:")
	log.Printf("  Relay: %s", *serverAddr)
	log.Printf("  Clients: %d", *numClients)
	log.Printf("  Duration: %v", *duration)
	log.Printf("  Ramp-up: %v (%v per client)", rampUpDuration, staggerDelay)
	log.Printf("  Delay: %v - %v", *minDelay, *maxDelay)
	log.Printf("")

	// Names are fixed up front so every bot knows its peers
	usernames := make([]string, *numClients)
	for i := range usernames {
		usernames[i] = generateUsername(i)
	}

	stats := &Stats{}
	var wg sync.WaitGroup

	// Stats reporter
	stopStats := make(chan struct{})
	var stopStatsOnce sync.Once
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		startTime := time.Now()
		for {
			select {
			case <-ticker.C:
				sent, failed, connErrors, avgUs := stats.snapshot()
				elapsed := time.Since(startTime).Seconds()
				rate := float64(sent) / elapsed

				log.Printf("Stats: %d sent (%.1f/s), %d failed, %d conn errors, %d frames in, avg echo %.2fms",
					sent, rate, failed, connErrors, stats.framesReceived.Load(), avgUs/1000.0)
			case <-stopStats:
				return
			}
		}
	}()

	// Spawn clients
	for i := 0; i < *numClients; i++ {
		wg.Add(1)

		// Reverse order so the ramp-down mirrors the ramp-up
		shutdownDelay := staggerDelay * time.Duration(*numClients-i-1)

		go func(id int, shutdownDelay time.Duration) {
			defer wg.Done()

			peers := make([]string, 0, len(usernames)-1)
			for j, name := range usernames {
				if j != id {
					peers = append(peers, name)
				}
			}

			bot := NewBotClient(id, usernames[id], peers, *serverAddr, stats)
			if err := bot.Connect(); err != nil {
				stats.recordConnectionError()
				return
			}

			if id%100 == 0 {
				log.Printf("[Bot %d] Connected as %s", id, bot.username)
			}

			bot.Run(*duration, *minDelay, *maxDelay, shutdownDelay)
		}(i, shutdownDelay)

		time.Sleep(staggerDelay)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Printf("Shutdown signal received, stopping test...")
		stopStatsOnce.Do(func() { close(stopStats) })
	}()

	wg.Wait()
	stopStatsOnce.Do(func() { close(stopStats) })

	// Final stats
	sent, failed, connErrors, avgUs := stats.snapshot()
	rate := float64(sent) / duration.Seconds()

	avgDelay := (*minDelay + *maxDelay) / 2
	expectedPerClient := float64(*duration) / float64(avgDelay)
	expectedTotal := expectedPerClient * float64(*numClients)
	efficiency := float64(sent) / expectedTotal * 100

	log.Printf("")
	log.Printf("=== Final Results ===")
	log.Printf("Duration: %v", *duration)
	log.Printf("Messages sent: %d (%.1f/s)", sent, rate)
	log.Printf("Reactions sent: %d", stats.reactionsSent.Load())
	log.Printf("Frames received: %d", stats.framesReceived.Load())
	log.Printf("Messages failed: %d", failed)
	log.Printf("  - Echo timeouts: %d", stats.echoTimeouts.Load())
	log.Printf("  - Disconnections: %d", stats.disconnections.Load())
	log.Printf("Connection errors: %d", connErrors)
	log.Printf("Average echo time: %.2fms", avgUs/1000.0)
	log.Printf("Expected throughput: %.0f messages (%.1f per client)", expectedTotal, expectedPerClient)
	log.Printf("Actual vs expected: %.1f%% efficiency", efficiency)

	if sent > 0 {
		successRate := float64(sent) / float64(sent+failed) * 100
		log.Printf("Success rate: %.1f%%", successRate)
	}
}
