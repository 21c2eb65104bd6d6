package main

import (
	"encoding/json"
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

	"github.com/IBM/sarama"

	"github.com/game-lobby/internal/domain"
)

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

func getPlayerID(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", strings.ToLower(playerPrefixes[prefixIdx]), suffix)
}

func parseRooms(list string) ([]int64, error) {
	var rooms []int64
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid room id %q", part)
		}
		rooms = append(rooms, id)
	}
	if len(rooms) == 0 {
		return nil, fmt.Errorf("no room ids given")
	}
	return rooms, nil
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "room-scores", "Kafka topic")
	roomList := flag.String("rooms", "1", "Room IDs to submit scores for (comma-separated)")
	game := flag.String("game", "quiz", "Game name")
	gameDuration := flag.Int("game-duration", 60, "Game duration in seconds")
	totalPlayers := flag.Int("players", 100, "Number of distinct players")
	updatesPerSecond := flag.Int("rate", 50, "Submissions per second")
	runFor := flag.Duration("duration", 0, "Duration to run (0 = until interrupted)")
	flag.Parse()

	rooms, err := parseRooms(*roomList)
	if err != nil {
		log.Fatalf("Invalid -rooms: %v", err)
	}
	if *updatesPerSecond <= 0 || *totalPlayers <= 0 {
		log.Fatal("-rate and -players must be positive")
	}
	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Room score producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Rooms:            %v\n", rooms)
	fmt.Printf("  Game:             %s (%ds)\n", *game, *gameDuration)
	fmt.Printf("  Players:          %d\n", *totalPlayers)
	fmt.Printf("  Submissions/sec:  %d\n", *updatesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s, shutting down...\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\nCompleted. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	send := func(sub domain.ScoreSubmission) {
		data, err := json.Marshal(sub)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}
		// Keyed by user so one user's submissions stay ordered on one partition
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(sub.UserID),
			Value: sarama.ByteEncoder(data),
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(*updatesPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *runFor > 0 {
		endTime = time.Now().Add(*runFor)
	}

	var submitted int64
	for {
		select {
		case <-sigChan:
			shutdown("Interrupted")
			return

		case <-ticker.C:
			if *runFor > 0 && time.Now().After(endTime) {
				shutdown("Duration reached")
				return
			}

			score := int64(rand.Intn(1000))
			send(domain.ScoreSubmission{
				RoomID:   rooms[rand.Intn(len(rooms))],
				UserID:   getPlayerID(rand.Intn(*totalPlayers)),
				Score:    &score,
				GameName: *game,
				Duration: *gameDuration,
			})
			submitted++

		case <-statsTicker.C:
			fmt.Printf("[%s] Submitted: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				submitted,
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
