// Reminder Viewer - live display of captured reminders and dialogue turns.
// Consumes the assistant's Kafka topics and pushes them to browsers over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// summary extracts a short human line from a reminder or turn payload.
func summary(event ViewerEvent) string {
	var body struct {
		Summary   string `json:"summary"`
		Utterance string `json:"utterance"`
	}
	_ = json.Unmarshal(event.Payload, &body)
	if body.Summary != "" {
		return body.Summary
	}
	return body.Utterance
}

func consumeKafka(ctx context.Context, hub *Hub, brokers, topic string, since time.Duration) {
	// Partition reader without a consumer group so several viewers can tail the same topic
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   strings.Split(brokers, ","),
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Could not rewind reader, tailing from the current offset")
	}

	log.Info().Str("topic", topic).Dur("since", since).Msg("Consuming from Kafka")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		event, err := decodeMessage(msg)
		if err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable message")
			continue
		}

		log.Info().
			Str("eventType", event.EventType).
			Str("key", event.Key).
			Str("text", truncate(summary(event), 40)).
			Msg("Received event")
		hub.publish(event)
	}
}

func newMux(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	mux.HandleFunc("/ws", wsHandler(hub))
	return mux
}

func main() {
	port := flag.String("port", "8082", "HTTP server port")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicReminders := flag.String("topic-reminders", "assistant.reminder.created", "Reminder topic")
	topicTurns := flag.String("topic-turns", "assistant.dialogue.turn", "Dialogue turn topic")
	since := flag.Duration("since", time.Hour, "Replay window on startup")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run()
	defer hub.stop()

	go consumeKafka(ctx, hub, *brokers, *topicReminders, *since)
	go consumeKafka(ctx, hub, *brokers, *topicTurns, *since)

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           newMux(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("url", "http://localhost:"+*port).
		Str("brokers", *brokers).
		Strs("topics", []string{*topicReminders, *topicTurns}).
		Msg("Reminder viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server error")
	}
}
