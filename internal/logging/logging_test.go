package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func TestCorrelationID(t *testing.T) {
	ctx := context.Background()
	if id := CorrelationID(ctx); id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
	if id := CorrelationID(WithCorrelationID(ctx, "abc")); id != "abc" {
		t.Fatalf("id = %q", id)
	}
}

func TestInitJSON(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
		viper.Reset()
	})

	viper.Set(LevelKey, "warn")
	viper.Set(FormatKey, FormatJSON)

	var buf bytes.Buffer
	Init(&buf)

	log.Info().Msg("hidden")
	NewRedisLogger(zerolog.WarnLevel).Printf(context.Background(), "pool %s", "exhausted")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["message"] != "pool exhausted" || line["component"] != "redis" {
		t.Fatalf("unexpected log line %v", line)
	}
}
