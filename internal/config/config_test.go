package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Detector.SimilarityThreshold != 0.4 {
		t.Fatalf("expected default threshold 0.4, got %v", cfg.Detector.SimilarityThreshold)
	}
	if cfg.Detector.SustainSegments != 2 {
		t.Fatalf("expected default sustain 2, got %d", cfg.Detector.SustainSegments)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SAVI_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SAVI_BUS_USERNAME", "alice")
	t.Setenv("SAVI_BUS_PASSWORD", "secret")
	t.Setenv("SAVI_DETECTOR_SIMILARITY_THRESHOLD", "0.55")
	t.Setenv("SAVI_DETECTOR_SUSTAIN_SEGMENTS", "3")
	t.Setenv("SAVI_DETECTOR_COOLDOWN_MS", "15000")
	t.Setenv("SAVI_SPEECH_WINDOW_SEGMENTS", "20")
	t.Setenv("SAVI_GENERATOR_MODE", "ollama")
	t.Setenv("SAVI_GENERATOR_ENDPOINT", "http://remote:11434")
	t.Setenv("SAVI_VISUAL_PEXELS_KEY", "px-key")
	t.Setenv("SAVI_EVENT_STORE_PATH", "./tmp.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Detector.SimilarityThreshold != 0.55 {
		t.Fatalf("expected threshold override, got %v", cfg.Detector.SimilarityThreshold)
	}
	if cfg.Detector.SustainSegments != 3 {
		t.Fatalf("expected sustain override, got %d", cfg.Detector.SustainSegments)
	}
	if cfg.Detector.CooldownMS != 15000 {
		t.Fatalf("expected cooldown override, got %d", cfg.Detector.CooldownMS)
	}
	if cfg.Speech.WindowSegments != 20 {
		t.Fatalf("expected window override, got %d", cfg.Speech.WindowSegments)
	}
	if cfg.Generator.Mode != "ollama" || cfg.Generator.Endpoint != "http://remote:11434" {
		t.Fatalf("expected generator override, got %s %s", cfg.Generator.Mode, cfg.Generator.Endpoint)
	}
	if cfg.Visual.PexelsKey != "px-key" {
		t.Fatalf("expected pexels key override")
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
}

func TestValidateRejectsMissingCredentials(t *testing.T) {
	t.Setenv("SAVI_GENERATOR_MODE", "gemini")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for gemini mode without api key")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	t.Setenv("SAVI_DETECTOR_SIMILARITY_THRESHOLD", "1.5")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
}
