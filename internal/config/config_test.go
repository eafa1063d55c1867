package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"engagelens/internal/suggest"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "engagelens.yaml")
	cfg := Default()
	cfg.Model.Timeout = 3 * time.Second
	cfg.Advice.Rules = []suggest.Rule{{Name: "weekend", When: `post.day_of_week == "Sunday"`, Tip: "Sunday reach is low"}}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Model.Timeout != 3*time.Second || got.Artifacts.Backend != "fs" {
		t.Fatalf("round trip mismatch: %+v", got.Model)
	}
	rules := got.AdviceRules()
	if len(rules) != len(suggest.DefaultRules)+1 || rules[len(rules)-1].Name != "weekend" {
		t.Fatalf("advice rules: %d", len(rules))
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("model:\n  kind: http\n  endpoint: http://localhost:8501/predict\n  timeout: 2s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Kind != "http" || cfg.Model.Timeout != 2*time.Second {
		t.Fatalf("model: %+v", cfg.Model)
	}
	if cfg.Server.Addr != ":8080" || cfg.Data.TestFraction != 0.2 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Server, cfg.Data)
	}
}

func TestResolveEnvOverrides(t *testing.T) {
	t.Setenv("ENGAGELENS_ARTIFACTS_BACKEND", "s3")
	t.Setenv("ENGAGELENS_S3_BUCKET", "models-bucket")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("ENGAGELENS_SERVER_RPS", "2.5")
	cfg := Default()
	cfg.ResolveEnv()
	if cfg.Artifacts.Backend != "s3" || cfg.Artifacts.S3.Bucket != "models-bucket" || cfg.Artifacts.S3.AccessKey != "AKIA" {
		t.Fatalf("env not applied: %+v", cfg.Artifacts)
	}
	if cfg.Server.RPS != 2.5 {
		t.Fatalf("rps: %v", cfg.Server.RPS)
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := Default()
	cfg.Artifacts.Backend = "ftp"
	cfg.Model.Kind = "http"
	cfg.Data.TestFraction = 1
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"artifacts.backend", "model.endpoint", "data.testFraction"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}
