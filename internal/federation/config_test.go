package federation

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPeersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")
	body := `[
		{"url": "wss://remote-a.example.com/signal", "routes": ["*@remote-a.example.com"], "heartbeatIntervalSeconds": 10},
		{"url": "wss://remote-b.example.com/signal"}
	]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing peers file: %v", err)
	}

	peers, err := LoadPeersFile(path)
	if err != nil {
		t.Fatalf("LoadPeersFile returned error: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("got %d peers, want 2", len(peers))
	}
	if peers[0].URL != "wss://remote-a.example.com/signal" {
		t.Errorf("peers[0].URL = %q", peers[0].URL)
	}
	if peers[0].HeartbeatInterval != 10*time.Second {
		t.Errorf("peers[0].HeartbeatInterval = %v, want 10s", peers[0].HeartbeatInterval)
	}
	if len(peers[0].Routes) != 1 || peers[0].Routes[0] != "*@remote-a.example.com" {
		t.Errorf("peers[0].Routes = %v", peers[0].Routes)
	}
	if peers[1].HeartbeatInterval != 0 {
		t.Errorf("peers[1].HeartbeatInterval = %v, want 0 (unset)", peers[1].HeartbeatInterval)
	}
}

func TestLoadPeersFileMissingURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peers.json")
	if err := os.WriteFile(path, []byte(`[{"routes": ["*@x.com"]}]`), 0o600); err != nil {
		t.Fatalf("writing peers file: %v", err)
	}

	if _, err := LoadPeersFile(path); err == nil {
		t.Fatal("expected error for peer entry missing url")
	}
}

func TestLoadPeersFileMissingFile(t *testing.T) {
	if _, err := LoadPeersFile("/nonexistent/path/peers.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
