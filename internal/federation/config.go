package federation

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// peerFile is the on-disk shape of the federation peers file: a flat JSON
// array, one entry per remote exchange to dial.
type peerFile struct {
	URL                      string `json:"url"`
	Routes                   []string `json:"routes"`
	HeartbeatIntervalSeconds float64  `json:"heartbeatIntervalSeconds"`
}

// LoadPeersFile reads a JSON array of federation peer definitions.
// encoding/json is used directly here rather than a third-party decoder:
// the shape is a flat, static array with no streaming or schema-evolution
// need that would justify one.
func LoadPeersFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading federation peers file: %w", err)
	}
	var entries []peerFile
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing federation peers file: %w", err)
	}
	out := make([]Config, 0, len(entries))
	for _, e := range entries {
		if e.URL == "" {
			return nil, fmt.Errorf("federation peer entry missing url")
		}
		out = append(out, Config{
			URL:               e.URL,
			Routes:            e.Routes,
			HeartbeatInterval: time.Duration(e.HeartbeatIntervalSeconds * float64(time.Second)),
		})
	}
	return out, nil
}
