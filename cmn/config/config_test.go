package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hermeshpc/hstore/cmn"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "hstore.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"node_id": 1,
		"listen": ":9200",
		"peers": [{"node_id": 2, "addr": "10.0.0.2:9200"}],
		"targets": [
			{"kind": "ram", "device_idx": 0, "capacity": 1048576, "granularity": 64, "bandwidth_mbs": 5000, "latency_us": 1}
		]
	}`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.NodeID != 1 || c.Listen != ":9200" {
		t.Fatalf("unexpected top-level fields: %+v", c)
	}
	if len(c.Peers) != 1 || c.Peers[0].Addr != "10.0.0.2:9200" {
		t.Fatalf("unexpected peers: %+v", c.Peers)
	}
	if len(c.Targets) != 1 || c.Targets[0].Kind != "ram" {
		t.Fatalf("unexpected targets: %+v", c.Targets)
	}
}

func TestLoadMissingListenRejected(t *testing.T) {
	path := writeConfig(t, `{"node_id": 1, "targets": [{"kind": "ram", "capacity": 1024}]}`)
	if _, err := Load(path); !cmn.IsKind(err, cmn.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for a missing listen address, got %v", err)
	}
}

func TestLoadEmptyTargetsRejected(t *testing.T) {
	path := writeConfig(t, `{"node_id": 1, "listen": ":9200", "targets": []}`)
	if _, err := Load(path); !cmn.IsKind(err, cmn.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for an empty target set, got %v", err)
	}
}

func TestLoadMissingFileRejected(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json")); !cmn.IsKind(err, cmn.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for a missing file, got %v", err)
	}
}

func TestLoadMalformedJSONRejected(t *testing.T) {
	path := writeConfig(t, `{not valid json`)
	if _, err := Load(path); !cmn.IsKind(err, cmn.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for malformed json, got %v", err)
	}
}
