package api

import "testing"

func TestLoad(t *testing.T) {
	doc, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, path := range []string{"/", "/health", "/channels", "/proxy"} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("expected path %s to be documented", path)
		}
	}

	if len(doc.Servers) != 0 {
		t.Errorf("expected no servers so request validation ignores the Host header, got %d", len(doc.Servers))
	}

	op := doc.Paths.Find("/channels").Get
	if op == nil {
		t.Fatal("expected GET /channels")
	}
	url := op.Parameters.GetByInAndName("query", "url")
	if url == nil || !url.Required {
		t.Error("expected required url query parameter on /channels")
	}
	if op.Parameters.GetByInAndName("query", "force_refresh") == nil {
		t.Error("expected force_refresh query parameter on /channels")
	}
}
