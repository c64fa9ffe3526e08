package docs

import (
	"strings"
	"testing"
)

func TestSwaggerInfoRegistered(t *testing.T) {
	if SwaggerInfo == nil {
		t.Fatal("swagger info not initialized")
	}
	if SwaggerInfo.Title != "Agent Arena API" {
		t.Fatalf("unexpected title %q", SwaggerInfo.Title)
	}
	if !strings.Contains(SwaggerInfo.SwaggerTemplate, "/api/agents") {
		t.Fatal("swagger template missing leaderboard path")
	}
}
