package cmd

import (
	"context"
	"testing"
	"time"
)

func TestUpdateCommand(t *testing.T) {
	if updateCmd == nil {
		t.Error("updateCmd is nil")
	}
	if updateCmd.Use != "update" {
		t.Errorf("expected use 'update', got %s", updateCmd.Use)
	}
	if f := updateCmd.Flags().Lookup("duration-batch"); f == nil || f.DefValue != "200" {
		t.Errorf("expected --duration-batch to default to 200, got %v", f)
	}
}

func TestServeCommandDefaults(t *testing.T) {
	if f := serveCmd.Flags().Lookup("listen"); f == nil || f.DefValue != ":8080" {
		t.Errorf("expected --listen to default to :8080, got %v", f)
	}
	if f := serveCmd.Flags().Lookup("sync-interval"); f == nil || f.DefValue != (15*time.Minute).String() {
		t.Errorf("expected --sync-interval to default to 15m, got %v", f)
	}
}

func TestUpdateRejectsInvalidAfter(t *testing.T) {
	useTestDb(t)
	_, err := updateDatabase(context.Background(), UpdateConfig{User: "testuser", After: "yesterday"})
	if err == nil {
		t.Fatalf("updateDatabase should have errored with an invalid --after")
	}
}
