package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fetchq/internal/api"
	"fetchq/internal/fetcher"
	"fetchq/pkg/fetchorder"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session, err := fetcher.NewSession(fetcher.Config{Logger: logger})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	cfg := api.DefaultServerConfig()
	cfg.Logger = logger
	ts := httptest.NewServer(api.NewServer(session, nil, cfg).Handler())
	t.Cleanup(ts.Close)

	return NewClient(ClientConfig{ServerURL: ts.URL})
}

func tp(topic string, partition int32) fetchorder.TopicPartition {
	return fetchorder.TopicPartition{Topic: topic, Partition: partition}
}

func viewKeys(views []fetcher.PartitionView) []fetchorder.TopicPartition {
	var out []fetchorder.TopicPartition
	for _, v := range views {
		out = append(out, tp(v.Topic, v.Partition))
	}
	return out
}

func TestClient_AssignAndRotate(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	a := fetchorder.NewAssignment[int64]().
		Put(tp("orders", 0), 5).
		Put(tp("payments", 0), 0).
		Put(tp("orders", 1), 7)

	views, err := c.Assign(ctx, a)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	want := []fetchorder.TopicPartition{tp("orders", 0), tp("orders", 1), tp("payments", 0)}
	if diff := cmp.Diff(want, viewKeys(views)); diff != "" {
		t.Errorf("assign order mismatch (-want +got):\n%s", diff)
	}

	view, err := c.Served(ctx, tp("orders", 0), 6)
	if err != nil {
		t.Fatalf("Served: %v", err)
	}
	if view.Offset != 6 || view.FetchCount != 1 {
		t.Errorf("unexpected view: %+v", view)
	}
	if err := c.Skip(ctx, tp("orders", 1)); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	views, err = c.Partitions(ctx)
	if err != nil {
		t.Fatalf("Partitions: %v", err)
	}
	want = []fetchorder.TopicPartition{tp("payments", 0), tp("orders", 0), tp("orders", 1)}
	if diff := cmp.Diff(want, viewKeys(views)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	plan, err := c.Plan(ctx)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if diff := cmp.Diff([]string{"payments", "orders"}, blockTopics(plan)); diff != "" {
		t.Errorf("plan topics mismatch (-want +got):\n%s", diff)
	}

	if err := c.Revoke(ctx, tp("payments", 0)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	health, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "ok" || health.Partitions != 2 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func blockTopics(plan *fetcher.FetchPlan) []string {
	var out []string
	for _, b := range plan.Blocks {
		out = append(out, b.Topic)
	}
	return out
}

func TestClient_APIErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	err := c.Skip(ctx, tp("missing", 0))
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message == "" {
		t.Error("expected server error message")
	}

	_, err = c.Assign(ctx, fetchorder.NewAssignment[int64]().Put(tp("", 0), 0))
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 APIError, got %v", err)
	}
}

func TestClient_TopicWithSpecialCharacters(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Assign(ctx, fetchorder.NewAssignment[int64]().Put(tp("orders v2", 3), 0)); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := c.Served(ctx, tp("orders v2", 3), 1); err != nil {
		t.Errorf("Served on escaped topic: %v", err)
	}
}

func TestResolveServer(t *testing.T) {
	t.Setenv(EnvServer, "")
	if got := ResolveServer(""); got != DefaultServer {
		t.Errorf("ResolveServer(\"\") = %q, want %q", got, DefaultServer)
	}

	t.Setenv(EnvServer, "http://env:9000")
	if got := ResolveServer(""); got != "http://env:9000" {
		t.Errorf("env server not used: %q", got)
	}
	if got := ResolveServer("http://flag:1"); got != "http://flag:1" {
		t.Errorf("flag should win: %q", got)
	}
}
