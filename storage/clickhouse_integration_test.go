package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"warptrace/config"
	"warptrace/core"
)

const (
	clickhouseImage       = "clickhouse/clickhouse-server:latest"
	clickhouseNativePort  = "9000/tcp"
	clickhouseHTTPPort    = "8123/tcp"
	archiveTestDatabase   = "warptrace_archive_test"
	containerStartTimeout = 120 * time.Second
)

// skipUnlessArchiveIntegration keeps the container tests out of normal runs;
// they need Docker and a couple of minutes.
func skipUnlessArchiveIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping archive integration test in short mode")
	}
	if os.Getenv("WARPTRACE_ARCHIVE_TEST") == "" {
		t.Skip("set WARPTRACE_ARCHIVE_TEST=1 to run ClickHouse container tests")
	}
}

func startClickHouseContainer(t *testing.T) (host, port string) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        clickhouseImage,
		ExposedPorts: []string{clickhouseNativePort, clickhouseHTTPPort},
		Env: map[string]string{
			"CLICKHOUSE_DB":       archiveTestDatabase,
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "testpassword",
		},
		// The HTTP root answers "Ok." once the server accepts queries.
		WaitingFor: wait.ForHTTP("/").
			WithPort(clickhouseHTTPPort).
			WithStartupTimeout(containerStartTimeout).
			WithResponseMatcher(func(body io.Reader) bool {
				buf, _ := io.ReadAll(body)
				return len(buf) > 0
			}),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start ClickHouse container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate ClickHouse container: %v", err)
		}
	})

	host, err = container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)
	return host, mapped.Port()
}

func connectArchive(t *testing.T, host, port string) *ClickHouse {
	t.Helper()
	cfg := &config.Config{}
	cfg.ClickHouse.Addr = fmt.Sprintf("%s:%s", host, port)
	cfg.ClickHouse.Database = archiveTestDatabase
	cfg.ClickHouse.Username = "default"
	cfg.ClickHouse.Password = "testpassword"
	cfg.ClickHouse.MaxPoolSize = 10

	ch, err := NewClickHouse(cfg, zap.NewNop().Sugar())
	require.NoError(t, err, "failed to connect to ClickHouse")
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestClickHouseIntegration_HealthCheck(t *testing.T) {
	skipUnlessArchiveIntegration(t)

	host, port := startClickHouseContainer(t)
	ch := connectArchive(t, host, port)

	assert.NoError(t, ch.HealthCheck(context.Background()))
}

func TestClickHouseIntegration_CreateTablesIdempotent(t *testing.T) {
	skipUnlessArchiveIntegration(t)

	host, port := startClickHouseContainer(t)
	ch := connectArchive(t, host, port)

	// NewClickHouse already created the table; a second pass must not fail.
	assert.NoError(t, ch.CreateTablesIfNotExist(context.Background()))
}

func TestClickHouseIntegration_ArchiveRoundTrip(t *testing.T) {
	skipUnlessArchiveIntegration(t)

	host, port := startClickHouseContainer(t)
	ch := connectArchive(t, host, port)

	archive, err := NewEventArchive(ch, 10, time.Second, zap.NewNop().Sugar())
	require.NoError(t, err)
	archive.Start(1)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	status := 401
	bytes := int64(512)
	for i := int64(1); i <= 25; i++ {
		require.NoError(t, archive.Enqueue(&core.LogEvent{
			ID:        i,
			UploadID:  "upload-roundtrip",
			Timestamp: &ts,
			SourceIP:  "203.0.113.7",
			User:      "alice",
			URL:       "https://auth.example.com/authorize",
			Action:    "block",
			Status:    &status,
			Bytes:     &bytes,
			UserAgent: "curl/8.0",
			Raw:       "failed login",
		}))
	}

	// Stop flushes the partial batch before returning.
	archive.Stop()

	n, err := ch.ArchivedEventCount(context.Background(), "upload-roundtrip")
	require.NoError(t, err)
	assert.Equal(t, uint64(25), n)
}
