package database

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"lifecycle-agent/internal/domain/model"
	"lifecycle-agent/pkg/log"
)

// influxAPI is the part of the InfluxDB HTTP API the adapter uses when the
// engine endpoint is reachable from the agent.
type influxAPI interface {
	Ready(ctx context.Context) bool
	CountMeasurements(ctx context.Context, bucket string) (int, error)
	DeleteBucket(ctx context.Context, bucket string) error
	Close()
}

// Influx backs up one bucket with `influx backup` inside the engine container
// and streams the backup directory out as a tar archive. Count, DropTemporary
// and WaitReady use the HTTP API when the handle has an endpoint and the
// influx CLI otherwise.
type Influx struct {
	runner
	newAPI func(h model.DatabaseHandle) influxAPI
}

// NewInflux creates the time-series adapter.
func NewInflux(r runner) *Influx {
	return &Influx{runner: r, newAPI: newInfluxClient}
}

func (i *Influx) Kind() model.EngineKind { return model.EngineInflux }

func (i *Influx) Extension() string { return "tar" }

func (i *Influx) env(h model.DatabaseHandle) []string {
	env := []string{}
	if tok := h.Credentials.Token.Reveal(); tok != "" {
		env = append(env, "INFLUX_TOKEN="+tok)
	}
	if h.Credentials.Org != "" {
		env = append(env, "INFLUX_ORG="+h.Credentials.Org)
	}
	return env
}

const influxDumpScript = `D="$1"; B="$2"
rm -rf "$D" && influx backup --bucket "$B" "$D" >&2 && tar -C "$D" -cf - .
rc=$?; rm -rf "$D"; exit $rc`

const influxRestoreScript = `D="$1"; B="$2"; T="$3"
rm -rf "$D" && mkdir -p "$D" && tar -C "$D" -xf - && if [ "$B" = "$T" ]; then
  influx bucket delete --name "$B" >&2 || true
  influx restore --bucket "$B" "$D" >&2
else
  influx restore --bucket "$B" --new-bucket "$T" "$D" >&2
fi
rc=$?; rm -rf "$D"; exit $rc`

func (i *Influx) Dump(ctx context.Context, h model.DatabaseHandle, dest string) model.DumpResult {
	if err := checkName(h.Database); err != nil {
		return model.DumpFailure(err)
	}
	cmd := []string{"sh", "-c", influxDumpScript, "sh", i.tempPath(i.Kind(), h.Database), h.Database}
	return i.dump(ctx, h, dest, cmd, i.env(h))
}

// Restore loads a bucket backup. The backup keeps its original bucket name,
// so restoring under another name uses --new-bucket and restoring in place
// replaces the existing bucket.
func (i *Influx) Restore(ctx context.Context, h model.DatabaseHandle, src, target string) model.RestoreResult {
	if target == "" {
		target = h.Database
	}
	if err := checkName(h.Database); err != nil {
		return model.RestoreFailure(target, err)
	}
	if err := checkName(target); err != nil {
		return model.RestoreFailure(target, err)
	}
	cmd := []string{"sh", "-c", influxRestoreScript, "sh", i.tempPath(i.Kind(), target), h.Database, target}
	return i.restore(ctx, h, src, target, cmd, i.env(h))
}

func measurementsQuery(bucket string) string {
	return fmt.Sprintf(`import "influxdata/influxdb/schema"
schema.measurements(bucket: %q)`, bucket)
}

func (i *Influx) Count(ctx context.Context, h model.DatabaseHandle) (int, error) {
	if err := checkName(h.Database); err != nil {
		return 0, err
	}
	if h.Endpoint != "" {
		api := i.newAPI(h)
		defer api.Close()
		return api.CountMeasurements(ctx, h.Database)
	}
	out, err := i.run(ctx, h.Container, []string{"influx", "query", "--raw", measurementsQuery(h.Database)}, i.env(h))
	if err != nil {
		return 0, err
	}
	return countCSVRows(out), nil
}

// countCSVRows counts the data rows of an annotated CSV query result.
func countCSVRows(out string) int {
	n := 0
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), ",_result,") {
			n++
		}
	}
	return n
}

func (i *Influx) DropTemporary(ctx context.Context, h model.DatabaseHandle) error {
	if err := checkName(h.Database); err != nil {
		return err
	}
	if h.Endpoint != "" {
		api := i.newAPI(h)
		defer api.Close()
		if err := api.DeleteBucket(ctx, h.Database); err != nil {
			return fmt.Errorf("failed to drop bucket %s: %w", h.Database, err)
		}
	} else if _, err := i.run(ctx, h.Container, []string{"influx", "bucket", "delete", "--name", h.Database}, i.env(h)); err != nil {
		return fmt.Errorf("failed to drop bucket %s: %w", h.Database, err)
	}
	if _, err := i.run(ctx, h.Container, []string{"rm", "-rf", i.tempPath(i.Kind(), h.Database)}, nil); err != nil {
		return fmt.Errorf("failed to remove temp files of %s: %w", h.Database, err)
	}
	return nil
}

func (i *Influx) WaitReady(ctx context.Context, h model.DatabaseHandle, timeout time.Duration) bool {
	if h.Endpoint != "" {
		api := i.newAPI(h)
		defer api.Close()
		return i.waitReady(ctx, h, timeout, api.Ready)
	}
	return i.waitReady(ctx, h, timeout, func(ctx context.Context) bool {
		_, err := i.run(ctx, h.Container, []string{"influx", "ping"}, i.env(h))
		return err == nil
	})
}

// influxClient adapts influxdb2.Client to influxAPI.
type influxClient struct {
	client influxdb2.Client
	org    string
}

func newInfluxClient(h model.DatabaseHandle) influxAPI {
	return &influxClient{
		client: influxdb2.NewClient(h.Endpoint, h.Credentials.Token.Reveal()),
		org:    h.Credentials.Org,
	}
}

func (c *influxClient) Close() { c.client.Close() }

func (c *influxClient) Ready(ctx context.Context) bool {
	health, err := c.client.Health(ctx)
	if err != nil {
		log.Debug("[Database] influx health check failed", "error", err)
		return false
	}
	return health != nil && health.Status == "pass"
}

func (c *influxClient) CountMeasurements(ctx context.Context, bucket string) (int, error) {
	result, err := c.client.QueryAPI(c.org).Query(ctx, measurementsQuery(bucket))
	if err != nil {
		return 0, fmt.Errorf("measurements query failed: %w", err)
	}
	defer result.Close()
	n := 0
	for result.Next() {
		n++
	}
	if err := result.Err(); err != nil {
		return 0, fmt.Errorf("measurements query failed: %w", err)
	}
	return n, nil
}

func (c *influxClient) DeleteBucket(ctx context.Context, bucket string) error {
	buckets := c.client.BucketsAPI()
	b, err := buckets.FindBucketByName(ctx, bucket)
	if err != nil {
		return err
	}
	return buckets.DeleteBucket(ctx, b)
}
