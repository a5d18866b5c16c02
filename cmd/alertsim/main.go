// Command alertsim publishes synthetic detector alerts to the broker so the
// ingest path and live streams can be exercised without real cameras.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"camguard.dev/internal/alertsim"
	"camguard.dev/internal/events"
	"camguard.dev/internal/obs"
)

func main() {
	var (
		amqpURL  = flag.String("amqp", os.Getenv("CAMGUARD_AMQP_URL"), "RabbitMQ URL")
		cameras  = flag.String("cameras", "", "Comma separated tenant_id:camera_id pairs")
		workers  = flag.Int("workers", 4, "Concurrent publishers")
		perSec   = flag.Float64("rate", 5, "Alerts per second across all workers")
		duration = flag.Duration("duration", time.Minute, "How long to run")
		seed     = flag.Int64("seed", 0, "Random seed (0 picks one)")
	)
	flag.Parse()

	if err := obs.InitLogger(os.Getenv("CAMGUARD_ENV")); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer obs.Sync()
	log := obs.Logger()

	cams, err := parseCameras(*cameras)
	if err != nil {
		log.Fatal("bad -cameras", zap.Error(err))
	}
	gen, err := alertsim.NewGenerator(alertsim.NightShiftScenario(cams), *seed)
	if err != nil {
		log.Fatal("build generator", zap.Error(err))
	}
	pub, err := events.NewAMQPPublisher(*amqpURL)
	if err != nil {
		log.Fatal("amqp publisher", zap.Error(err))
	}
	defer pub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	log.Info("launching alert simulation",
		zap.Int("cameras", len(cams)),
		zap.Int("workers", *workers),
		zap.Float64("rate", *perSec),
		zap.Duration("duration", *duration),
	)

	limiter := rate.NewLimiter(rate.Limit(*perSec), 1)
	var (
		counter  alertsim.Counter
		failures int64
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < *workers; i++ {
		id := i
		g.Go(func() error {
			for {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				alert := gen.Next()
				if err := pub.Publish(gctx, events.AlertQueue, alert); err != nil {
					if gctx.Err() != nil {
						return nil
					}
					atomic.AddInt64(&failures, 1)
					log.Warn("publish failed", zap.Int("worker", id), zap.Error(err))
					continue
				}
				counter.Add(alert)
			}
		})
	}
	_ = g.Wait()

	fields := []zap.Field{zap.Int("published", counter.Total()), zap.Int64("failed", atomic.LoadInt64(&failures))}
	by := counter.BySeverity()
	for _, sev := range counter.Severities() {
		fields = append(fields, zap.Int(sev, by[sev]))
	}
	log.Info("run complete", fields...)
}

func parseCameras(raw string) ([]alertsim.Camera, error) {
	var out []alertsim.Camera
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tenant, camera, ok := strings.Cut(part, ":")
		if !ok || tenant == "" || camera == "" {
			return nil, fmt.Errorf("expected tenant_id:camera_id, got %q", part)
		}
		out = append(out, alertsim.Camera{TenantID: tenant, CameraID: camera})
	}
	if len(out) == 0 {
		return nil, errors.New("at least one camera is required")
	}
	return out, nil
}
