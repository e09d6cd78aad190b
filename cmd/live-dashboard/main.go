package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pobtrack/pob-backend/pkg/dashboard"
	"github.com/sirupsen/logrus"
)

// live-dashboard follows the live channel from a terminal, e.g. on a gate kiosk without a browser
func main() {
	server := flag.String("server", "http://localhost:5000", "POB backend base URL")
	locationID := flag.Int64("location", 0, "location scope (0 = global)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var scope *int64
	if *locationID > 0 {
		scope = locationID
	}

	// OnChange runs on timer goroutines
	var mu sync.Mutex
	var lastAlert *dashboard.Alert
	session := dashboard.NewSession(dashboard.NewHTTPFetcher(*server, nil), scope, dashboard.Options{
		Logger: logger,
		OnChange: func(snap dashboard.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			if snap.Alert != nil && (lastAlert == nil || *lastAlert != *snap.Alert) {
				a := *snap.Alert
				lastAlert = &a
				entry := logger.WithFields(logrus.Fields{"title": a.Title, "location": a.Location})
				if a.MCUWarning != nil {
					entry = entry.WithField("mcu_warning", *a.MCUWarning)
				}
				entry.Info(a.Message)
			}
			if snap.Alert == nil {
				lastAlert = nil
			}
			if snap.Stats == nil {
				return
			}

			fields := logrus.Fields{
				"pob":      snap.Stats.POBCount,
				"today_in": snap.Stats.TodayTapIn,
				"field":    snap.Stats.FieldCount,
				"visitors": snap.Stats.VisitorCount,
				"vehicles": snap.Stats.Vehicles.OnBoard,
				"offline":  snap.Offline(),
			}
			if snap.LocationInfo != nil {
				fields["scope"] = snap.LocationInfo.Name
			}
			logger.WithFields(fields).Info("Stats")
		},
	})

	liveURL, err := dashboard.LiveURL(*server)
	if err != nil {
		logger.Fatalf("Invalid server URL: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.Start()
	defer session.Close()

	if err := dashboard.NewClient(liveURL, session, logger).Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("Live channel failed: %v", err)
	}
}
