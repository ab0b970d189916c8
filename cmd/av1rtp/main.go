package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/av1rtp/internal/av1"
	"github.com/zsiec/av1rtp/internal/config"
	"github.com/zsiec/av1rtp/internal/logger"
	"github.com/zsiec/av1rtp/internal/rtp"
	"github.com/zsiec/av1rtp/pkg/version"
)

func main() {
	var (
		configPath  string
		mode        string
		inputPath   string
		outputPath  string
		fps         int
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "configs/default.yaml", "Path to configuration file")
	flag.StringVar(&mode, "mode", "recv", "Operation mode: send or recv")
	flag.StringVar(&inputPath, "input", "", "Low-overhead AV1 bitstream to send (send mode)")
	flag.StringVar(&outputPath, "output", "out.obu", "File for reassembled output (recv mode)")
	flag.IntVar(&fps, "fps", 30, "Temporal units per second when sending")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting av1rtp")

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("Shutting down")
		cancel()
	}()

	switch mode {
	case "send":
		err = runSend(ctx, cfg, log, inputPath, fps)
	case "recv":
		err = runRecv(ctx, cfg, log, outputPath)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		log.WithError(err).Fatal("av1rtp failed")
	}
}

func serveMetrics(cfg *config.Config, log *logrus.Logger) {
	router := mux.NewRouter()
	router.Path(cfg.Metrics.Path).Handler(promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	log.WithField("addr", addr).Info("Metrics endpoint listening")
	if err := http.ListenAndServe(addr, router); err != nil {
		log.WithError(err).Error("Metrics endpoint failed")
	}
}

// runSend streams the temporal units of a low-overhead AV1 file at the
// requested frame rate.
func runSend(ctx context.Context, cfg *config.Config, log *logrus.Logger, inputPath string, fps int) error {
	if inputPath == "" {
		return fmt.Errorf("send mode requires -input")
	}
	if fps < 1 {
		return fmt.Errorf("fps must be at least 1, got %d", fps)
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	units, err := splitTemporalUnits(data)
	if err != nil {
		return fmt.Errorf("parsing input bitstream: %w", err)
	}
	log.WithField("temporal_units", len(units)).Info("Input bitstream parsed")

	sender, err := rtp.NewSender(&cfg.RTP, &cfg.Packetizer, logger.NewLogrusAdapter(logger.WithComponent(log, "sender")))
	if err != nil {
		return err
	}
	defer sender.Close()

	interval := time.Second / time.Duration(fps)
	ticksPerUnit := cfg.RTP.ClockRate / uint32(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var timestamp uint32
	for _, unit := range units {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		// An oversized OBU is skipped by the packetizer; the stream goes on.
		if err := sender.SendTemporalUnit(ctx, unit, timestamp); err != nil && !av1.IsKind(err, av1.KindEncodingOverflow) {
			return err
		}
		timestamp += ticksPerUnit
	}

	log.Info("Bitstream sent")
	return nil
}

// runRecv reassembles incoming temporal units into an output file until
// interrupted.
func runRecv(ctx context.Context, cfg *config.Config, log *logrus.Logger, outputPath string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer out.Close()

	handler := func(payload []byte, timestamp uint32) error {
		_, err := out.Write(payload)
		return err
	}

	receiver, err := rtp.NewReceiver(&cfg.RTP, handler, nil, logger.NewLogrusAdapter(logger.WithComponent(log, "receiver")))
	if err != nil {
		return err
	}

	receiver.Start(ctx)
	<-ctx.Done()
	return receiver.Stop()
}

// splitTemporalUnits cuts a full low-overhead bitstream into temporal
// units, each beginning at a temporal delimiter.
func splitTemporalUnits(data []byte) ([][][]byte, error) {
	obus, err := av1.SplitTemporalUnit(data)
	if err != nil {
		return nil, err
	}

	var units [][][]byte
	var current [][]byte
	for _, obu := range obus {
		h, err := av1.ParseOBUHeader(obu)
		if err != nil {
			return nil, err
		}
		if h.Type == av1.OBUTemporalDelimiter && len(current) > 0 {
			units = append(units, current)
			current = nil
		}
		current = append(current, obu)
	}
	if len(current) > 0 {
		units = append(units, current)
	}
	return units, nil
}
