package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"streamripper/src/analyzer"
	"streamripper/src/config"
	"streamripper/src/decode"
	"streamripper/src/notify"
	"streamripper/src/protocol"
	"streamripper/src/protocol/httpapi"
	"streamripper/src/report"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Parse(args, os.Stderr)
	switch {
	case errors.Is(err, config.ErrVersion), errors.Is(err, flag.ErrHelp):
		return 0
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	level, _ := logrus.ParseLevel(cfg.LogLevel)
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runDir := cfg.RunDir(time.Now())
	res := analyze(ctx, cfg, runDir, log)

	files, err := report.Save(runDir, res, report.Options{FlowLog: cfg.FlowLog})
	if err != nil {
		log.WithError(err).Error("could not save report")
		return 1
	}
	printResult(res, files)

	if cfg.Serve != "" {
		reg := httpapi.NewRegistry()
		reg.Add(res, runDir)
		// interrupted runs still get served; a fresh signal stops the server
		serveCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := httpapi.Serve(serveCtx, cfg.Serve, reg); err != nil {
			log.WithError(err).Error("results api failed")
			return 1
		}
	}

	if res.Failed() {
		return 1
	}
	return 0
}

func analyze(ctx context.Context, cfg config.Config, runDir string, log *logrus.Entry) *analyzer.Result {
	display := report.Redact(cfg.URL)

	srcURL, err := cfg.SourceURL()
	if err != nil {
		return analyzer.OpenFailed(display, err)
	}
	log.WithField("url", display).Info("opening stream")
	src, err := protocol.Open(ctx, srcURL, protocol.Options{})
	if err != nil {
		log.WithError(err).Error("could not open stream")
		return analyzer.OpenFailed(display, err)
	}

	info := src.Info()
	if info.VideoCodec != "h264" {
		log.WithField("codec", info.VideoCodec).Warn("only h264 video is validated; other codecs will be reported as corrupt")
	}

	var (
		opts []analyzer.Option
		pub  *notify.MQTTPublisher
	)
	if cfg.MQTT.Broker != "" {
		if pub, err = notify.Dial(ctx, cfg.MQTT, display); err != nil {
			log.WithError(err).Warn("corruption events will not be published")
		} else {
			defer pub.Close()
			opts = append(opts, analyzer.WithSink(pub))
		}
	}

	dec := decode.NewH264Decoder(decode.Config{})
	an := analyzer.New(cfg.Analyzer(runDir, info.VideoCodec), src, dec, opts...)
	log.WithFields(logrus.Fields{
		"run_id": an.RunID(),
		"dir":    runDir,
	}).Info("analysis starting")
	res := an.Run(ctx)

	if pub != nil {
		stats := pub.Stats()
		log.WithFields(logrus.Fields{
			"published": stats.Published,
			"errors":    stats.Errors,
		}).Info("corruption events published")
	}
	return res
}

func printResult(res *analyzer.Result, files report.Files) {
	if res.Failed() {
		fmt.Printf("Error: Could not open stream at %s: %s\n", res.URL, res.OpenError)
		fmt.Printf("Report: %s\n", files.Report)
		return
	}
	sum := res.Summary
	fmt.Printf("Analysis of %s finished in %.2fs\n", res.URL, sum.Duration.Seconds())
	fmt.Printf("Video frames: %d, audio packets: %d, corrupted packets: %d\n",
		sum.Video.Count, sum.Audio.Count, sum.CorruptedPackets)
	fmt.Printf("Results saved in %s\n", files.Dir)
	if res.RawStreamPath != "" {
		fmt.Printf("Raw stream: %s\n", res.RawStreamPath)
	}
	fmt.Printf("Stream bytes: video %d, audio %d\n", res.VideoBytes, res.AudioBytes)
	if res.EvidenceFiles > 0 {
		fmt.Printf("Evidence: %d packet dumps in %s\n", res.EvidenceFiles, res.EvidenceDir)
	}
}
