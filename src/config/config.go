// Package config holds the command line configuration of a run. Values come
// from flags, then STREAMRIPPER_* environment variables, then defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"streamripper/src/analyzer"
	"streamripper/src/notify"
	"streamripper/src/report"
)

const (
	VERSION = "0.1.0"

	DEFAULT_OUTPUT_DIR = "./output"
	DEFAULT_LOG_LEVEL  = "info"
	ENV_PREFIX         = "STREAMRIPPER_"
)

// ErrVersion is returned by Parse when only the version was asked for.
var ErrVersion = errors.New("version requested")

type Config struct {
	URL       string
	Duration  time.Duration
	OutputDir string
	// Prefix names the run directory instead of the start time.
	Prefix string

	FlowLog    bool
	SaveStream bool
	Forensic   bool

	User     string
	Password string

	LogLevel string
	// Serve keeps an HTTP API up on this address after the run.
	Serve string

	MQTT notify.Config
}

func Default() Config {
	return Config{
		Duration:   analyzer.DEFAULT_DURATION,
		OutputDir:  DEFAULT_OUTPUT_DIR,
		FlowLog:    true,
		SaveStream: true,
		Forensic:   true,
		LogLevel:   DEFAULT_LOG_LEVEL,
		MQTT: notify.Config{
			Topic:    notify.DEFAULT_TOPIC,
			Encoding: notify.ENCODING_JSON,
		},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(ENV_PREFIX + key); value != "" {
		return value
	}
	return fallback
}

// getDurationEnv accepts Go durations ("90s") and plain seconds ("90").
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(ENV_PREFIX + key)
	if value == "" {
		return fallback
	}
	d, err := parseDuration(value)
	if err != nil || d <= 0 {
		logrus.WithField("component", "config").Warnf("invalid duration for %s%s: %q", ENV_PREFIX, key, value)
		return fallback
	}
	return d
}

func getBoolEnv(key string, fallback bool) bool {
	value := os.Getenv(ENV_PREFIX + key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithField("component", "config").Warnf("invalid bool for %s%s: %q", ENV_PREFIX, key, value)
		return fallback
	}
	return b
}

func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// FromEnv overlays the environment on Default().
func FromEnv() Config {
	c := Default()
	c.Duration = getDurationEnv("DURATION", c.Duration)
	c.OutputDir = getEnv("OUTPUT_DIR", c.OutputDir)
	c.Prefix = getEnv("PREFIX", c.Prefix)
	c.FlowLog = getBoolEnv("FLOW_LOG", c.FlowLog)
	c.SaveStream = getBoolEnv("SAVE_STREAM", c.SaveStream)
	c.Forensic = getBoolEnv("FORENSIC", c.Forensic)
	c.User = getEnv("USER", c.User)
	c.Password = getEnv("PASSWORD", c.Password)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Serve = getEnv("SERVE", c.Serve)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)
	c.MQTT.Encoding = getEnv("MQTT_ENCODING", c.MQTT.Encoding)
	return c
}

// Parse reads the environment and then args (without the program name).
func Parse(args []string, out io.Writer) (Config, error) {
	c := FromEnv()

	fs := flag.NewFlagSet("streamripper", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: streamripper [flags] <stream-url>\n\n")
		fs.PrintDefaults()
	}

	duration := fs.String("duration", strconv.Itoa(int(c.Duration/time.Second)), "analysis duration in seconds, or a Go duration such as 90s")
	fs.StringVar(&c.OutputDir, "output-dir", c.OutputDir, "output directory for results")
	fs.StringVar(&c.Prefix, "prefix", c.Prefix, "run directory name (default: start time)")
	noFlow := fs.Bool("no-debug-log", !c.FlowLog, "do not write flow.csv")
	noSave := fs.Bool("no-save-stream", !c.SaveStream, "do not save the raw video bitstream")
	noForensic := fs.Bool("no-forensic", !c.Forensic, "do not write evidence files for corrupted packets")
	fs.StringVar(&c.User, "user", c.User, "username inserted into the stream url")
	fs.StringVar(&c.Password, "password", c.Password, "password inserted into the stream url")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&c.Serve, "serve", c.Serve, "serve results over HTTP on this address after the run")
	fs.StringVar(&c.MQTT.Broker, "mqtt-broker", c.MQTT.Broker, "publish corruption events to this MQTT broker")
	fs.StringVar(&c.MQTT.Topic, "mqtt-topic", c.MQTT.Topic, "MQTT topic prefix")
	fs.StringVar(&c.MQTT.Encoding, "mqtt-encoding", c.MQTT.Encoding, "MQTT payload encoding (json, msgpack)")
	version := fs.Bool("version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if *version {
		fmt.Fprintf(out, "streamripper %s\n", VERSION)
		return c, ErrVersion
	}

	d, err := parseDuration(*duration)
	if err != nil {
		return c, fmt.Errorf("invalid -duration %q: %w", *duration, err)
	}
	c.Duration = d
	c.FlowLog = !*noFlow
	c.SaveStream = !*noSave
	c.Forensic = !*noForensic

	switch fs.NArg() {
	case 0:
		fs.Usage()
		return c, errors.New("missing stream url")
	case 1:
		c.URL = fs.Arg(0)
	default:
		return c, fmt.Errorf("unexpected arguments after url: %s", strings.Join(fs.Args()[1:], " "))
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("stream url is required")
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	if c.OutputDir == "" {
		return errors.New("output dir is required")
	}
	if (c.User == "") != (c.Password == "") {
		return errors.New("user and password must be given together")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.MQTT.Encoding {
	case "", notify.ENCODING_JSON, notify.ENCODING_MSGPACK:
	default:
		return fmt.Errorf("unknown mqtt encoding %q", c.MQTT.Encoding)
	}
	return nil
}

// SourceURL is the url used to open the stream, credentials included.
func (c Config) SourceURL() (string, error) {
	return report.WithCredentials(c.URL, c.User, c.Password)
}

// RunDir is the directory of a run started at t.
func (c Config) RunDir(t time.Time) string {
	if c.Prefix != "" {
		return filepath.Join(c.OutputDir, report.Sanitize(c.URL), c.Prefix)
	}
	return report.RunDir(c.OutputDir, c.URL, t)
}

// Analyzer derives the analyzer configuration for a run in runDir whose
// video codec is codec.
func (c Config) Analyzer(runDir, codec string) analyzer.Config {
	ac := analyzer.Config{
		URL:      report.Redact(c.URL),
		Duration: c.Duration,
		Forensic: c.Forensic,
	}
	if c.Forensic {
		ac.EvidenceDir = filepath.Join(runDir, report.EVIDENCE_DIR)
	}
	if c.SaveStream {
		ac.RawStreamPath = filepath.Join(runDir, report.RawStreamName(codec))
	}
	return ac
}
