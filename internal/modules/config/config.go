package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/privstream/privrec/internal/types"
	"github.com/privstream/privrec/utils"
	"github.com/sirupsen/logrus"
	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"
)

// all config is loaded from environment variables once at startup
type Config struct {
	Port string

	// filename label, first token of every segment name
	Label   string
	Streams []types.StreamSpec

	FrameWidth  int
	FrameHeight int
	BlurBlock   int
	FFmpegPath  string

	ProcessWorkers  int
	PersistWorkers  int
	ProcessingQueue int
	PersistQueue    int

	SegmentSeconds   int
	SegmentTolerance float64
	SegmentExt       string
	WriteTimecodes   bool
	FlushInterval    time.Duration

	ReadTimeout   time.Duration
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	MaxRetries    int

	OutputDir       string
	ArchiveDir      string
	TwoStageStorage bool
	IndexPath       string
	RelocateWorkers int

	ReportURL string
	ReportRPS int
	// opaque telemetry snapshot (e.g. GPS fix) attached to segment reports
	Telemetry string

	StatsInterval time.Duration
	ShutdownGrace time.Duration
	AutoStart     bool

	Username     string
	PasswordHash string
	JwtSecret    string
}

func provider() (*Config, error) {

	if level, err := logrus.ParseLevel(utils.EmptyOrElse(os.Getenv("LOG_LEVEL"), "info")); err == nil {
		logrus.SetLevel(level)
	}

	streams, err := ParseStreams(os.Getenv("STREAMS"))
	if err != nil {
		return nil, err
	}

	password := os.Getenv("PASSWORD")
	username := os.Getenv("USERNAME")

	var passwordHash []byte
	if password != "" && username != "" {
		passwordHash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port: utils.EmptyOrElse(os.Getenv("PORT"), "8080"),

		Label:   utils.EmptyOrElse(os.Getenv("LABEL"), "rec"),
		Streams: streams,

		FrameWidth:  utils.MustAtoi(utils.EmptyOrElse(os.Getenv("FRAME_WIDTH"), "640")),
		FrameHeight: utils.MustAtoi(utils.EmptyOrElse(os.Getenv("FRAME_HEIGHT"), "480")),
		BlurBlock:   utils.MustAtoi(utils.EmptyOrElse(os.Getenv("BLUR_BLOCK"), "16")),
		FFmpegPath:  utils.EmptyOrElse(os.Getenv("FFMPEG_PATH"), "ffmpeg"),

		ProcessWorkers:  utils.MustAtoi(utils.EmptyOrElse(os.Getenv("PROCESS_WORKERS"), "4")),
		PersistWorkers:  utils.MustAtoi(utils.EmptyOrElse(os.Getenv("PERSIST_WORKERS"), "4")),
		ProcessingQueue: utils.MustAtoi(utils.EmptyOrElse(os.Getenv("PROCESSING_QUEUE"), "64")),
		PersistQueue:    utils.MustAtoi(utils.EmptyOrElse(os.Getenv("PERSIST_QUEUE"), "64")),

		SegmentSeconds:   utils.MustAtoi(utils.EmptyOrElse(os.Getenv("SEGMENT_SECONDS"), "20")),
		SegmentTolerance: utils.MustAtof(utils.EmptyOrElse(os.Getenv("SEGMENT_TOLERANCE"), "0.05")),
		SegmentExt:       utils.EmptyOrElse(os.Getenv("SEGMENT_EXT"), "mp4"),
		WriteTimecodes:   os.Getenv("WRITE_TIMECODES") == "true",
		FlushInterval:    secondsEnv("FLUSH_INTERVAL_SECONDS", 5),

		ReadTimeout:   secondsEnv("READ_TIMEOUT_SECONDS", 5),
		RetryDelay:    secondsEnv("RETRY_DELAY_SECONDS", 1),
		MaxRetryDelay: secondsEnv("MAX_RETRY_DELAY_SECONDS", 30),
		MaxRetries:    utils.MustAtoi(utils.EmptyOrElse(os.Getenv("MAX_RETRIES"), "5")),

		OutputDir:       utils.EmptyOrElse(os.Getenv("OUTPUT_DIR"), "records"),
		ArchiveDir:      utils.EmptyOrElse(os.Getenv("ARCHIVE_DIR"), "archive"),
		TwoStageStorage: os.Getenv("TWO_STAGE_STORAGE") != "false",
		IndexPath:       utils.EmptyOrElse(os.Getenv("INDEX_PATH"), "data/segments.db"),
		RelocateWorkers: utils.MustAtoi(utils.EmptyOrElse(os.Getenv("RELOCATE_WORKERS"), "2")),

		ReportURL: os.Getenv("REPORT_URL"),
		ReportRPS: utils.MustAtoi(utils.EmptyOrElse(os.Getenv("REPORT_RPS"), "5")),
		Telemetry: os.Getenv("TELEMETRY"),

		StatsInterval: secondsEnv("STATS_INTERVAL_SECONDS", 30),
		ShutdownGrace: secondsEnv("SHUTDOWN_GRACE_SECONDS", 5),
		AutoStart:     os.Getenv("AUTO_START") != "false",

		Username:     username,
		PasswordHash: string(passwordHash),
		JwtSecret:    utils.EmptyOrElse(os.Getenv("JWT_SECRET"), "privrec_secret"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("invalid frame geometry %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.ProcessWorkers <= 0 || c.PersistWorkers <= 0 {
		return fmt.Errorf("worker pool sizes must be positive")
	}
	if c.SegmentSeconds <= 0 {
		return fmt.Errorf("segment duration must be positive")
	}
	if c.SegmentTolerance < 0 || c.SegmentTolerance > 1 {
		return fmt.Errorf("segment tolerance %v out of range [0,1]", c.SegmentTolerance)
	}
	seen := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if seen[s.ID] {
			return fmt.Errorf("duplicate stream id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// FrameSize returns the byte size of one packed RGB24 frame.
func (c *Config) FrameSize() int {
	return c.FrameWidth * c.FrameHeight * 3
}

// SegmentDuration returns the target playback length of one segment.
func (c *Config) SegmentDuration() time.Duration {
	return time.Duration(c.SegmentSeconds) * time.Second
}

// ParseStreams parses the STREAMS value: comma-separated "id|url|fps"
// entries, e.g. "stream01|rtsp://cam1/main|15,stream02|rtsp://cam2/main|10".
func ParseStreams(raw string) ([]types.StreamSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	entries := strings.Split(raw, ",")
	specs := make([]types.StreamSpec, 0, len(entries))
	for _, entry := range entries {
		parts := strings.Split(strings.TrimSpace(entry), "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid stream entry %q, want id|url|fps", entry)
		}
		fps, err := parseFPS(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid fps in stream entry %q: %w", entry, err)
		}
		specs = append(specs, types.StreamSpec{
			ID:        strings.TrimSpace(parts[0]),
			URL:       strings.TrimSpace(parts[1]),
			TargetFPS: fps,
		})
	}
	return specs, nil
}

func parseFPS(s string) (int, error) {
	var fps int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &fps); err != nil {
		return 0, err
	}
	if fps <= 0 {
		return 0, fmt.Errorf("fps must be positive, got %d", fps)
	}
	return fps, nil
}

func secondsEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(utils.MustAtoi(utils.EmptyOrElse(os.Getenv(key), fmt.Sprint(defaultSeconds)))) * time.Second
}

var Module = fx.Module("config", fx.Provide(provider))
