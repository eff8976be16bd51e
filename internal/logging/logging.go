package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"backend-bustracker/internal/config"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level maps the LOG_LEVEL setting onto a logrus level. Unknown values mean INFO.
func Level(name string) log.Level {
	switch name {
	case "DEBUG":
		return log.DebugLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// Configure sets up the standard logrus logger: colored text on stdout and,
// when cfg.LogFile is set, a rotating plain-text file.
func Configure(cfg config.Config) error {
	return configure(log.StandardLogger(), cfg, os.Stdout)
}

func configure(logger *log.Logger, cfg config.Config, out io.Writer) error {
	logger.SetLevel(Level(cfg.LogLevel))
	logger.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: false})
	logger.SetOutput(out)

	if cfg.LogFile == "" {
		return nil
	}

	logDir := filepath.Dir(cfg.LogFile)
	if err := os.MkdirAll(logDir, os.ModePerm); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	rotating := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 30,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}

	hook := lfshook.NewHook(lfshook.WriterMap{
		log.PanicLevel: rotating,
		log.FatalLevel: rotating,
		log.ErrorLevel: rotating,
		log.WarnLevel:  rotating,
		log.InfoLevel:  rotating,
		log.DebugLevel: rotating,
		log.TraceLevel: rotating,
	}, &log.TextFormatter{DisableColors: true, FullTimestamp: true})
	logger.AddHook(hook)
	return nil
}
