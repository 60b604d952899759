package main

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"imgmigrate/internal/config"
)

const logLevelEnvKey = "IMGMIGRATE_LOG_LEVEL"

type levelSource string

const (
	levelFromFlag    levelSource = "flag"
	levelFromEnv     levelSource = "env"
	levelFromConfig  levelSource = "config"
	levelFromDefault levelSource = "default"
)

type levelChoice struct {
	raw    string
	source levelSource
}

// chooseLogLevel picks the first non-blank of flag, env and config.
func chooseLogLevel(flagLevel, envLevel, configLevel string) levelChoice {
	for _, c := range []levelChoice{
		{raw: flagLevel, source: levelFromFlag},
		{raw: envLevel, source: levelFromEnv},
		{raw: configLevel, source: levelFromConfig},
	} {
		if strings.TrimSpace(c.raw) != "" {
			return c
		}
	}
	return levelChoice{source: levelFromDefault}
}

// setupLogging installs the default text logger on w. A bad --log-level is
// an error; a bad env or config level falls back to the default and returns
// a warning line.
func setupLogging(w io.Writer, flagLevel, envLevel, configLevel string) (string, error) {
	choice := chooseLogLevel(flagLevel, envLevel, configLevel)
	level, err := parseLogLevel(choice.raw)
	if err == nil {
		slog.SetDefault(newLogger(w, level))
		return "", nil
	}

	var warning string
	switch choice.source {
	case levelFromFlag:
		return "", fmt.Errorf("invalid --log-level %q", flagLevel)
	case levelFromEnv:
		warning = fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel)
	case levelFromConfig:
		warning = fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel)
	}
	slog.SetDefault(newLogger(w, slog.LevelInfo))
	return warning, nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
