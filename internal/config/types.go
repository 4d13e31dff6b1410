package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// SizeBytes is a byte count read from strings like "64KiB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) String() string { return humanize.IBytes(uint64(s)) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration reads strings like "45s" or plain numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
