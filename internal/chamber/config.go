package chamber

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Default tuning values, matching the capture rig this engine was built
// around (640x480 frames, dim LED side illumination).
const (
	DefaultEdgeLow          = 50
	DefaultEdgeHigh         = 150
	DefaultTriggerThreshold = 1000.0
	DefaultCooldownSeconds  = 5.0
	DefaultFilenamePrefix   = "event"
	DefaultScorerName       = "count"
)

// TuningConfig is the JSON-facing tuning schema. All fields are optional
// pointers so partial configs are safe: fields omitted from a file or an API
// update keep their previous (or default) values. The same schema is used for
// startup configuration, the /api/params endpoint and named presets.
type TuningConfig struct {
	// Preprocessor adjustments (percent, except black_point)
	Contrast   *float64 `json:"contrast,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
	BlackPoint *int     `json:"black_point,omitempty"`

	// Edge extractor hysteresis thresholds
	EdgeLow  *int `json:"edge_low,omitempty"`
	EdgeHigh *int `json:"edge_high,omitempty"`

	// Trigger
	TriggerThreshold *float64 `json:"trigger_threshold,omitempty"`
	Scorer           *string  `json:"scorer,omitempty"`

	// Cooldown gate
	CooldownEnabled *bool    `json:"cooldown_enabled,omitempty"`
	CooldownSeconds *float64 `json:"cooldown_seconds,omitempty"`

	// Event emitter
	SaveEvents     *bool   `json:"save_events,omitempty"`
	FilenamePrefix *string `json:"filename_prefix,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. Partial configs are
// safe; omitted fields fall back to defaults when resolved.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Guard against reading something that clearly isn't a tuning file.
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return cfg, nil
}

// Merge overlays every non-nil field of other onto c, returning c for
// chaining. Used to apply partial API updates on top of the current config.
func (c *TuningConfig) Merge(other *TuningConfig) *TuningConfig {
	if other == nil {
		return c
	}
	if other.Contrast != nil {
		c.Contrast = other.Contrast
	}
	if other.Brightness != nil {
		c.Brightness = other.Brightness
	}
	if other.Saturation != nil {
		c.Saturation = other.Saturation
	}
	if other.BlackPoint != nil {
		c.BlackPoint = other.BlackPoint
	}
	if other.EdgeLow != nil {
		c.EdgeLow = other.EdgeLow
	}
	if other.EdgeHigh != nil {
		c.EdgeHigh = other.EdgeHigh
	}
	if other.TriggerThreshold != nil {
		c.TriggerThreshold = other.TriggerThreshold
	}
	if other.Scorer != nil {
		c.Scorer = other.Scorer
	}
	if other.CooldownEnabled != nil {
		c.CooldownEnabled = other.CooldownEnabled
	}
	if other.CooldownSeconds != nil {
		c.CooldownSeconds = other.CooldownSeconds
	}
	if other.SaveEvents != nil {
		c.SaveEvents = other.SaveEvents
	}
	if other.FilenamePrefix != nil {
		c.FilenamePrefix = other.FilenamePrefix
	}
	return c
}

// Resolve produces the concrete Settings the engine reads each frame,
// supplying defaults for unset fields and clamping the adjustment values.
// The returned Settings still need Validate before being applied.
func (c *TuningConfig) Resolve() Settings {
	s := Settings{
		Edges:            EdgeThresholds{Low: DefaultEdgeLow, High: DefaultEdgeHigh},
		TriggerThreshold: DefaultTriggerThreshold,
		ScorerName:       DefaultScorerName,
		CooldownEnabled:  true,
		Cooldown:         time.Duration(DefaultCooldownSeconds * float64(time.Second)),
		FilenamePrefix:   DefaultFilenamePrefix,
	}
	if c == nil {
		return s
	}
	if c.Contrast != nil {
		s.Adjust.Contrast = *c.Contrast
	}
	if c.Brightness != nil {
		s.Adjust.Brightness = *c.Brightness
	}
	if c.Saturation != nil {
		s.Adjust.Saturation = *c.Saturation
	}
	if c.BlackPoint != nil {
		s.Adjust.BlackPoint = *c.BlackPoint
	}
	s.Adjust = s.Adjust.Clamped()
	if c.EdgeLow != nil {
		s.Edges.Low = *c.EdgeLow
	}
	if c.EdgeHigh != nil {
		s.Edges.High = *c.EdgeHigh
	}
	if c.TriggerThreshold != nil {
		s.TriggerThreshold = *c.TriggerThreshold
	}
	if c.Scorer != nil {
		s.ScorerName = *c.Scorer
	}
	if c.CooldownEnabled != nil {
		s.CooldownEnabled = *c.CooldownEnabled
	}
	if c.CooldownSeconds != nil {
		s.Cooldown = time.Duration(*c.CooldownSeconds * float64(time.Second))
	}
	if c.SaveEvents != nil {
		s.SaveEvents = *c.SaveEvents
	}
	if c.FilenamePrefix != nil {
		s.FilenamePrefix = *c.FilenamePrefix
	}
	return s
}

// Settings is the resolved, immutable-per-frame view of the tuning config.
// The engine snapshots Settings once per frame; a hot reload replaces the
// whole value so a frame never observes a half-applied update.
type Settings struct {
	Adjust           AdjustmentSettings
	Edges            EdgeThresholds
	TriggerThreshold float64
	ScorerName       string
	CooldownEnabled  bool
	Cooldown         time.Duration
	SaveEvents       bool
	FilenamePrefix   string
}

// Validate rejects settings the pipeline must never run with. Rejection
// happens at the point a configuration is applied; the engine keeps running
// with its last valid settings.
func (s Settings) Validate() error {
	if err := s.Edges.Validate(); err != nil {
		return err
	}
	if s.TriggerThreshold < 0 {
		return fmt.Errorf("trigger threshold %v is negative", s.TriggerThreshold)
	}
	if _, err := ScorerByName(s.ScorerName); err != nil {
		return err
	}
	if s.Cooldown < 0 {
		return fmt.Errorf("cooldown duration %v is negative", s.Cooldown)
	}
	if s.FilenamePrefix == "" {
		return fmt.Errorf("filename prefix must not be empty")
	}
	if filepath.Base(s.FilenamePrefix) != s.FilenamePrefix {
		return fmt.Errorf("filename prefix %q must not contain path separators", s.FilenamePrefix)
	}
	return nil
}
