package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CLIPCAPTURE_ACTIVE_CONFIG.
const EnvPrefix = "CLIPCAPTURE"

type DefinitionsConfig struct {
	Devices []DeviceDefinition `mapstructure:"devices" yaml:"devices"`
}

// DeviceDefinition describes one camera, optionally with the microphone
// recorded alongside it.
type DeviceDefinition struct {
	ID     string `mapstructure:"id" yaml:"id"`
	Name   string `mapstructure:"name" yaml:"name"`
	Facing string `mapstructure:"facing" yaml:"facing"` // "user", "environment"
	Video  string `mapstructure:"video" yaml:"video"`   // /dev/videoN or camera name
	Audio  string `mapstructure:"audio" yaml:"audio"`   // ALSA device, empty: default
}

type DeviceReference struct {
	Ref   string  `mapstructure:"ref" yaml:"ref"`
	Video *string `mapstructure:"video,omitempty" yaml:"video,omitempty"`
	Audio *string `mapstructure:"audio,omitempty" yaml:"audio,omitempty"`
}

type GlobalsConfig struct {
	Output GlobalOutputConfig `mapstructure:"output" yaml:"output"`
}

type GlobalOutputConfig struct {
	RecordingsDirectory string `mapstructure:"recordings_directory" yaml:"recordings_directory"`
	TracksDirectory     string `mapstructure:"tracks_directory" yaml:"tracks_directory"`
}

type RootConfig struct {
	ActiveConfig             string                    `mapstructure:"active_config" yaml:"active_config"`
	Globals                  *GlobalsConfig            `mapstructure:"globals,omitempty" yaml:"globals,omitempty"`
	Capture                  *CaptureConfig            `mapstructure:"capture,omitempty" yaml:"capture,omitempty"`
	Definitions              *DefinitionsConfig        `mapstructure:"definitions,omitempty" yaml:"definitions,omitempty"`
	Configs                  map[string]*ConfigProfile `mapstructure:"configs" yaml:"configs"`
	SupportedTrackExtensions []string                  `mapstructure:"supported_track_extensions" yaml:"supported_track_extensions"`
}

type Config struct {
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Devices   []Device        `mapstructure:"devices" yaml:"devices"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`

	// Internal field to track inheritance information for info command
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type ConfigProfile struct {
	Capture   CaptureConfig     `mapstructure:"capture" yaml:"capture"`
	Devices   []DeviceReference `mapstructure:"devices" yaml:"devices"`
	Recording RecordingConfig   `mapstructure:"recording" yaml:"recording"`
	Output    OutputConfig      `mapstructure:"output" yaml:"output"`
	Logging   LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

type InheritanceInfo struct {
	Capture struct {
		Backend    string // "inherited" or "profile-specific"
		Resolution string
		FrameRate  string
		Facing     string
	}
	Recording struct {
		Countdown string
		PreRoll   string
		Crossfade string
		Profile   string
		Gallery   string
	}
	Devices map[string]struct {
		Video string // "inherited" or "profile-specific"
		Audio string
	}
	Output struct {
		Directory string
	}
}

type CaptureConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"` // "v4l2", "lavfi", "auto"
	Width     int    `mapstructure:"width" yaml:"width"`
	Height    int    `mapstructure:"height" yaml:"height"`
	FrameRate int    `mapstructure:"framerate" yaml:"framerate"`
	Facing    string `mapstructure:"facing" yaml:"facing"` // initial facing
}

type Device struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Facing string `mapstructure:"facing" yaml:"facing"`
	Video  string `mapstructure:"video" yaml:"video"`
	Audio  string `mapstructure:"audio" yaml:"audio"`
}

// RecordingConfig holds the session settings. Countdown and pre-roll are
// pointers because zero is a meaningful value for both.
type RecordingConfig struct {
	CountdownSeconds *float64 `mapstructure:"countdown_seconds" yaml:"countdown_seconds,omitempty"`
	PrerollSeconds   *float64 `mapstructure:"preroll_seconds" yaml:"preroll_seconds,omitempty"`
	CrossfadeMs      int      `mapstructure:"crossfade_ms" yaml:"crossfade_ms"`
	Container        string   `mapstructure:"container" yaml:"container"`
	VideoCodec       string   `mapstructure:"video_codec" yaml:"video_codec"`
	AudioCodec       string   `mapstructure:"audio_codec" yaml:"audio_codec"`
	VideoBitrate     string   `mapstructure:"video_bitrate" yaml:"video_bitrate"`
	FilenamePattern  string   `mapstructure:"filename_pattern" yaml:"filename_pattern"`
	GallerySize      int      `mapstructure:"gallery_size" yaml:"gallery_size"`
	DownloadDelayMs  int      `mapstructure:"download_delay_ms" yaml:"download_delay_ms"`
}

type OutputConfig struct {
	Directory       string `mapstructure:"directory" yaml:"directory"`
	TracksDirectory string `mapstructure:"tracks_directory" yaml:"tracks_directory"`
}

type LoggingConfig struct {
	Format string `mapstructure:"format" yaml:"format"` // "text", "json"
}

const (
	DefaultCountdownSeconds = 3.0
	DefaultPrerollSeconds   = 3.0
)

// Default returns the configuration used when no profile sets a value.
func Default() *Config {
	countdown, preroll := DefaultCountdownSeconds, DefaultPrerollSeconds
	return &Config{
		Capture: CaptureConfig{
			Backend:   "auto",
			Width:     1280,
			Height:    720,
			FrameRate: 30,
			Facing:    "user",
		},
		Devices: []Device{
			{Name: "front", Facing: "user", Video: "/dev/video0", Audio: "default"},
		},
		Recording: RecordingConfig{
			CountdownSeconds: &countdown,
			PrerollSeconds:   &preroll,
			Container:        "webm",
			VideoCodec:       "libvpx-vp9",
			AudioCodec:       "libopus",
			VideoBitrate:     "2M",
			FilenamePattern:  "{app}-recording.{ext}",
			GallerySize:      10,
			DownloadDelayMs:  200,
		},
		Output: OutputConfig{
			Directory:       filepath.Join(os.Getenv("HOME"), "Videos", "ClipCapture"),
			TracksDirectory: filepath.Join(os.Getenv("HOME"), "Music"),
		},
		Logging: LoggingConfig{Format: "text"},
	}
}

// Countdown returns the visible countdown before capture starts.
func (r RecordingConfig) Countdown() time.Duration {
	if r.CountdownSeconds == nil {
		return seconds(DefaultCountdownSeconds)
	}
	return seconds(*r.CountdownSeconds)
}

// PreRoll returns the ambient microphone window before the music.
func (r RecordingConfig) PreRoll() time.Duration {
	if r.PrerollSeconds == nil {
		return seconds(DefaultPrerollSeconds)
	}
	return seconds(*r.PrerollSeconds)
}

// Crossfade returns the source switch fade, zero for an atomic switch.
func (r RecordingConfig) Crossfade() time.Duration {
	return time.Duration(r.CrossfadeMs) * time.Millisecond
}

// DownloadDelay returns the pause between successive downloads.
func (r RecordingConfig) DownloadDelay() time.Duration {
	return time.Duration(r.DownloadDelayMs) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Cameras maps each facing mode to its video device.
func (c *Config) Cameras() map[string]string {
	cams := make(map[string]string)
	for _, d := range c.Devices {
		if d.Video == "" || d.Video == "disabled" {
			continue
		}
		if _, exists := cams[d.Facing]; !exists {
			cams[d.Facing] = d.Video
		}
	}
	return cams
}

// Microphone returns the audio device recorded with the cameras: the first
// one configured, "default" otherwise.
func (c *Config) Microphone() string {
	for _, d := range c.Devices {
		if d.Audio != "" && d.Audio != "disabled" {
			return d.Audio
		}
	}
	return "default"
}

// Load reads the active profile of configFile.
func Load(configFile string) (*Config, error) {
	return LoadWithProfile(configFile, "")
}

func LoadWithProfile(configFile, profile string) (*Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("no config file specified, use --config flag")
	}

	// Validate configuration format first
	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// Determine which config to use
	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	selectedProfile, exists := rootConfig.Configs[configName]
	if !exists {
		return nil, fmt.Errorf("configuration profile '%s' not found", configName)
	}

	selectedConfig, err := convertProfileToConfig(selectedProfile, rootConfig.Definitions)
	if err != nil {
		return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
	}

	// Root capture settings are the base every profile starts from
	if rootConfig.Capture != nil {
		selectedConfig.Capture = mergeCapture(*rootConfig.Capture, selectedConfig.Capture)
	}

	// Merge with default profile if it exists and we're not already using it,
	// then with built-in defaults
	base := Default()
	if configName != "default" {
		if defaultProfile, exists := rootConfig.Configs["default"]; exists {
			defaultConfig, err := convertProfileToConfig(defaultProfile, rootConfig.Definitions)
			if err != nil {
				return nil, fmt.Errorf("error resolving default configuration: %w", err)
			}
			if rootConfig.Capture != nil {
				defaultConfig.Capture = mergeCapture(*rootConfig.Capture, defaultConfig.Capture)
			}
			base = mergeConfigs(base, defaultConfig)
		}
	}
	selectedConfig = mergeConfigs(base, selectedConfig)

	// Global directories take precedence over profile directories
	if rootConfig.Globals != nil && rootConfig.Globals.Output.RecordingsDirectory != "" {
		selectedConfig.Output.Directory = rootConfig.Globals.Output.RecordingsDirectory
	}
	if rootConfig.Globals != nil && rootConfig.Globals.Output.TracksDirectory != "" {
		selectedConfig.Output.TracksDirectory = rootConfig.Globals.Output.TracksDirectory
	}

	selectedConfig.Output.Directory = expandPath(selectedConfig.Output.Directory)
	selectedConfig.Output.TracksDirectory = expandPath(selectedConfig.Output.TracksDirectory)

	if err := validateConfig(selectedConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selectedConfig, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if _, exists := rootConfig.Configs[newActiveConfig]; !exists {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

// convertProfileToConfig converts a ConfigProfile to Config by resolving device references
func convertProfileToConfig(profile *ConfigProfile, definitions *DefinitionsConfig) (*Config, error) {
	if profile == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}

	config := &Config{
		Capture:   profile.Capture,
		Recording: profile.Recording,
		Output:    profile.Output,
		Logging:   profile.Logging,
	}

	for i, ref := range profile.Devices {
		if ref.Ref == "" {
			return nil, fmt.Errorf("devices[%d]: 'ref' is required", i)
		}

		var definition *DeviceDefinition
		if definitions != nil {
			for j := range definitions.Devices {
				if definitions.Devices[j].ID == ref.Ref {
					definition = &definitions.Devices[j]
					break
				}
			}
		}
		if definition == nil {
			return nil, fmt.Errorf("devices[%d]: reference '%s' not found in definitions", i, ref.Ref)
		}

		device := Device{
			Name:   definition.Name,
			Facing: definition.Facing,
			Video:  definition.Video,
			Audio:  definition.Audio,
		}
		if ref.Video != nil {
			device.Video = *ref.Video
		}
		if ref.Audio != nil {
			device.Audio = *ref.Audio
		}

		config.Devices = append(config.Devices, device)
	}

	return config, nil
}

func mergeCapture(base, profile CaptureConfig) CaptureConfig {
	if profile.Backend != "" {
		base.Backend = profile.Backend
	}
	if profile.Width != 0 {
		base.Width = profile.Width
	}
	if profile.Height != 0 {
		base.Height = profile.Height
	}
	if profile.FrameRate != 0 {
		base.FrameRate = profile.FrameRate
	}
	if profile.Facing != "" {
		base.Facing = profile.Facing
	}
	return base
}

// mergeConfigs implements the "Selection & Fallback" inheritance model:
// - Devices: only the devices explicitly listed in the profile are used
// - Listed devices missing video/audio inherit them from the base device with the same name
// - All other settings use the profile value or fall back to the base
func mergeConfigs(base, profile *Config) *Config {
	result := &Config{}

	result.Inheritance = &InheritanceInfo{
		Devices: make(map[string]struct {
			Video string
			Audio string
		}),
	}

	if base != nil {
		result.Capture = base.Capture
		result.Recording = base.Recording
		result.Output = base.Output
		result.Logging = base.Logging
		result.Devices = base.Devices

		result.Inheritance.Capture.Backend = "inherited"
		result.Inheritance.Capture.Resolution = "inherited"
		result.Inheritance.Capture.FrameRate = "inherited"
		result.Inheritance.Capture.Facing = "inherited"
		result.Inheritance.Recording.Countdown = "inherited"
		result.Inheritance.Recording.PreRoll = "inherited"
		result.Inheritance.Recording.Crossfade = "inherited"
		result.Inheritance.Recording.Profile = "inherited"
		result.Inheritance.Recording.Gallery = "inherited"
		result.Inheritance.Output.Directory = "inherited"
	}

	if profile == nil {
		return result
	}

	if profile.Capture.Backend != "" {
		result.Capture.Backend = profile.Capture.Backend
		result.Inheritance.Capture.Backend = "profile-specific"
	}
	if profile.Capture.Width != 0 || profile.Capture.Height != 0 {
		if profile.Capture.Width != 0 {
			result.Capture.Width = profile.Capture.Width
		}
		if profile.Capture.Height != 0 {
			result.Capture.Height = profile.Capture.Height
		}
		result.Inheritance.Capture.Resolution = "profile-specific"
	}
	if profile.Capture.FrameRate != 0 {
		result.Capture.FrameRate = profile.Capture.FrameRate
		result.Inheritance.Capture.FrameRate = "profile-specific"
	}
	if profile.Capture.Facing != "" {
		result.Capture.Facing = profile.Capture.Facing
		result.Inheritance.Capture.Facing = "profile-specific"
	}

	rec := profile.Recording
	if rec.CountdownSeconds != nil {
		result.Recording.CountdownSeconds = rec.CountdownSeconds
		result.Inheritance.Recording.Countdown = "profile-specific"
	}
	if rec.PrerollSeconds != nil {
		result.Recording.PrerollSeconds = rec.PrerollSeconds
		result.Inheritance.Recording.PreRoll = "profile-specific"
	}
	if rec.CrossfadeMs != 0 {
		result.Recording.CrossfadeMs = rec.CrossfadeMs
		result.Inheritance.Recording.Crossfade = "profile-specific"
	}
	// A container change resets the codecs: they belong to the container
	if rec.Container != "" {
		result.Recording.Container = rec.Container
		result.Recording.VideoCodec = rec.VideoCodec
		result.Recording.AudioCodec = rec.AudioCodec
		result.Inheritance.Recording.Profile = "profile-specific"
	} else {
		if rec.VideoCodec != "" {
			result.Recording.VideoCodec = rec.VideoCodec
			result.Inheritance.Recording.Profile = "profile-specific"
		}
		if rec.AudioCodec != "" {
			result.Recording.AudioCodec = rec.AudioCodec
			result.Inheritance.Recording.Profile = "profile-specific"
		}
	}
	if rec.VideoBitrate != "" {
		result.Recording.VideoBitrate = rec.VideoBitrate
	}
	if rec.FilenamePattern != "" {
		result.Recording.FilenamePattern = rec.FilenamePattern
	}
	if rec.GallerySize != 0 {
		result.Recording.GallerySize = rec.GallerySize
		result.Inheritance.Recording.Gallery = "profile-specific"
	}
	if rec.DownloadDelayMs != 0 {
		result.Recording.DownloadDelayMs = rec.DownloadDelayMs
	}

	if profile.Output.Directory != "" {
		result.Output.Directory = profile.Output.Directory
		result.Inheritance.Output.Directory = "profile-specific"
	}
	if profile.Output.TracksDirectory != "" {
		result.Output.TracksDirectory = profile.Output.TracksDirectory
	}
	if profile.Logging.Format != "" {
		result.Logging.Format = profile.Logging.Format
	}

	// DEVICES: Selection & Fallback Model
	if len(profile.Devices) == 0 {
		for _, d := range result.Devices {
			result.Inheritance.Devices[d.Name] = struct {
				Video string
				Audio string
			}{Video: "inherited", Audio: "inherited"}
		}
		return result
	}

	result.Devices = make([]Device, 0, len(profile.Devices))
	for _, profileDevice := range profile.Devices {
		resolved := profileDevice
		inheritance := struct {
			Video string
			Audio string
		}{Video: "profile-specific", Audio: "profile-specific"}

		if base != nil {
			for _, baseDevice := range base.Devices {
				if baseDevice.Name != profileDevice.Name {
					continue
				}
				if resolved.Video == "" {
					resolved.Video = baseDevice.Video
					inheritance.Video = "inherited"
				}
				if resolved.Audio == "" {
					resolved.Audio = baseDevice.Audio
					inheritance.Audio = "inherited"
				}
				if resolved.Facing == "" {
					resolved.Facing = baseDevice.Facing
				}
				break
			}
		}

		result.Inheritance.Devices[resolved.Name] = inheritance
		result.Devices = append(result.Devices, resolved)
	}

	return result
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// validateConfig checks a resolved configuration
func validateConfig(config *Config) error {
	switch config.Capture.Backend {
	case "v4l2", "lavfi", "auto":
	default:
		return fmt.Errorf("capture.backend must be 'v4l2', 'lavfi' or 'auto', got: %s", config.Capture.Backend)
	}
	if config.Capture.Width <= 0 || config.Capture.Height <= 0 {
		return fmt.Errorf("capture resolution must be positive, got %dx%d", config.Capture.Width, config.Capture.Height)
	}
	if config.Capture.FrameRate <= 0 || config.Capture.FrameRate > 120 {
		return fmt.Errorf("capture.framerate must be within 1..120, got: %d", config.Capture.FrameRate)
	}
	if !isValidFacing(config.Capture.Facing) {
		return fmt.Errorf("capture.facing must be 'user' or 'environment', got: %s", config.Capture.Facing)
	}

	seenFacing := make(map[string]string)
	for i, device := range config.Devices {
		if device.Name == "" {
			return fmt.Errorf("device[%d] must have a name", i)
		}
		if !isValidFacing(device.Facing) {
			return fmt.Errorf("device[%d] '%s' facing must be 'user' or 'environment', got: %s", i, device.Name, device.Facing)
		}
		if other, exists := seenFacing[device.Facing]; exists {
			return fmt.Errorf("device[%d] '%s' has the same facing as '%s': %s", i, device.Name, other, device.Facing)
		}
		seenFacing[device.Facing] = device.Name
		if device.Video != "" && device.Video != "disabled" && !isValidVideoSource(device.Video) {
			return fmt.Errorf("device[%d] '%s' video must be a device node (/dev/videoN) or a camera name, got: %s", i, device.Name, device.Video)
		}
	}

	rec := config.Recording
	if rec.CountdownSeconds != nil && *rec.CountdownSeconds < 0 {
		return fmt.Errorf("recording.countdown_seconds must be >= 0, got: %.1f", *rec.CountdownSeconds)
	}
	if rec.PrerollSeconds != nil && *rec.PrerollSeconds < 0 {
		return fmt.Errorf("recording.preroll_seconds must be >= 0, got: %.1f", *rec.PrerollSeconds)
	}
	if rec.CrossfadeMs < 0 {
		return fmt.Errorf("recording.crossfade_ms must be >= 0, got: %d", rec.CrossfadeMs)
	}
	if rec.GallerySize < 0 {
		return fmt.Errorf("recording.gallery_size must be >= 0, got: %d", rec.GallerySize)
	}
	if rec.DownloadDelayMs < 0 {
		return fmt.Errorf("recording.download_delay_ms must be >= 0, got: %d", rec.DownloadDelayMs)
	}
	if rec.FilenamePattern != "" && !strings.Contains(rec.FilenamePattern, "{ext}") {
		return fmt.Errorf("recording.filename_pattern must contain {ext}, got: %s", rec.FilenamePattern)
	}
	if strings.ContainsAny(rec.FilenamePattern, `/\`) {
		return fmt.Errorf("recording.filename_pattern must be a file name, not a path, got: %s", rec.FilenamePattern)
	}

	switch config.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json', got: %s", config.Logging.Format)
	}

	return nil
}

func isValidFacing(facing string) bool {
	return facing == "user" || facing == "environment"
}

// isValidVideoSource accepts a /dev node path or a camera name
func isValidVideoSource(source string) bool {
	source = strings.TrimSpace(source)
	if source == "" {
		return false
	}
	if strings.HasPrefix(source, "/") {
		return strings.HasPrefix(source, "/dev/") && len(source) > len("/dev/")
	}
	return true
}

// GetSupportedTrackExtensions returns the music file extensions offered for
// selection, from config or defaults
func GetSupportedTrackExtensions(configFile string) []string {
	defaultExtensions := []string{"mp3", "flac", "wav", "ogg", "m4a", "opus"}

	if configFile == "" {
		return defaultExtensions
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return defaultExtensions
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return defaultExtensions
	}

	if len(rootConfig.SupportedTrackExtensions) == 0 {
		return defaultExtensions
	}

	return rootConfig.SupportedTrackExtensions
}

// ValidateConfigurationFormat validates the configuration file format and returns parsed config
func ValidateConfigurationFormat(configFile string) (*RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	var rootConfig RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	// AutomaticEnv only applies to keys read through Get
	if active := v.GetString("active_config"); active != "" {
		rootConfig.ActiveConfig = active
	}

	if err := validateDefinitions(rootConfig.Definitions); err != nil {
		return nil, fmt.Errorf("invalid definitions: %w", err)
	}

	if len(rootConfig.Configs) == 0 {
		return nil, fmt.Errorf("configs section is required")
	}

	for configName, configProfile := range rootConfig.Configs {
		if configProfile == nil {
			return nil, fmt.Errorf("invalid config '%s': empty profile", configName)
		}
		if err := validateDeviceReferences(configProfile.Devices, rootConfig.Definitions); err != nil {
			return nil, fmt.Errorf("invalid config '%s': %w", configName, err)
		}
	}

	return &rootConfig, nil
}

// validateDefinitions validates the definitions section
func validateDefinitions(definitions *DefinitionsConfig) error {
	if definitions == nil {
		return fmt.Errorf("definitions section is required")
	}

	if len(definitions.Devices) == 0 {
		return fmt.Errorf("definitions.devices cannot be empty")
	}

	seenIDs := make(map[string]bool)

	for i, def := range definitions.Devices {
		if def.ID == "" {
			return fmt.Errorf("definitions.devices[%d]: 'id' is required", i)
		}
		if seenIDs[def.ID] {
			return fmt.Errorf("definitions.devices[%d]: duplicate ID '%s'", i, def.ID)
		}
		seenIDs[def.ID] = true

		if err := validateDeviceDefinition(def, fmt.Sprintf("definitions.devices[%d]", i)); err != nil {
			return err
		}
	}

	return nil
}

// validateDeviceDefinition validates a single device definition
func validateDeviceDefinition(def DeviceDefinition, prefix string) error {
	if def.Name == "" {
		return fmt.Errorf("%s: 'name' is required", prefix)
	}

	if def.Facing == "" {
		return fmt.Errorf("%s: 'facing' is required", prefix)
	}
	if !isValidFacing(def.Facing) {
		return fmt.Errorf("%s: 'facing' must be 'user' or 'environment', got: %s", prefix, def.Facing)
	}

	if def.Video == "" {
		return fmt.Errorf("%s: 'video' is required", prefix)
	}
	if def.Video != "disabled" && !isValidVideoSource(def.Video) {
		return fmt.Errorf("%s: 'video' must be a device node (/dev/videoN) or a camera name, got: %s", prefix, def.Video)
	}

	return nil
}

// validateDeviceReferences validates device references in a config profile
func validateDeviceReferences(devices []DeviceReference, definitions *DefinitionsConfig) error {
	for i, ref := range devices {
		prefix := fmt.Sprintf("devices[%d]", i)

		if ref.Ref == "" {
			return fmt.Errorf("%s: 'ref' is required", prefix)
		}

		found := false
		if definitions != nil {
			for _, def := range definitions.Devices {
				if def.ID == ref.Ref {
					found = true
					break
				}
			}
		}

		if !found {
			return fmt.Errorf("%s: references undefined device definition '%s'", prefix, ref.Ref)
		}

		if ref.Video != nil && *ref.Video != "disabled" && !isValidVideoSource(*ref.Video) {
			return fmt.Errorf("%s: video override must be a device node or a camera name, got: %s", prefix, *ref.Video)
		}
	}

	return nil
}
