package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	// Create base (default) config
	base := &Config{
		Capture: CaptureConfig{
			Backend:   "v4l2",
			Width:     1280,
			Height:    720,
			FrameRate: 30,
			Facing:    "user",
		},
		Devices: []Device{
			{Name: "front", Facing: "user", Video: "/dev/video0", Audio: "default"},
			{Name: "back", Facing: "environment", Video: "/dev/video2", Audio: "hw:1,0"},
		},
		Recording: RecordingConfig{
			CountdownSeconds: floatPtr(3),
			PrerollSeconds:   floatPtr(3),
			Container:        "webm",
			VideoCodec:       "libvpx-vp9",
			AudioCodec:       "libopus",
			GallerySize:      10,
		},
		Output: OutputConfig{
			Directory: "~/Videos/Default",
		},
	}

	// Profile only lists the back camera and overrides some settings
	profile := &Config{
		Capture: CaptureConfig{
			FrameRate: 60,
		},
		Devices: []Device{
			{Name: "back", Video: "/dev/video4"}, // Override video, inherit audio and facing
		},
		Recording: RecordingConfig{
			PrerollSeconds: floatPtr(0), // Explicit zero
		},
		Output: OutputConfig{
			Directory: "~/Videos/Studio",
		},
	}

	result := mergeConfigs(base, profile)

	// Only the listed device survives
	if len(result.Devices) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(result.Devices))
	}

	back := result.Devices[0]
	if back.Name != "back" || back.Video != "/dev/video4" || back.Audio != "hw:1,0" || back.Facing != "environment" {
		t.Errorf("Back device incorrect: got %+v", back)
	}

	if result.Capture.FrameRate != 60 {
		t.Errorf("Expected framerate 60, got %d", result.Capture.FrameRate)
	}
	if result.Capture.Backend != "v4l2" || result.Capture.Width != 1280 {
		t.Errorf("Expected inherited capture settings, got %+v", result.Capture)
	}

	if result.Recording.PreRoll() != 0 {
		t.Errorf("Expected explicit zero pre-roll, got %v", result.Recording.PreRoll())
	}
	if result.Recording.Countdown() != 3*time.Second {
		t.Errorf("Expected inherited countdown 3s, got %v", result.Recording.Countdown())
	}
	if result.Recording.Container != "webm" || result.Recording.VideoCodec != "libvpx-vp9" {
		t.Errorf("Expected inherited recording profile, got %+v", result.Recording)
	}

	if result.Output.Directory != "~/Videos/Studio" {
		t.Errorf("Expected directory '~/Videos/Studio', got '%s'", result.Output.Directory)
	}

	// Inheritance tracking
	if result.Inheritance.Capture.FrameRate != "profile-specific" {
		t.Errorf("Expected framerate to be profile-specific, got %s", result.Inheritance.Capture.FrameRate)
	}
	if result.Inheritance.Capture.Backend != "inherited" {
		t.Errorf("Expected backend to be inherited, got %s", result.Inheritance.Capture.Backend)
	}
	if result.Inheritance.Recording.PreRoll != "profile-specific" {
		t.Errorf("Expected pre-roll to be profile-specific, got %s", result.Inheritance.Recording.PreRoll)
	}
	if result.Inheritance.Recording.Countdown != "inherited" {
		t.Errorf("Expected countdown to be inherited, got %s", result.Inheritance.Recording.Countdown)
	}
	devInfo := result.Inheritance.Devices["back"]
	if devInfo.Video != "profile-specific" || devInfo.Audio != "inherited" {
		t.Errorf("Unexpected device inheritance: %+v", devInfo)
	}
}

func TestMergeConfigs_ContainerResetsCodecs(t *testing.T) {
	base := &Config{
		Recording: RecordingConfig{
			Container:  "webm",
			VideoCodec: "libvpx-vp9",
			AudioCodec: "libopus",
		},
	}
	profile := &Config{
		Recording: RecordingConfig{
			Container: "matroska",
		},
	}

	result := mergeConfigs(base, profile)

	if result.Recording.Container != "matroska" {
		t.Errorf("Expected container 'matroska', got '%s'", result.Recording.Container)
	}
	if result.Recording.VideoCodec != "" || result.Recording.AudioCodec != "" {
		t.Errorf("Expected codecs reset with the container, got %q/%q", result.Recording.VideoCodec, result.Recording.AudioCodec)
	}
	if result.Inheritance.Recording.Profile != "profile-specific" {
		t.Errorf("Expected recording profile to be profile-specific, got %s", result.Inheritance.Recording.Profile)
	}
}

func TestMergeConfigs_EmptyProfile(t *testing.T) {
	base := Default()

	result := mergeConfigs(base, &Config{})

	if len(result.Devices) != len(base.Devices) {
		t.Errorf("Expected %d inherited devices, got %d", len(base.Devices), len(result.Devices))
	}
	if result.Capture != base.Capture {
		t.Errorf("Expected inherited capture %+v, got %+v", base.Capture, result.Capture)
	}
	for _, d := range result.Devices {
		if info := result.Inheritance.Devices[d.Name]; info.Video != "inherited" {
			t.Errorf("Expected device %s to be inherited, got %+v", d.Name, info)
		}
	}
}

func TestMergeConfigs_ProfileOnly(t *testing.T) {
	profile := &Config{
		Capture: CaptureConfig{Backend: "lavfi", Width: 640, Height: 480, FrameRate: 15, Facing: "environment"},
		Devices: []Device{{Name: "test", Facing: "environment", Video: "test-pattern"}},
	}

	result := mergeConfigs(nil, profile)

	if result.Capture != profile.Capture {
		t.Errorf("Expected capture %+v, got %+v", profile.Capture, result.Capture)
	}
	if len(result.Devices) != 1 || result.Devices[0].Video != "test-pattern" {
		t.Errorf("Unexpected devices: %+v", result.Devices)
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Videos", filepath.Join(homeDir, "Videos")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"},
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%s) = %s, expected %s", test.input, result, test.expected)
		}
	}
}

func TestRecordingDurations(t *testing.T) {
	var rec RecordingConfig
	if rec.Countdown() != 3*time.Second || rec.PreRoll() != 3*time.Second {
		t.Errorf("Expected 3s defaults, got countdown %v pre-roll %v", rec.Countdown(), rec.PreRoll())
	}

	rec = RecordingConfig{
		CountdownSeconds: floatPtr(0),
		PrerollSeconds:   floatPtr(1.5),
		CrossfadeMs:      40,
		DownloadDelayMs:  250,
	}
	if rec.Countdown() != 0 {
		t.Errorf("Expected zero countdown, got %v", rec.Countdown())
	}
	if rec.PreRoll() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5s pre-roll, got %v", rec.PreRoll())
	}
	if rec.Crossfade() != 40*time.Millisecond {
		t.Errorf("Expected 40ms crossfade, got %v", rec.Crossfade())
	}
	if rec.DownloadDelay() != 250*time.Millisecond {
		t.Errorf("Expected 250ms download delay, got %v", rec.DownloadDelay())
	}
}

func TestCamerasAndMicrophone(t *testing.T) {
	cfg := &Config{
		Devices: []Device{
			{Name: "front", Facing: "user", Video: "/dev/video0", Audio: "disabled"},
			{Name: "back", Facing: "environment", Video: "Rear Camera", Audio: "hw:1,0"},
			{Name: "off", Facing: "environment", Video: "disabled"},
		},
	}

	cams := cfg.Cameras()
	if len(cams) != 2 || cams["user"] != "/dev/video0" || cams["environment"] != "Rear Camera" {
		t.Errorf("Unexpected cameras: %v", cams)
	}
	if mic := cfg.Microphone(); mic != "hw:1,0" {
		t.Errorf("Expected microphone 'hw:1,0', got '%s'", mic)
	}

	if mic := (&Config{}).Microphone(); mic != "default" {
		t.Errorf("Expected default microphone, got '%s'", mic)
	}
}

func TestLoadWithProfile_InheritsDefaultProfile(t *testing.T) {
	configContent := `
active_config: default
capture:
    backend: lavfi
definitions:
    devices:
        - id: front
          name: front
          facing: user
          video: /dev/video0
          audio: default
        - id: back
          name: back
          facing: environment
          video: /dev/video2
configs:
    default:
        devices:
            - ref: front
            - ref: back
        recording:
            preroll_seconds: 0
            gallery_size: 5
    studio:
        devices:
            - ref: front
              video: /dev/video4
        capture:
            framerate: 60
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	cfg, err := LoadWithProfile(configFile, "studio")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Capture.Backend != "lavfi" {
		t.Errorf("Expected backend 'lavfi' from root capture, got '%s'", cfg.Capture.Backend)
	}
	if cfg.Capture.FrameRate != 60 {
		t.Errorf("Expected framerate 60 from profile, got %d", cfg.Capture.FrameRate)
	}
	if cfg.Capture.Width != 1280 || cfg.Capture.Height != 720 {
		t.Errorf("Expected built-in 1280x720, got %dx%d", cfg.Capture.Width, cfg.Capture.Height)
	}
	if len(cfg.Devices) != 1 || cfg.Devices[0].Video != "/dev/video4" {
		t.Errorf("Expected only the overridden front camera, got %+v", cfg.Devices)
	}
	if cfg.Recording.PreRoll() != 0 {
		t.Errorf("Expected pre-roll 0 from default profile, got %v", cfg.Recording.PreRoll())
	}
	if cfg.Recording.Countdown() != 3*time.Second {
		t.Errorf("Expected built-in countdown 3s, got %v", cfg.Recording.Countdown())
	}
	if cfg.Recording.GallerySize != 5 {
		t.Errorf("Expected gallery size 5 from default profile, got %d", cfg.Recording.GallerySize)
	}
	if cfg.Recording.Container != "webm" {
		t.Errorf("Expected built-in container 'webm', got '%s'", cfg.Recording.Container)
	}
}

func TestLoad_ActiveConfigFromEnvironment(t *testing.T) {
	configContent := `
active_config: default
definitions:
    devices:
        - id: front
          name: front
          facing: user
          video: /dev/video0
configs:
    default:
        devices:
            - ref: front
    demo:
        devices:
            - ref: front
        capture:
            backend: lavfi
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	t.Setenv("CLIPCAPTURE_ACTIVE_CONFIG", "demo")

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Capture.Backend != "lavfi" {
		t.Errorf("Expected demo profile to be active, got backend '%s'", cfg.Capture.Backend)
	}
}

func TestLoadWithProfile_UnknownProfile(t *testing.T) {
	configContent := `
definitions:
    devices:
        - id: front
          name: front
          facing: user
          video: /dev/video0
configs:
    default:
        devices:
            - ref: front
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	if _, err := LoadWithProfile(configFile, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error when no config file is given")
	}
}

func TestGlobalsRecordingsDirectory(t *testing.T) {
	configContent := `
active_config: test
globals:
    output:
        recordings_directory: /global/recordings
        tracks_directory: /global/music
definitions:
    devices:
        - id: front
          name: front
          facing: user
          video: /dev/video0
configs:
    test:
        devices:
            - ref: front
        output:
            directory: /profile/recordings
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	cfg, err := LoadWithProfile(configFile, "test")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Output.Directory != "/global/recordings" {
		t.Errorf("Expected directory '/global/recordings' from globals, got '%s'", cfg.Output.Directory)
	}
	if cfg.Output.TracksDirectory != "/global/music" {
		t.Errorf("Expected tracks directory '/global/music' from globals, got '%s'", cfg.Output.TracksDirectory)
	}
}

func TestGlobalsRecordingsDirectoryWithoutProfileDirectory(t *testing.T) {
	configContent := `
globals:
    output:
        recordings_directory: ~/clips
definitions:
    devices:
        - id: front
          name: front
          facing: user
          video: /dev/video0
configs:
    default:
        devices:
            - ref: front
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	cfg, err := Load(configFile)
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	homeDir, _ := os.UserHomeDir()
	expected := filepath.Join(homeDir, "clips")
	if cfg.Output.Directory != expected {
		t.Errorf("Expected expanded directory '%s', got '%s'", expected, cfg.Output.Directory)
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configContent := `
active_config: default
definitions:
    devices:
        - id: front
          name: front
          facing: user
          video: /dev/video0
configs:
    default:
        devices:
            - ref: front
    demo:
        capture:
            backend: lavfi
`
	configFile := createTempConfig(t, configContent)
	defer os.Remove(configFile)

	if err := UpdateActiveConfig(configFile, "demo"); err != nil {
		t.Fatalf("UpdateActiveConfig failed: %v", err)
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Failed to re-read configuration: %v", err)
	}
	if rootConfig.ActiveConfig != "demo" {
		t.Errorf("Expected active_config 'demo', got '%s'", rootConfig.ActiveConfig)
	}

	if err := UpdateActiveConfig(configFile, "nope"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestGetSupportedTrackExtensions(t *testing.T) {
	defaults := GetSupportedTrackExtensions("")
	if len(defaults) == 0 || defaults[0] != "mp3" {
		t.Errorf("Unexpected default extensions: %v", defaults)
	}

	configFile := createTempConfig(t, `
supported_track_extensions: ["wav", "flac"]
`)
	defer os.Remove(configFile)

	exts := GetSupportedTrackExtensions(configFile)
	if len(exts) != 2 || exts[0] != "wav" || exts[1] != "flac" {
		t.Errorf("Expected [wav flac], got %v", exts)
	}
}
