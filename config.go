package main

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/alefaraci/GoDVI/internal/document"
	"github.com/alefaraci/GoDVI/internal/dvi"
	"github.com/alefaraci/GoDVI/internal/geometry"
)

type RenderConfig struct {
	DPI           int     `toml:"dpi" validate:"gt=0,lte=9600"`
	VDPI          int     `toml:"vdpi" validate:"gte=0,lte=9600"` // 0 = same as dpi
	Magnification float64 `toml:"magnification" validate:"gt=0"`
	Density       int     `toml:"density" validate:"gte=1,lte=100"`
	Gamma         float64 `toml:"gamma"`
	Antialias     bool    `toml:"antialias"`
	Orientation   string  `toml:"orientation" validate:"omitempty,oneof=tblr tbrl btlr btrl rp90 rm90 irp90 irm90"`
	Foreground    string  `toml:"foreground" validate:"required"`
	Background    string  `toml:"background" validate:"required"`
	Margin        string  `toml:"margin"`
	Shrink        int     `toml:"shrink" validate:"gte=0"` // 0 = dpi/75
	HDrift        int     `toml:"hdrift"`                  // negative = from dpi
	VDrift        int     `toml:"vdrift"`
}

// Params converts the section into engine parameters.
func (r RenderConfig) Params() (dvi.Params, error) {
	p := dvi.DefaultParams()
	p.DPI = r.DPI
	p.VDPI = r.VDPI
	if p.VDPI == 0 {
		p.VDPI = r.DPI
	}
	p.Mag = r.Magnification
	p.Density = r.Density
	p.Gamma = r.Gamma
	p.Flags = 0
	if r.Antialias {
		p.Flags |= dvi.FlagAntialiased
	}
	p.HDrift, p.VDrift = r.HDrift, r.VDrift
	p.HShrink, p.VShrink = r.Shrink, r.Shrink
	if r.Shrink == 0 {
		p.HShrink = dvi.ShrinkFromDPI(p.DPI)
		p.VShrink = dvi.ShrinkFromDPI(p.VDPI)
	}
	if r.Orientation != "" {
		o, err := dvi.ParseOrientation(r.Orientation)
		if err != nil {
			return p, err
		}
		p.Orientation = o
	}
	var err error
	if p.FG, err = parseColor(r.Foreground); err != nil {
		return p, fmt.Errorf("foreground: %w", err)
	}
	if p.BG, err = parseColor(r.Background); err != nil {
		return p, fmt.Errorf("background: %w", err)
	}
	return p, nil
}

type OutputConfig struct {
	Format      string  `toml:"format" validate:"oneof=png pdf"`
	PDFMode     string  `toml:"pdf_mode" validate:"oneof=vector raster"`
	Scale       float64 `toml:"scale" validate:"gt=0"`
	Width       int     `toml:"width" validate:"gte=0"`
	Height      int     `toml:"height" validate:"gte=0"`
	BitDepth    int     `toml:"bit_depth" validate:"oneof=0 1 2 4 8"` // 0 = full color
	CropMargins bool    `toml:"crop_margins"`
	Pages       string  `toml:"pages"`
	Workers     int     `toml:"workers" validate:"gte=0"` // 0 = GOMAXPROCS
}

type WatchConfig struct {
	Dirs         []string `toml:"dirs"`
	Location     string   `toml:"location"`
	PollInterval int      `toml:"poll_interval" validate:"gte=0"` // seconds, 0 = default (5s)
}

func (w WatchConfig) PollDuration() time.Duration {
	if w.PollInterval > 0 {
		return time.Duration(w.PollInterval) * time.Second
	}
	return 5 * time.Second
}

func (w WatchConfig) InputDirs() []string {
	var dirs []string
	for _, d := range w.Dirs {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

type ServerConfig struct {
	Addr             string   `toml:"addr" validate:"required"`
	GinMode          string   `toml:"gin_mode" validate:"omitempty,oneof=debug release test"`
	AllowOrigins     []string `toml:"allow_origins"`
	RendersPerMinute int      `toml:"renders_per_minute" validate:"gte=0"` // per client, 0 = unlimited
}

type LogConfig struct {
	Level string `toml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

type Config struct {
	Render RenderConfig `toml:"render"`
	Output OutputConfig `toml:"output"`
	Watch  WatchConfig  `toml:"watch"`
	Server ServerConfig `toml:"server"`
	Log    LogConfig    `toml:"log"`
}

func defaultConfig() *Config {
	p := dvi.DefaultParams()
	return &Config{
		Render: RenderConfig{
			DPI:           p.DPI,
			Magnification: p.Mag,
			Density:       p.Density,
			Gamma:         p.Gamma,
			Antialias:     p.Antialiased(),
			Orientation:   p.Orientation.String(),
			Foreground:    "#000000",
			Background:    "#FFFFFF",
			Margin:        document.DefaultMargin,
			HDrift:        -1,
			VDrift:        -1,
		},
		Output: OutputConfig{
			Format:  "pdf",
			PDFMode: "vector",
			Scale:   1,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads the TOML file at path on top of the defaults. A missing
// file is not an error. Environment variables override the file.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Log.Level = envGet("GODVI_LOG_LEVEL", c.Log.Level)
	c.Server.Addr = envGet("GODVI_ADDR", c.Server.Addr)
	c.Server.GinMode = envGet("GODVI_GIN_MODE", c.Server.GinMode)
}

var configValidator = newConfigValidator()

// newConfigValidator reports fields by their TOML keys.
func newConfigValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("toml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return validationError(err)
	}
	if _, err := c.Render.Params(); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if c.Render.Margin != "" {
		if _, err := geometry.UnitToPixels(c.Render.DPI, c.Render.Margin); err != nil {
			return fmt.Errorf("render.margin: %w", err)
		}
	}
	// Page numbers are checked against the document at export time.
	if c.Output.Pages != "" {
		if _, err := parsePageRange(c.Output.Pages, maxPages); err != nil {
			return fmt.Errorf("output.pages: %w", err)
		}
	}
	return nil
}

// validationError turns validator errors into one message naming the TOML
// keys at fault.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, ve := range verrs {
		field := strings.TrimPrefix(ve.Namespace(), "Config.")
		switch ve.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %v", field, ve.Param(), ve.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s, got %v", field, ve.Tag(), ve.Param(), ve.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// envGet returns the value of the environment variable key if set. If not
// set, and key + "_FILE" is set, the trimmed contents of that file are
// returned. Otherwise def is returned.
func envGet(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return def
}

func parseColor(hex string) (color.RGBA, error) {
	r, g, b, err := parseHexColor(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}, nil
}

func parseHexColor(hex string) (r, g, b uint8, err error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color: #%s (expected 6 hex digits)", hex)
	}
	var rgb [3]uint8
	for i := range 3 {
		val, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid hex color: #%s: %w", hex, err)
		}
		rgb[i] = uint8(val)
	}
	return rgb[0], rgb[1], rgb[2], nil
}
