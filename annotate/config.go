package annotate

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/readmark/idgen"
)

// Config tunes an Engine. The yaml-tagged fields form the "engine" section
// of the service configuration.
type Config struct {
	// Debounce before a selection is reported. Default: 300ms.
	Debounce time.Duration `yaml:"debounce"`
	// ScrollSettle re-enables selection after the last scroll tick.
	// Default: 300ms.
	ScrollSettle time.Duration `yaml:"scroll_settle"`
	// TranslateCooldown disables the translate button after a tap.
	// Default: 500ms.
	TranslateCooldown time.Duration `yaml:"translate_cooldown"`
	// Menu geometry in CSS pixels. Defaults: 180x44, gap 8.
	MenuWidth  float64 `yaml:"menu_width"`
	MenuHeight float64 `yaml:"menu_height"`
	MenuGap    float64 `yaml:"menu_gap"`

	// IDs mints highlight ids. Default: idgen.Highlight().
	IDs idgen.Generator `yaml:"-"`
	// Scheduler arms debounce and cool-down timers. Default: wall clock
	// firing on the timer goroutine.
	Scheduler Scheduler `yaml:"-"`
	// Now stamps highlights. Default: time.Now.
	Now    func() time.Time `yaml:"-"`
	Logger *slog.Logger     `yaml:"-"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 300 * time.Millisecond
	}
	if c.ScrollSettle <= 0 {
		c.ScrollSettle = 300 * time.Millisecond
	}
	if c.TranslateCooldown <= 0 {
		c.TranslateCooldown = 500 * time.Millisecond
	}
	if c.MenuWidth <= 0 {
		c.MenuWidth = 180
	}
	if c.MenuHeight <= 0 {
		c.MenuHeight = 44
	}
	if c.MenuGap <= 0 {
		c.MenuGap = 8
	}
	if c.IDs == nil {
		c.IDs = idgen.Highlight()
	}
	if c.Scheduler == nil {
		c.Scheduler = NewLoopScheduler(func(f func()) { f() })
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
