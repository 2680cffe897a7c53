package config

// Config holds app configuration
type Config struct {
	InputPath  string `mapstructure:"input"`
	OutputPath string `mapstructure:"output"`

	// Mmap maps archives read-only instead of loading them into memory.
	// Mapped archives cannot be patched or saved.
	Mmap bool `mapstructure:"mmap"`

	// Extended selects the later index layout (12-byte names plus 20
	// opaque bytes per record) used by some client builds.
	Extended bool `mapstructure:"extended"`

	// Patch settings
	EntryName   string `mapstructure:"entry_name"`
	PayloadPath string `mapstructure:"payload"`

	// Packet cipher settings
	Seed       int    `mapstructure:"seed"`
	Sequence   int    `mapstructure:"sequence"`
	Name       string `mapstructure:"name"`
	Keystream2 bool   `mapstructure:"keystream2"`

	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
