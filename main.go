package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/temuair/darktool/internal/config"
	"github.com/temuair/darktool/internal/crypt"
	"github.com/temuair/darktool/internal/dat"
	"github.com/temuair/darktool/internal/hpf"
	"github.com/temuair/darktool/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "darktool",
	Short: "Read, patch and rebuild DarkAges .dat archives, HPF blobs and packet captures",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = &config.Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir); err != nil {
			return fmt.Errorf("could not set up logging: %w", err)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the entries of a .dat archive",
	RunE:  list,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract every entry of a .dat archive into a directory",
	RunE:  extract,
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Build a .dat archive from the files of a directory",
	RunE:  compile,
}

var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Replace or add one entry of a .dat archive",
	RunE:  patch,
}

var hpfCmd = &cobra.Command{
	Use:   "hpf",
	Short: "HPF compression utilities",
}

var hpfDecompressCmd = &cobra.Command{
	Use:   "decompress",
	Short: "Decompress an HPF blob to raw bytes",
	RunE:  hpfDecompress,
}

var hpfCompressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress raw bytes into an HPF blob",
	RunE:  hpfCompress,
}

var packetCmd = &cobra.Command{
	Use:   "packet",
	Short: "Packet cipher utilities for captured traffic",
}

var packetEncryptCmd = &cobra.Command{
	Use:   "encrypt <hex>",
	Short: "Encrypt an opcode+payload hex string into a wire frame",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packetRun(args[0], true)
	},
}

var packetDecryptCmd = &cobra.Command{
	Use:   "decrypt <hex>",
	Short: "Decrypt a captured wire frame back to opcode+payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return packetRun(args[0], false)
	},
}

var packetServer bool

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	// i/o
	rootCmd.PersistentFlags().StringP("input", "i", "", "input archive, file or directory")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output archive, file or directory")

	// archive settings
	rootCmd.PersistentFlags().Bool("mmap", false, "memory-map archives read-only instead of loading them")
	rootCmd.PersistentFlags().Bool("extended", false, "use the extended index layout (12-byte names + 20 opaque bytes)")

	// other opts
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stdout and file)")

	viper.BindPFlag("input", rootCmd.PersistentFlags().Lookup("input"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("mmap", rootCmd.PersistentFlags().Lookup("mmap"))
	viper.BindPFlag("extended", rootCmd.PersistentFlags().Lookup("extended"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))

	// patch settings
	patchCmd.Flags().StringP("entry", "n", "", "entry name to patch (required)")
	patchCmd.Flags().StringP("payload", "f", "", "file holding the new entry bytes (required)")
	patchCmd.MarkFlagRequired("entry")
	patchCmd.MarkFlagRequired("payload")
	viper.BindPFlag("entry_name", patchCmd.Flags().Lookup("entry"))
	viper.BindPFlag("payload", patchCmd.Flags().Lookup("payload"))

	// cipher settings
	packetCmd.PersistentFlags().Int("seed", 0, "salt table seed (0-9)")
	packetCmd.PersistentFlags().Int("seq", 0, "packet sequence byte")
	packetCmd.PersistentFlags().String("name", "", "login name for the secondary keystream table")
	packetCmd.PersistentFlags().Bool("ks2", false, "key the payload with the per-packet keystream")
	packetCmd.PersistentFlags().BoolVar(&packetServer, "server", false, "treat the frame as server->client")
	viper.BindPFlag("seed", packetCmd.PersistentFlags().Lookup("seed"))
	viper.BindPFlag("sequence", packetCmd.PersistentFlags().Lookup("seq"))
	viper.BindPFlag("name", packetCmd.PersistentFlags().Lookup("name"))
	viper.BindPFlag("keystream2", packetCmd.PersistentFlags().Lookup("ks2"))

	hpfCmd.AddCommand(hpfDecompressCmd, hpfCompressCmd)
	packetCmd.AddCommand(packetEncryptCmd, packetDecryptCmd)
	rootCmd.AddCommand(listCmd, extractCmd, compileCmd, patchCmd, hpfCmd, packetCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "darktool"))
		}
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("DARKTOOL")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// openArchive opens the input archive per the access-mode settings.
func openArchive() (*dat.Archive, error) {
	if cfg.InputPath == "" {
		return nil, fmt.Errorf("no input archive given (use -i)")
	}

	format := dat.FormatClassic
	if cfg.Extended {
		format = dat.FormatExtended
	}
	if cfg.Mmap {
		return dat.OpenMappedFormat(cfg.InputPath, format)
	}
	return dat.LoadFormat(cfg.InputPath, format)
}

func list(cmd *cobra.Command, args []string) error {
	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	for _, e := range a.Entries() {
		fmt.Printf("%-13s %10d bytes at 0x%08X\n", e.Name, e.Length, e.Offset)
	}
	return nil
}

func extract(cmd *cobra.Command, args []string) error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("no output directory given (use -o)")
	}

	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	return a.ExtractTo(cfg.OutputPath)
}

func compile(cmd *cobra.Command, args []string) error {
	if cfg.InputPath == "" || cfg.OutputPath == "" {
		return fmt.Errorf("compile needs a source directory (-i) and a target archive (-o)")
	}

	format := dat.FormatClassic
	if cfg.Extended {
		format = dat.FormatExtended
	}
	return dat.CompileFormat(cfg.InputPath, cfg.OutputPath, format)
}

func patch(cmd *cobra.Command, args []string) error {
	payload, err := os.ReadFile(cfg.PayloadPath)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if cfg.Mmap {
		return fmt.Errorf("patch needs an in-memory archive; drop --mmap")
	}
	a, err := openArchive()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Patch(cfg.EntryName, payload); err != nil {
		return err
	}

	out := cfg.OutputPath
	if out == "" {
		out = cfg.InputPath
	}
	return a.Save(out)
}

func hpfDecompress(cmd *cobra.Command, args []string) error {
	blob, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}

	raw, err := hpf.Decompress(blob)
	if err != nil {
		return err
	}

	slog.Info("decompressed blob",
		"input", cfg.InputPath,
		"compressed", len(blob),
		"raw", len(raw),
	)
	return os.WriteFile(cfg.OutputPath, raw, 0o644)
}

func hpfCompress(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	blob := hpf.Compress(raw)

	slog.Info("compressed blob",
		"input", cfg.InputPath,
		"raw", len(raw),
		"compressed", len(blob),
	)
	return os.WriteFile(cfg.OutputPath, blob, 0o644)
}

// packetRun drives the cipher over one hex-encoded frame in either
// direction.
func packetRun(hexData string, encrypt bool) error {
	data, err := hex.DecodeString(hexData)
	if err != nil {
		return fmt.Errorf("invalid hex input: %w", err)
	}

	c := crypt.NewDefault()
	defer c.Close()

	if err := c.SetSeed(cfg.Seed); err != nil {
		return err
	}
	if cfg.Name != "" {
		c.GenerateKeystream2Table(cfg.Name)
	}

	seq := byte(cfg.Sequence)
	var out []byte
	switch {
	case encrypt && packetServer:
		out, err = c.EncryptServerData(data, 0, len(data)-1, seq, cfg.Keystream2)
	case encrypt:
		out, err = c.EncryptClientData(data, 0, len(data)-1, seq, cfg.Keystream2)
	case packetServer:
		out, err = c.DecryptServerData(data, 0, len(data), seq, cfg.Keystream2)
	default:
		out, err = c.DecryptClientData(data, 0, len(data), seq, cfg.Keystream2)
	}
	if err != nil {
		return err
	}

	fmt.Println(hex.EncodeToString(out))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
