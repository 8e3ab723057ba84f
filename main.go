package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/alefaraci/GoDVI/internal/logging"
)

func main() {
	var input, output, configPath, pages, format string
	var scale float64
	var watch, serve bool

	// A missing .env is fine; the process environment is used as is.
	_ = godotenv.Load()

	flag.StringVar(&input, "i", "", "Input file (.dvi) or directory")
	flag.StringVar(&input, "input", "", "Input file (.dvi) or directory")
	flag.StringVar(&output, "o", "", "Output file (.pdf or .png) or directory")
	flag.StringVar(&output, "output", "", "Output file (.pdf or .png) or directory")
	flag.StringVar(&configPath, "config", envGet("GODVI_CONFIG", "config.toml"), "Path to config file (TOML)")
	flag.StringVar(&pages, "pages", "", "Pages to export, e.g. 1-3,7 (overrides [output] pages)")
	flag.StringVar(&format, "format", "", "Output format for directories: pdf or png (overrides [output] format)")
	flag.Float64Var(&scale, "scale", 0, "Render scale (overrides [output] scale)")
	flag.BoolVar(&watch, "watch", false, "Run as daemon, watching directories from config [watch] section")
	flag.BoolVar(&serve, "serve", false, "Serve pages of the input file over HTTP at [server] addr")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if pages != "" {
		cfg.Output.Pages = pages
	}
	if format != "" {
		cfg.Output.Format = format
	}
	if scale > 0 {
		cfg.Output.Scale = scale
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Setup(os.Stderr, cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logging.DebugWithComponent(logging.ComponentStartup, "configuration loaded", "path", configPath)

	switch {
	case serve:
		if input == "" {
			fmt.Fprintln(os.Stderr, "Error: --serve needs an input file (-i)")
			os.Exit(1)
		}
		if err := runServer(input, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	case watch:
		if cfg.Watch.Location == "" {
			fmt.Fprintln(os.Stderr, "Error: [watch] location must be set in config for --watch mode")
			os.Exit(1)
		}
		if len(cfg.Watch.InputDirs()) == 0 {
			fmt.Fprintln(os.Stderr, "Error: [watch] dirs must name at least one directory")
			os.Exit(1)
		}
		if err := runWatchMode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if input == "" || output == "" {
		fmt.Fprintln(os.Stderr, "Usage: GoDVI -i <input> -o <output> [--pages 1-3] [--scale 2] [--config config.toml]")
		fmt.Fprintln(os.Stderr, "       GoDVI --watch [--config config.toml]")
		fmt.Fprintln(os.Stderr, "       GoDVI --serve -i <input.dvi> [--config config.toml]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: input path '%s' does not exist.\n", input)
		os.Exit(1)
	}

	if info.IsDir() {
		err = processDirectory(input, output, cfg)
	} else {
		err = processSingleFile(input, output, cfg)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func processSingleFile(inputFile, outputFile string, cfg *Config) error {
	if !strings.HasSuffix(inputFile, ".dvi") {
		return fmt.Errorf("input file '%s' must have a .dvi extension", inputFile)
	}
	if info, err := os.Stat(outputFile); err == nil && info.IsDir() {
		return fmt.Errorf("input is a file, but output '%s' is a directory; specify an output file path", outputFile)
	}
	if ext := filepath.Ext(outputFile); ext != ".pdf" && ext != ".png" {
		return fmt.Errorf("output file '%s' must have a .pdf or .png extension", outputFile)
	}

	if dir := filepath.Dir(outputFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if isUpToDate(inputFile, outputFile) {
		fmt.Printf("'%s' is already up-to-date. Skipping.\n", outputFile)
		return nil
	}

	fmt.Println("Converting single file...")
	start := time.Now()

	if err := ExportDVI(inputFile, outputFile, true, cfg); err != nil {
		return err
	}

	fmt.Printf("Successfully converted '%s' to '%s' in %.2fs\n", inputFile, outputFile, time.Since(start).Seconds())
	return nil
}

type convJob struct {
	input  string
	output string
}

func processDirectory(inputDir, outputDir string, cfg *Config) error {
	if info, err := os.Stat(outputDir); err == nil && !info.IsDir() {
		return fmt.Errorf("input is a directory, but output '%s' is a file; specify an output directory", outputDir)
	}

	fmt.Printf("Scanning for .dvi files in '%s'...\n", inputDir)

	var jobs []convJob
	var numSkipped int
	ext := "." + cfg.Output.Format

	err := filepath.WalkDir(inputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".dvi") {
			return nil
		}
		rel, _ := filepath.Rel(inputDir, path)
		out := filepath.Join(outputDir, strings.TrimSuffix(rel, ".dvi")+ext)
		if isUpToDate(path, out) {
			numSkipped++
		} else {
			jobs = append(jobs, convJob{input: path, output: out})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(jobs) == 0 && numSkipped == 0 {
		fmt.Println("No .dvi files found. Exiting.")
		return nil
	}

	if len(jobs) == 0 {
		fmt.Printf("All %d files are already up-to-date. Nothing to do.\n", numSkipped)
		return nil
	}

	fmt.Printf("Found %d modified files to convert (%d up-to-date, skipped).\n", len(jobs), numSkipped)
	start := time.Now()

	var (
		completed atomic.Int64
		wg        sync.WaitGroup
	)
	total := int64(len(jobs))
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	errCh := make(chan string, len(jobs))

	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			if dir := filepath.Dir(j.output); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errCh <- fmt.Sprintf("failed to create directory '%s': %v", dir, err)
					return
				}
			}
			if err := ExportDVI(j.input, j.output, false, cfg); err != nil {
				errCh <- fmt.Sprintf("failed to convert '%s': %v", j.input, err)
			}
			n := completed.Add(1)
			fmt.Printf("\r[%d/%d] Converted %s", n, total, filepath.Base(j.input))
		}()
	}
	wg.Wait()
	close(errCh)

	fmt.Println()
	for msg := range errCh {
		fmt.Fprintln(os.Stderr, msg)
	}

	fmt.Printf("Converted %d files in %.2fs\n", len(jobs), time.Since(start).Seconds())
	return nil
}

// isUpToDate reports whether output exists and is no older than input. For
// multi-page PNG exports the numbered first page stands in for output.
func isUpToDate(input, output string) bool {
	outInfo, err := os.Stat(output)
	if err != nil {
		ext := filepath.Ext(output)
		if outInfo, err = os.Stat(strings.TrimSuffix(output, ext) + "-1" + ext); err != nil {
			return false
		}
	}
	inInfo, err := os.Stat(input)
	if err != nil {
		return false
	}
	return !outInfo.ModTime().Before(inInfo.ModTime())
}
