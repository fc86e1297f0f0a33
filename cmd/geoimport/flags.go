package main

import (
	"flag"
	"fmt"
	"io"
)

// Flags holds all command-line flags
type Flags struct {
	Settings  *string
	EnvFile   *string // dotenv с секретами подключения
	LogLevel  *string // перекрывает log.level из настроек
	LogFormat *string // перекрывает log.format из настроек
	Version   *bool
}

// ParseFlags parses args (without the program name).
func ParseFlags(args []string, output io.Writer) (*Flags, error) {
	fs := flag.NewFlagSet("geoimport", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: geoimport -settings <file> [options]\n\n")
		fs.PrintDefaults()
	}

	flags := &Flags{
		Settings:  fs.String("settings", "", "path to the settings file (YAML or JSON)"),
		EnvFile:   fs.String("env-file", "", "optional dotenv file with GEOIMPORT_* overrides"),
		LogLevel:  fs.String("log-level", "", "log level: debug, info, warn, error"),
		LogFormat: fs.String("log-format", "", "log format: console, json"),
		Version:   fs.Bool("version", false, "print version and exit"),
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if !*flags.Version && *flags.Settings == "" {
		return nil, fmt.Errorf("missing -settings")
	}
	return flags, nil
}
