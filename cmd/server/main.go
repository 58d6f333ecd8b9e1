package main

import (
    "os"
    "time"

    "github.com/rs/zerolog"
    zerologlog "github.com/rs/zerolog/log"
    "github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

func main() {
    // zerolog setup (human-friendly console)
    zerolog.TimeFieldFormat = time.RFC3339
    cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
    zerologlog.Logger = zerologlog.Output(cw)

    cobra.CheckErr(newCmd().Execute())
}
