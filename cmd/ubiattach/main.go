// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ubiattach drives the attach/scan core against a synthetic or
// real medium image: scan reports the resulting attach snapshot, fsck runs
// a scan plus self-check and exits non-zero on any invariant violation,
// and mkimage writes a fresh, fully-erased medium image to disk for use
// with the other two subcommands.
package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/cznic/ubi/attach"
	"github.com/cznic/ubi/internal/config"
	"github.com/cznic/ubi/medium"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut *os.File) int {
	logger := log.NewWithOptions(errOut, log.Options{ReportTimestamp: true})

	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: ubiattach <scan|fsck|mkimage> [flags]")
		return 2
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "scan":
		return cmdScan(rest, out, logger)
	case "fsck":
		return cmdFsck(rest, out, logger)
	case "mkimage":
		return cmdMkimage(rest, out, logger)
	default:
		fmt.Fprintf(errOut, "ubiattach: unknown subcommand %q\n", sub)
		return 2
	}
}

func commonFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	profilePath := fs.StringP("profile", "p", "", "path to a device profile (JSONC)")
	return fs, profilePath
}

func openMedium(profilePath string, logger *log.Logger) (medium.Medium, config.Profile, error) {
	profile := config.Default()
	if profilePath != "" {
		p, err := config.Load(profilePath)
		if err != nil {
			return nil, config.Profile{}, err
		}
		profile = p
	}

	if profile.DevicePath == "" {
		logger.Debug("using in-memory medium", "peb_size", profile.PEBSize, "peb_count", profile.PEBCount)
		return medium.NewMemMedium(profile.PEBSize, profile.PEBCount), profile, nil
	}

	m, err := medium.OpenFileMedium(profile.DevicePath, profile.PEBSize, profile.PEBCount, false)
	return m, profile, err
}

func attachConfig(profile config.Profile, logger *log.Logger) attach.Config {
	return attach.Config{
		EnableTLCTracking:   profile.EnableTLCTracking,
		EnableLowPageBackup: profile.EnableLowPageBackup,
		EnableFastmap:       profile.EnableFastmap,
		Logger:              logger,
	}
}

func cmdScan(args []string, out *os.File, logger *log.Logger) int {
	fs, profilePath := commonFlags("scan")
	force := fs.Bool("force", false, "skip fastmap, force a full linear scan")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m, profile, err := openMedium(*profilePath, logger)
	if err != nil {
		logger.Error("open medium", "err", err)
		return 1
	}

	snap, err := attach.Attach(m, profile.DataOffset, *force, attachConfig(profile, logger))
	if err != nil {
		logger.Error("attach failed", "err", err)
		return 1
	}

	fmt.Fprintf(out, "volumes=%d free=%d erase=%d corrupt=%d alien=%d max_sqnum=%d mean_ec=%d is_empty=%t\n",
		snap.VolumeCount(), snap.Free.Len(), snap.Erase.Len(), snap.Corrupt.Len(), snap.Alien.Len(),
		snap.MaxSqNum, snap.MeanEC(), snap.IsEmpty)

	return 0
}

func cmdFsck(args []string, out *os.File, logger *log.Logger) int {
	fs, profilePath := commonFlags("fsck")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m, profile, err := openMedium(*profilePath, logger)
	if err != nil {
		logger.Error("open medium", "err", err)
		return 1
	}

	snap, err := attach.Attach(m, profile.DataOffset, true, attachConfig(profile, logger))
	if err != nil {
		logger.Error("attach failed", "err", err)
		return 1
	}

	if err := attach.SelfCheck(m, snap); err != nil {
		logger.Error("self-check failed", "err", err)
		return 1
	}

	fmt.Fprintln(out, "ok")
	return 0
}

func cmdMkimage(args []string, out *os.File, logger *log.Logger) int {
	fs := flag.NewFlagSet("mkimage", flag.ContinueOnError)
	pebSize := fs.Int("peb-size", config.Default().PEBSize, "bytes per physical eraseblock")
	pebCount := fs.Int("peb-count", config.Default().PEBCount, "number of physical eraseblocks")
	dest := fs.StringP("output", "o", "", "path to write the synthesized image to")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *dest == "" {
		fmt.Fprintln(out, "ubiattach: mkimage requires -o/--output")
		return 2
	}

	m := medium.NewMemMedium(*pebSize, *pebCount)

	raw := make([]byte, int64(*pebSize)*int64(*pebCount))
	for i := range raw {
		raw[i] = 0xFF
	}

	if err := atomic.WriteFile(*dest, bytes.NewReader(raw)); err != nil {
		logger.Error("write image", "err", err)
		return 1
	}

	logger.Info("wrote empty image", "path", *dest, "peb_size", m.PEBSize(), "peb_count", m.PEBCount())
	return 0
}
