// Command backup is the CLI front end for the encrypted backup tool: a
// gnu-style flag parser, a validation pass before any work begins, and
// two subcommands, "backup" and "extract".
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pborman/getopt/v2"

	"github.com/WKHAllen/encrypted-backup/internal/apperrors"
	"github.com/WKHAllen/encrypted-backup/internal/applog"
	"github.com/WKHAllen/encrypted-backup/internal/archive"
	"github.com/WKHAllen/encrypted-backup/internal/memcheck"
)

// gVersion and gGitCommit are populated at build time via -ldflags.
var (
	gVersion   = "0"
	gGitCommit = "0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error

	switch os.Args[1] {
	case "backup":
		err = runBackup(os.Args[2:])
	case "extract":
		err = runExtract(os.Args[2:])
	case "--version", "version":
		fmt.Printf("version: %s commit: %s\n", gVersion, gGitCommit)
		return
	case "--help", "-h", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if apperrors.IsCryptoError(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			fmt.Fprintln(os.Stderr, "This usually means the password is incorrect.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  backup backup <include-paths...> -o <out> [-p password] [-e glob,glob,...] [-c magnitude] [--pool-size N] [--override-memory-limit] [-d]")
	fmt.Println("  backup extract <backup-file> -o <out-dir> [-p password] [--pool-size N] [--override-memory-limit] [-d]")
}

func runBackup(args []string) error {
	set := getopt.New()

	var (
		excludeStr     string
		outputPath     string
		password       string
		chunkMagnitude = 16
		poolSize       = 4
		overrideMemory bool
		debug          bool
	)

	set.FlagLong(&excludeStr, "exclude-globs", 'e', "Globs to exclude from the backup, comma separated")
	set.FlagLong(&outputPath, "output-path", 'o', "Output path of the backup")
	set.FlagLong(&password, "password", 'p', "Password for the backup file")
	set.FlagLong(&chunkMagnitude, "chunk-size-magnitude", 'c', "Chunk size as an order of magnitude (2^n bytes)")
	set.FlagLong(&poolSize, "pool-size", 0, "Number of parallel crypto workers")
	set.FlagLong(&overrideMemory, "override-memory-limit", 0, "Override the 1 GiB memory advisory")
	set.FlagLong(&debug, "debug", 'd', "Enable debug logging")

	set.Parse(append([]string{"backup"}, args...))

	applog.Init(debug)

	includePaths := set.Args()
	if len(includePaths) == 0 {
		return fmt.Errorf("at least one include path is required")
	}
	for _, p := range includePaths {
		if err := validateExistingPath(p); err != nil {
			return err
		}
	}

	if outputPath == "" {
		return fmt.Errorf("-o/--output-path is required")
	}
	if err := validateOutputPath(outputPath); err != nil {
		return err
	}

	if err := validateChunkSizeMagnitude(chunkMagnitude); err != nil {
		return err
	}
	if err := validatePoolSize(poolSize); err != nil {
		return err
	}
	if password != "" {
		if err := validatePassword(password); err != nil {
			return err
		}
	}

	excludeGlobs := splitGlobs(excludeStr)

	chunkSize := 1 << uint(chunkMagnitude)

	if err := memcheck.Check(chunkSize, poolSize, false); err != nil {
		if overrideMemory {
			applog.Log.Warn(err)
		} else {
			return err
		}
	}

	pw, err := getPassword(password, true, true)
	if err != nil {
		return err
	}

	outPath, err := archive.Backup(includePaths, excludeGlobs, outputPath, pw, chunkSize, poolSize)
	if err != nil {
		return fmt.Errorf("failed to perform backup: %w", err)
	}

	fmt.Printf("Successfully backed up to %s\n", outPath)
	return nil
}

func runExtract(args []string) error {
	set := getopt.New()

	var (
		outputPath     string
		password       string
		poolSize       = 16
		overrideMemory bool
		debug          bool
	)

	set.FlagLong(&outputPath, "output-path", 'o', "Path to extract the backup to")
	set.FlagLong(&password, "password", 'p', "Password for the backup file")
	set.FlagLong(&poolSize, "pool-size", 0, "Number of parallel crypto workers")
	set.FlagLong(&overrideMemory, "override-memory-limit", 0, "Override the 1 GiB memory advisory")
	set.FlagLong(&debug, "debug", 'd', "Enable debug logging")

	set.Parse(append([]string{"extract"}, args...))

	applog.Init(debug)

	positional := set.Args()
	if len(positional) != 1 {
		return fmt.Errorf("exactly one backup file path is required")
	}
	backupPath := positional[0]

	if err := validateFile(backupPath); err != nil {
		return err
	}

	if outputPath == "" {
		return fmt.Errorf("-o/--output-path is required")
	}
	if err := validateOutputPath(outputPath); err != nil {
		return err
	}

	if err := validatePoolSize(poolSize); err != nil {
		return err
	}

	declaredChunkSize, err := archive.BackupChunkSize(backupPath)
	if err != nil {
		return err
	}

	if err := memcheck.Check(int(declaredChunkSize), poolSize, false); err != nil {
		if overrideMemory {
			applog.Log.Warn(err)
		} else {
			return err
		}
	}

	pw, err := getPassword(password, false, false)
	if err != nil {
		return err
	}

	if err := archive.Extract(backupPath, outputPath, pw, poolSize); err != nil {
		return fmt.Errorf("failed to perform extraction: %w", err)
	}

	fmt.Printf("Successfully extracted backup to %s\n", outputPath)
	return nil
}

func splitGlobs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	globs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			globs = append(globs, trimmed)
		}
	}
	return globs
}
