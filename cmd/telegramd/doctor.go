package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"telegramd/internal/config"
	"telegramd/internal/deliverylog"
	"telegramd/internal/storage"
	"telegramd/internal/telegram"
)

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your telegramd setup",
		Long: `Verifies the configuration, bot token, upload directory, delivery log
database and HTTP address. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "telegramd doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			r := &report{w: out}
			cfgPath := resolveConfigPath()

			// 1. Config loads and validates
			cfg, found, err := config.LoadOrDefaults(cfgPath)
			switch {
			case err != nil:
				r.fail("Config", err.Error())
				return r.finish()
			case !found:
				r.warn("Config", fmt.Sprintf("no file at %s, using defaults and environment", cfgPath))
			default:
				r.pass("Config", cfgPath)
			}

			// 2. Token present and accepted
			if err := config.RequireToken(cfg); err != nil {
				r.fail("Bot token", err.Error())
			} else if offline {
				r.warn("Bot token", "set (not verified, --offline)")
			} else {
				client, err := telegram.New(telegram.Config{
					Token:          cfg.Telegram.Token,
					APIEndpoint:    cfg.Telegram.APIEndpoint,
					RequestTimeout: 15 * time.Second,
					Logger:         newLogger(io.Discard, "error"),
				})
				if err != nil {
					r.fail("Bot token", err.Error())
				} else {
					r.pass("Bot token", "@"+client.Username())
				}
			}

			// 3. Upload directory
			sink := storage.New(storage.Config{Root: cfg.Storage.UploadDir, Logger: newLogger(io.Discard, "error")})
			if err := checkUploadDir(sink); err != nil {
				r.fail("Upload directory", err.Error())
			} else {
				r.pass("Upload directory", absPath(sink.Root()))
			}

			// 4. Delivery log
			if cfg.DeliveryLog.Enabled {
				if err := checkDatabase(cmd.Context(), cfg.DeliveryLog.DBPath); err != nil {
					r.fail("Delivery log", err.Error())
				} else {
					r.pass("Delivery log", cfg.DeliveryLog.DBPath)
				}
			} else {
				r.warn("Delivery log", "disabled")
			}

			// 5. HTTP address
			if err := checkAddr(cfg.HTTP.Addr); err != nil {
				r.warn("HTTP address", fmt.Sprintf("%s may be in use: %v", cfg.HTTP.Addr, err))
			} else {
				r.pass("HTTP address", cfg.HTTP.Addr+" available")
			}

			return r.finish()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the Telegram getMe call")
	return cmd
}

type report struct {
	w                      io.Writer
	passed, warned, failed int
}

func (r *report) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.w, "  [PASS] %-20s %s\n", check, detail)
}

func (r *report) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.w, "  [WARN] %-20s %s\n", check, detail)
}

func (r *report) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.w, "  [FAIL] %-20s %s\n", check, detail)
}

func (r *report) finish() error {
	fmt.Fprintf(r.w, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(r.w, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Fprintf(r.w, "\nPlease fix the failed checks before running telegramd serve.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Fprintf(r.w, "\ntelegramd should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(r.w, "\nAll checks passed! telegramd is ready to run.\n")
	}
	return nil
}

// checkUploadDir creates the root and writes and removes a probe file.
func checkUploadDir(sink *storage.Sink) error {
	if err := sink.EnsureRoot(); err != nil {
		return err
	}
	probe, err := os.CreateTemp(sink.Root(), ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}

func checkDatabase(ctx context.Context, dbPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := deliverylog.Open(dbPath, newLogger(io.Discard, "error"))
	if err != nil {
		return err
	}
	defer store.Close()
	if _, err := store.List(ctx, deliverylog.Filter{Limit: 1}); err != nil {
		return fmt.Errorf("cannot query: %w", err)
	}
	return nil
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

// absPath resolves p against the working directory for display.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
