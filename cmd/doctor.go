package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatterbox/internal/config"
	"github.com/nextlevelbuilder/chatterbox/internal/emoji"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("chatterbox doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Println("  Validation:")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("    - %s\n", line)
		}
	}

	fmt.Println()
	fmt.Println("  Discord:")
	checkSecret("Token", cfg.Discord.Token)
	fmt.Printf("    %-12s %v\n", "DMs:", cfg.Discord.DMsAllowed())
	if len(cfg.Discord.AllowFrom) > 0 {
		fmt.Printf("    %-12s %s\n", "Allow from:", strings.Join(cfg.Discord.AllowFrom, ", "))
	}

	provider := cfg.Backend.Provider
	if provider == "" {
		provider = "gemini"
	}
	fmt.Println()
	fmt.Println("  Backend:")
	fmt.Printf("    %-12s %s\n", "Provider:", provider)
	checkSecret("API key", cfg.Backend.APIKey)
	fmt.Printf("    %-12s %s\n", "Text:", strings.Join(cfg.Backend.TextModels, " > "))
	fmt.Printf("    %-12s %s\n", "Vision:", strings.Join(cfg.Backend.VisionModels, " > "))

	fmt.Println()
	fmt.Println("  Emoji:")
	checkRankingStore(cfg)
	schedule := cfg.Emoji.Schedule
	if err := emoji.ValidateSchedule(schedule); err != nil {
		fmt.Printf("    %-12s INVALID (%s)\n", "Schedule:", err)
	} else {
		fmt.Printf("    %-12s %s\n", "Schedule:", schedule)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSecret(name, secret string) {
	fmt.Printf("    %-12s %s\n", name+":", maskSecret(secret))
}

// maskSecret keeps the first and last 4 characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not configured)"
	case len(s) <= 8:
		return strings.Repeat("*", len(s))
	default:
		return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
	}
}

func checkRankingStore(cfg *config.Config) {
	sc := rankingStoreConfig(cfg)
	backend := sc.Backend
	if backend == "" {
		backend = "file"
	}
	fmt.Printf("    %-12s %s\n", "Store:", backend)

	st, err := openRankingStore(sc)
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", err)
		return
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rankings, err := st.Load(ctx)
	if err != nil {
		fmt.Printf("    %-12s LOAD FAILED (%s)\n", "Status:", err)
		return
	}
	fmt.Printf("    %-12s OK (%d ranked)\n", "Status:", len(rankings))
}
