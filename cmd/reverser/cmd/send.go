package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/reverser/pkg/reverser/client"
	"github.com/tsarna/reverser/pkg/reverser/reverse"
	"go.uber.org/zap"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <text>...",
	Short: "Send text to a reverser server and print the replies",
	Long: `Send each argument as an input event to a reverser server and print the
reversed text returned for it, one line per argument.

Examples:
  reverser send hello
  reverser send --url ws://example.com:5000/ws "first" "second"
  reverser send --unit grapheme "hello world"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendURL         string
	sendUnit        string
	sendDialTimeout time.Duration
	sendTimeout     time.Duration
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringVar(&sendURL, "url", "ws://localhost:5000/ws", "WebSocket URL of the server")
	sendCmd.Flags().StringVar(&sendUnit, "unit", "", "reversal unit (codepoint, grapheme); server default if unset")
	sendCmd.Flags().DurationVar(&sendDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Total operation timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	builder := client.NewClient().
		WithURL(sendURL).
		WithLogger(logger).
		WithDialTimeout(sendDialTimeout)

	if sendUnit != "" {
		unit, err := reverse.ParseUnit(sendUnit)
		if err != nil {
			return fmt.Errorf("invalid --unit: %w", err)
		}
		builder.WithUnit(unit)
	}

	c, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := c.Dial(ctx); err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil {
			logger.Warn("Error during client disconnect", zap.Error(closeErr))
		}
	}()

	for _, text := range args {
		reversed, err := c.Reverse(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to reverse %q: %w", text, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), reversed)
	}

	return nil
}
