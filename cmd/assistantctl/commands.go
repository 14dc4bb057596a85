package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// CLI holds the state shared by every assistantctl command.
type CLI struct {
	addr    string
	timeout time.Duration
	out     io.Writer
	client  *http.Client
}

// NewRootCommand creates the root cobra command.
func NewRootCommand(out io.Writer) *cobra.Command {
	cli := &CLI{out: out}

	rootCmd := &cobra.Command{
		Use:   "assistantctl",
		Short: "Operate a running voice reminder assistant",
		Long: `assistantctl talks to the HTTP control API of the voice reminder assistant.

EXAMPLES:
  assistantctl start                    # Begin a reminder dialogue
  assistantctl status                   # Show the dialogue state
  assistantctl capture toggle           # Manual microphone test
  assistantctl speak "hello"            # Speech output test
  assistantctl date "next friday"       # Resolve a spoken date`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cli.client = &http.Client{Timeout: cli.timeout}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cli.addr, "addr", "http://localhost:8080", "Control API base URL")
	rootCmd.PersistentFlags().DurationVar(&cli.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a reminder dialogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.call(cmd.Context(), http.MethodPost, "/v1/assistant/start", nil)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active dialogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.call(cmd.Context(), http.MethodPost, "/v1/assistant/cancel", nil)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the dialogue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.call(cmd.Context(), http.MethodGet, "/v1/assistant", nil)
		},
	})

	rootCmd.AddCommand(createCaptureCommands(cli))
	rootCmd.AddCommand(createSpeakCommand(cli))
	rootCmd.AddCommand(createRemindersCommand(cli))
	rootCmd.AddCommand(createTemporalCommand(cli, "date", "Resolve a spoken date"))
	rootCmd.AddCommand(createTemporalCommand(cli, "time", "Resolve a spoken time of day"))

	return rootCmd
}

// createCaptureCommands creates the capture subcommand
func createCaptureCommands(cli *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Speech capture session",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show capture support, permission and listening state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.call(cmd.Context(), http.MethodGet, "/v1/capture", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Start or stop listening outside a dialogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.call(cmd.Context(), http.MethodPost, "/v1/capture/toggle", nil)
		},
	})

	return cmd
}

func createSpeakCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "speak [text]",
		Short: "Speak a test phrase",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"text": strings.Join(args, " ")}
			return cli.call(cmd.Context(), http.MethodPost, "/v1/speech/test", body)
		},
	}
}

func createRemindersCommand(cli *CLI) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "List recently captured reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/reminders"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			return cli.call(cmd.Context(), http.MethodGet, path, nil)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum reminders to list (0 for all)")
	return cmd
}

func createTemporalCommand(cli *CLI, kind, short string) *cobra.Command {
	var lang, now string
	cmd := &cobra.Command{
		Use:   kind + " <text>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("text", strings.Join(args, " "))
			if lang != "" {
				q.Set("lang", lang)
			}
			if now != "" {
				q.Set("now", now)
			}
			return cli.call(cmd.Context(), http.MethodGet, "/v1/temporal/"+kind+"?"+q.Encode(), nil)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Language tag, e.g. tr-TR")
	cmd.Flags().StringVar(&now, "now", "", "Reference instant in RFC 3339")
	return cmd
}

// call performs one control API request and prints the indented JSON reply.
func (cli *CLI) call(ctx context.Context, method, path string, body any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(cli.addr, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := cli.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = cli.out.Write(raw)
		return err
	}
	pretty.WriteByte('\n')
	_, err = cli.out.Write(pretty.Bytes())
	return err
}
