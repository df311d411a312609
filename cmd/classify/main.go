package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/applifix/backend/internal/app"
	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/config"
	"github.com/applifix/backend/internal/conversation"
	"github.com/applifix/backend/internal/rules"
)

type priorityOptions struct {
	commercial bool
	previous   int
	at         string
	useAI      bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	var rulesFile string

	root := &cobra.Command{
		Use:           "classify",
		Short:         "Classify appliance repair messages offline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&rulesFile, "rules", "", "YAML keyword rules overlay (defaults to RULES_FILE)")

	loadRules := func(cfg config.Config) (*rules.KeywordRules, error) {
		path := rulesFile
		if path == "" {
			path = cfg.RulesFile
		}
		return rules.Load(path)
	}

	var opts priorityOptions
	priorityCmd := &cobra.Command{
		Use:   "priority <text>",
		Short: "Assign a priority to a problem description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !opts.useAI {
				cfg.AIProvider = config.ProviderNone
			}
			kw, err := loadRules(cfg)
			if err != nil {
				return err
			}
			resolver, err := app.NewResolver(cfg, kw, zerolog.New(os.Stderr).Level(zerolog.WarnLevel))
			if err != nil {
				return err
			}
			if opts.at != "" {
				at, err := clockAt(opts.at, resolver.Location, time.Now())
				if err != nil {
					return err
				}
				resolver.Now = func() time.Time { return at }
			}
			customer := &classify.CustomerInfo{Commercial: opts.commercial, PreviousInteractions: opts.previous}
			res := resolver.Analyze(cmd.Context(), strings.Join(args, " "), nil, customer)
			return writeJSON(cmd.OutOrStdout(), struct {
				classify.ClassificationResult
				StorePriority string `json:"store_priority"`
			}{res, res.StorePriority()})
		},
	}
	priorityCmd.Flags().BoolVar(&opts.commercial, "commercial", false, "Customer is a business")
	priorityCmd.Flags().IntVar(&opts.previous, "previous", 0, "Number of previous interactions with the customer")
	priorityCmd.Flags().StringVar(&opts.at, "at", "", "Evaluate as if the message arrived at HH:MM local time")
	priorityCmd.Flags().BoolVar(&opts.useAI, "ai", false, "Ask the configured AI provider before the keyword rules")

	intentCmd := &cobra.Command{
		Use:   "intent <text>",
		Short: "Recognize the intent and entities of a chat message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kw, err := loadRules(config.Config{})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), conversation.NewRecognizer(kw).Recognize(strings.Join(args, " ")))
		},
	}

	failedCallCmd := &cobra.Command{
		Use:   "failed-call <text>",
		Short: "Detect a report of an unanswered call",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kw, err := loadRules(config.Config{})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), conversation.NewRecognizer(kw).DetectFailedCall(strings.Join(args, " ")))
		},
	}

	root.AddCommand(priorityCmd, intentCmd, failedCallCmd)
	return root
}

// clockAt returns the date of now with the clock set to HH:MM in loc.
func clockAt(hhmm string, loc *time.Location, now time.Time) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at expects HH:MM, got %q", hhmm)
	}
	now = now.In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
