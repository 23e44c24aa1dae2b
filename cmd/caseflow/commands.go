package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/kalambet/caseflow/internal/config"
	"github.com/spf13/cobra"
)

// --- conversation ---

var conversationCmd = &cobra.Command{
	Use:     "conversation",
	Aliases: []string{"conv"},
	Short:   "Inspect orchestrated conversations",
}

type conversationState struct {
	ConversationID       string `json:"conversation_id"`
	Status               string `json:"status"`
	Owner                string `json:"owner"`
	WaitingForCustomer   bool   `json:"waiting_for_customer"`
	LastProcessedEventID *int64 `json:"last_processed_event_id"`
	DemandInteractions   int    `json:"demand_interactions"`
	SolutionInteractions int    `json:"solution_interactions"`
	HandlerID            string `json:"handler_id"`
	AutopilotEnabled     bool   `json:"autopilot_enabled"`
}

var conversationShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the orchestration state of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/conversations/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var st conversationState
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printState(st)
		return nil
	},
}

func printState(st conversationState) {
	printStatus("Conversation", "%s", st.ConversationID)
	printStatus("Status", "%s", colorize(statusColor(st.Status), st.Status))
	printStatus("Owner", "%s", valueOr(st.Owner, "none"))
	printStatus("Waiting", "%t", st.WaitingForCustomer)
	if st.LastProcessedEventID != nil {
		printStatus("Last event", "%d", *st.LastProcessedEventID)
	}
	printStatus("Clarifications", "%d", st.DemandInteractions)
	printStatus("Solution steps", "%d", st.SolutionInteractions)
	printStatus("Handler", "%s (autopilot %t)", valueOr(st.HandlerID, "none"), st.AutopilotEnabled)
}

// jsonSubcommand builds a command that prints a conversation sub-resource.
func jsonSubcommand(use, short, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			path := "/conversations/" + url.PathEscape(args[0]) + suffix
			if limit, err := cmd.Flags().GetInt("limit"); err == nil && limit > 0 {
				path += fmt.Sprintf("?limit=%d", limit)
			}
			resp, err := client.get(cmd.Context(), path)
			if err != nil {
				return err
			}

			var v any
			if err := decodeJSON(resp, &v); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

var conversationProcessCmd = &cobra.Command{
	Use:   "process <id>",
	Short: "Run a turn synchronously for the latest event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/conversations/"+url.PathEscape(args[0])+"/process", nil)
		if err != nil {
			return err
		}

		var result struct {
			EventID    int64  `json:"event_id"`
			Outcome    string `json:"outcome"`
			Reason     string `json:"reason"`
			Dispatches int    `json:"dispatches"`
			Status     string `json:"status"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		msg := fmt.Sprintf("Event %d %s after %d dispatch(es), status %s", result.EventID, result.Outcome, result.Dispatches, valueOr(result.Status, "unchanged"))
		if result.Reason != "" {
			msg += " (" + result.Reason + ")"
		}
		printOutcome(result.Outcome, msg)
		return nil
	},
}

func init() {
	logCmd := jsonSubcommand("log", "Show the dispatch log", "/log")
	logCmd.Flags().Int("limit", 50, "maximum number of entries")

	conversationCmd.AddCommand(conversationShowCmd)
	conversationCmd.AddCommand(jsonSubcommand("demands", "List the demands of a conversation", "/demands"))
	conversationCmd.AddCommand(jsonSubcommand("solution", "Show the current solution plan", "/solution"))
	conversationCmd.AddCommand(logCmd)
	conversationCmd.AddCommand(conversationProcessCmd)
}

// --- events ---

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Feed chat events to the server",
}

var eventsSendCmd = &cobra.Command{
	Use:   "send <conversation-id> <text>",
	Short: "Deliver a chat event as if it came from the platform webhook",
	Long: `Deliver a chat event as if it came from the platform webhook.

Examples:
  caseflow events send conv-1 "I was charged twice"
  caseflow events send conv-1 "Order A-123" --author customer --autopilot
  caseflow events send conv-1 "Let me check" --author agent`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		author, _ := cmd.Flags().GetString("author")
		eventID, _ := cmd.Flags().GetString("event-id")
		handler, _ := cmd.Flags().GetString("handler")
		product, _ := cmd.Flags().GetString("product")

		req := map[string]any{
			"conversation_id": args[0],
			"author_type":     author,
			"content":         strings.Join(args[1:], " "),
		}
		if eventID != "" {
			req["event_id"] = eventID
		}
		if handler != "" {
			req["handler_id"] = handler
		}
		if product != "" {
			req["product_context"] = product
		}
		if cmd.Flags().Changed("autopilot") {
			autopilot, _ := cmd.Flags().GetBool("autopilot")
			req["autopilot_enabled"] = autopilot
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/webhooks/events", req)
		if err != nil {
			return err
		}

		var result struct {
			EventID int64  `json:"event_id"`
			JobID   string `json:"job_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.JobID != "" {
			printSuccess("Stored event %d, queued job %s", result.EventID, result.JobID)
		} else {
			printSuccess("Stored event %d", result.EventID)
		}
		return nil
	},
}

func init() {
	eventsSendCmd.Flags().String("author", "customer", "event author type (customer, end_user, agent, bot, system)")
	eventsSendCmd.Flags().String("event-id", "", "platform event id for duplicate detection")
	eventsSendCmd.Flags().String("handler", "", "handler id currently assigned to the conversation")
	eventsSendCmd.Flags().String("product", "", "product context of the conversation")
	eventsSendCmd.Flags().Bool("autopilot", false, "enable or disable autopilot for the conversation")
	eventsCmd.AddCommand(eventsSendCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
