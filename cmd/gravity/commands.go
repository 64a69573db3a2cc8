package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dropbear/gravity/internal/bridge"
	"github.com/dropbear/gravity/internal/config"
)

// --- configure ---

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Open the watch face settings page",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/events/show-configuration", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Opened %s", result["url"])
		return nil
	},
}

// --- apply ---

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply settings as if the settings page closed with them",
	Long: `Apply settings as if the settings page closed with them.

The settings are encoded the way the settings page encodes them, the face
style is stored locally and the full settings are sent to the watch.

Examples:
  gravity apply --facestyle analog
  gravity apply --facestyle digital --set seconds=true --set accent='"red"'
  gravity apply --json '{"facestyle":"analog","invert":false}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		faceStyle, _ := cmd.Flags().GetString("facestyle")
		sets, _ := cmd.Flags().GetStringArray("set")
		raw, _ := cmd.Flags().GetString("json")

		if faceStyle == "" && raw == "" && len(sets) == 0 {
			return fmt.Errorf("one of --facestyle, --set or --json is required")
		}

		payload, err := buildPayload(faceStyle, sets, raw)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if err := sendResponse(cmd.Context(), client, payload); err != nil {
			return err
		}

		if v, ok := payload[bridge.FaceStyleKey]; ok {
			printSuccess("Applied facestyle %s", bridge.StorageString(v))
		} else {
			printWarning("Applied settings without a facestyle; the stored face style is unchanged")
		}
		return nil
	},
}

func init() {
	applyCmd.Flags().String("facestyle", "", "face style to select")
	applyCmd.Flags().StringArray("set", nil, "extra setting as key=value; JSON values are parsed, anything else is a string")
	applyCmd.Flags().String("json", "", "settings as a JSON object")
}

// buildPayload merges --json, then each --set, then --facestyle.
func buildPayload(faceStyle string, sets []string, raw string) (bridge.Payload, error) {
	payload := bridge.Payload{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("--json must be a JSON object: %w", err)
		}
		if payload == nil {
			return nil, fmt.Errorf("--json must be a JSON object")
		}
	}

	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		payload[key] = v
	}

	if faceStyle != "" {
		payload[bridge.FaceStyleKey] = faceStyle
	}
	return payload, nil
}

func sendResponse(ctx context.Context, client *apiClient, payload bridge.Payload) error {
	response, err := bridge.EncodeResponse(payload)
	if err != nil {
		return err
	}
	return postClosed(ctx, client, map[string]string{"response": response})
}

func postClosed(ctx context.Context, client *apiClient, body map[string]string) error {
	resp, err := client.post(ctx, "/events/webview-closed", body)
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

// --- close ---

var closeCmd = &cobra.Command{
	Use:   "close [response | pebblejs://close#response]",
	Short: "Deliver a raw settings page response",
	Long: `Deliver a raw settings page response, still percent-encoded, exactly as
the settings page produced it. With no argument the page is treated as
cancelled.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{"response": ""}
		if len(args) == 1 {
			if strings.HasPrefix(args[0], "pebblejs://") {
				body = map[string]string{"url": args[0]}
			} else {
				body["response"] = args[0]
			}
		}

		if err := postClosed(cmd.Context(), client, body); err != nil {
			return err
		}

		if len(args) == 0 {
			printWarning("Closed without options")
			return nil
		}
		printSuccess("Response delivered")
		return nil
	},
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Inspect locally stored preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all stored preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/preferences")
		if err != nil {
			return err
		}

		var prefs []struct {
			Key       string `json:"key"`
			Value     string `json:"value"`
			UpdatedAt string `json:"updated_at"`
		}
		if err := decodeJSON(resp, &prefs); err != nil {
			return err
		}

		if len(prefs) == 0 {
			fmt.Println("No preferences stored.")
			return nil
		}
		for _, p := range prefs {
			fmt.Printf("  %s = %s  %s\n", colorize(styleBold, p.Key), p.Value, p.UpdatedAt)
		}
		return nil
	},
}

var prefsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print one stored preference (default facestyle)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := bridge.FaceStyleKey
		if len(args) == 1 {
			key = args[0]
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/preferences/"+url.PathEscape(key))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), result["value"])
		return nil
	},
}

func init() {
	prefsCmd.AddCommand(prefsShowCmd)
	prefsCmd.AddCommand(prefsGetCmd)
}

// --- messages ---

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Inspect messages sent to the watch",
}

var messagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/messages?limit=%d", limit))
		if err != nil {
			return err
		}

		var msgs []struct {
			ID        string          `json:"id"`
			CreatedAt string          `json:"created_at"`
			Status    string          `json:"status"`
			LastError string          `json:"last_error"`
			Payload   json.RawMessage `json:"payload"`
		}
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}

		if len(msgs) == 0 {
			fmt.Println("No messages sent yet.")
			return nil
		}

		for _, m := range msgs {
			status := colorize(styleGreen, m.Status)
			switch m.Status {
			case "nacked":
				status = colorize(styleRed, m.Status+": "+m.LastError)
			case "pending":
				status = colorize(styleYellow, m.Status)
			}
			id := m.ID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Printf("%s  %s  %s  %s\n", colorize(styleCyan, id), m.CreatedAt, status, string(m.Payload))
		}
		return nil
	},
}

var messagesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/messages/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var msg any
		if err := decodeJSON(resp, &msg); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(msg)
	},
}

func init() {
	messagesListCmd.Flags().Int("limit", 20, "maximum number of messages to list")
	messagesCmd.AddCommand(messagesListCmd)
	messagesCmd.AddCommand(messagesShowCmd)
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
			fmt.Printf("  %s = %s  (%s)\n", colorize(styleBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		printStep("Restart gravity for the change to take effect")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
