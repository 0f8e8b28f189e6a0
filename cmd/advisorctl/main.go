// advisorctl is the operator CLI for a running advisord: inspect and change
// settings, manage MCP servers, list tools, and chat from the terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/advisordesk/advisord/client"
	"github.com/advisordesk/advisord/settings"
)

const usage = `Usage: advisorctl [flags] <command> [args]

Commands:
  health                          Show daemon health
  settings                        Print the settings document (keys masked)
  settings-set <file.json>        Replace the settings document from a file
  log-level [level]               Show or change the runtime log level
  server-add -id .. -url .. ...   Register an external MCP server
  server-remove <server_id>       Unregister a server
  tools                           List the assembled tool catalog
  chat <message>                  Send one chat message and stream the reply
  sessions                        List logged chat sessions, newest first
  transcript <session_id>         Print a session's logged transcript

Flags:
`

func main() {
	addr := flag.String("addr", client.DefaultAddress, "advisord base URL")
	session := flag.String("session", "", "chat session id to continue")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	api := client.New(*addr)
	ctx := context.Background()

	var err error
	switch args[0] {
	case "health":
		err = printJSONResult(api.Health(ctx))
	case "settings":
		err = printJSONResult(api.Settings(ctx))
	case "settings-set":
		err = settingsSet(ctx, api, args[1:])
	case "log-level":
		err = logLevel(ctx, api, args[1:])
	case "server-add":
		err = serverAdd(ctx, api, args[1:])
	case "server-remove":
		err = serverRemove(ctx, api, args[1:])
	case "tools":
		err = listTools(ctx, api)
	case "chat":
		err = chat(ctx, api, *session, args[1:])
	case "sessions":
		err = listSessions(ctx, api)
	case "transcript":
		err = transcript(ctx, api, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printJSONResult pretty-prints any API result.
func printJSONResult[T any](v T, err error) error {
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func settingsSet(ctx context.Context, api *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("settings-set requires a JSON file path")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var doc settings.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse settings file: %w", err)
	}
	return printJSONResult(api.ReplaceSettings(ctx, &doc))
}

func logLevel(ctx context.Context, api *client.Client, args []string) error {
	if len(args) == 0 {
		level, err := api.LogLevel(ctx)
		if err != nil {
			return err
		}
		fmt.Println(level)
		return nil
	}
	if err := api.SetLogLevel(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Log level set to %s\n", args[0])
	return nil
}

func serverAdd(ctx context.Context, api *client.Client, args []string) error {
	fs := flag.NewFlagSet("server-add", flag.ContinueOnError)
	var req client.RegisterServerRequest
	fs.StringVar(&req.ID, "id", "", "server id (required)")
	fs.StringVar(&req.Name, "name", "", "display name")
	fs.StringVar(&req.URL, "url", "", "server URL (required)")
	fs.StringVar(&req.APIKey, "api-key", "", "API key")
	fs.StringVar(&req.Transport, "transport", "", "transport: http, sse, http-first, sse-first")
	fs.StringVar(&req.ConversationField, "conversation-field", "", "native conversation id field")
	fs.StringVar(&req.ConversationLocation, "conversation-location", "", "where the field lives: response or params")
	fs.BoolVar(&req.UseForMainPage, "main-page", false, "use this server for dashboard data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.ID == "" || req.URL == "" {
		return fmt.Errorf("server-add requires -id and -url")
	}

	cfg, err := api.RegisterServer(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s with %d tools\n", cfg.ID, len(cfg.Tools))
	return printJSONResult(cfg, nil)
}

func serverRemove(ctx context.Context, api *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("server-remove requires a server id")
	}
	if err := api.RemoveServer(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed server %s\n", args[0])
	return nil
}

func listTools(ctx context.Context, api *client.Client) error {
	tools, err := api.Tools(ctx)
	if err != nil {
		return err
	}
	if len(tools) == 0 {
		fmt.Println("No tools available")
		return nil
	}
	for _, tool := range tools {
		fmt.Printf("%-45s %s (%s)\n", tool.Name, tool.Description, tool.Server)
	}
	return nil
}

func listSessions(ctx context.Context, api *client.Client) error {
	ids, err := api.Sessions(ctx, 0)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No logged sessions")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func transcript(ctx context.Context, api *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("transcript requires a session id")
	}
	msgs, err := api.Transcript(ctx, args[0])
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		label := msg.Role
		if msg.ToolName != "" {
			label = fmt.Sprintf("%s/%s", msg.Role, msg.ToolName)
		}
		fmt.Printf("[%s] %s\n%s\n\n", msg.CreatedAt, label, msg.Content)
	}
	return nil
}

func chat(ctx context.Context, api *client.Client, sessionID string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("chat requires a message")
	}
	query := strings.Join(args, " ")

	newSession, err := api.Chat(ctx, query, sessionID, func(chunk string) error {
		fmt.Print(chunk)
		return nil
	})
	fmt.Println()
	if err != nil {
		return err
	}
	if sessionID == "" && newSession != "" {
		fmt.Fprintf(os.Stderr, "(continue with -session %s)\n", newSession)
	}
	return nil
}
