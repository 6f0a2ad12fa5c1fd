package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/mirror/internal/config"
	"github.com/kalambet/mirror/internal/linker"
	"github.com/kalambet/mirror/internal/llm"
	"github.com/kalambet/mirror/internal/pipeline"
	"github.com/kalambet/mirror/internal/storage"
)

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture [text...]",
	Short: "Capture a thought or a document",
	Long: `Capture a thought or a document. The server enriches it with tags,
actions, links and a reflection before storing it.

Examples:
  mirror capture "Call the plumber about the leak by Friday"
  mirror capture --text "Budget review went well"
  mirror capture --file ./meeting-notes.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		if text == "" {
			text = strings.Join(args, " ")
		}
		if text == "" && file == "" {
			return fmt.Errorf("one of --text, --file or a text argument is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var out storage.Enriched
		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			out, err = captureDocument(cmd.Context(), client, filepath.Base(file), data)
			if err != nil {
				return err
			}
		} else {
			out, err = captureText(cmd.Context(), client, text)
			if err != nil {
				return err
			}
		}

		printSuccess("Captured thought %s", shortID(out.Thought.ID))
		writeEnriched(os.Stdout, out)
		return nil
	},
}

func init() {
	captureCmd.Flags().String("text", "", "thought text to capture")
	captureCmd.Flags().String("file", "", "document to capture (txt, md, html, pdf)")
}

func captureText(ctx context.Context, c *apiClient, text string) (storage.Enriched, error) {
	req := map[string]any{
		"content":  text,
		"source":   storage.SourceTextNote,
		"metadata": map[string]any{"client": "cli"},
	}
	resp, err := c.post(ctx, "/thoughts", req)
	if err != nil {
		return storage.Enriched{}, err
	}
	var out storage.Enriched
	err = decodeJSON(resp, &out)
	return out, err
}

func captureDocument(ctx context.Context, c *apiClient, filename string, data []byte) (storage.Enriched, error) {
	resp, err := c.upload(ctx, "/documents?filename="+url.QueryEscape(filename), data)
	if err != nil {
		return storage.Enriched{}, err
	}
	var out storage.Enriched
	err = decodeJSON(resp, &out)
	return out, err
}

// --- recent ---

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recent thoughts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		thoughts, err := listThoughts(cmd.Context(), client, "/thoughts?limit="+strconv.Itoa(limit))
		if err != nil {
			return err
		}
		if len(thoughts) == 0 {
			printWarning("No thoughts yet")
			return nil
		}
		for _, t := range thoughts {
			writeThought(os.Stdout, t)
		}
		return nil
	},
}

func init() {
	recentCmd.Flags().Int("limit", 20, "number of thoughts to show")
}

func listThoughts(ctx context.Context, c *apiClient, path string) ([]storage.Thought, error) {
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var thoughts []storage.Thought
	err = decodeJSON(resp, &thoughts)
	return thoughts, err
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search thoughts by meaning",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		tag, _ := cmd.Flags().GetString("tag")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		thoughts, err := listThoughts(cmd.Context(), client, searchPath(strings.Join(args, " "), tag, limit))
		if err != nil {
			return err
		}
		if len(thoughts) == 0 {
			printWarning("No matching thoughts")
			return nil
		}
		for _, t := range thoughts {
			writeThought(os.Stdout, t)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 5, "maximum number of results")
	searchCmd.Flags().String("tag", "", "list thoughts with this tag instead of searching")
}

func searchPath(query, tag string, limit int) string {
	if tag != "" {
		return fmt.Sprintf("/tags/%s/thoughts?limit=%d", url.PathEscape(tag), limit)
	}
	v := url.Values{}
	v.Set("q", query)
	v.Set("limit", strconv.Itoa(limit))
	return "/search?" + v.Encode()
}

// --- tag ---

var tagCmd = &cobra.Command{
	Use:   "tag <thought-id> <tag...>",
	Short: "Add tags to a thought",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/thoughts/"+url.PathEscape(args[0])+"/tags", map[string]any{"tags": args[1:]})
		if err != nil {
			return err
		}
		var out struct {
			Added []string `json:"added_tags"`
			All   []string `json:"all_tags"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}

		if len(out.Added) == 0 {
			printWarning("No new tags; thought already has them")
		} else {
			printSuccess("Added %s", strings.Join(out.Added, ", "))
		}
		printStatus("Tags", "%s", strings.Join(out.All, ", "))
		return nil
	},
}

// --- action ---

var actionCmd = &cobra.Command{
	Use:   "action <action-id> <pending|completed|dismissed>",
	Short: "Update the status of an action item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.patch(cmd.Context(), "/actions/"+url.PathEscape(args[0]), map[string]string{"status": args[1]})
		if err != nil {
			return err
		}
		var a storage.Action
		if err := decodeJSON(resp, &a); err != nil {
			return err
		}
		printSuccess("Action %s is now %s", shortID(a.ID), a.Status)
		return nil
	},
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a thought, or an imported conversation with --import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		isImport, _ := cmd.Flags().GetBool("import")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if isImport {
			resp, err := client.delete(cmd.Context(), "/imports/"+url.PathEscape(args[0]))
			if err != nil {
				return err
			}
			var out struct {
				ThoughtIDs []string `json:"thought_ids"`
			}
			if err := decodeJSON(resp, &out); err != nil {
				return err
			}
			printSuccess("Deleted conversation %s and %d thoughts", shortID(args[0]), len(out.ThoughtIDs))
			return nil
		}

		resp, err := client.delete(cmd.Context(), "/thoughts/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted thought %s", shortID(args[0]))
		return nil
	},
}

func init() {
	deleteCmd.Flags().Bool("import", false, "delete an imported conversation and its thoughts")
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an AI conversation export",
	Long: `Import a conversation exported from ChatGPT, Claude or Gemini. Each
user turn becomes a thought and is enriched in the background.

Examples:
  mirror import --provider chatgpt --file ./conversation.json
  mirror import --provider claude --format markdown --file ./chat.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		format, _ := cmd.Flags().GetString("format")
		file, _ := cmd.Flags().GetString("file")
		if provider == "" || file == "" {
			return fmt.Errorf("--provider and --file are required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		n, err := importConversation(cmd.Context(), client, provider, format, file, data)
		if err != nil {
			return err
		}
		printSuccess("Imported %d thoughts; enrichment is queued", n)
		return nil
	},
}

func init() {
	importCmd.Flags().String("provider", "", "export source: chatgpt, claude or gemini")
	importCmd.Flags().String("format", "", "markdown or json (default: from file extension)")
	importCmd.Flags().String("file", "", "export file to import")
}

func formatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return "json"
	}
	return "markdown"
}

func importConversation(ctx context.Context, c *apiClient, provider, format, path string, data []byte) (int, error) {
	if format == "" {
		format = formatFromPath(path)
	}
	req := map[string]string{
		"provider": provider,
		"format":   format,
		"filename": filepath.Base(path),
		"content":  string(data),
	}
	resp, err := c.post(ctx, "/imports", req)
	if err != nil {
		return 0, err
	}
	var out struct {
		ThoughtIDs []string `json:"thought_ids"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return 0, err
	}
	return len(out.ThoughtIDs), nil
}

// --- enrich ---

var enrichCmd = &cobra.Command{
	Use:   "enrich [text...]",
	Short: "Run the enrichment pipeline locally and print the result",
	Long: `Run the enrichment pipeline without a server and without storing
anything. Text is read from the arguments or stdin.

Examples:
  mirror enrich "Need to finish the budget report by Friday"
  echo "notes" | mirror enrich --existing ./thoughts.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		existingPath, _ := cmd.Flags().GetString("existing")
		narrative, _ := cmd.Flags().GetBool("narrative")

		text := strings.Join(args, " ")
		if text == "" {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			text = string(data)
		}

		var existing []linker.Candidate
		if existingPath != "" {
			data, err := os.ReadFile(existingPath)
			if err != nil {
				return fmt.Errorf("reading existing thoughts: %w", err)
			}
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("parsing existing thoughts: %w", err)
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.Enrichment.NarrativeEnabled = narrative
		logger := newLogger(cfg.Log.Level)

		ollama := llm.NewOllama(cfg.LLM.OllamaURL, cfg.LLM.Model, cfg.LLM.EmbedModel)
		ready := narrative && ollama.IsRunning(cmd.Context())
		gen, err := newGenerator(cfg, ollama, ready, logger)
		if err != nil {
			return err
		}

		return runEnrich(cmd.Context(), cmd.OutOrStdout(), newEnricher(cfg, gen, nil, logger), text, existing)
	},
}

func init() {
	enrichCmd.Flags().String("existing", "", `JSON file of existing thoughts: [{"id":"...","content":"..."}]`)
	enrichCmd.Flags().Bool("narrative", false, "also run the narrative model")
}

type processor interface {
	Process(ctx context.Context, content string, existing []linker.Candidate) (pipeline.Result, error)
}

func runEnrich(ctx context.Context, w io.Writer, p processor, text string, existing []linker.Candidate) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to enrich")
	}
	res, err := p.Process(ctx, text, existing)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
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
			fmt.Printf("  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value; an empty value restores the default",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
