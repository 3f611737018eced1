package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
)

const defaultAPIURL = "http://localhost:8080"

type rootOptions struct {
	apiURL  string
	apiKey  string
	timeout time.Duration
	asJSON  bool
}

// NewRootCommand builds the ragctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Query grounded answers and ingestion status",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", envOr("RAGCTL_API_URL", defaultAPIURL), "API base URL")
	root.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("RAGCTL_API_KEY"), "bearer token for the API")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "request timeout")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	root.AddCommand(newAskCommand(opts), newStatusCommand(opts))
	return root
}

func newAskCommand(opts *rootOptions) *cobra.Command {
	var (
		age          float64
		inferFacts   bool
		topKFinal    int
		topKPerQuery int
	)

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Ask a question against the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("query is required")
			}

			req := AskRequest{
				Query:        query,
				InferFacts:   inferFacts,
				TopKFinal:    topKFinal,
				TopKPerQuery: topKPerQuery,
			}
			if cmd.Flags().Changed("age") {
				req.ApplicantFacts = domain.ApplicantFacts{domain.FactAge: age}
			}

			client := NewClient(opts.apiURL, opts.apiKey, opts.timeout)
			result, err := client.Ask(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), result)
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	cmd.Flags().Float64Var(&age, "age", 0, "applicant age; enables the eligibility decision")
	cmd.Flags().BoolVar(&inferFacts, "infer-facts", false, "infer applicant facts such as age from the query text")
	cmd.Flags().IntVar(&topKFinal, "top-k-final", 0, "ranked fragments used for the answer (server default when 0)")
	cmd.Flags().IntVar(&topKPerQuery, "top-k-per-query", 0, "fragments retrieved per expanded query (server default when 0)")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show ingestion status of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewClient(opts.apiURL, opts.apiKey, opts.timeout)
			doc, err := client.DocumentStatus(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if opts.asJSON {
				return printJSON(cmd.OutOrStdout(), doc)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  %s\n", doc.ID, doc.Status, doc.Filename)
			if doc.Category != "" {
				fmt.Fprintf(out, "category: %s  tags: %s\n", doc.Category, strings.Join(doc.Tags, ", "))
			}
			if doc.Error != "" {
				fmt.Fprintf(out, "error: %s\n", doc.Error)
			}
			return nil
		},
	}
}

func printResult(out io.Writer, result *domain.QueryResult) {
	fmt.Fprintf(out, "Answer: %s\n", result.Answer)
	if result.Explanation != "" {
		fmt.Fprintf(out, "Explanation: %s\n", result.Explanation)
	}

	if len(result.Evidence) > 0 {
		fmt.Fprintln(out, "Evidence:")
		for _, label := range result.Evidence {
			src, ok := result.EvidenceMap[label]
			if !ok {
				fmt.Fprintf(out, "  %s\n", label)
				continue
			}
			fmt.Fprintf(out, "  %s  %s (score %.2f)\n    %s\n", label, src.DocumentID, src.Score, src.Preview)
		}
	}

	if len(result.Constraints) > 0 {
		keys := make([]string, 0, len(result.Constraints))
		for key := range result.Constraints {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%g", key, result.Constraints[key]))
		}
		fmt.Fprintf(out, "Constraints: %s\n", strings.Join(parts, " "))
	}

	if result.Decision != nil {
		fmt.Fprintf(out, "Decision: %s (confidence %.2f)\n", result.Decision.Eligibility, result.Decision.Confidence)
		for _, reason := range result.Decision.Reasons {
			fmt.Fprintf(out, "  - %s\n", reason)
		}
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
