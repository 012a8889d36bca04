package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/citeguard/internal/httpapi"
	"github.com/fyrsmithlabs/citeguard/internal/pipeline"
)

var clientCorpus string

func init() {
	ingestCmd.Flags().StringVar(&clientCorpus, "corpus", "default", "target corpus")
	queryCmd.Flags().StringVar(&clientCorpus, "corpus", "default", "corpus to query")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a document into a corpus",
	Long: `Ingest a document file (or stdin with -) into a corpus on a
running citeguardd server.

Examples:
  citeguardd ingest --corpus policies handbook.txt
  cat notes.md | citeguardd ingest --corpus notes -`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question against a corpus",
	Long: `Send a query to a running citeguardd server and print the
answer with its attribution summary.

Examples:
  citeguardd query --corpus policies "When does term start?"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show session token usage and cost",
	RunE:  runUsage,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var (
		content  []byte
		filename string
		err      error
	)
	if args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		filename = "stdin"
	} else {
		content, err = os.ReadFile(args[0])
		filename = filepath.Base(args[0])
	}
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	var result pipeline.IngestResult
	if err := postJSON("/api/v1/documents", httpapi.IngestRequest{
		Corpus:   clientCorpus,
		Filename: filename,
		Text:     string(content),
	}, &result); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ingested %s: document %s, %d chunks\n",
		filename, result.DocumentID, result.Chunks)
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	var env pipeline.Envelope
	if err := postJSON("/api/v1/query", httpapi.QueryRequest{
		Query:   args[0],
		Corpora: []string{clientCorpus},
	}, &env); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if env.Refused {
		fmt.Fprintf(out, "refused (%s): %s\n", env.RefusalReason, env.RefusalMessage)
		return nil
	}

	fmt.Fprintln(out, env.Answer)
	fmt.Fprintf(out, "\ngrounding score: %.2f\n", env.GroundingScore)
	if env.Attribution != nil {
		fmt.Fprintf(out, "supported sentences: %d/%d\n",
			env.Attribution.SupportedCount, env.Attribution.TotalCount)
		for _, s := range env.Attribution.Sentences {
			for _, c := range s.Citations {
				fmt.Fprintf(out, "  [%s lines %d-%d] %.2f\n",
					c.ChunkID, c.LineStart, c.LineEnd, c.Similarity)
			}
		}
	}
	return nil
}

func runUsage(cmd *cobra.Command, _ []string) error {
	resp, err := httpClient().Get(serverURL + "/api/v1/usage")
	if err != nil {
		return fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return fmt.Errorf("formatting response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
	return nil
}

// postJSON posts a request body and decodes the response into out.
func postJSON(path string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	resp, err := httpClient().Post(serverURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}
