package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/totemic/internal/engine"
)

var createFile string

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a document from JSON",
	Long: `Create a document from a JSON file (or stdin with --file -):

  {"id": "post-1", "answers": [{"id": "a1", "text": "...", "totems": [{"name": "golang"}]}]}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = cmd.InOrStdin()
		if createFile != "-" {
			f, err := os.Open(createFile)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}

		var in engine.DocumentInput
		if err := json.NewDecoder(r).Decode(&in); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}

		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		doc, err := sess.coord.CreateDocument(cmd.Context(), in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%d answers)\n", doc.ID, len(doc.Answers))
		return nil
	},
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore <document-id>",
	Short: "Recompute every cached score at the current time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		doc, err := sess.coord.Rescore(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, a := range doc.Answers {
			for _, t := range a.Totems {
				fmt.Fprintf(out, "%s\t%s\t%.2f\t%d\n", a.ID, t.Name, t.Score, t.ActiveCount)
			}
		}
		return nil
	},
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <document-id>",
	Short: "Rebuild the totem relationship graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		edges, err := sess.coord.RecomputeRelations(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(edges) == 0 {
			fmt.Fprintln(out, "no related totems")
			return nil
		}
		for _, e := range edges {
			fmt.Fprintf(out, "%s -- %s (%d)\n", e.A, e.B, e.Weight)
		}
		return nil
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <document-id>",
	Short: "Suggest totems from similar answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		list, err := sess.coord.Suggestions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "no suggestions")
			return nil
		}
		for _, as := range list {
			fmt.Fprintf(out, "%s:\n", as.AnswerID)
			for _, s := range as.Suggestions {
				fmt.Fprintf(out, "  %-20s %.2f (%d)\n", s.Totem, s.Confidence, s.Count)
			}
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&createFile, "file", "f", "-", "document JSON file, - for stdin")
}
