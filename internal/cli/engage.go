package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lazypower/totemic/internal/client"
	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/store"
)

var (
	engageSubject string
	engageModel   string
	engageServer  string
)

var likeCmd = newEngageCmd(engine.ActionLike, "Endorse a totem on an answer")
var unlikeCmd = newEngageCmd(engine.ActionUnlike, "Withdraw an endorsement")
var refreshCmd = newEngageCmd(engine.ActionRefresh, "Renew an active endorsement")

func newEngageCmd(action engine.Action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action) + " <document-id> <answer-id> <totem>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngage(cmd, action, args)
		},
	}
	cmd.Flags().StringVarP(&engageSubject, "subject", "s", "", "subject (user) id")
	cmd.MarkFlagRequired("subject")
	cmd.Flags().StringVar(&engageServer, "server", "", "send to a running server instead of opening the store")
	if action == engine.ActionLike {
		cmd.Flags().StringVar(&engageModel, "model", "", "decay model for a new totem (fast, medium, none)")
	}
	return cmd
}

func runEngage(cmd *cobra.Command, action engine.Action, args []string) error {
	if engageServer != "" {
		return runRemoteEngage(cmd, action, args)
	}

	sess, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()

	req := engine.Request{
		DocumentID: args[0],
		AnswerID:   args[1],
		TotemName:  args[2],
		SubjectID:  engageSubject,
		Action:     action,
	}
	if action == engine.ActionLike && engageModel != "" {
		model, err := store.ParseDecayModel(engageModel)
		if err != nil {
			return err
		}
		req.DecayModel = model
	}

	res, err := sess.coord.Apply(cmd.Context(), req)
	if err != nil {
		return err
	}

	printEngagement(cmd.OutOrStdout(), res.Outcome, res.Document.ID, res.AnswerID, res.Totem)
	return nil
}

func runRemoteEngage(cmd *cobra.Command, action engine.Action, args []string) error {
	c := client.New(engageServer)
	req := client.EngagementRequest{
		AnswerID:  args[1],
		Totem:     args[2],
		SubjectID: engageSubject,
		Action:    string(action),
	}
	if action == engine.ActionLike {
		req.DecayModel = engageModel
	}

	res, err := c.Engage(cmd.Context(), args[0], req)
	if err != nil {
		return err
	}
	printEngagement(cmd.OutOrStdout(), res.Outcome, args[0], res.AnswerID, res.Totem)
	return nil
}

func printEngagement(out io.Writer, outcome engine.Outcome, documentID, answerID string, t store.Totem) {
	fmt.Fprintf(out, "%s: %s on %s/%s\n", outcome, t.Name, documentID, answerID)
	fmt.Fprintf(out, "  score:  %.2f\n", t.Score)
	fmt.Fprintf(out, "  active: %d\n", t.ActiveCount)
	if len(t.RelatedTotemNames) > 0 {
		fmt.Fprintf(out, "  related: %v\n", t.RelatedTotemNames)
	}
}
