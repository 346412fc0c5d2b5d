package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/totemic/internal/engine"
	"github.com/lazypower/totemic/internal/store"
)

var (
	scoreModel string
	scoreAges  []string
	scoreAll   bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute a decay score for hypothetical endorsement ages",
	Long: `Compute the score a totem would have if one active endorsement were
made at each given age. Ages are Go durations or whole days ("3d").

  totemic score --model fast --age 0 --age 84h --age 7d`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreModel, "model", string(store.DecayMedium), "decay model (fast, medium, none)")
	scoreCmd.Flags().StringArrayVar(&scoreAges, "age", nil, "age of one endorsement (repeatable)")
	scoreCmd.Flags().BoolVar(&scoreAll, "all-records", false, "score with the all-records policy")
}

func runScore(cmd *cobra.Command, args []string) error {
	model, err := store.ParseDecayModel(scoreModel)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	records := make([]store.EngagementRecord, 0, len(scoreAges))
	for i, raw := range scoreAges {
		age, err := parseAge(raw)
		if err != nil {
			return err
		}
		at := now.Add(-age)
		records = append(records, store.EngagementRecord{
			SubjectID:        fmt.Sprintf("s%d", i+1),
			FirstEngagedAt:   at,
			LastTransitionAt: at,
			Active:           true,
			Weight:           1,
		})
	}

	policy := engine.PolicyActiveOnly
	if scoreAll {
		policy = engine.PolicyAllRecords
	}
	score, err := engine.Score(records, model, now, policy)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%.2f\n", score)
	return nil
}

// parseAge accepts a time.Duration or a day count with a "d" suffix.
func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "0" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid age %q", s)
	}
	return d, nil
}
