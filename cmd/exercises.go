package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/physiopulse/internal/domain/exercise"
)

func newExercisesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exercises",
		Short: "List supported exercises and their angle bands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			all := exercise.All()
			rows := make([][]string, 0, len(all))
			for _, ex := range all {
				rows = append(rows, []string{
					string(ex.Type),
					ex.Name,
					strings.Join(ex.TargetJoints, ", "),
					formatRange(ex.Perfect),
					formatRange(ex.Good),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Type", "Name", "Target joints", "Perfect", "Good"}, rows))
			return nil
		},
	}
}

func formatRange(r exercise.Range) string {
	return fmt.Sprintf("%g-%g°", r.Lo, r.Hi)
}
