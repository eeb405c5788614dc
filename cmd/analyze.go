package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/physiopulse/internal/app/pipeline"
	"github.com/okian/physiopulse/internal/domain/exercise"
)

func newAnalyzeCommand(c *cliContext) *cobra.Command {
	var (
		exerciseName string
		patientID    string
		sessionID    string
		outputDir    string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <video>",
		Short: "Analyze one video and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := exercise.Parse(exerciseName)
			if err != nil {
				return err
			}
			if outputDir == "" {
				outputDir = c.cfg.OutputDir
			}

			p := newPipelineFactory(c.cfg)(0)
			res, err := p.Run(cmd.Context(), pipeline.Request{
				VideoPath:    args[0],
				OutputDir:    outputDir,
				ExerciseType: ex,
				PatientID:    patientID,
				SessionID:    sessionID,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printResult(cmd.OutOrStdout(), &res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&exerciseName, "exercise", "e", string(exercise.ArmExtension), "Exercise type")
	cmd.Flags().StringVar(&patientID, "patient", "", "Patient id recorded with the analysis")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id recorded with the analysis")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Artifact directory (defaults to output_dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printResult(w io.Writer, res *pipeline.Result) {
	s := res.Summary
	rows := [][]string{
		{"Analysis", res.AnalysisID},
		{"Exercise", string(res.ExerciseType)},
		{"Status", string(res.Status)},
		{"Average score", strconv.FormatFloat(s.AverageScore, 'f', 2, 64)},
		{"Best score", strconv.Itoa(s.BestScore)},
		{"Worst score", strconv.Itoa(s.WorstScore)},
		{"Frames", strconv.Itoa(s.TotalFrames)},
		{"Frames with pose", strconv.Itoa(s.FramesWithPose)},
		{"Detection rate", strconv.FormatFloat(s.DetectionRate*100, 'f', 1, 64) + "%"},
		{"Exercise duration", strconv.FormatFloat(s.ExerciseDuration, 'f', 2, 64) + "s"},
		{"Processing time", strconv.FormatFloat(res.ProcessingTime, 'f', 2, 64) + "s"},
	}
	fmt.Fprintln(w, renderTable([]string{"Metric", "Value"}, rows, 1))

	files := [][]string{
		{"landmarks", res.Files.Landmarks},
		{"scores", res.Files.Scores},
		{"summary", res.Files.Summary},
	}
	fmt.Fprintln(w, renderTable([]string{"Artifact", "Path"}, files))

	for _, warning := range res.Warnings {
		fmt.Fprintln(w, "warning:", warning)
	}
}
