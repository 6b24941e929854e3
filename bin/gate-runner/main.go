package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaosgate/chaosgate-go/pkg/aggregate"
	"github.com/chaosgate/chaosgate-go/pkg/clients"
	"github.com/chaosgate/chaosgate-go/pkg/clock"
	"github.com/chaosgate/chaosgate-go/pkg/environment"
	"github.com/chaosgate/chaosgate-go/pkg/events"
	"github.com/chaosgate/chaosgate-go/pkg/gate"
	"github.com/chaosgate/chaosgate-go/pkg/log"
	"github.com/chaosgate/chaosgate-go/pkg/result"
	"github.com/chaosgate/chaosgate-go/pkg/sequencer"
	"github.com/chaosgate/chaosgate-go/pkg/target"
	"github.com/chaosgate/chaosgate-go/pkg/telemetry"
	"github.com/chaosgate/chaosgate-go/pkg/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "dev"

func init() {
	// Log as text with full timestamps, matching the runner pods
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

func main() {
	var planPath string
	var flags types.RunDetails

	rootCmd := &cobra.Command{
		Use:   "gate-runner",
		Short: "Injects failure scenarios against target services and gates deployment on recovery",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the scenario plan and render the gate decision",
		Run: func(cmd *cobra.Command, args []string) {
			run(planPath, flags)
		},
	}
	runCmd.Flags().StringVar(&planPath, "plan", "plan.yaml", "path of the scenario plan file")
	runCmd.Flags().StringVar(&flags.RunID, "run-id", "", "run identifier, overrides RUN_ID")
	runCmd.Flags().StringVar(&flags.Commit, "commit", "", "commit under test, overrides COMMIT_SHA")
	runCmd.Flags().StringVar(&flags.ReportPath, "report", "", "path of the report artifact, overrides REPORT_PATH")
	runCmd.Flags().IntVar(&flags.MaxParallel, "max-parallel", 0, "scenario worker limit, overrides MAX_PARALLEL")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the runner version",
		Run: func(cmd *cobra.Command, args []string) {
			log.Infof("gate-runner %v", version)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(planPath string, flags types.RunDetails) {

	runDetails := types.RunDetails{}
	environment.GetENV(&runDetails)
	applyOverrides(&runDetails, flags)

	log.InfoWithValues("The run informations are as follows", logrus.Fields{
		"RunID":  runDetails.RunID,
		"Commit": runDetails.Commit,
		"Plan":   planPath,
	})

	plan, err := environment.LoadPlan(planPath)
	if err != nil {
		log.Fatalf("Unable to load the scenario plan, %v", err)
	}

	clientSets, err := clients.NewClientSets(runDetails)
	if err != nil {
		log.Fatalf("Unable to build the collaborator clients, %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runDetails.OTelEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(ctx, runDetails.OTelEndpoint)
		if err != nil {
			log.Errorf("Unable to initialise the OTel SDK, %v", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Errorf("Unable to shut the OTel SDK down, %v", err)
				}
			}()
		}
	}

	ctx, span := telemetry.Tracer().Start(ctx, "resilience-run/"+runDetails.RunID)
	defer span.End()

	wallClock := clock.New()
	recorder := events.NewRecorder(wallClock)
	registry := target.NewRegistry(plan.Targets, clientSets)

	outcomes, err := sequencer.New(runDetails, plan, registry, recorder, wallClock).Run(ctx)
	if err != nil {
		// startup failure, no scenario has executed and no report is produced
		log.Fatalf("Unable to start the run, %v", err)
	}

	report := aggregate.Reduce(runDetails.RunID, runDetails.Commit, outcomes, recorder.Events())

	persistErr := result.WriteReport(report, runDetails.ReportPath)
	result.Summary(report)

	if runDetails.PushgatewayURL != "" {
		if err := result.PushRunMetrics(report, runDetails.PushgatewayURL); err != nil {
			log.Errorf("Unable to push the run metrics, %v", err)
		}
	}

	span.End()

	// a run without its audit artifact must not open the gate
	if persistErr != nil {
		log.Errorf("Unable to persist the report, %v", persistErr)
		os.Exit(1)
	}
	os.Exit(gate.ExitCode(gate.Evaluate(report)))
}

func applyOverrides(runDetails *types.RunDetails, flags types.RunDetails) {
	if flags.RunID != "" {
		runDetails.RunID = flags.RunID
	}
	if flags.Commit != "" {
		runDetails.Commit = flags.Commit
	}
	if flags.ReportPath != "" {
		runDetails.ReportPath = flags.ReportPath
	}
	if flags.MaxParallel > 0 {
		runDetails.MaxParallel = flags.MaxParallel
	}
}
