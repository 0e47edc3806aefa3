package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/dispatch"
	"github.com/spigell/cv-screener/internal/recruiting"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var dispatchPrompt = promptui.Select{
	Label: "Procced?",
	Items: []string{PromptYes, PromptNo},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch every CV uploaded for a job to the processor",
	Run: func(cmd *cobra.Command, _ []string) {
		runDispatch(cmd)
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)

	dispatchCmd.Flags().String("job-id", "", "job posting id")
	dispatchCmd.Flags().String("caller", "", "id of the recruiter owning the job")
	dispatchCmd.Flags().BoolP("auto-aprove", "y", false, "do not ask for confirmation before dispatching")
}

func runDispatch(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger := setup(false)

	jobID, _ := cmd.Flags().GetString("job-id")
	callerID, _ := cmd.Flags().GetString("caller")

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("creating services", zap.Error(err))
	}

	dispatcher, err := svc.dispatcher()
	if err != nil {
		logger.Fatal("creating dispatcher", zap.Error(err))
	}

	// Caller and ownership are checked before anything is listed.
	req, count, err := dispatcher.Check(ctx, dispatch.Request{JobID: jobID, CallerID: callerID})
	if err != nil {
		logger.Fatal("dispatch rejected", zap.Error(err))
	}

	logger.Info("cvs found",
		zap.String("prefix", recruiting.JobUploadPrefix(cfg.CVPrefix, req.JobID)),
		zap.Int("count", count),
		zap.Int("batches", (count+cfg.Dispatch.BatchSize-1)/cfg.Dispatch.BatchSize),
		zap.Duration("inter_batch_delay", cfg.Dispatch.InterBatchDelay),
	)

	if auto, _ := cmd.Flags().GetBool("auto-aprove"); !auto {
		_, action, err := dispatchPrompt.Run()
		if err != nil {
			logger.Fatal("prompt failed", zap.Error(err))
		}
		if action != PromptYes {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
	}

	result, err := dispatcher.Dispatch(ctx, req)
	switch {
	case errors.Is(err, context.Canceled) && result != nil:
		logger.Warn("dispatch interrupted",
			zap.Int("dispatched", result.Dispatched),
			zap.Int("failed", result.Failed),
		)
	case err != nil:
		logger.Fatal("dispatch failed", zap.Error(err))
	default:
		logger.Info("dispatch finished",
			zap.String("job_id", result.JobID),
			zap.Int("dispatched", result.Dispatched),
			zap.Int("failed", result.Failed),
			zap.Int("batches", result.Batches),
		)
	}
}
