package cmd

import (
	"context"
	"sort"
	"strings"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/api"
	"github.com/spigell/cv-screener/internal/processor"
)

const (
	functionProcessCV   = "process-cv"
	functionExtractText = "extract-text"
	functionDispatchCVs = "dispatch-cvs"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda [function]",
	Short: "Start the Lambda runtime for one function",
	Long: "Start the Lambda runtime for one function. The function can also be set with " +
		"CV_SCREENER_FUNCTION so one image serves every function.",
	Args: cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		function := viper.GetString("function")
		if len(args) == 1 {
			function = args[0]
		}
		runLambda(strings.TrimSpace(function))
	},
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
	viper.BindEnv("function", "CV_SCREENER_FUNCTION")
}

func runLambda(function string) {
	ctx := context.Background()

	cfg, logger := setup(true)
	logger = logger.With(zap.String("function", function), zap.String("version", resolvedVersion()))

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("creating services", zap.Error(err))
	}

	switch function {
	case functionProcessCV:
		proc, err := svc.processor(ctx)
		if err != nil {
			logger.Fatal("creating processor", zap.Error(err))
		}
		logger.Info("starting lambda runtime")
		awslambda.Start(proc.Handle)
	case functionExtractText:
		forwarder := processor.NewForwarder(svc.textract, svc.cvs, svc.invoker, logger)
		logger.Info("starting lambda runtime")
		awslambda.Start(forwarder.HandleS3Event)
	default:
		dispatcher, err := svc.dispatcher()
		if err != nil {
			logger.Fatal("creating dispatcher", zap.Error(err))
		}

		// API Gateway gives up long before the batch delays end, so the proxy
		// path only queues the run.
		handlers, err := svc.api(ctx, dispatcher, true)
		if err != nil {
			logger.Fatal("creating api", zap.Error(err))
		}

		functions := handlers.Functions()
		handler, ok := functions[function]
		if !ok {
			logger.Fatal("unknown function", zap.Strings("available", functionNames(functions)))
		}

		logger.Info("starting lambda runtime")
		if function == functionDispatchCVs {
			awslambda.Start(api.DispatchEntry(handler, dispatcher.HandleEvent))
			return
		}
		awslambda.Start(handler)
	}
}

func functionNames(functions map[string]api.Handler) []string {
	names := []string{functionProcessCV, functionExtractText}
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
