package cmd

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai/gemini"
	"github.com/spigell/cv-screener/internal/api"
	"github.com/spigell/cv-screener/internal/config"
	"github.com/spigell/cv-screener/internal/discovery"
	"github.com/spigell/cv-screener/internal/dispatch"
	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/invoke"
	"github.com/spigell/cv-screener/internal/processor"
	"github.com/spigell/cv-screener/internal/storage/dynamo"
	"github.com/spigell/cv-screener/internal/storage/objects"
)

// services holds the AWS-backed building blocks shared by every command.
type services struct {
	cfg    *config.Config
	logger *zap.Logger

	postings     *dynamo.Postings
	applications *dynamo.Applications
	results      *dynamo.Results
	cvs          *objects.Bucket
	resultFiles  *objects.Bucket
	invoker      *invoke.Lambda
	textract     *extract.Textract
	lambdaClient *lambda.Client
}

func newServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	db := dynamodb.NewFromConfig(awsCfg)
	s3Client := s3.NewFromConfig(awsCfg)

	lambdaClient := lambda.NewFromConfig(awsCfg)

	invoker, err := invoke.NewLambda(cfg.ProcessorFunction, lambdaClient, logger)
	if err != nil {
		return nil, err
	}

	return &services{
		cfg:          cfg,
		logger:       logger,
		postings:     dynamo.NewPostings(cfg.Tables.JobPostings, db),
		applications: dynamo.NewApplications(cfg.Tables.Applications, db),
		results:      dynamo.NewResults(cfg.Tables.Results, db),
		cvs:          objects.FromClient(cfg.Buckets.CVs, s3Client, logger),
		resultFiles:  objects.FromClient(cfg.Buckets.Results, s3Client, logger),
		invoker:      invoker,
		textract:     extract.New(textract.NewFromConfig(awsCfg), cfg.Textract.PollInterval, logger),
		lambdaClient: lambdaClient,
	}, nil
}

func (s *services) dispatcher() (*dispatch.Dispatcher, error) {
	return dispatch.New(s.cfg.Dispatch.Config, dispatch.Deps{
		Lister:  s.cvs,
		Jobs:    s.postings,
		Invoker: s.invoker,
		Screen:  discovery.Default(s.cfg.Dispatch.AllowedExtensions, s.logger),
		Logger:  s.logger,
	})
}

func (s *services) generator(ctx context.Context) (*gemini.Generator, error) {
	g := s.cfg.AI.Gemini

	apiKey, err := g.ResolveAPIKey()
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, ai.gemini.api-key or GEMINI_API_KEY)", err)
	}

	return gemini.NewGenerator(ctx, apiKey, g.Model, g.MaxRetries, s.logger)
}

func (s *services) processor(ctx context.Context) (*processor.Processor, error) {
	generator, err := s.generator(ctx)
	if err != nil {
		return nil, err
	}

	scorer := gemini.NewScorer(generator, s.logger, s.cfg.AI.MinimumFitScore, s.cfg.AI.Gemini.MaxLogLength)

	return processor.New(processor.Deps{
		Postings:     s.postings,
		Results:      s.results,
		Applications: s.applications,
		CVs:          s.cvs,
		ResultFiles:  s.resultFiles,
		Scorer:       scorer,
		Logger:       s.logger,
	})
}

// dispatchQueue queues background runs of the dispatch function.
func (s *services) dispatchQueue() (*invoke.Lambda, error) {
	return invoke.NewLambda(s.cfg.DispatchFunction, s.lambdaClient, s.logger)
}

// api wires every recruiter-facing handler. A missing Gemini key only
// disables the interview question function. With queued set, dispatch-cvs
// hands the batches to a background invocation of the dispatch function.
func (s *services) api(ctx context.Context, dispatcher *dispatch.Dispatcher, queued bool) (*api.API, error) {
	deps := api.Deps{
		Postings:     s.postings,
		Applications: s.applications,
		Results:      s.results,
		CVs:          s.cvs,
		ResultFiles:  s.resultFiles,
		Dispatcher:   dispatcher,
		Logger:       s.logger,
	}

	if queued {
		queue, err := s.dispatchQueue()
		if err != nil {
			return nil, err
		}
		deps.DispatchQueue = queue
	}

	if generator, err := s.generator(ctx); err != nil {
		s.logger.Warn("interview questions disabled", zap.Error(err))
	} else {
		deps.Interviewer = gemini.NewInterviewer(generator, s.logger)
	}

	return api.New(api.Config{
		AllowedOrigin: s.cfg.HTTP.AllowedOrigin,
		PresignTTL:    s.cfg.PresignTTL,
		UploadPrefix:  s.cfg.CVPrefix,
	}, deps)
}
