package pktables

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/pktables/internal/config"
	"github.com/temirov/pktables/internal/extractor"
	"github.com/temirov/pktables/internal/fsops"
	"github.com/temirov/pktables/internal/llm"
	"github.com/temirov/pktables/internal/metrics"
	"github.com/temirov/pktables/internal/pipeline"
	"github.com/temirov/pktables/internal/store"
	"github.com/temirov/pktables/internal/table"
)

type runCommandOptions struct {
	configPath      string
	pipelineName    string
	tablePath       string
	caption         string
	captionFile     string
	drugsPath       string
	populationsPath string
	outputPath      string
	outputFormat    string
	provenanceDir   string
	attempts        int
	initialWait     time.Duration
	timeout         time.Duration
	modelOverride   string
	databasePath    string
	metricsFile     string
	continueOnError bool
}

func newRunCommand() *cobra.Command {
	options := &runCommandOptions{
		configPath:   defaultConfigPath,
		pipelineName: defaultPipelineName,
		outputFormat: outputFormatMarkdown,
	}

	command := &cobra.Command{
		Use:   runCommandUse,
		Short: runCommandShort,
		Args:  cobra.RangeArgs(runCommandArgsMin, runCommandArgsMax),
		RunE: func(cmd *cobra.Command, args []string) error {
			effectiveOptions := *options
			if len(args) > 0 {
				effectiveOptions.pipelineName = args[0]
			}
			return runPipelineCommand(cmd, effectiveOptions)
		},
	}

	flags := command.Flags()
	flags.StringVar(&options.configPath, configFlagName, defaultConfigPath, configFlagUsage)
	flags.StringVar(&options.pipelineName, pipelineFlagName, defaultPipelineName, pipelineFlagUsage)
	flags.StringVar(&options.tablePath, tableFlagName, "", tableFlagUsage)
	flags.StringVar(&options.caption, captionFlagName, "", captionFlagUsage)
	flags.StringVar(&options.captionFile, captionFileFlagName, "", captionFileFlagUsage)
	flags.StringVar(&options.drugsPath, drugsFlagName, "", drugsFlagUsage)
	flags.StringVar(&options.populationsPath, populationsFlagName, "", populationsFlagUsage)
	flags.StringVar(&options.outputPath, outputFlagName, "", outputFlagUsage)
	flags.StringVar(&options.outputFormat, formatFlagName, outputFormatMarkdown, formatFlagUsage)
	flags.StringVar(&options.provenanceDir, provenanceFlagName, "", provenanceFlagUsage)
	flags.IntVar(&options.attempts, attemptsFlagName, 0, attemptsFlagUsage)
	flags.DurationVar(&options.initialWait, initialWaitFlagName, 0, initialWaitFlagUsage)
	flags.DurationVar(&options.timeout, timeoutFlagName, 0, timeoutFlagUsage)
	flags.StringVar(&options.modelOverride, modelFlagName, "", modelFlagUsage)
	flags.StringVar(&options.databasePath, databaseFlagName, "", databaseFlagUsage)
	flags.StringVar(&options.metricsFile, metricsFileFlagName, "", metricsFileFlagUsage)
	flags.BoolVar(&options.continueOnError, continueOnErrorFlagName, false, continueOnErrorFlagUsage)

	return command
}

// tableInput is one table to extract. HTML pages contribute one input per
// table.
type tableInput struct {
	label     string
	reference string
	source    pipeline.Source
}

type provenanceDocument struct {
	RunID          string            `json:"run_id"`
	Pipeline       string            `json:"pipeline"`
	Input          string            `json:"input"`
	Success        bool              `json:"success"`
	Error          string            `json:"error,omitempty"`
	ElapsedSeconds float64           `json:"elapsed_seconds,omitempty"`
	TotalTokens    int               `json:"total_tokens"`
	Steps          []pipeline.Record `json:"steps"`
}

func runPipelineCommand(command *cobra.Command, options runCommandOptions) error {
	if strings.TrimSpace(options.tablePath) == "" {
		return errors.New(missingTableFlagErrorMessage)
	}
	if options.outputFormat != outputFormatMarkdown && options.outputFormat != outputFormatCSV {
		return fmt.Errorf(unsupportedOutputFormatErrorFormat, options.outputFormat)
	}

	rootConfiguration, configurationSource, err := loadRootConfiguration(options.configPath)
	if err != nil {
		return err
	}
	pipelineConfiguration, err := resolvePipeline(rootConfiguration, options.pipelineName)
	if err != nil {
		return err
	}
	modelConfiguration, err := resolveModel(rootConfiguration, pipelineConfiguration, options.modelOverride)
	if err != nil {
		return err
	}

	fileOperations := fsops.NewOS()
	inputs, err := collectInputs(fileOperations, options)
	if err != nil {
		return err
	}
	if len(inputs) > 1 && (options.outputPath == "" || fsops.KindOf(options.outputPath) != fsops.KindUnknown) {
		return fmt.Errorf(outputDirectoryRequiredErrorFormat, len(inputs))
	}

	client, err := newLLMClient(rootConfiguration, modelConfiguration)
	if err != nil {
		return err
	}

	logger, err := newLogger(rootConfiguration.Common.Logging.Level, rootConfiguration.Common.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	restoreGlobalLogger := zap.ReplaceGlobals(logger)
	defer restoreGlobalLogger()
	logger.Debug("configuration loaded",
		zap.String("source", configurationSource.Reference),
		zap.String("pipeline", pipelineConfiguration.Name),
		zap.String("model", modelConfiguration.ModelID))

	metricsCollector := metrics.New()
	pipelineExtractor := extractor.Extractor{Logger: logger, Metrics: metricsCollector}
	if options.databasePath != "" {
		database, openErr := store.Open(options.databasePath)
		if openErr != nil {
			return fmt.Errorf(openDatabaseErrorFormat, openErr)
		}
		defer func() { _ = database.Close() }()
		pipelineExtractor.Store = database
	}

	runOptions := pipeline.RunOptions{
		MaxAttempts:  resolveEffectiveAttempts(command, options, rootConfiguration, pipelineConfiguration),
		StepAttempts: pipelineConfiguration.StepAttempts,
		InitialWait:  resolveDuration(command, initialWaitFlagName, options.initialWait, rootConfiguration.Common.Defaults.InitialWait()),
		Timeout:      resolveDuration(command, timeoutFlagName, options.timeout, rootConfiguration.Common.Defaults.Timeout()),
	}

	failures := 0
	for _, input := range inputs {
		result, runErr := pipelineExtractor.Run(command.Context(), client, extractor.Request{
			Pipeline: pipelineConfiguration.Type,
			Source:   input.source,
			Options:  runOptions,
			Input:    input.reference,
		})
		if provenanceErr := writeProvenance(fileOperations, options.provenanceDir, input, result, runErr); provenanceErr != nil {
			return provenanceErr
		}
		if runErr != nil {
			wrapped := fmt.Errorf(runFailedErrorFormat, pipelineConfiguration.Name, input.reference, runErr)
			if !options.continueOnError || len(inputs) == 1 {
				writeMetrics(logger, metricsCollector, options.metricsFile)
				return wrapped
			}
			logger.Error("table skipped", zap.String("input", input.reference), zap.Error(runErr))
			failures++
			continue
		}
		if writeErr := writeResult(command, fileOperations, options, len(inputs), input, result.Table); writeErr != nil {
			return fmt.Errorf(writeOutputErrorFormat, writeErr)
		}
	}

	writeMetrics(logger, metricsCollector, options.metricsFile)
	if failures > 0 {
		return fmt.Errorf(batchFailedErrorFormat, failures, len(inputs))
	}
	return nil
}

// resolvePipeline accepts a configured pipeline name or a pipeline type. A
// type with no configuration entry runs with the defaults.
func resolvePipeline(rootConfiguration config.Root, name string) (config.Pipeline, error) {
	name = strings.TrimSpace(name)
	if pipelineConfiguration, found := rootConfiguration.FindPipeline(name); found {
		if !pipelineConfiguration.Enabled {
			return config.Pipeline{}, fmt.Errorf(disabledPipelineErrorFormat, name)
		}
		return pipelineConfiguration, nil
	}
	for _, registered := range extractor.DefaultRegistry().Names() {
		if registered == name {
			return config.Pipeline{Name: name, Type: name, Enabled: true}, nil
		}
	}
	return config.Pipeline{}, fmt.Errorf(unknownPipelineErrorFormat, name)
}

func resolveModel(rootConfiguration config.Root, pipelineConfiguration config.Pipeline, override string) (config.Model, error) {
	if strings.TrimSpace(override) == "" {
		return rootConfiguration.ModelFor(pipelineConfiguration), nil
	}
	modelConfiguration, found := rootConfiguration.FindModel(override)
	if !found {
		return config.Model{}, fmt.Errorf(unknownModelErrorFormat, override)
	}
	return modelConfiguration, nil
}

// resolveEffectiveAttempts prefers the flag, even when set to 0, then the
// pipeline's own setting, then the common defaults.
func resolveEffectiveAttempts(command *cobra.Command, options runCommandOptions, rootConfiguration config.Root, pipelineConfiguration config.Pipeline) int {
	if flag := command.Flags().Lookup(attemptsFlagName); flag != nil && flag.Changed {
		return options.attempts
	}
	if pipelineConfiguration.Attempts > 0 {
		return pipelineConfiguration.Attempts
	}
	if rootConfiguration.Common.Defaults.Attempts > 0 {
		return rootConfiguration.Common.Defaults.Attempts
	}
	return 0
}

func resolveDuration(command *cobra.Command, flagName string, flagValue, configured time.Duration) time.Duration {
	if flag := command.Flags().Lookup(flagName); flag != nil && flag.Changed {
		return flagValue
	}
	return configured
}

func newLLMClient(rootConfiguration config.Root, modelConfiguration config.Model) (llm.Adapter, error) {
	apiKeyEnvironmentVariable := strings.TrimSpace(rootConfiguration.Common.API.APIKeyEnv)
	if apiKeyEnvironmentVariable == "" {
		apiKeyEnvironmentVariable = defaultAPIKeyEnvironmentVariable
	}
	apiKey := strings.TrimSpace(os.Getenv(apiKeyEnvironmentVariable))
	if apiKey == "" {
		return llm.Adapter{}, fmt.Errorf(missingAPIKeyErrorFormat, apiKeyEnvironmentVariable)
	}

	apiEndpoint := strings.TrimSpace(rootConfiguration.Common.API.Endpoint)
	if apiEndpoint == "" {
		apiEndpoint = defaultAPIEndpoint
	}

	var completer llm.Completer = llm.Client{HTTPBaseURL: apiEndpoint, APIKey: apiKey}
	if rootConfiguration.Common.API.Provider == config.ProviderOpenAI {
		completer = llm.NewSDKClient(apiEndpoint, apiKey)
	}

	adapter := llm.Adapter{
		Client:        completer,
		DefaultModel:  modelConfiguration.ModelID,
		DefaultTokens: modelConfiguration.MaxCompletionTokens,
		Limiter:       llm.NewLimiter(rootConfiguration.Common.Defaults.RequestsPerMinute),
	}
	if modelConfiguration.SupportsTemperature {
		adapter.DefaultTemp = modelConfiguration.DefaultTemperature
	}
	return adapter, nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	loggerConfiguration := zap.NewDevelopmentConfig()
	if format == "json" {
		loggerConfiguration = zap.NewProductionConfig()
	}
	if level != "" {
		parsedLevel, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf(loggerBuildErrorFormat, err)
		}
		loggerConfiguration.Level = zap.NewAtomicLevelAt(parsedLevel)
	}
	logger, err := loggerConfiguration.Build()
	if err != nil {
		return nil, fmt.Errorf(loggerBuildErrorFormat, err)
	}
	return logger, nil
}

func collectInputs(fileOperations fsops.Ops, options runCommandOptions) ([]tableInput, error) {
	caption, err := resolveCaption(fileOperations, options)
	if err != nil {
		return nil, err
	}
	drugs, err := readReference(fileOperations, options.drugsPath)
	if err != nil {
		return nil, err
	}
	populations, err := readReference(fileOperations, options.populationsPath)
	if err != nil {
		return nil, err
	}

	files := []fsops.FileInfo{{
		AbsolutePath: options.tablePath,
		BaseName:     strings.TrimSuffix(filepath.Base(options.tablePath), filepath.Ext(options.tablePath)),
		Kind:         fsops.KindOf(options.tablePath),
	}}
	if fileOperations.IsDir(options.tablePath) {
		files, err = fileOperations.Inventory(options.tablePath)
		if err != nil {
			return nil, err
		}
	}

	var inputs []tableInput
	for _, file := range files {
		if file.Kind == fsops.KindHTML {
			pageTables, readErr := fileOperations.ReadHTML(file.AbsolutePath)
			if readErr != nil {
				return nil, readErr
			}
			for _, pageTable := range pageTables {
				source := pageTable.Source()
				if caption != "" {
					source.Caption = caption
				}
				label := file.BaseName
				if len(pageTables) > 1 {
					label = fmt.Sprintf("%s_table%d", file.BaseName, pageTable.Index+1)
				}
				inputs = append(inputs, tableInput{
					label:     label,
					reference: fmt.Sprintf("%s#%d", file.AbsolutePath, pageTable.Index+1),
					source:    withReferences(source, drugs, populations),
				})
			}
			continue
		}
		parsed, readErr := fileOperations.ReadTable(file.AbsolutePath)
		if readErr != nil {
			return nil, readErr
		}
		inputs = append(inputs, tableInput{
			label:     file.BaseName,
			reference: file.AbsolutePath,
			source:    withReferences(pipeline.Source{Table: parsed, Caption: caption}, drugs, populations),
		})
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf(noInputsErrorFormat, options.tablePath)
	}
	return inputs, nil
}

func resolveCaption(fileOperations fsops.Ops, options runCommandOptions) (string, error) {
	if options.captionFile == "" {
		return strings.TrimSpace(options.caption), nil
	}
	if options.caption != "" {
		return "", errors.New(captionConflictErrorMessage)
	}
	return fileOperations.ReadText(options.captionFile)
}

func readReference(fileOperations fsops.Ops, path string) (*table.Table, error) {
	if path == "" {
		return nil, nil
	}
	reference, err := fileOperations.ReadTable(path)
	if err != nil {
		return nil, err
	}
	return &reference, nil
}

func withReferences(source pipeline.Source, drugs, populations *table.Table) pipeline.Source {
	source.Drugs = drugs
	source.Populations = populations
	return source
}

func writeResult(command *cobra.Command, fileOperations fsops.Ops, options runCommandOptions, inputCount int, input tableInput, result table.Table) error {
	if inputCount == 1 {
		if options.outputPath == "" {
			_, err := fmt.Fprint(command.OutOrStdout(), table.Encode(result))
			return err
		}
		if fsops.KindOf(options.outputPath) != fsops.KindUnknown {
			return fileOperations.WriteTable(options.outputPath, result)
		}
	}
	return fileOperations.WriteTable(filepath.Join(options.outputPath, input.label+"."+options.outputFormat), result)
}

func writeProvenance(fileOperations fsops.Ops, directory string, input tableInput, result *extractor.Result, runErr error) error {
	if directory == "" {
		return nil
	}
	document := provenanceDocument{Input: input.reference, Success: runErr == nil}
	switch {
	case result != nil:
		document.RunID = result.RunID
		document.Pipeline = result.Pipeline
		document.ElapsedSeconds = result.Elapsed.Seconds()
		document.TotalTokens = result.TotalTokens()
		document.Steps = result.Records()
	case runErr != nil:
		document.Error = runErr.Error()
		var failure *extractor.RunError
		if !errors.As(runErr, &failure) {
			return nil
		}
		document.RunID = failure.RunID
		document.Pipeline = failure.Pipeline
		document.Steps = failure.Records
		for _, record := range failure.Records {
			document.TotalTokens += record.TokenUsage
		}
	}
	return fileOperations.WriteJSON(filepath.Join(directory, input.label+provenanceFileSuffix), document)
}

func writeMetrics(logger *zap.Logger, metricsCollector *metrics.Metrics, path string) {
	if path == "" {
		return
	}
	if err := metricsCollector.WriteTextfile(path); err != nil {
		logger.Warn("writing metrics failed", zap.String("path", path), zap.Error(err))
	}
}
