package pktables

const (
	defaultConfigPath                = "./config.yaml"
	defaultPipelineName              = "summary"
	defaultHistoryLimit              = 20
	environmentPrefix                = "PKTABLES"
	rootCommandUse                   = "pktables"
	rootCommandShort                 = "Extract pharmacokinetic tables into a normalized long format with an LLM"
	runCommandUse                    = "run [PIPELINE]"
	runCommandShort                  = "Run a pipeline over a table file, an HTML page or a directory of them"
	runCommandArgsMin                = 0
	runCommandArgsMax                = 1
	configFlagName                   = "config"
	configFlagUsage                  = "Path to unified config.yaml"
	allFlagName                      = "all"
	allFlagUsage                     = "Show disabled pipelines as well"
	pipelineFlagName                 = "pipeline"
	pipelineFlagUsage                = "Pipeline to run, by configured name or type (pk/summary, pk/individual)"
	tableFlagName                    = "table"
	tableFlagUsage                   = "Markdown, CSV or HTML input, or a directory of them"
	captionFlagName                  = "caption"
	captionFlagUsage                 = "Caption and footnote text passed to the model with a markdown or CSV table"
	captionFileFlagName              = "caption-file"
	captionFileFlagUsage             = "File holding the caption and footnote text"
	drugsFlagName                    = "drugs"
	drugsFlagUsage                   = "Markdown or CSV table of known drug combinations; skips drug identification"
	populationsFlagName              = "populations"
	populationsFlagUsage             = "Markdown or CSV table of known populations; skips population identification"
	outputFlagName                   = "output"
	outputFlagUsage                  = "Output file for a single table (stdout when empty) or directory for several"
	formatFlagName                   = "format"
	formatFlagUsage                  = "Output format inside an output directory (md or csv)"
	provenanceFlagName               = "provenance"
	provenanceFlagUsage              = "Directory receiving one provenance JSON file per run"
	attemptsFlagName                 = "attempts"
	attemptsFlagUsage                = "Max attempts per step (0 = use defaults)"
	initialWaitFlagName              = "initial-wait"
	initialWaitFlagUsage             = "Backoff before the first retry after a transport error (0 = use defaults)"
	timeoutFlagName                  = "timeout"
	timeoutFlagUsage                 = "Per-call timeout (e.g., 45s; 0 = use defaults)"
	modelFlagName                    = "model"
	modelFlagUsage                   = "Override the pipeline's model by name (must exist in models[])"
	databaseFlagName                 = "db"
	databaseFlagUsage                = "SQLite file recording runs and their steps"
	metricsFileFlagName              = "metrics-file"
	metricsFileFlagUsage             = "Write Prometheus metrics in textfile format after the run"
	continueOnErrorFlagName          = "continue-on-error"
	continueOnErrorFlagUsage         = "Keep going when one input of a directory fails"
	limitFlagName                    = "limit"
	limitFlagUsage                   = "Number of recent runs to show"
	listCommandUse                   = "list"
	listCommandShort                 = "List pipelines from config.yaml (enabled by default)"
	historyCommandUse                = "history [RUN_ID]"
	historyCommandShort              = "Show recorded runs, or the steps of one run"
	enabledStateLabel                = "enabled"
	disabledStateLabel               = "disabled"
	succeededStateLabel              = "succeeded"
	failedStateLabel                 = "failed"
	skippedStateLabel                = "skipped"
	dashPlaceholder                  = "-"
	outputFormatMarkdown             = "md"
	outputFormatCSV                  = "csv"
	provenanceFileSuffix             = ".provenance.json"
	defaultAPIEndpoint               = "https://api.openai.com/v1"
	defaultAPIKeyEnvironmentVariable = "OPENAI_API_KEY"

	configurationLoaderInitializationErrorFormat = "initialize configuration loader: %w"
	configurationSourceResolutionErrorFormat     = "resolve configuration source: %w"
	rootConfigurationLoadErrorFormat             = "load root configuration %s: %w"
	unknownPipelineErrorFormat                   = "unknown pipeline %q"
	disabledPipelineErrorFormat                  = "pipeline %q is disabled"
	unknownModelErrorFormat                      = "model %q not found in models[]"
	missingAPIKeyErrorFormat                     = "missing API key: set %s"
	missingTableFlagErrorMessage                 = "--table is required"
	missingDatabaseFlagErrorMessage              = "--db is required"
	unsupportedOutputFormatErrorFormat           = "unsupported --format %q (md or csv)"
	noInputsErrorFormat                          = "no tables found in %s"
	outputDirectoryRequiredErrorFormat           = "%d tables found: --output must be a directory"
	captionConflictErrorMessage                  = "--caption and --caption-file are mutually exclusive"
	loggerBuildErrorFormat                       = "build logger: %w"
	openDatabaseErrorFormat                      = "open run database: %w"
	bindEnvironmentErrorFormat                   = "bind %s_* environment: %w"
	applyEnvironmentErrorFormat                  = "apply %s to --%s: %w"
	runFailedErrorFormat                         = "run %s on %s: %w"
	batchFailedErrorFormat                       = "%d of %d tables failed"
	writeOutputErrorFormat                       = "write output: %w"
	writeListingErrorFormat                      = "write pipeline listing: %w"
	writeHistoryErrorFormat                      = "write run history: %w"
)
