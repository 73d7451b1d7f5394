package constants

// Application

const (
	AppName                    = "odsync"
	EnvVarPrefix               = "ODSYNC" // prefixed for environment variables in twelveFactorMode
	EnvVar12FactorMode         = EnvVarPrefix + "_12FACTOR_MODE"
	ConfigDirName              = ".odsync"
	ConfigFileName             = "config.yaml"
	TimeFormatYearSeconds      = "20060102_150405" // used for human readable file names
	TimeFormatYearSecondsRegex = "[0-9]{8}_[0-9]{6}"
	TimeFormatDate             = "2006-01-02"
	TimeFormatDateTime         = "2006-01-02 15:04:05"
	ErrorTextMaxLen            = 500
	EmojiBang                  = "\U0001F4A5"
	ConnectionTypeOdbc         = "odbc" // this is not a real connection type, since we need a suffix to provide the driver name.
	ConnectionTypeSqlServer    = "sqlserver"
	ConnectionTypeMssql        = "mssql"
	SourceSchema               = "PUB"
	StagingSchema              = "stg"
	DefaultDestinationSchema   = "ods"
	StageBatchRows             = 1000
	SqlServerMaxParams         = 2000 // SQL Server rejects statements with more than 2100 parameters.
)

// Load modes.

const (
	ModeIncremental = "incremental"
	ModeFull        = "full"
)

// Technical columns appended to every staged row.

const (
	ColHashDiff = "hashdiff"
	ColTsSource = "ts_source"
	ColLoadTs   = "load_ts"
	HashDiffLen = 40
)

// Pipeline steps written to the run ledger.

const (
	StepExtract   = "extract"
	StepTransform = "transform"
	StepStage     = "stage"
	StepMerge     = "merge"
	StepLoad      = "load"
	StepDag       = "dag"
)

// Ledger statuses.

const (
	StatusStarted = "started"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Cache stages.

const (
	CacheStageRaw         = "raw"
	CacheStageTransformed = "transformed"
)
