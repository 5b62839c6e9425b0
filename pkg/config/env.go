package config

// EnvPrefix scopes envconfig processing; individual fields carry full names.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv     = "QUOTAFLOW_APP_ENV"
	EnvPort       = "QUOTAFLOW_APP_PORT"
	EnvDBDSN      = "QUOTAFLOW_DB_DSN"
	EnvDBHost     = "QUOTAFLOW_DB_HOST"
	EnvDBUser     = "QUOTAFLOW_DB_USER"
	EnvDBName     = "QUOTAFLOW_DB_NAME"
	EnvRedisURL   = "QUOTAFLOW_REDIS_URL"
	EnvJWTSecret  = "QUOTAFLOW_JWT_SECRET"
	EnvJWTIssuer  = "QUOTAFLOW_JWT_ISSUER"
	EnvJWTExpMins = "QUOTAFLOW_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
