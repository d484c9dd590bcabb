package config

const EnvPrefix = "CONVTRACK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv          = "CONVTRACK_APP_ENV"
	EnvPort            = "CONVTRACK_APP_PORT"
	EnvDBDSN           = "CONVTRACK_DB_DSN"
	EnvDBHost          = "CONVTRACK_DB_HOST"
	EnvDBUser          = "CONVTRACK_DB_USER"
	EnvDBName          = "CONVTRACK_DB_NAME"
	EnvRedisURL        = "CONVTRACK_REDIS_URL"
	EnvJWTSecret       = "CONVTRACK_JWT_SECRET"
	EnvJWTIssuer       = "CONVTRACK_JWT_ISSUER"
	EnvSourceSecrets   = "CONVTRACK_SOURCE_SECRETS"
	EnvPostbackIPs     = "CONVTRACK_POSTBACK_ALLOWED_IPS"
	EnvPollSecret      = "CONVTRACK_POLL_SECRET"
	EnvSourceUTCOffset = "CONVTRACK_SOURCE_UTC_OFFSET"
	EnvPollWindowDays  = "CONVTRACK_POLL_WINDOW_DAYS"
	EnvCORSOrigins     = "CONVTRACK_CORS_ALLOWED_ORIGINS"
	EnvTrustedProxies  = "CONVTRACK_TRUSTED_PROXIES"
	EnvPollBaseURL     = "CONVTRACK_POLL_BASE_URL"
)
