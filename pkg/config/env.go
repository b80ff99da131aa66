package config

const (
	EnvPrefix = "ZABARDOO"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "ZABARDOO_APP_ENV"
	EnvPort   = "ZABARDOO_APP_PORT"

	EnvDBDSN  = "ZABARDOO_DB_DSN"
	EnvDBHost = "ZABARDOO_DB_HOST"
	EnvDBUser = "ZABARDOO_DB_USER"
	EnvDBName = "ZABARDOO_DB_NAME"

	EnvRedisURL = "ZABARDOO_REDIS_URL"

	EnvGCPProjectID                = "ZABARDOO_GCP_PROJECT_ID"
	EnvPubSubTrackingSubscription  = "ZABARDOO_PUBSUB_TRACKING_SUBSCRIPTION"
	EnvBigQueryEventsTable         = "ZABARDOO_BIGQUERY_EVENTS_TABLE"
	EnvCollectorBatchSize          = "ZABARDOO_COLLECTOR_BATCH_SIZE"
	EnvCollectorFlushInterval      = "ZABARDOO_COLLECTOR_FLUSH_INTERVAL"
	EnvCollectorMaxPropertiesBytes = "ZABARDOO_COLLECTOR_MAX_PROPERTIES_BYTES"
	EnvCollectorSessionGap         = "ZABARDOO_COLLECTOR_SESSION_GAP"
	EnvAnalyticsSnapshotMetrics    = "ZABARDOO_ANALYTICS_SNAPSHOT_METRICS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
