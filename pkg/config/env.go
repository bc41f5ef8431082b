package config

// EnvPrefix is handed to envconfig; every field below carries its full name.
const EnvPrefix = "MISTERFOOD"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "MISTERFOOD_APP_ENV"
	EnvPort         = "MISTERFOOD_APP_PORT"
	EnvPublicURL    = "MISTERFOOD_APP_PUBLIC_URL"
	EnvDBDSN        = "MISTERFOOD_DB_DSN"
	EnvDBHost       = "MISTERFOOD_DB_HOST"
	EnvDBUser       = "MISTERFOOD_DB_USER"
	EnvDBName       = "MISTERFOOD_DB_NAME"
	EnvRedisURL     = "MISTERFOOD_REDIS_URL"
	EnvRateStore    = "MISTERFOOD_RATE_LIMIT_STORE"
	EnvStripeKey    = "MISTERFOOD_STRIPE_API_KEY"
	EnvStripeSecret = "MISTERFOOD_STRIPE_WEBHOOK_SECRET"
	EnvUberClientID = "MISTERFOOD_UBER_CLIENT_ID"
	EnvUberSecret   = "MISTERFOOD_UBER_CLIENT_SECRET"
	EnvUberStoreID  = "MISTERFOOD_UBER_STORE_ID"

	EnvDeliveryAllowedHours = "MISTERFOOD_DELIVERY_ALLOWED_HOURS"
	EnvBusinessOpeningHours = "MISTERFOOD_BUSINESS_OPENING_HOURS"
	EnvBusinessTimezone     = "MISTERFOOD_BUSINESS_TIMEZONE"
	EnvDeliveryPostalCodes  = "MISTERFOOD_DELIVERY_ALLOWED_POSTAL_CODES"
	EnvDeliveryOriginLat    = "MISTERFOOD_DELIVERY_ORIGIN_LAT"
	EnvDeliveryOriginLng    = "MISTERFOOD_DELIVERY_ORIGIN_LNG"
	EnvDeliveryMaxKm        = "MISTERFOOD_DELIVERY_MAX_DISTANCE_KM"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
