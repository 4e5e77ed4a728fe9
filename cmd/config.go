package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/konekte/seminar-registration/seminar"
	"github.com/shopspring/decimal"
)

type ServerSettings struct {
	Host          string
	Port          string
	Env           string
	PublicBaseURL string

	StoreDriver    string
	DynamoTable    string
	DynamoEndpoint string
	PostgresDSN    string

	BazikBaseURL       string
	BazikUserID        string
	BazikAPIKey        string
	BazikWebhookSecret string
	ProviderTimeout    time.Duration
	SSMPrefix          string

	SeminarName      string
	SeminarPrice     decimal.Decimal
	SeminarCurrency  string
	SeminarCapacity  int
	AdminAudience    string
	AdminDomain      string
	ShutdownDeadline time.Duration
}

func getServerSettingsFromEnv() (ServerSettings, error) {
	price, err := decimal.NewFromString(getEnvOrDefault("SEMINAR_BASE_PRICE", "5000"))
	if err != nil {
		return ServerSettings{}, fmt.Errorf("invalid SEMINAR_BASE_PRICE: %w", err)
	}

	capacity, err := strconv.Atoi(getEnvOrDefault("SEMINAR_CAPACITY", "0"))
	if err != nil {
		return ServerSettings{}, fmt.Errorf("invalid SEMINAR_CAPACITY: %w", err)
	}

	providerTimeout, err := time.ParseDuration(getEnvOrDefault("PROVIDER_TIMEOUT", "30s"))
	if err != nil {
		return ServerSettings{}, fmt.Errorf("invalid PROVIDER_TIMEOUT: %w", err)
	}

	settings := ServerSettings{
		Host:          getEnvOrDefault("HOST", "0.0.0.0"),
		Port:          getEnvOrDefault("PORT", "8080"),
		Env:           getEnvOrDefault("ENV", "LOCAL"),
		PublicBaseURL: getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),

		StoreDriver:    getEnvOrDefault("STORE_DRIVER", "dynamo"),
		DynamoTable:    getEnvOrDefault("DYNAMO_TABLE", "seminar-registration"),
		DynamoEndpoint: getEnvOrDefault("DYNAMO_ENDPOINT", ""),
		PostgresDSN:    getEnvOrDefault("POSTGRES_DSN", ""),

		BazikBaseURL:       getEnvOrDefault("BAZIK_BASE_URL", ""),
		BazikUserID:        getEnvOrDefault("BAZIK_USER_ID", ""),
		BazikAPIKey:        getEnvOrDefault("BAZIK_API_KEY", ""),
		BazikWebhookSecret: getEnvOrDefault("BAZIK_WEBHOOK_SECRET", ""),
		ProviderTimeout:    providerTimeout,
		SSMPrefix:          getEnvOrDefault("SSM_PREFIX", "/konekte/seminar-registration"),

		SeminarName:      getEnvOrDefault("SEMINAR_NAME", "Konekte Seminar"),
		SeminarPrice:     price,
		SeminarCurrency:  getEnvOrDefault("SEMINAR_CURRENCY", seminar.DefaultCurrency),
		SeminarCapacity:  capacity,
		AdminAudience:    getEnvOrDefault("ADMIN_AUDIENCE", ""),
		AdminDomain:      getEnvOrDefault("ADMIN_DOMAIN", ""),
		ShutdownDeadline: 10 * time.Second,
	}

	if settings.isProd() {
		if _, ok := os.LookupEnv("PUBLIC_BASE_URL"); !ok {
			return ServerSettings{}, errors.New("PUBLIC_BASE_URL is required in PROD")
		}
		if settings.AdminAudience == "" || settings.AdminDomain == "" {
			return ServerSettings{}, errors.New("ADMIN_AUDIENCE and ADMIN_DOMAIN are required in PROD")
		}
	}

	return settings, nil
}

func (s ServerSettings) isProd() bool {
	return s.Env == "PROD"
}

func getEnvOrDefault(key string, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return defaultVal
}

const (
	ssmBazikUserID        = "/bazik/user-id"
	ssmBazikAPIKey        = "/bazik/api-key"
	ssmBazikWebhookSecret = "/bazik/webhook-secret"
)

// loadBazikSecretsFromSSM fills the provider credentials from SecureString parameters under prefix.
func loadBazikSecretsFromSSM(ctx context.Context, client *ssm.Client, settings *ServerSettings) error {
	names := []string{
		settings.SSMPrefix + ssmBazikUserID,
		settings.SSMPrefix + ssmBazikAPIKey,
		settings.SSMPrefix + ssmBazikWebhookSecret,
	}

	out, err := client.GetParameters(ctx, &ssm.GetParametersInput{
		Names:          names,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("failed to read bazik parameters: %w", err)
	}
	if len(out.InvalidParameters) > 0 {
		return fmt.Errorf("missing bazik parameters: %v", out.InvalidParameters)
	}

	values := make(map[string]string, len(out.Parameters))
	for _, p := range out.Parameters {
		values[aws.ToString(p.Name)] = aws.ToString(p.Value)
	}

	settings.BazikUserID = values[names[0]]
	settings.BazikAPIKey = values[names[1]]
	settings.BazikWebhookSecret = values[names[2]]

	return nil
}
