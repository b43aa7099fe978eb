package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	RabbitMQ      RabbitMQConfig
	SendGrid      SendGridConfig
	MessageBird   MessageBirdConfig
	Twilio        TwilioConfig
	Stripe        StripeConfig
	Auth          AuthConfig
	Dispatch      DispatchConfig
	SMSProvider   string
	MockProviders bool
}

type ServerConfig struct {
	Port    string
	Timeout time.Duration
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL         string
	Exchange    string
	SentQueue   string
	FailedQueue string
}

type SendGridConfig struct {
	APIKey        string
	FromAddress   string
	WebhookSecret string
}

type MessageBirdConfig struct {
	APIKey     string
	Originator string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type StripeConfig struct {
	WebhookSecret string
}

type AuthConfig struct {
	JWTSecret  string
	CronAPIKey string
}

type DispatchConfig struct {
	BatchSize int
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.timeout", "10s")
	viper.SetDefault("database.maxconns", 25)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("rabbitmq.exchange", "notifications.direct")
	viper.SetDefault("rabbitmq.sentqueue", "notification.sent")
	viper.SetDefault("rabbitmq.failedqueue", "notification.failed")
	viper.SetDefault("sendgrid.fromaddress", "notifications@notifyai.com")
	viper.SetDefault("dispatch.batchsize", 100)
	viper.SetDefault("smsprovider", "twilio")
	viper.SetDefault("mockproviders", false)

	// Read from environment
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
