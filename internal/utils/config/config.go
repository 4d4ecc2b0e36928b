package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/dwarvesf/secret-bridge/internal/types/environments"
)

type AppConfig struct {
	Environment    environments.Environment
	ApiServer      ApiServerConfig
	Ethereum       EthereumConfig
	Secret         SecretConfig
	OperationStore OperationStoreConfig
	Mirror         MirrorConfig
	Orchestrator   OrchestratorConfig
	Vault          VaultConfig
	WebhookURL     string
	TokensFile     string
	TestCoins      bool
	RecoveryPeriod string
}

type ApiServerConfig struct {
	Port           string
	AllowedOrigins string
}

type EthereumConfig struct {
	RPCEndpoint           string
	ChainID               int64
	BridgeContractAddr    string
	SignerPrivateKey      string
	RequiredConfirmations uint64
}

type SecretConfig struct {
	LCDEndpoint        string
	ChainID            string
	BridgeContractAddr string
	Bech32Prefix       string
	// the wallet signs and encrypts compute messages, the daemon only hands it the msg
	SignerURL     string
	SignerAddress string

	// proxy tokens: the display token is sent through the proxy contract
	SSCRTContract  string
	SSCRTProxy     string
	SiennaContract string
	SiennaProxy    string
}

type OperationStoreConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	ReadRetries    int
}

// VaultConfig is only set where signing keys live in Vault instead of the
// environment.
type VaultConfig struct {
	Addr   string
	KVPath string
	Role   string
}

type MirrorConfig struct {
	Path string
}

type OrchestratorConfig struct {
	PollInterval         time.Duration
	PollTimeout          time.Duration
	ApprovalPollAttempts int
	ApprovalPollInterval time.Duration
	ReceiptTimeout       time.Duration
	RecordRetries        int
	RetryBaseDelay       time.Duration
	AllowanceTTL         time.Duration
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// this will not override env variables if they already exist
	godotenv.Load(".env." + env)

	return &AppConfig{
		Environment: environments.Parse(env),
		ApiServer: ApiServerConfig{
			Port:           envVarOrDefault("PORT", "8080"),
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		},
		Ethereum: EthereumConfig{
			RPCEndpoint:           os.Getenv("ETH_NODE_URL"),
			ChainID:               int64(envVarAtoi("ETH_CHAIN_ID", 1)),
			BridgeContractAddr:    os.Getenv("ETH_MANAGER_CONTRACT"),
			SignerPrivateKey:      os.Getenv("ETH_SIGNER_PRIVATE_KEY"),
			RequiredConfirmations: uint64(envVarAtoi("ETH_REQUIRED_CONFIRMATIONS", 12)),
		},
		Secret: SecretConfig{
			LCDEndpoint:        os.Getenv("SECRET_LCD_URL"),
			ChainID:            envVarOrDefault("SECRET_CHAIN_ID", "secret-4"),
			BridgeContractAddr: os.Getenv("SCRT_SWAP_CONTRACT"),
			Bech32Prefix:       envVarOrDefault("SECRET_BECH32_PREFIX", "secret"),
			SignerURL:          os.Getenv("SECRET_SIGNER_URL"),
			SignerAddress:      os.Getenv("SECRET_SIGNER_ADDRESS"),
			SSCRTContract:      os.Getenv("SSCRT_CONTRACT"),
			SSCRTProxy:         os.Getenv("WSCRT_PROXY_CONTRACT"),
			SiennaContract:     os.Getenv("SIENNA_CONTRACT"),
			SiennaProxy:        os.Getenv("SIENNA_PROXY_CONTRACT"),
		},
		OperationStore: OperationStoreConfig{
			BaseURL:        os.Getenv("BACKEND_URL"),
			RequestTimeout: envVarDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
			ReadRetries:    envVarAtoi("BACKEND_READ_RETRIES", 3),
		},
		Mirror: MirrorConfig{
			Path: envVarOrDefault("MIRROR_PATH", "secret-bridge.db"),
		},
		Orchestrator: OrchestratorConfig{
			PollInterval:         envVarDuration("POLL_INTERVAL", 2*time.Second),
			PollTimeout:          envVarDuration("POLL_TIMEOUT", 2*time.Hour),
			ApprovalPollAttempts: envVarAtoi("APPROVAL_POLL_ATTEMPTS", 10),
			ApprovalPollInterval: envVarDuration("APPROVAL_POLL_INTERVAL", 3*time.Second),
			ReceiptTimeout:       envVarDuration("RECEIPT_TIMEOUT", 15*time.Minute),
			RecordRetries:        envVarAtoi("RECORD_RETRIES", 5),
			RetryBaseDelay:       envVarDuration("RETRY_BASE_DELAY", time.Second),
			AllowanceTTL:         envVarDuration("ALLOWANCE_TTL", 30*time.Second),
		},
		Vault: VaultConfig{
			Addr:   os.Getenv("VAULT_ADDR"),
			KVPath: os.Getenv("VAULT_KV_PATH"),
			Role:   os.Getenv("VAULT_ROLE"),
		},
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		TokensFile:     os.Getenv("TOKENS_FILE"),
		TestCoins:      envVarAsBool("TEST_COINS"),
		RecoveryPeriod: envVarOrDefault("RECOVERY_PERIOD", "@every 1m"),
	}
}

func envVarOrDefault(envName, fallback string) string {
	if v := os.Getenv(envName); v != "" {
		return v
	}
	return fallback
}

func envVarAtoi(envName string, fallback int) int {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		panic(err)
	}

	return value
}

func envVarDuration(envName string, fallback time.Duration) time.Duration {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		panic(err)
	}

	return value
}

func envVarAsBool(envName string) bool {
	valueStr := os.Getenv(envName)
	return valueStr == "true"
}
