package consts

const (
	ETH_DECIMALS  = 18
	SCRT_DECIMALS = 6

	NETWORK_ETHEREUM = "Ethereum"
	NETWORK_SECRET   = "Secret"

	// tokens whose src_address is this marker are the chain's own coin
	NATIVE_ADDRESS = "native"

	SECRET_BECH32_PREFIX = "secret"
	SECRET_NATIVE_DENOM  = "uscrt"

	// key the local history lives under
	MIRROR_OPERATIONS_KEY = "operationskey"

	// cron jobs tracked by the job status manager
	JOB_OPERATION_RECOVERY = "operation_recovery"
	JOB_TOKEN_REFRESH      = "token_refresh"

	// names of the probes behind /api/v1/health/external
	CHECK_EVM_RPC      = "evm_rpc"
	CHECK_SECRET_LCD   = "secret_lcd"
	CHECK_RECORD_STORE = "operation_store"
	CHECK_LOCAL_MIRROR = "local_mirror"

	VAULT_EVM_SIGNER_KEY = "ETH_SIGNER_PRIVATE_KEY"
)
